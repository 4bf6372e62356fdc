package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/model"
)

const reportTimeout = 10 * time.Second

// Reporter delivers violation events one at a time, as they happen. Delivery
// is best effort: a lost report costs at most one risk delta, and the
// server's submission-time risk check covers the gap. Network failures are
// logged and otherwise ignored so detection keeps running offline.
type Reporter struct {
	client  *http.Client
	baseURL string
	token   string
	attempt uuid.UUID
	log     zerolog.Logger

	// OnTerminate fires when the server orders the session closed. The
	// embedding application must end the exam immediately.
	OnTerminate func(riskScore int)
	// OnWarning surfaces a transient, auto-dismissing notice.
	OnWarning func(msg string)
}

// NewReporter builds a reporter for one attempt. client may be nil.
func NewReporter(sess Session, client *http.Client, log zerolog.Logger) *Reporter {
	if client == nil {
		client = &http.Client{Timeout: reportTimeout}
	}
	return &Reporter{
		client:  client,
		baseURL: sess.BaseURL,
		token:   sess.Token,
		attempt: sess.AttemptID,
		log:     log.With().Str("component", "proctor_reporter").Logger(),
	}
}

type outcomeEnvelope struct {
	Data *model.ViolationOutcome `json:"data"`
}

// Report sends one violation and reacts to the server's verdict. It returns
// the outcome when one was received; transport failures return (nil, nil).
func (r *Reporter) Report(ctx context.Context, v Violation) (*model.ViolationOutcome, error) {
	details, err := json.Marshal(v.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	payload, err := json.Marshal(model.ViolationReport{
		EventType: v.Type,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/student/attempts/%s/violations", r.baseURL, r.attempt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Str("event", string(v.Type)).Msg("report dropped, network error")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn().Int("status", resp.StatusCode).Str("event", string(v.Type)).Msg("report rejected")
		return nil, nil
	}

	var env outcomeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Data == nil {
		r.log.Warn().Err(err).Msg("unreadable outcome")
		return nil, nil
	}

	if env.Data.Terminated {
		if r.OnTerminate != nil {
			r.OnTerminate(env.Data.RiskScore)
		}
	} else if env.Data.Warning != "" && r.OnWarning != nil {
		r.OnWarning(env.Data.Warning)
	}
	return env.Data, nil
}
