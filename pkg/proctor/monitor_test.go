package proctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvigil/edvigil-backend/internal/model"
)

type stubReporter struct {
	mu      sync.Mutex
	seen    []Violation
	outcome *model.ViolationOutcome
}

func (s *stubReporter) Report(_ context.Context, v Violation) (*model.ViolationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, v)
	return s.outcome, nil
}

func (s *stubReporter) reported() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Violation(nil), s.seen...)
}

func TestMonitor_NoOpWhenProctoringDisabled(t *testing.T) {
	rep := &stubReporter{}
	m := NewMonitor(Session{Policy: model.ExamPolicy{ProctoringEnabled: false}}, rep, zerolog.Nop())
	defer m.End()

	assert.False(t, m.Enabled())
	blocked := m.Observe(ContextMenuSignal{X: 1, Y: 1})
	assert.False(t, blocked)
	assert.Empty(t, rep.reported())
}

func TestMonitor_ReportsAndBlocks(t *testing.T) {
	rep := &stubReporter{outcome: &model.ViolationOutcome{RiskScore: 3}}
	m := NewMonitor(Session{Policy: model.ExamPolicy{ProctoringEnabled: true}}, rep, zerolog.Nop())
	defer m.End()

	require.True(t, m.Enabled())

	blocked := m.Observe(ContextMenuSignal{X: 5, Y: 9})
	assert.True(t, blocked, "context menu must be prevented")

	blocked = m.Observe(VisibilitySignal{Hidden: true})
	assert.False(t, blocked, "tab switch cannot be prevented, only reported")

	require.Eventually(t, func() bool {
		return len(rep.reported()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	seen := rep.reported()
	assert.Equal(t, model.ViolationRightClick, seen[0].Type)
	assert.Equal(t, model.ViolationTabSwitch, seen[1].Type)
}

// The detection path must answer immediately even when the server is slow;
// the report travels on the background loop.
func TestMonitor_ObserveDoesNotWaitOnReporter(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		received <- struct{}{}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"terminated":false,"risk_score":3}}`))
	}))
	defer srv.Close()

	rep := NewReporter(Session{
		BaseURL:   srv.URL,
		Token:     "token-123",
		AttemptID: uuid.New(),
	}, nil, zerolog.Nop())
	m := NewMonitor(Session{Policy: model.ExamPolicy{ProctoringEnabled: true}}, rep, zerolog.Nop())
	defer m.End()

	start := time.Now()
	blocked := m.Observe(ContextMenuSignal{X: 1, Y: 2})
	elapsed := time.Since(start)

	assert.True(t, blocked)
	assert.Less(t, elapsed, 100*time.Millisecond, "blocking answer must not wait for the round trip")

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("report never reached the server")
	}
}

func TestMonitor_StopsAfterTermination(t *testing.T) {
	rep := &stubReporter{outcome: &model.ViolationOutcome{Terminated: true, RiskScore: 95}}
	m := NewMonitor(Session{Policy: model.ExamPolicy{ProctoringEnabled: true}}, rep, zerolog.Nop())
	defer m.End()

	m.Observe(ContextMenuSignal{})

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.ended
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, m.Observe(ContextMenuSignal{}), "no detection after the server ends the session")
	assert.Len(t, rep.reported(), 1)
}

func TestMonitor_FullscreenRetryDegradesToWarning(t *testing.T) {
	rep := &stubReporter{}
	m := NewMonitor(Session{
		Policy: model.ExamPolicy{ProctoringEnabled: true, FullScreenRequired: true},
	}, rep, zerolog.Nop())
	defer m.End()

	var (
		mu       sync.Mutex
		requests int
		warning  string
	)
	m.RequestFullscreen = func() error {
		mu.Lock()
		defer mu.Unlock()
		requests++
		return assert.AnError
	}
	m.OnWarning = func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		warning = msg
	}

	m.Observe(FullscreenSignal{Active: true})
	m.Observe(FullscreenSignal{Active: false})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return requests == 1 && warning != ""
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitor_CountdownAutoSubmitsOnce(t *testing.T) {
	m := NewMonitor(Session{
		Policy: model.ExamPolicy{ProctoringEnabled: true},
		EndsAt: time.Now().Add(30 * time.Millisecond),
	}, &stubReporter{}, zerolog.Nop())

	submitted := make(chan struct{}, 1)
	m.AutoSubmit = func() { submitted <- struct{}{} }

	go m.RunCountdown(context.Background())

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never fired")
	}

	assert.False(t, m.Observe(ContextMenuSignal{}),
		"detection ends with the attempt")
}

func TestMonitor_CountdownCancelledByContext(t *testing.T) {
	m := NewMonitor(Session{
		Policy: model.ExamPolicy{ProctoringEnabled: true},
		EndsAt: time.Now().Add(time.Hour),
	}, &stubReporter{}, zerolog.Nop())
	defer m.End()
	m.AutoSubmit = func() { t.Error("must not submit after cancellation") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunCountdown(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop")
	}
}
