// Package proctor is the client half of the exam-integrity system: a set of
// stateful detectors that turn normalized browser signals into violation
// events, and a reporter that delivers each event to the backend the moment
// it occurs. The embedding application (a desktop shell or a wasm frontend)
// owns the DOM; this package owns the detection rules and the wire protocol.
package proctor

import (
	"time"

	"github.com/google/uuid"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// Session describes one running attempt from the client's point of view.
type Session struct {
	BaseURL   string
	Token     string
	AttemptID uuid.UUID
	Policy    model.ExamPolicy
	EndsAt    time.Time
}
