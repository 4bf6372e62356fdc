package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. IN_PROGRESS is the only
// non-terminal state; an attempt never re-enters it.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	// AttemptFlagged means the attempt reached submission but its
	// accumulated risk warrants teacher review. It still carries a score.
	AttemptFlagged AttemptStatus = "FLAGGED"
	// AttemptFailed means the attempt was forcibly terminated mid-exam.
	AttemptFailed AttemptStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptInProgress
}

// PaperQuestion is one question as materialized for a specific attempt:
// question and option order already shuffled, Correct remapped through the
// option shuffle. Source is the question's index in the authored exam.
type PaperQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
	Marks   int      `json:"marks"`
	Source  int      `json:"source"`
}

// StudentQuestion is a PaperQuestion stripped of the answer key.
type StudentQuestion struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Marks   int      `json:"marks"`
}

// SuspiciousFlag is one entry of the attempt's append-only violation log.
type SuspiciousFlag struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// FlagFastCompletion is the synthetic flag type recorded when the
// submission-time plausibility check trips.
const FlagFastCompletion = "FAST_COMPLETION"

// ClientFingerprint identifies the browser that started an attempt.
type ClientFingerprint struct {
	IPAddress        string `json:"ip_address"`
	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
}

// ExamAttempt is the authoritative record of one student's run through an
// exam. Only the attempt service mutates it, and risk/counter updates are
// atomic increments on the stored row.
type ExamAttempt struct {
	ID        uuid.UUID     `json:"id"`
	ExamID    uuid.UUID     `json:"exam_id"`
	StudentID int           `json:"student_id"`
	Status    AttemptStatus `json:"status"`

	// Paper is the materialized question order served verbatim on resume.
	// It carries the answer key and is never serialized to students as-is.
	Paper []PaperQuestion `json:"-"`

	// Answers maps presented question index to chosen option index.
	// Partial while in progress.
	Answers map[int]int `json:"answers,omitempty"`

	Score            *int     `json:"score,omitempty"`
	Percentage       *float64 `json:"percentage,omitempty"`
	TimeSpentSeconds *int     `json:"time_spent_seconds,omitempty"`

	RiskScore       int `json:"risk_score"`
	TabSwitches     int `json:"tab_switches"`
	MouseLeftCount  int `json:"mouse_left_count"`
	FullscreenExits int `json:"fullscreen_exits"`
	RightClicks     int `json:"right_clicks"`
	CopyPasteEvents int `json:"copy_paste_events"`

	SuspiciousFlags []SuspiciousFlag `json:"suspicious_flags,omitempty"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Fingerprint ClientFingerprint `json:"fingerprint"`
}

// StudentQuestions returns the materialized paper with answer keys stripped.
func (a *ExamAttempt) StudentQuestions() []StudentQuestion {
	qs := make([]StudentQuestion, len(a.Paper))
	for i, q := range a.Paper {
		qs[i] = StudentQuestion{
			Index:   i,
			Prompt:  q.Prompt,
			Options: q.Options,
			Marks:   q.Marks,
		}
	}
	return qs
}

// StartAttemptRequest is the payload for starting a new attempt.
type StartAttemptRequest struct {
	ScreenResolution string `json:"screen_resolution" binding:"omitempty,max=32"`
}

// SaveAnswersRequest merges partial answers into an in-progress attempt.
type SaveAnswersRequest struct {
	Answers map[int]int `json:"answers" binding:"required"`
}

// SubmitAttemptRequest is the payload for submitting an attempt.
type SubmitAttemptRequest struct {
	Answers          map[int]int `json:"answers" binding:"required"`
	TimeSpentSeconds int         `json:"time_spent_seconds" binding:"min=0"`
}

// SubmitResult is returned after grading. Score fields are present only
// when the exam shows results.
type SubmitResult struct {
	Status     AttemptStatus `json:"status"`
	Score      *int          `json:"score,omitempty"`
	Percentage *float64      `json:"percentage,omitempty"`
	Passed     *bool         `json:"passed,omitempty"`
	Message    string        `json:"message"`
	Warning    string        `json:"warning,omitempty"`
}
