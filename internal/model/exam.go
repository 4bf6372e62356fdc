package model

import (
	"time"

	"github.com/google/uuid"
)

// Bilingual holds a piece of text in both portal languages.
type Bilingual struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

// Question is a single multiple-choice question as authored by a teacher.
// CorrectOption is an index into Options and never leaves the server
// unless the exam shows results.
type Question struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Marks         int      `json:"marks"`
}

// ExamPolicy is the set of proctoring and presentation flags for one exam.
// All detection rules on the client are gated by ProctoringEnabled.
type ExamPolicy struct {
	ShuffleQuestions   bool `json:"shuffle_questions"`
	ShuffleOptions     bool `json:"shuffle_options"`
	ProctoringEnabled  bool `json:"proctoring_enabled"`
	AllowTabSwitch     bool `json:"allow_tab_switch"`
	MaxTabSwitches     int  `json:"max_tab_switches"`
	WebcamRequired     bool `json:"webcam_required"`
	FullScreenRequired bool `json:"full_screen_required"`
	ShowResults        bool `json:"show_results"`
}

// Exam represents a proctored exam. Structural fields (questions, marks,
// duration, policy) are frozen once any attempt exists.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           Bilingual  `json:"title"`
	Description     Bilingual  `json:"description"`
	Questions       []Question `json:"questions,omitempty"`
	TotalMarks      int        `json:"total_marks"`
	PassingMarks    int        `json:"passing_marks"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxAttempts     int        `json:"max_attempts"`
	Policy          ExamPolicy `json:"policy"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	IsActive        bool       `json:"is_active"`
	CreatedBy       int        `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// InWindow reports whether t falls inside the exam's active time window.
func (e *Exam) InWindow(t time.Time) bool {
	return !t.Before(e.StartDate) && !t.After(e.EndDate)
}

// Duration returns the nominal attempt duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Meta returns a copy of the exam stripped of its questions, safe to send
// to students before or during an attempt.
func (e *Exam) Meta() Exam {
	meta := *e
	meta.Questions = nil
	return meta
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           Bilingual               `json:"title" binding:"required"`
	Description     Bilingual               `json:"description"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
	TotalMarks      int                     `json:"total_marks" binding:"required,min=1"`
	PassingMarks    int                     `json:"passing_marks" binding:"min=0"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=480"`
	MaxAttempts     int                     `json:"max_attempts" binding:"required,min=1,max=10"`
	Policy          ExamPolicy              `json:"policy"`
	StartDate       time.Time               `json:"start_date" binding:"required"`
	EndDate         time.Time               `json:"end_date" binding:"required,gtfield=StartDate"`
}

// CreateQuestionRequest is one question inside CreateExamRequest.
type CreateQuestionRequest struct {
	Prompt        string   `json:"prompt" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,max=10"`
	CorrectOption int      `json:"correct_option" binding:"min=0"`
	Marks         int      `json:"marks" binding:"required,min=1"`
}

// UpdateExamRequest is the payload for updating an exam. Once attempts
// exist, only the text fields, EndDate and IsActive are honored.
type UpdateExamRequest struct {
	Title           *Bilingual              `json:"title"`
	Description     *Bilingual              `json:"description"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"omitempty,min=1,dive"`
	TotalMarks      *int                    `json:"total_marks" binding:"omitempty,min=1"`
	PassingMarks    *int                    `json:"passing_marks" binding:"omitempty,min=0"`
	DurationMinutes *int                    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MaxAttempts     *int                    `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	Policy          *ExamPolicy             `json:"policy"`
	StartDate       *time.Time              `json:"start_date"`
	EndDate         *time.Time              `json:"end_date"`
	IsActive        *bool                   `json:"is_active"`
}
