package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/grading"
	"github.com/edvigil/edvigil-backend/internal/model"
	"github.com/edvigil/edvigil-backend/internal/paper"
	"github.com/edvigil/edvigil-backend/internal/repository"
	"github.com/edvigil/edvigil-backend/internal/risk"
)

// Domain Errors
var (
	ErrExamNotActive        = errors.New("exam is not active")
	ErrOutsideWindow        = errors.New("outside the exam's time window")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrNotAttemptOwner      = errors.New("attempt belongs to another student")
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	ErrAttemptLimitReached  = errors.New("attempt limit reached")
	ErrStaleSubmission      = errors.New("submission arrived after the deadline grace period")
)

// examStore is the slice of ExamRepository the attempt service needs.
type examStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// attemptStore is the slice of AttemptRepository the attempt service needs.
type attemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetInProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error)
	CountByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (int, error)
	ApplyViolation(ctx context.Context, id uuid.UUID, u repository.ViolationUpdate) (int, error)
	Terminate(ctx context.Context, id uuid.UUID) (bool, error)
	SaveAnswers(ctx context.Context, id uuid.UUID, answers map[int]int) error
	Finalize(ctx context.Context, id uuid.UUID, u repository.FinalizeUpdate) (model.AttemptStatus, int, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.ExamAttempt, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
}

// incidentSink receives incidents for asynchronous persistence.
type incidentSink interface {
	Enqueue(ctx context.Context, in *model.CheatingIncident)
}

// monitorPublisher pushes live events to watching teachers.
type monitorPublisher interface {
	Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent)
}

// AttemptService owns the attempt lifecycle: start/resume, violation
// processing, autosave and submission. All risk mutations funnel through
// the store's guarded single-statement updates.
type AttemptService struct {
	exams     examStore
	attempts  attemptStore
	incidents incidentSink
	monitor   monitorPublisher
	grace     time.Duration
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService. grace is the window
// after an attempt's deadline during which a submission is still honored.
func NewAttemptService(
	exams examStore,
	attempts attemptStore,
	incidents incidentSink,
	monitor monitorPublisher,
	grace time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		exams:     exams,
		attempts:  attempts,
		incidents: incidents,
		monitor:   monitor,
		grace:     grace,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartResult is returned from Start: the open attempt plus the exam it
// belongs to, and whether an existing attempt was resumed.
type StartResult struct {
	Attempt *model.ExamAttempt
	Exam    *model.Exam
	Resumed bool
}

// Start opens a new attempt or resumes the student's existing open one.
// The paper is materialized and persisted exactly once, at first start; a
// resume always serves the stored paper so the question order a student
// saw never changes.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int, fp model.ClientFingerprint) (*StartResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if !exam.IsActive {
		return nil, ErrExamNotActive
	}
	if !exam.InWindow(time.Now()) {
		return nil, ErrOutsideWindow
	}
	if len(exam.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	// Resume path first: an open attempt always wins over a fresh start.
	if existing, err := s.attempts.GetInProgress(ctx, examID, studentID); err == nil {
		return &StartResult{Attempt: existing, Exam: exam, Resumed: true}, nil
	} else if !errors.Is(err, repository.ErrNoRows) {
		return nil, err
	}

	used, err := s.attempts.CountByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if used >= exam.MaxAttempts {
		return nil, ErrAttemptLimitReached
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := &model.ExamAttempt{
		ExamID:      examID,
		StudentID:   studentID,
		Status:      model.AttemptInProgress,
		Paper:       paper.Materialize(exam.Questions, exam.Policy, rng),
		Fingerprint: fp,
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			// Lost a concurrent start race: the other request's attempt is
			// the one that exists, resume it.
			existing, err := s.attempts.GetInProgress(ctx, examID, studentID)
			if err != nil {
				return nil, err
			}
			return &StartResult{Attempt: existing, Exam: exam, Resumed: true}, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.monitor.Publish(ctx, examID, MonitorEvent{
		Type:      MonitorEventStarted,
		AttemptID: attempt.ID,
		StudentID: studentID,
	})
	return &StartResult{Attempt: attempt, Exam: exam, Resumed: false}, nil
}

// GetOpen retrieves the student's in-progress attempt for an exam, or nil
// when none exists.
func (s *AttemptService) GetOpen(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetInProgress(ctx, examID, studentID)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, nil
	}
	return attempt, err
}

// Get retrieves an attempt, enforcing ownership.
func (s *AttemptService) Get(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	return attempt, nil
}

// ReportViolation processes one proctoring event: scores it under the
// exam's policy, applies the increment atomically, records incidents and
// terminates the attempt when the risk ceiling is crossed. Reports against
// attempts that are no longer open are rejected with no side effects.
func (s *AttemptService) ReportViolation(ctx context.Context, attemptID uuid.UUID, studentID int, report *model.ViolationReport) (*model.ViolationOutcome, error) {
	attempt, err := s.Get(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.Terminal() {
		return nil, ErrAttemptNotInProgress
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	assessment := risk.Assess(report.EventType, exam.Policy, attempt.TabSwitches)

	flag, err := flagEntry(report)
	if err != nil {
		return nil, err
	}
	update := repository.ViolationUpdate{Delta: assessment.Delta, Flag: flag}
	switch risk.CounterFor(report.EventType) {
	case "tab_switches":
		update.TabSwitch = 1
	case "mouse_left_count":
		update.MouseLeft = 1
	case "fullscreen_exits":
		update.FullscreenExit = 1
	case "right_clicks":
		update.RightClick = 1
	case "copy_paste_events":
		update.CopyPaste = 1
	}

	total, err := s.attempts.ApplyViolation(ctx, attemptID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			// The attempt closed between the read and the write.
			return nil, ErrAttemptNotInProgress
		}
		return nil, fmt.Errorf("apply violation: %w", err)
	}

	if assessment.ForceIncident {
		s.recordIncident(ctx, attempt, report.EventType, assessment.Severity, total, report.Details)
	} else if ok, severity := risk.IncidentAfter(total); ok {
		s.recordIncident(ctx, attempt, report.EventType, severity, total, report.Details)
	}

	terminated := false
	if risk.ShouldTerminate(total) {
		won, err := s.attempts.Terminate(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("terminate attempt: %w", err)
		}
		if won {
			terminated = true
			s.log.Warn().
				Str("attempt_id", attemptID.String()).
				Int("risk_score", total).
				Msg("Attempt terminated, risk ceiling exceeded")
			s.monitor.Publish(ctx, attempt.ExamID, MonitorEvent{
				Type:      MonitorEventTerminated,
				AttemptID: attemptID,
				StudentID: studentID,
				RiskScore: total,
				Status:    model.AttemptFailed,
			})
		}
	}

	s.monitor.Publish(ctx, attempt.ExamID, MonitorEvent{
		Type:      MonitorEventViolation,
		AttemptID: attemptID,
		StudentID: studentID,
		EventType: report.EventType,
		Delta:     assessment.Delta,
		RiskScore: total,
	})

	outcome := &model.ViolationOutcome{
		Terminated: terminated,
		RiskScore:  total,
	}
	if !terminated && assessment.Delta >= risk.WarnDelta {
		outcome.Warning = "This activity has been recorded. Further violations may end your exam."
	}
	return outcome, nil
}

// SaveAnswers merges an autosave batch into an open attempt.
func (s *AttemptService) SaveAnswers(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SaveAnswersRequest) error {
	attempt, err := s.Get(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return ErrAttemptNotInProgress
	}

	if err := s.attempts.SaveAnswers(ctx, attemptID, req.Answers); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrAttemptNotInProgress
		}
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

// Submit grades and closes an open attempt. Submissions arriving past the
// deadline plus the grace window are rejected and the attempt is failed.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	attempt, err := s.Get(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.Terminal() {
		return nil, ErrAttemptNotInProgress
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	deadline := attempt.StartTime.Add(exam.Duration()).Add(s.grace)
	if time.Now().After(deadline) {
		// Best effort: close the stale attempt so it cannot be submitted
		// again later.
		if _, err := s.attempts.Terminate(ctx, attemptID); err != nil {
			s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to fail stale attempt")
		}
		return nil, ErrStaleSubmission
	}

	// Submitted answers win over autosaved ones, untouched autosaves survive.
	merged := make(map[int]int, len(attempt.Answers)+len(req.Answers))
	for k, v := range attempt.Answers {
		merged[k] = v
	}
	for k, v := range req.Answers {
		merged[k] = v
	}

	graded := grading.Grade(attempt.Paper, merged)
	answersJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	update := repository.FinalizeUpdate{
		FlagThreshold: risk.FlagThreshold,
		Answers:       answersJSON,
		Score:         graded.Score,
		Percentage:    graded.Percentage,
		TimeSpent:     req.TimeSpentSeconds,
	}

	fast := risk.FastCompletion(req.TimeSpentSeconds, exam.DurationMinutes)
	if fast {
		update.Penalty = risk.FastCompletionPenalty
		flag, err := json.Marshal([]model.SuspiciousFlag{{
			Type:      model.FlagFastCompletion,
			Timestamp: time.Now().UTC(),
		}})
		if err != nil {
			return nil, err
		}
		update.Flag = flag
	}

	status, total, err := s.attempts.Finalize(ctx, attemptID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrAttemptNotInProgress
		}
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if status == model.AttemptFlagged {
		severity := model.SeverityHigh
		if total > risk.SubmitCriticalThreshold {
			severity = model.SeverityCritical
		}
		evidence, _ := json.Marshal(map[string]any{
			"risk_score":      total,
			"fast_completion": fast,
			"time_spent":      req.TimeSpentSeconds,
		})
		s.incidents.Enqueue(ctx, &model.CheatingIncident{
			AttemptID:    attemptID,
			ExamID:       attempt.ExamID,
			StudentID:    studentID,
			IncidentType: model.IncidentSubmissionFlagged,
			Description:  "Attempt submitted with elevated risk, flagged for review",
			Severity:     severity,
			Evidence:     evidence,
			Timestamp:    time.Now().UTC(),
		})
	}

	s.monitor.Publish(ctx, attempt.ExamID, MonitorEvent{
		Type:      MonitorEventSubmitted,
		AttemptID: attemptID,
		StudentID: studentID,
		RiskScore: total,
		Status:    status,
	})

	result := &model.SubmitResult{Status: status}
	switch status {
	case model.AttemptFlagged:
		result.Message = "Your exam was submitted and is pending review."
	default:
		result.Message = "Your exam was submitted successfully."
	}
	if fast {
		result.Warning = "Your completion time was unusually short and has been recorded."
	}
	if exam.Policy.ShowResults {
		score := graded.Score
		percentage := graded.Percentage
		passed := grading.Passed(graded, exam.PassingMarks)
		result.Score = &score
		result.Percentage = &percentage
		result.Passed = &passed
	}
	return result, nil
}

// ListByStudent returns a student's attempt history across exams. Scores
// are stripped from attempts whose exam does not show results.
func (s *AttemptService) ListByStudent(ctx context.Context, studentID int) ([]model.ExamAttempt, error) {
	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		return []model.ExamAttempt{}, nil
	}

	showResults := make(map[uuid.UUID]bool, 4)
	for i := range attempts {
		show, ok := showResults[attempts[i].ExamID]
		if !ok {
			exam, err := s.exams.GetByID(ctx, attempts[i].ExamID)
			if err != nil {
				return nil, err
			}
			show = exam.Policy.ShowResults
			showResults[attempts[i].ExamID] = show
		}
		if !show {
			attempts[i].Score = nil
			attempts[i].Percentage = nil
		}
	}
	return attempts, nil
}

// ListByExam returns all attempts against an exam for teacher review. The
// caller must already have verified exam ownership.
func (s *AttemptService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	attempts, err := s.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}

// GetForReview retrieves one attempt with full risk detail for a teacher.
func (s *AttemptService) GetForReview(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

func (s *AttemptService) recordIncident(ctx context.Context, attempt *model.ExamAttempt, event model.ViolationType, severity model.IncidentSeverity, total int, details json.RawMessage) {
	// Normalize the client payload to the known shape for the event so the
	// evidence trail stays queryable; a payload that does not parse is kept
	// verbatim rather than lost.
	var detail any = details
	if parsed, err := model.DecodeDetails(event, details); err == nil {
		detail = parsed
	} else {
		s.log.Debug().Err(err).Str("event", string(event)).Msg("unparsable violation details")
	}
	evidence, _ := json.Marshal(map[string]any{
		"event_type": event,
		"risk_score": total,
		"details":    detail,
	})
	s.incidents.Enqueue(ctx, &model.CheatingIncident{
		AttemptID:    attempt.ID,
		ExamID:       attempt.ExamID,
		StudentID:    attempt.StudentID,
		IncidentType: model.IncidentType(event),
		Description:  incidentDescription(event),
		Severity:     severity,
		Evidence:     evidence,
		Timestamp:    time.Now().UTC(),
	})
}

func incidentDescription(event model.ViolationType) string {
	switch event {
	case model.ViolationCopyPaste:
		return "Copy or paste detected during exam"
	case model.ViolationDeveloperTools:
		return "Developer tools opened during exam"
	case model.ViolationTabSwitch:
		return "Repeated tab switching pushed risk above threshold"
	case model.ViolationFullscreenExit:
		return "Fullscreen exit pushed risk above threshold"
	default:
		return fmt.Sprintf("Accumulated risk crossed incident threshold (%s)", event)
	}
}

// flagEntry builds the single-element JSON array appended to the
// attempt's suspicious_flags log.
func flagEntry(report *model.ViolationReport) ([]byte, error) {
	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal([]model.SuspiciousFlag{{
		Type:      string(report.EventType),
		Timestamp: ts,
		Details:   report.Details,
	}})
}
