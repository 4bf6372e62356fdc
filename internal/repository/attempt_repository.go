package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// AttemptRepository handles exam attempt data access. The violation and
// submission paths mutate risk state in single guarded UPDATEs so that
// concurrent reports against one attempt serialize inside PostgreSQL.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, status, paper, answers,
       score, percentage, time_spent_seconds, risk_score,
       tab_switches, mouse_left_count, fullscreen_exits, right_clicks, copy_paste_events,
       suspicious_flags, fingerprint, start_time, end_time`

func scanAttempt(row interface{ Scan(...any) error }) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	var paper, answers, flags, fingerprint []byte
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &paper, &answers,
		&a.Score, &a.Percentage, &a.TimeSpentSeconds, &a.RiskScore,
		&a.TabSwitches, &a.MouseLeftCount, &a.FullscreenExits, &a.RightClicks, &a.CopyPasteEvents,
		&flags, &fingerprint, &a.StartTime, &a.EndTime)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(paper, &a.Paper); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(flags, &a.SuspiciousFlags); err != nil {
		return nil, fmt.Errorf("decode suspicious flags: %w", err)
	}
	if err := json.Unmarshal(fingerprint, &a.Fingerprint); err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	return a, nil
}

// Create inserts a new IN_PROGRESS attempt with its materialized paper.
// A partial unique index on (exam_id, student_id) WHERE status =
// 'IN_PROGRESS' makes concurrent starts race-safe: the loser hits the
// conflict, inserts nothing, and Scan returns ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	paper, err := json.Marshal(a.Paper)
	if err != nil {
		return err
	}
	fingerprint, err := json.Marshal(a.Fingerprint)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, student_id, status, paper, fingerprint)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, start_time`,
		a.ExamID, a.StudentID, model.AttemptInProgress, paper, fingerprint,
	).Scan(&a.ID, &a.StartTime)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// GetInProgress retrieves the student's open attempt for an exam, if any.
func (r *AttemptRepository) GetInProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, model.AttemptInProgress)
	return scanAttempt(row)
}

// CountByExamAndStudent counts every attempt the student has made against
// the exam, open or terminal. The attempt quota counts starts, not
// completions.
func (r *AttemptRepository) CountByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(&n)
	return n, err
}

// ViolationUpdate carries one violation's increments. Exactly one of the
// counter fields is 1 for counted event types; all may be zero.
type ViolationUpdate struct {
	Delta          int
	TabSwitch      int
	MouseLeft      int
	FullscreenExit int
	RightClick     int
	CopyPaste      int
	// Flag is a JSON array with the single flag entry to append.
	Flag []byte
}

// ApplyViolation atomically applies one violation to an open attempt and
// returns the post-increment risk score. Returns ErrNoRows when the
// attempt is not IN_PROGRESS, in which case nothing was written.
func (r *AttemptRepository) ApplyViolation(ctx context.Context, id uuid.UUID, u ViolationUpdate) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET
		     risk_score        = risk_score + $2,
		     tab_switches      = tab_switches + $3,
		     mouse_left_count  = mouse_left_count + $4,
		     fullscreen_exits  = fullscreen_exits + $5,
		     right_clicks      = right_clicks + $6,
		     copy_paste_events = copy_paste_events + $7,
		     suspicious_flags  = suspicious_flags || $8::jsonb
		 WHERE id = $1 AND status = $9
		 RETURNING risk_score`,
		id, u.Delta, u.TabSwitch, u.MouseLeft, u.FullscreenExit,
		u.RightClick, u.CopyPaste, u.Flag, model.AttemptInProgress,
	).Scan(&total)
	return total, err
}

// Terminate moves an open attempt to FAILED. The status guard plus the
// RowsAffected check make termination exactly-once under concurrent
// reports: only one caller observes a transition.
func (r *AttemptRepository) Terminate(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $2, end_time = NOW()
		 WHERE id = $1 AND status = $3`,
		id, model.AttemptFailed, model.AttemptInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveAnswers merges an autosave batch into the attempt's answers. Keys in
// the batch overwrite existing selections, untouched keys survive. Returns
// ErrNoRows when the attempt is not IN_PROGRESS.
func (r *AttemptRepository) SaveAnswers(ctx context.Context, id uuid.UUID, answers map[int]int) error {
	batch, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET answers = answers || $2::jsonb
		 WHERE id = $1 AND status = $3`,
		id, batch, model.AttemptInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// FinalizeUpdate carries everything the submission path writes.
type FinalizeUpdate struct {
	// Penalty is added to risk_score before the flag threshold is applied.
	Penalty int
	// FlagThreshold is the final risk above which the attempt is FLAGGED.
	FlagThreshold int
	Answers       []byte
	Score         int
	Percentage    float64
	TimeSpent     int
	// Flag, when non-nil, is a JSON array with a flag entry to append.
	Flag []byte
}

// Finalize closes an open attempt in one statement: applies any late risk
// penalty, stores the graded result and decides COMPLETED vs FLAGGED from
// the final risk score. Returns the terminal status and that score, or
// ErrNoRows when the attempt was not IN_PROGRESS.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, u FinalizeUpdate) (model.AttemptStatus, int, error) {
	var status model.AttemptStatus
	var total int
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET
		     status = CASE WHEN risk_score + $2 > $3 THEN $10 ELSE $11 END,
		     risk_score         = risk_score + $2,
		     answers            = $4::jsonb,
		     score              = $5,
		     percentage         = $6,
		     time_spent_seconds = $7,
		     suspicious_flags   = CASE WHEN $8::jsonb IS NULL
		                               THEN suspicious_flags
		                               ELSE suspicious_flags || $8::jsonb END,
		     end_time = NOW()
		 WHERE id = $1 AND status = $9
		 RETURNING status, risk_score`,
		id, u.Penalty, u.FlagThreshold, u.Answers, u.Score, u.Percentage,
		u.TimeSpent, u.Flag, model.AttemptInProgress,
		model.AttemptFlagged, model.AttemptCompleted,
	).Scan(&status, &total)
	return status, total, err
}

// ListByStudent retrieves every attempt a student has made, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE student_id = $1
		 ORDER BY start_time DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListByExam retrieves every attempt against an exam for teacher review,
// highest risk first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY risk_score DESC, start_time DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
