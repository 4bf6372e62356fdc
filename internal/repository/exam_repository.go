package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// ExamRepository handles exam data access. Title, description, questions
// and policy live in JSONB columns and are (un)marshalled at the boundary.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, questions, total_marks, passing_marks,
       duration_minutes, max_attempts, policy, start_date, end_date,
       is_active, created_by, created_at, updated_at`

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	var title, desc, questions, policy []byte
	err := row.Scan(&e.ID, &title, &desc, &questions, &e.TotalMarks, &e.PassingMarks,
		&e.DurationMinutes, &e.MaxAttempts, &policy, &e.StartDate, &e.EndDate,
		&e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(title, &e.Title); err != nil {
		return nil, fmt.Errorf("decode title: %w", err)
	}
	if err := json.Unmarshal(desc, &e.Description); err != nil {
		return nil, fmt.Errorf("decode description: %w", err)
	}
	if err := json.Unmarshal(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal(policy, &e.Policy); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	return scanExam(row)
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	title, err := json.Marshal(e.Title)
	if err != nil {
		return err
	}
	desc, err := json.Marshal(e.Description)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(e.Policy)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, questions, total_marks, passing_marks,
		                    duration_minutes, max_attempts, policy, start_date, end_date,
		                    is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		title, desc, questions, e.TotalMarks, e.PassingMarks,
		e.DurationMinutes, e.MaxAttempts, policy, e.StartDate, e.EndDate,
		e.IsActive, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update replaces an exam's mutable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	title, err := json.Marshal(e.Title)
	if err != nil {
		return err
	}
	desc, err := json.Marshal(e.Description)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(e.Policy)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, questions = $3, total_marks = $4,
		     passing_marks = $5, duration_minutes = $6, max_attempts = $7,
		     policy = $8, start_date = $9, end_date = $10, is_active = $11,
		     updated_at = NOW()
		 WHERE id = $12`,
		title, desc, questions, e.TotalMarks,
		e.PassingMarks, e.DurationMinutes, e.MaxAttempts,
		policy, e.StartDate, e.EndDate, e.IsActive, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// SetActive toggles an exam's active flag.
func (r *ExamRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ListByCreator retrieves exams created by a teacher, newest first.
func (r *ExamRepository) ListByCreator(ctx context.Context, creatorID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE created_by = $1`, creatorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+`
		 FROM exams
		 WHERE created_by = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, creatorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// HasAttempts reports whether any attempt exists for the exam. Exams with
// attempts may only change scheduling fields, never their question bank.
func (r *ExamRepository) HasAttempts(ctx context.Context, examID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE exam_id = $1)`, examID,
	).Scan(&exists)
	return exists, err
}
