package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// IncidentRepository handles cheating incident data access. Incidents are
// written by the persistence worker, never on the request path.
type IncidentRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentRepository creates a new IncidentRepository.
func NewIncidentRepository(pool *pgxpool.Pool) *IncidentRepository {
	return &IncidentRepository{pool: pool}
}

// BulkInsert writes a batch of incidents with COPY.
func (r *IncidentRepository) BulkInsert(ctx context.Context, incidents []*model.CheatingIncident) error {
	rows := make([][]interface{}, 0, len(incidents))
	for _, in := range incidents {
		rows = append(rows, []interface{}{
			in.AttemptID, in.ExamID, in.StudentID,
			in.IncidentType, in.Description, in.Severity,
			in.Evidence, in.Timestamp,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"cheating_incidents"},
		[]string{"attempt_id", "exam_id", "student_id", "incident_type", "description", "severity", "evidence", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single incident. Used by the worker's row-by-row
// recovery path when a bulk COPY fails.
func (r *IncidentRepository) Insert(ctx context.Context, in *model.CheatingIncident) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cheating_incidents
		     (attempt_id, exam_id, student_id, incident_type, description, severity, evidence, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		in.AttemptID, in.ExamID, in.StudentID,
		in.IncidentType, in.Description, in.Severity,
		in.Evidence, in.Timestamp)
	return err
}

const incidentColumns = `id, attempt_id, exam_id, student_id, incident_type, description, severity, evidence, recorded_at`

// ListByAttempt retrieves all incidents recorded against one attempt,
// oldest first.
func (r *IncidentRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.CheatingIncident, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+incidentColumns+`
		 FROM cheating_incidents
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// ListByExam retrieves all incidents for an exam, newest first.
func (r *IncidentRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.CheatingIncident, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+incidentColumns+`
		 FROM cheating_incidents
		 WHERE exam_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// CountsByStudent aggregates incident counts per student for an exam, for
// the teacher's review dashboard.
func (r *IncidentRepository) CountsByStudent(ctx context.Context, examID uuid.UUID) ([]model.IncidentCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM cheating_incidents
		 WHERE exam_id = $1
		 GROUP BY student_id
		 ORDER BY COUNT(*) DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.IncidentCount
	for rows.Next() {
		var c model.IncidentCount
		if err := rows.Scan(&c.StudentID, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func collectIncidents(rows pgx.Rows) ([]model.CheatingIncident, error) {
	var incidents []model.CheatingIncident
	for rows.Next() {
		var in model.CheatingIncident
		if err := rows.Scan(&in.ID, &in.AttemptID, &in.ExamID, &in.StudentID,
			&in.IncidentType, &in.Description, &in.Severity, &in.Evidence, &in.Timestamp); err != nil {
			return nil, err
		}
		incidents = append(incidents, in)
	}
	return incidents, rows.Err()
}
