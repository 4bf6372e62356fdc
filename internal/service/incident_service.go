package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/edvigil/edvigil-backend/internal/model"
	"github.com/edvigil/edvigil-backend/internal/repository"
)

// IncidentService exposes recorded incidents to teacher review endpoints.
type IncidentService struct {
	incidentRepo *repository.IncidentRepository
}

// NewIncidentService creates a new IncidentService.
func NewIncidentService(incidentRepo *repository.IncidentRepository) *IncidentService {
	return &IncidentService{incidentRepo: incidentRepo}
}

// ListByAttempt returns the incident trail for one attempt.
func (s *IncidentService) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.CheatingIncident, error) {
	incidents, err := s.incidentRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if incidents == nil {
		incidents = []model.CheatingIncident{}
	}
	return incidents, nil
}

// ListByExam returns an exam's incidents, newest first.
func (s *IncidentService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.CheatingIncident, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 200 {
		perPage = 200
	}
	incidents, err := s.incidentRepo.ListByExam(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	if incidents == nil {
		incidents = []model.CheatingIncident{}
	}
	return incidents, nil
}

// CountsByStudent aggregates per-student incident totals for an exam.
func (s *IncidentService) CountsByStudent(ctx context.Context, examID uuid.UUID) ([]model.IncidentCount, error) {
	counts, err := s.incidentRepo.CountsByStudent(ctx, examID)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []model.IncidentCount{}
	}
	return counts, nil
}
