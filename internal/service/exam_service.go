package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/model"
	"github.com/edvigil/edvigil-backend/internal/repository"
	"github.com/edvigil/edvigil-backend/internal/response"
)

// Domain Errors
var (
	ErrExamNotFound   = errors.New("exam not found")
	ErrNotExamOwner   = errors.New("not the creator of this exam")
	ErrMarksMismatch  = errors.New("total marks does not match the sum of question marks")
	ErrInvalidOption  = errors.New("correct option index out of range")
	ErrExamLocked     = errors.New("exam has attempts, structure is frozen")
	ErrNoQuestions    = errors.New("exam has no questions")
	ErrPassingTooHigh = errors.New("passing marks exceeds total marks")
)

const examMetaTTL = 0 // meta cache entries live until the exam changes

// ExamService handles exam authoring and lookup, with a Redis read-through
// cache for the question-free metadata students poll before starting.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      redis.Cmdable
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb redis.Cmdable, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// validateStructure checks the cross-field rules binding tags cannot
// express: option indexes in range and marks summing to the declared total.
func validateStructure(questions []model.Question, totalMarks, passingMarks int) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	sum := 0
	for _, q := range questions {
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return ErrInvalidOption
		}
		sum += q.Marks
	}
	if sum != totalMarks {
		return ErrMarksMismatch
	}
	if passingMarks > totalMarks {
		return ErrPassingTooHigh
	}
	return nil
}

func questionsFromRequests(reqs []model.CreateQuestionRequest) []model.Question {
	qs := make([]model.Question, len(reqs))
	for i, r := range reqs {
		qs[i] = model.Question{
			Prompt:        r.Prompt,
			Options:       r.Options,
			CorrectOption: r.CorrectOption,
			Marks:         r.Marks,
		}
	}
	return qs
}

// Create validates and inserts a new exam, inactive by default.
func (s *ExamService) Create(ctx context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error) {
	questions := questionsFromRequests(req.Questions)
	if err := validateStructure(questions, req.TotalMarks, req.PassingMarks); err != nil {
		return nil, err
	}

	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		Questions:       questions,
		TotalMarks:      req.TotalMarks,
		PassingMarks:    req.PassingMarks,
		DurationMinutes: req.DurationMinutes,
		MaxAttempts:     req.MaxAttempts,
		Policy:          req.Policy,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		IsActive:        false,
		CreatedBy:       teacherID,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// GetByID retrieves an exam with its full question bank.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	return exam, err
}

// GetMeta retrieves an exam stripped of its questions, preferring the
// Redis cache. This is the hot path students hit while waiting for an
// exam window to open.
func (s *ExamService) GetMeta(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamMetaKey(id.String())

	if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var meta model.Exam
		if err := json.Unmarshal(cached, &meta); err == nil {
			return &meta, nil
		}
		// Corrupt cache entry falls through to the database.
	}

	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := exam.Meta()

	if payload, err := json.Marshal(&meta); err == nil {
		if err := s.rdb.Set(ctx, key, payload, examMetaTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam meta")
		}
	}
	return &meta, nil
}

// Update applies changes to an exam. Once any attempt exists the question
// bank, marks, duration and policy are frozen: only text, scheduling and
// activation may change.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, teacherID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, ErrNotExamOwner
	}

	locked, err := s.examRepo.HasAttempts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("check attempts: %w", err)
	}
	if locked && touchesStructure(req) {
		return nil, ErrExamLocked
	}

	applyUpdate(exam, req)
	if err := validateStructure(exam.Questions, exam.TotalMarks, exam.PassingMarks); err != nil {
		return nil, err
	}
	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	s.invalidateMeta(ctx, examID)
	return exam, nil
}

// touchesStructure reports whether the update modifies frozen fields.
// Once attempts exist only title, description, the end date and the
// active flag stay editable; everything that shaped an issued paper or
// gated who could start is locked.
func touchesStructure(req *model.UpdateExamRequest) bool {
	return req.Questions != nil ||
		req.TotalMarks != nil ||
		req.PassingMarks != nil ||
		req.DurationMinutes != nil ||
		req.MaxAttempts != nil ||
		req.StartDate != nil ||
		req.Policy != nil
}

func applyUpdate(exam *model.Exam, req *model.UpdateExamRequest) {
	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Questions != nil {
		exam.Questions = questionsFromRequests(req.Questions)
	}
	if req.TotalMarks != nil {
		exam.TotalMarks = *req.TotalMarks
	}
	if req.PassingMarks != nil {
		exam.PassingMarks = *req.PassingMarks
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.MaxAttempts != nil {
		exam.MaxAttempts = *req.MaxAttempts
	}
	if req.Policy != nil {
		exam.Policy = *req.Policy
	}
	if req.StartDate != nil {
		exam.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		exam.EndDate = *req.EndDate
	}
	if req.IsActive != nil {
		exam.IsActive = *req.IsActive
	}
}

// SetActive toggles an exam's availability to students.
func (s *ExamService) SetActive(ctx context.Context, examID uuid.UUID, teacherID int, active bool) error {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if exam.CreatedBy != teacherID {
		return ErrNotExamOwner
	}
	if err := s.examRepo.SetActive(ctx, examID, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	s.invalidateMeta(ctx, examID)
	return nil
}

// ListByCreator retrieves a teacher's exams with pagination.
func (s *ExamService) ListByCreator(ctx context.Context, teacherID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByCreator(ctx, teacherID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return exams, pagination, nil
}

func (s *ExamService) invalidateMeta(ctx context.Context, examID uuid.UUID) {
	key := config.CacheKey.ExamMetaKey(examID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate exam meta cache")
	}
}
