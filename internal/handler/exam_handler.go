package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edvigil/edvigil-backend/internal/middleware"
	"github.com/edvigil/edvigil-backend/internal/model"
	"github.com/edvigil/edvigil-backend/internal/response"
	"github.com/edvigil/edvigil-backend/internal/service"
	"github.com/edvigil/edvigil-backend/internal/validator"
)

// ExamHandler handles teacher-facing exam authoring and review endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, attemptService *service.AttemptService) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
	}
}

// CreateExam godoc
// POST /api/v1/teacher/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		h.failExamError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:exam_id
// Returns the full exam including questions and answer keys.
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, ok := h.ownedExam(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/v1/teacher/exams/:exam_id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		h.failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// SetExamActive godoc
// POST /api/v1/teacher/exams/:exam_id/activate
// POST /api/v1/teacher/exams/:exam_id/deactivate
func (h *ExamHandler) SetExamActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		examID, err := uuid.Parse(c.Param("exam_id"))
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		if err := h.examService.SetActive(c.Request.Context(), examID, claims.UserID, active); err != nil {
			h.failExamError(c, err)
			return
		}

		response.Success(c, http.StatusOK, gin.H{"is_active": active})
	}
}

// ListExams godoc
// GET /api/v1/teacher/exams
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	exams, pagination, err := h.examService.ListByCreator(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// ListExamAttempts godoc
// GET /api/v1/teacher/exams/:exam_id/attempts
// Returns all attempts against the teacher's exam, highest risk first.
func (h *ExamHandler) ListExamAttempts(c *gin.Context) {
	exam, ok := h.ownedExam(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListByExam(c.Request.Context(), exam.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttemptReview godoc
// GET /api/v1/teacher/attempts/:attempt_id
// Returns one attempt with its full risk detail for review.
func (h *ExamHandler) GetAttemptReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.GetForReview(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Reviewers may only see attempts against their own exams.
	exam, err := h.examService.GetByID(c.Request.Context(), attempt.ExamID)
	if err != nil || exam.CreatedBy != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":          attempt,
		"suspicious_flags": attempt.SuspiciousFlags,
	})
}

// ownedExam parses :exam_id, loads the exam and enforces ownership.
func (h *ExamHandler) ownedExam(c *gin.Context) (*model.Exam, bool) {
	return ownedExamFor(c, h.examService)
}

// ownedExamFor is the shared ownership guard for teacher endpoints keyed
// by :exam_id.
func ownedExamFor(c *gin.Context, examService *service.ExamService) (*model.Exam, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	exam, err := examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return nil, false
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return nil, false
	}
	if exam.CreatedBy != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return exam, true
}

// failExamError maps exam authoring sentinels onto response codes.
func (h *ExamHandler) failExamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotExamOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrMarksMismatch),
		errors.Is(err, service.ErrPassingTooHigh):
		response.Fail(c, http.StatusBadRequest, response.ErrMarksMismatch)
	case errors.Is(err, service.ErrInvalidOption),
		errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	case errors.Is(err, service.ErrExamLocked):
		response.Fail(c, http.StatusConflict, response.ErrExamLocked)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
