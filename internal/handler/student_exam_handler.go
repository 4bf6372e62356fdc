// Package handler contains the Gin HTTP handlers. Handlers bind and
// validate payloads, map service sentinel errors to response codes, and
// never touch the repositories directly.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edvigil/edvigil-backend/internal/middleware"
	"github.com/edvigil/edvigil-backend/internal/model"
	"github.com/edvigil/edvigil-backend/internal/response"
	"github.com/edvigil/edvigil-backend/internal/service"
	"github.com/edvigil/edvigil-backend/internal/validator"
)

// StudentExamHandler handles student-facing exam taking endpoints.
type StudentExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(examService *service.ExamService, attemptService *service.AttemptService) *StudentExamHandler {
	return &StudentExamHandler{
		examService:    examService,
		attemptService: attemptService,
	}
}

// GetExam godoc
// GET /api/v1/student/exams/:exam_id
// Returns exam metadata without questions. Questions are only handed out
// through an attempt, so a student cannot read the paper before starting.
func (h *StudentExamHandler) GetExam(c *gin.Context) {
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

	meta, err := h.examService.GetMeta(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	body := gin.H{"exam": meta}
	if open, err := h.attemptService.GetOpen(c.Request.Context(), examID, claims.UserID); err == nil && open != nil {
		body["attempt"] = gin.H{
			"id":         open.ID,
			"status":     open.Status,
			"start_time": open.StartTime,
			"ends_at":    open.StartTime.Add(time.Duration(meta.DurationMinutes) * time.Minute),
		}
	}

	response.Success(c, http.StatusOK, body)
}

// attemptPayload shapes an open attempt for the student client: stripped
// questions, saved answers and the hard deadline.
func attemptPayload(res *service.StartResult) gin.H {
	return gin.H{
		"attempt_id": res.Attempt.ID,
		"resumed":    res.Resumed,
		"status":     res.Attempt.Status,
		"start_time": res.Attempt.StartTime,
		"ends_at":    res.Attempt.StartTime.Add(res.Exam.Duration()),
		"questions":  res.Attempt.StudentQuestions(),
		"answers":    res.Attempt.Answers,
		"policy":     res.Exam.Policy,
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts a new attempt or resumes the open one. Idempotent per student:
// while an attempt is open, repeated calls return it unchanged.
func (h *StudentExamHandler) StartAttempt(c *gin.Context) {
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

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	fp := model.ClientFingerprint{
		IPAddress:        c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
		ScreenResolution: req.ScreenResolution,
	}

	res, err := h.attemptService.Start(c.Request.Context(), examID, claims.UserID, fp)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrExamNotActive):
			response.Fail(c, http.StatusConflict, response.ErrExamNotActive)
		case errors.Is(err, service.ErrOutsideWindow):
			response.Fail(c, http.StatusConflict, response.ErrOutsideExamWindow)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		case errors.Is(err, service.ErrAttemptLimitReached):
			response.Fail(c, http.StatusConflict, response.ErrAttemptLimitReached)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, attemptPayload(res))
}

// ReportViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
// Records one proctoring event against an open attempt.
func (h *StudentExamHandler) ReportViolation(c *gin.Context) {
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

	var req model.ViolationReport
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.attemptService.ReportViolation(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		h.failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, outcome)
}

// SaveAnswers godoc
// PATCH /api/v1/student/attempts/:attempt_id/answers
// Autosaves a partial answer batch into an open attempt.
func (h *StudentExamHandler) SaveAnswers(c *gin.Context) {
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

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveAnswers(c.Request.Context(), attemptID, claims.UserID, &req); err != nil {
		h.failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": len(req.Answers)})
}

// SubmitAttempt godoc
// PUT /api/v1/student/attempts/:attempt_id/submit
// Grades and closes the attempt.
func (h *StudentExamHandler) SubmitAttempt(c *gin.Context) {
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

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrStaleSubmission) {
			response.Fail(c, http.StatusConflict, response.ErrStaleSubmission)
			return
		}
		h.failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListMyAttempts godoc
// GET /api/v1/student/attempts
// Returns the student's attempt history across all exams.
func (h *StudentExamHandler) ListMyAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// failAttemptError maps attempt lifecycle sentinels onto response codes.
func (h *StudentExamHandler) failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotAttemptOwner)
	case errors.Is(err, service.ErrAttemptNotInProgress):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotInProgress)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
