package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edvigil/edvigil-backend/internal/response"
	"github.com/edvigil/edvigil-backend/internal/service"
)

// IncidentHandler exposes recorded cheating incidents to teachers.
type IncidentHandler struct {
	examService     *service.ExamService
	incidentService *service.IncidentService
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(examService *service.ExamService, incidentService *service.IncidentService) *IncidentHandler {
	return &IncidentHandler{
		examService:     examService,
		incidentService: incidentService,
	}
}

// ListExamIncidents godoc
// GET /api/v1/teacher/exams/:exam_id/incidents
func (h *IncidentHandler) ListExamIncidents(c *gin.Context) {
	exam, ok := ownedExamFor(c, h.examService)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	incidents, err := h.incidentService.ListByExam(c.Request.Context(), exam.ID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"incidents": incidents})
}

// IncidentCounts godoc
// GET /api/v1/teacher/exams/:exam_id/incidents/counts
// Per-student incident totals for the review dashboard.
func (h *IncidentHandler) IncidentCounts(c *gin.Context) {
	exam, ok := ownedExamFor(c, h.examService)
	if !ok {
		return
	}

	counts, err := h.incidentService.CountsByStudent(c.Request.Context(), exam.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"counts": counts})
}

// ListAttemptIncidents godoc
// GET /api/v1/teacher/attempts/:attempt_id/incidents
func (h *IncidentHandler) ListAttemptIncidents(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	incidents, err := h.incidentService.ListByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"incidents": incidents})
}
