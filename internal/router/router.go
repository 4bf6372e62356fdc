// Package router wires middlewares, route groups and handlers onto a Gin
// engine.
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edvigil/edvigil-backend/internal/auth"
	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/handler"
	"github.com/edvigil/edvigil-backend/internal/middleware"
	"github.com/edvigil/edvigil-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentExam *handler.StudentExamHandler
	Exam        *handler.ExamHandler
	Incident    *handler.IncidentHandler
	MonitorWS   *handler.MonitorWSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	verifier *auth.Verifier,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Violation reports burst on real proctoring triggers; cap per-IP so a
	// hostile client cannot flood the risk pipeline.
	violationLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(verifier))
	{
		studentAPI.GET("/exams/:exam_id", handlers.StudentExam.GetExam)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.StudentExam.StartAttempt)
		studentAPI.GET("/attempts", handlers.StudentExam.ListMyAttempts)
		studentAPI.POST("/attempts/:attempt_id/violations",
			violationLimiter.Middleware(),
			handlers.StudentExam.ReportViolation,
		)
		studentAPI.PATCH("/attempts/:attempt_id/answers", handlers.StudentExam.SaveAnswers)
		studentAPI.PUT("/attempts/:attempt_id/submit", handlers.StudentExam.SubmitAttempt)
	}

	// ─── 2. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(verifier))
	{
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		teacherAPI.PATCH("/exams/:exam_id", handlers.Exam.UpdateExam)
		teacherAPI.POST("/exams/:exam_id/activate", handlers.Exam.SetExamActive(true))
		teacherAPI.POST("/exams/:exam_id/deactivate", handlers.Exam.SetExamActive(false))

		teacherAPI.GET("/exams/:exam_id/attempts", handlers.Exam.ListExamAttempts)
		teacherAPI.GET("/attempts/:attempt_id", handlers.Exam.GetAttemptReview)

		teacherAPI.GET("/exams/:exam_id/incidents", handlers.Incident.ListExamIncidents)
		teacherAPI.GET("/exams/:exam_id/incidents/counts", handlers.Incident.IncidentCounts)
		teacherAPI.GET("/attempts/:attempt_id/incidents", handlers.Incident.ListAttemptIncidents)
	}

	// ─── 3. WebSocket Group (Teacher WS Auth via ?token=) ──────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireTeacherJWT(verifier))
	{
		ws.GET("/teacher/exams/:exam_id/monitor", handlers.MonitorWS.MonitorExam)
	}

	return router
}
