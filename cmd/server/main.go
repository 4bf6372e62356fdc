package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/auth"
	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/database"
	"github.com/edvigil/edvigil-backend/internal/handler"
	"github.com/edvigil/edvigil-backend/internal/logger"
	"github.com/edvigil/edvigil-backend/internal/repository"
	"github.com/edvigil/edvigil-backend/internal/router"
	"github.com/edvigil/edvigil-backend/internal/service"
	"github.com/edvigil/edvigil-backend/internal/validator"
	"github.com/edvigil/edvigil-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting EdVigil Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	incidentRepo := repository.NewIncidentRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	verifier := auth.NewVerifier(cfg.JWTSecret)
	examService := service.NewExamService(examRepo, rdb, log)
	monitorService := service.NewMonitorService(rdb, log)
	incidentQueue := worker.NewIncidentQueue(rdb, log)
	attemptService := service.NewAttemptService(
		examRepo, attemptRepo, incidentQueue, monitorService,
		cfg.SubmissionGrace, log,
	)
	incidentService := service.NewIncidentService(incidentRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentExam: handler.NewStudentExamHandler(examService, attemptService),
		Exam:        handler.NewExamHandler(examService, attemptService),
		Incident:    handler.NewIncidentHandler(examService, incidentService),
		MonitorWS:   handler.NewMonitorWSHandler(rdb, examService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	incidentWorker := worker.NewIncidentWorker(incidentRepo, rdb, log)
	go incidentWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(verifier, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the incident worker and let its buffer drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
