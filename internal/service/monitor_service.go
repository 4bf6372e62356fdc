package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/model"
)

// Monitor event types pushed over the per-exam Pub/Sub channel.
const (
	MonitorEventStarted    = "attempt_started"
	MonitorEventViolation  = "violation"
	MonitorEventTerminated = "attempt_terminated"
	MonitorEventSubmitted  = "attempt_submitted"
)

// MonitorEvent is one live update for teachers watching an exam.
type MonitorEvent struct {
	Type      string              `json:"type"`
	AttemptID uuid.UUID           `json:"attempt_id"`
	StudentID int                 `json:"student_id"`
	EventType model.ViolationType `json:"event_type,omitempty"`
	Delta     int                 `json:"delta,omitempty"`
	RiskScore int                 `json:"risk_score"`
	Status    model.AttemptStatus `json:"status,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// MonitorService fans attempt activity out to the per-exam Redis Pub/Sub
// channel consumed by the live monitor WebSocket. Publishing is best
// effort: monitoring must never fail a student's request.
type MonitorService struct {
	rdb redis.Cmdable
	log zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb redis.Cmdable, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb: rdb,
		log: log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends one event to the exam's monitor channel.
func (s *MonitorService) Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish monitor event")
	}
}
