// Package worker contains the background incident persistence pipeline.
// Violation handling enqueues incidents to Redis and returns; this worker
// drains the queue and batches writes into PostgreSQL so a slow database
// never stalls a student's exam.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/model"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 2 * time.Second
	PollTimeout         = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// incidentWriter is the slice of IncidentRepository the worker needs.
type incidentWriter interface {
	BulkInsert(ctx context.Context, incidents []*model.CheatingIncident) error
	Insert(ctx context.Context, incident *model.CheatingIncident) error
}

// IncidentQueue is the producer side: services push incidents here.
type IncidentQueue struct {
	rdb redis.Cmdable
	log zerolog.Logger
}

func NewIncidentQueue(rdb redis.Cmdable, log zerolog.Logger) *IncidentQueue {
	return &IncidentQueue{
		rdb: rdb,
		log: log.With().Str("component", "incident_queue").Logger(),
	}
}

// Enqueue pushes one incident onto the persistence queue. Failures are
// logged, not returned: losing one incident record must not fail the
// violation report that produced it.
func (q *IncidentQueue) Enqueue(ctx context.Context, in *model.CheatingIncident) {
	data, err := json.Marshal(in)
	if err != nil {
		q.log.Error().Err(err).Msg("Failed to encode incident")
		return
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistIncidentsQueue, data).Err(); err != nil {
		q.log.Error().Err(err).
			Str("attempt_id", in.AttemptID.String()).
			Msg("Failed to enqueue incident")
	}
}

// IncidentWorker drains the persistence queue into PostgreSQL.
type IncidentWorker struct {
	repo incidentWriter
	rdb  *redis.Client
	log  zerolog.Logger

	// Overridable for tests.
	BatchSize    int
	BatchTimeout time.Duration
}

func NewIncidentWorker(repo incidentWriter, rdb *redis.Client, log zerolog.Logger) *IncidentWorker {
	return &IncidentWorker{
		repo:         repo,
		rdb:          rdb,
		log:          log.With().Str("component", "incident_worker").Logger(),
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultBatchTimeout,
	}
}

func (w *IncidentWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IncidentWorker started")

	buffer := make([]*model.CheatingIncident, 0, w.BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= w.BatchSize || time.Since(lastFlushTime) >= w.BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		// BLPop blocks for 1 second. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIncidentsQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var incident model.CheatingIncident
		if err := json.Unmarshal([]byte(result[1]), &incident); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed incident")
			continue
		}

		buffer = append(buffer, &incident)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *IncidentWorker) flushSafe(ctx context.Context, batch []*model.CheatingIncident) {
	if err := w.repo.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IncidentWorker) fallbackInsert(ctx context.Context, batch []*model.CheatingIncident) {
	requeueList := make([]*model.CheatingIncident, 0)

	for _, in := range batch {
		if err := w.repo.Insert(ctx, in); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", in.AttemptID.String()).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, in)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IncidentWorker) requeue(ctx context.Context, items []*model.CheatingIncident) {
	pipe := w.rdb.Pipeline()
	for _, in := range items {
		data, _ := json.Marshal(in)
		pipe.RPush(ctx, config.WorkerKey.PersistIncidentsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue incidents to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed incidents back to Redis")
		// Back off so a down database is not hammered.
		time.Sleep(2 * time.Second)
	}
}

func (w *IncidentWorker) shutdown(buffer []*model.CheatingIncident) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
