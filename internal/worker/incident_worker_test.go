package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvigil/edvigil-backend/internal/config"
	"github.com/edvigil/edvigil-backend/internal/model"
)

type fakeWriter struct {
	mu       sync.Mutex
	bulkErr  error
	rowErr   error
	bulk     [][]*model.CheatingIncident
	inserted []*model.CheatingIncident
}

func (f *fakeWriter) BulkInsert(_ context.Context, incidents []*model.CheatingIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	batch := make([]*model.CheatingIncident, len(incidents))
	copy(batch, incidents)
	f.bulk = append(f.bulk, batch)
	return nil
}

func (f *fakeWriter) Insert(_ context.Context, incident *model.CheatingIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rowErr != nil {
		return f.rowErr
	}
	f.inserted = append(f.inserted, incident)
	return nil
}

func (f *fakeWriter) bulkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bulk)
}

func (f *fakeWriter) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func testIncident() *model.CheatingIncident {
	return &model.CheatingIncident{
		AttemptID:    uuid.New(),
		ExamID:       uuid.New(),
		StudentID:    42,
		IncidentType: model.IncidentType(model.ViolationDeveloperTools),
		Description:  "Developer tools opened during exam",
		Severity:     model.SeverityCritical,
		Timestamp:    time.Now().UTC().Truncate(time.Second),
	}
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestEnqueuePushesJSON(t *testing.T) {
	mr, rdb := setup(t)
	q := NewIncidentQueue(rdb, zerolog.Nop())

	in := testIncident()
	q.Enqueue(context.Background(), in)

	raw, err := mr.Lpop(config.WorkerKey.PersistIncidentsQueue)
	require.NoError(t, err)

	var got model.CheatingIncident
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, in.AttemptID, got.AttemptID)
	assert.Equal(t, in.Severity, got.Severity)
}

func TestWorkerFlushesOnBatchSize(t *testing.T) {
	mr, rdb := setup(t)
	writer := &fakeWriter{}

	w := NewIncidentWorker(writer, rdb, zerolog.Nop())
	w.BatchSize = 2
	w.BatchTimeout = time.Minute

	q := NewIncidentQueue(rdb, zerolog.Nop())
	q.Enqueue(context.Background(), testIncident())
	q.Enqueue(context.Background(), testIncident())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return writer.bulkCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Len(t, writer.bulk[0], 2)
	assert.Empty(t, mr.Keys())
}

func TestWorkerFallsBackRowByRow(t *testing.T) {
	_, rdb := setup(t)
	writer := &fakeWriter{bulkErr: errors.New("copy failed")}

	w := NewIncidentWorker(writer, rdb, zerolog.Nop())
	w.BatchSize = 2
	w.BatchTimeout = time.Minute

	q := NewIncidentQueue(rdb, zerolog.Nop())
	q.Enqueue(context.Background(), testIncident())
	q.Enqueue(context.Background(), testIncident())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return writer.insertedCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerRequeuesWhenDatabaseDown(t *testing.T) {
	mr, rdb := setup(t)
	writer := &fakeWriter{bulkErr: errors.New("db down"), rowErr: errors.New("db down")}

	w := NewIncidentWorker(writer, rdb, zerolog.Nop())
	w.BatchSize = 1
	w.BatchTimeout = time.Minute

	q := NewIncidentQueue(rdb, zerolog.Nop())
	q.Enqueue(context.Background(), testIncident())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// The failed incident must land back on the queue.
	require.Eventually(t, func() bool {
		n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistIncidentsQueue).Result()
		return err == nil && n >= 1
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	<-done
	_ = mr
}

func TestWorkerDiscardsMalformedPayload(t *testing.T) {
	mr, rdb := setup(t)
	writer := &fakeWriter{}

	w := NewIncidentWorker(writer, rdb, zerolog.Nop())
	w.BatchSize = 1
	w.BatchTimeout = time.Minute

	mr.Lpush(config.WorkerKey.PersistIncidentsQueue, "{not json")
	q := NewIncidentQueue(rdb, zerolog.Nop())
	q.Enqueue(context.Background(), testIncident())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return writer.bulkCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Len(t, writer.bulk[0], 1)
}
