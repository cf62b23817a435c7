package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore persists proctor events.
type EventStore interface {
	BulkInsert(ctx context.Context, events []model.ProctorEvent) (int64, error)
	Insert(ctx context.Context, e *model.ProctorEvent) error
}

// ProctorEventWorker drains the proctor event queue into PostgreSQL in batches.
type ProctorEventWorker struct {
	store EventStore
	rdb   *redis.Client
	log   zerolog.Logger

	batchTimeout   time.Duration
	pollTimeout    time.Duration
	requeueBackoff time.Duration

	wg sync.WaitGroup
}

func NewProctorEventWorker(store EventStore, rdb *redis.Client, log zerolog.Logger) *ProctorEventWorker {
	return &ProctorEventWorker{
		store:          store,
		rdb:            rdb,
		log:            log.With().Str("component", "proctor_event_worker").Logger(),
		batchTimeout:   BatchTimeout,
		pollTimeout:    PollTimeout,
		requeueBackoff: 2 * time.Second,
	}
}

// Run starts the worker in a goroutine. Wait blocks until it has flushed and exited.
func (w *ProctorEventWorker) Run(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Start(ctx)
	}()
}

// Wait blocks until a worker started with Run returns.
func (w *ProctorEventWorker) Wait() {
	w.wg.Wait()
}

// Start consumes the queue until ctx is cancelled, then flushes what it holds.
func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorEventWorker started")

	buffer := make([]model.ProctorEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistProctorEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var ev model.ProctorEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed payloads can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed proctor event")
			continue
		}
		if ev.TestID == uuid.Nil || ev.StudentID == 0 || ev.Kind == "" {
			w.log.Error().Str("data", result[1]).Msg("Discarding incomplete proctor event")
			continue
		}

		buffer = append(buffer, ev)
	}
}

// flushSafe attempts a bulk insert, then row-by-row inserts, then requeues what still failed.
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []model.ProctorEvent) {
	n, err := w.store.BulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Proctor events persisted")
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []model.ProctorEvent) {
	var requeueList []model.ProctorEvent

	for i := range batch {
		ev := batch[i]
		if err := w.store.Insert(ctx, &ev); err != nil {
			w.log.Error().Err(err).Int("student_id", ev.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ProctorEventWorker) requeue(ctx context.Context, items []model.ProctorEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue proctor events. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed proctor events")
	// Back off so a database outage does not spin the loop.
	select {
	case <-ctx.Done():
	case <-time.After(w.requeueBackoff):
	}
}

func (w *ProctorEventWorker) shutdown(buffer []model.ProctorEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
