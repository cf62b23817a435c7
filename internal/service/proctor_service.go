package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ProctorEventLister reads persisted proctor events.
type ProctorEventLister interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.ProctorEvent, error)
}

// ProctorService queues client-reported proctor events and serves them to authorities.
// Events are informational: nothing here touches grading.
type ProctorService struct {
	events ProctorEventLister
	tests  TestExistence
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(events ProctorEventLister, tests TestExistence, rdb *redis.Client, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		events: events,
		tests:  tests,
		rdb:    rdb,
		log:    log.With().Str("component", "proctor_service").Logger(),
	}
}

// Record queues an event for persistence and publishes it on the test's live channel.
func (s *ProctorService) Record(ctx context.Context, ev *model.ProctorEvent) error {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal proctor event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data)
	pipe.Publish(ctx, config.CacheKey.TestProctorChannel(ev.TestID.String()), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue proctor event: %w", err)
	}

	s.log.Debug().
		Str("test_id", ev.TestID.String()).
		Int("student_id", ev.StudentID).
		Str("kind", string(ev.Kind)).
		Int("violations", ev.ViolationCount).
		Msg("Proctor event queued")
	return nil
}

// ListForTest returns the stored events of a test. Only an authority may call it.
func (s *ProctorService) ListForTest(ctx context.Context, who model.Identity, testID uuid.UUID) ([]model.ProctorEvent, error) {
	if !who.IsAuthority() {
		return nil, ErrForbidden
	}
	ok, err := s.tests.Exists(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("check test: %w", err)
	}
	if !ok {
		return nil, ErrTestNotFound
	}

	events, err := s.events.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list proctor events: %w", err)
	}
	if events == nil {
		events = []model.ProctorEvent{}
	}
	return events, nil
}

// Subscribe opens the live event channel of a test.
func (s *ProctorService) Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.TestProctorChannel(testID.String()))
}
