package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// TestStore is the persistence the TestService needs.
type TestStore interface {
	CreateWithQuestions(ctx context.Context, t *model.Test) error
	List(ctx context.Context) ([]model.TestSummary, error)
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

// TestService handles test authoring and the cached taker payload.
type TestService struct {
	store    TestStore
	rdb      *redis.Client
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(store TestStore, rdb *redis.Client, cacheTTL time.Duration, log zerolog.Logger) *TestService {
	return &TestService{
		store:    store,
		rdb:      rdb,
		cacheTTL: cacheTTL,
		log:      log.With().Str("component", "test_service").Logger(),
	}
}

// Create validates and stores a test with its questions. Only an authority may author.
func (s *TestService) Create(ctx context.Context, who model.Identity, req *model.CreateTestRequest) (*model.Test, error) {
	if !who.IsAuthority() {
		return nil, ErrForbidden
	}
	if err := ValidateTest(req); err != nil {
		return nil, err
	}

	t := &model.Test{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       who.UserID,
		Questions:       make([]model.Question, len(req.Questions)),
	}
	for i, q := range req.Questions {
		typ := q.Type
		if typ == "" {
			typ = model.QuestionTypeSingleChoice
		}
		t.Questions[i] = model.Question{
			Text:          q.Text,
			Type:          typ,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		}
	}

	if err := s.store.CreateWithQuestions(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}

	s.log.Info().
		Str("test_id", t.ID.String()).
		Int("author_id", who.UserID).
		Int("questions", len(t.Questions)).
		Msg("Test created")
	return t, nil
}

// ValidateTest checks the invariants binding tags cannot express.
func ValidateTest(req *model.CreateTestRequest) error {
	if req.DurationMinutes < 1 {
		return fieldError(ErrInvalidTest, "duration_minutes", "must be at least 1")
	}
	if len(req.Questions) == 0 {
		return fieldError(ErrInvalidTest, "questions", "must contain at least one question")
	}

	for i, q := range req.Questions {
		prefix := fmt.Sprintf("questions[%d]", i)
		if q.Type != "" && q.Type != model.QuestionTypeSingleChoice {
			return fieldError(ErrInvalidTest, prefix+".type", "unsupported question type")
		}
		if len(q.Options) < 2 {
			return fieldError(ErrInvalidTest, prefix+".options", "must contain at least two options")
		}

		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if strings.TrimSpace(o) == "" {
				return fieldError(ErrInvalidTest, prefix+".options", "options must not be blank")
			}
			if _, dup := seen[o]; dup {
				return fieldError(ErrInvalidTest, prefix+".options", "options must be distinct")
			}
			seen[o] = struct{}{}
		}
		if _, ok := seen[q.CorrectAnswer]; !ok {
			return fieldError(ErrInvalidTest, prefix+".correct_answer", "must be one of the options")
		}
	}
	return nil
}

// List returns every test, newest first.
func (s *TestService) List(ctx context.Context) ([]model.TestSummary, error) {
	tests, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	if tests == nil {
		tests = []model.TestSummary{}
	}
	return tests, nil
}

// GetForTaker returns the taker payload (no correct answers), served from
// Redis when cached. A Redis failure falls through to Postgres.
func (s *TestService) GetForTaker(ctx context.Context, id uuid.UUID) (*model.TakerTest, error) {
	key := config.CacheKey.TestPayloadKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var payload model.TakerTest
		if jerr := json.Unmarshal(data, &payload); jerr == nil {
			return &payload, nil
		}
		s.log.Warn().Str("test_id", id.String()).Msg("Discarding corrupt cached payload")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Test payload cache read failed")
	}

	t, err := s.store.GetWithQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	payload := t.ForTaker()
	if encoded, err := json.Marshal(payload); err == nil {
		if err := s.rdb.Set(ctx, key, encoded, s.cacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Test payload cache write failed")
		}
	}
	return payload, nil
}
