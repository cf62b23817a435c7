package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// DefaultNoAnswerSentinel is recorded for every question the taker left blank.
const DefaultNoAnswerSentinel = "No Answer"

// AnswerKeyReader fetches the authoritative answers for a test.
type AnswerKeyReader interface {
	GetAnswerKey(ctx context.Context, testID uuid.UUID) ([]model.AnswerKeyEntry, error)
}

// SubmissionWriter persists a submission with all its answer records atomically.
type SubmissionWriter interface {
	Create(ctx context.Context, s *model.TestSubmission) error
}

// GradingService turns a submitted answer map into a durable, scored submission.
type GradingService struct {
	keys     AnswerKeyReader
	writer   SubmissionWriter
	sentinel string
	log      zerolog.Logger
}

// NewGradingService creates a new GradingService. An empty sentinel falls back
// to DefaultNoAnswerSentinel.
func NewGradingService(keys AnswerKeyReader, writer SubmissionWriter, sentinel string, log zerolog.Logger) *GradingService {
	if sentinel == "" {
		sentinel = DefaultNoAnswerSentinel
	}
	return &GradingService{
		keys:     keys,
		writer:   writer,
		sentinel: sentinel,
		log:      log.With().Str("component", "grading_service").Logger(),
	}
}

// Grade scores answers against key. Every key entry yields exactly one record,
// in key order; absent or blank answers become sentinel and are never correct.
// Comparison is exact and case-sensitive.
func Grade(key []model.AnswerKeyEntry, answers map[string]string, sentinel string) (int, []model.AnswerRecord) {
	score := 0
	records := make([]model.AnswerRecord, len(key))
	for i, k := range key {
		selected, ok := answers[k.QuestionID.String()]
		correct := false
		if !ok || selected == "" {
			selected = sentinel
		} else {
			correct = selected == k.CorrectAnswer
		}
		if correct {
			score++
		}
		records[i] = model.AnswerRecord{
			QuestionID:     k.QuestionID,
			Position:       i + 1,
			SelectedAnswer: selected,
			IsCorrect:      correct,
		}
	}
	return score, records
}

// Submit grades and stores one attempt. The taker comes from the authenticated
// identity; answers keyed by ids outside the test are ignored.
func (s *GradingService) Submit(ctx context.Context, who model.Identity, testID uuid.UUID, req *model.SubmitRequest) (*model.SubmitResult, error) {
	if !req.Status.Valid() {
		return nil, fieldError(ErrInvalidAnswers, "status", "must be one of COMPLETED TIMEOUT TERMINATED")
	}
	for k := range req.Answers {
		if _, err := uuid.Parse(k); err != nil {
			return nil, fieldError(ErrInvalidAnswers, "answers", fmt.Sprintf("key %q is not a question id", k))
		}
	}

	key, err := s.keys.GetAnswerKey(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	score, records := Grade(key, req.Answers, s.sentinel)
	sub := &model.TestSubmission{
		ID:        uuid.New(),
		StudentID: who.UserID,
		TestID:    testID,
		Score:     score,
		Status:    req.Status,
		Answers:   records,
	}

	if err := s.writer.Create(ctx, sub); err != nil {
		s.log.Error().Err(err).
			Str("test_id", testID.String()).
			Int("student_id", who.UserID).
			Msg("Failed to persist submission")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("test_id", testID.String()).
		Int("student_id", who.UserID).
		Int("score", score).
		Int("total", len(records)).
		Str("status", string(req.Status)).
		Msg("Submission graded")

	return &model.SubmitResult{
		SubmissionID: sub.ID,
		Score:        score,
		Total:        len(records),
		Status:       req.Status,
	}, nil
}
