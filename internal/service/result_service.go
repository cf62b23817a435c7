package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SubmissionReader is the read side of submission storage.
type SubmissionReader interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error)
	ListByTest(ctx context.Context, testID uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.SubmissionSummary, error)
}

// TestExistence reports whether a test exists.
type TestExistence interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ResultService decides who may read which submission.
type ResultService struct {
	subs  SubmissionReader
	tests TestExistence
}

// NewResultService creates a new ResultService.
func NewResultService(subs SubmissionReader, tests TestExistence) *ResultService {
	return &ResultService{subs: subs, tests: tests}
}

// GetSubmissionDetail returns the review of a submission to its owner.
// A missing submission and someone else's submission both yield
// ErrSubmissionNotFound so existence is never leaked.
func (s *ResultService) GetSubmissionDetail(ctx context.Context, who model.Identity, id uuid.UUID) (*model.SubmissionDetail, error) {
	d, err := s.subs.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if d.StudentID != who.UserID {
		return nil, ErrSubmissionNotFound
	}
	return d, nil
}

// ListSubmissionsForTest returns all submissions for a test, sorted by score.
// Only an authority may call it.
func (s *ResultService) ListSubmissionsForTest(ctx context.Context, who model.Identity, testID uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error) {
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

	list, err := s.subs.ListByTest(ctx, testID, order)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if list == nil {
		list = []model.SubmissionSummary{}
	}
	return list, nil
}

// ListMine returns the caller's own submissions.
func (s *ResultService) ListMine(ctx context.Context, who model.Identity) ([]model.SubmissionSummary, error) {
	list, err := s.subs.ListByStudent(ctx, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if list == nil {
		list = []model.SubmissionSummary{}
	}
	return list, nil
}
