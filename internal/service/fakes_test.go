package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// fakeStore is an in-memory stand-in for the Postgres repositories.
type fakeStore struct {
	mu          sync.Mutex
	tests       map[uuid.UUID]*model.Test
	submissions []*model.TestSubmission
	createErr   error
	getCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tests: make(map[uuid.UUID]*model.Test)}
}

func (f *fakeStore) addTest(t *model.Test) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Questions {
		if t.Questions[i].ID == uuid.Nil {
			t.Questions[i].ID = uuid.New()
		}
		t.Questions[i].TestID = t.ID
		t.Questions[i].Position = i + 1
	}
	f.tests[t.ID] = t
}

func (f *fakeStore) GetAnswerKey(_ context.Context, testID uuid.UUID) ([]model.AnswerKeyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tests[testID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	key := make([]model.AnswerKeyEntry, len(t.Questions))
	for i, q := range t.Questions {
		key[i] = model.AnswerKeyEntry{QuestionID: q.ID, CorrectAnswer: q.CorrectAnswer}
	}
	return key, nil
}

func (f *fakeStore) Create(_ context.Context, s *model.TestSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *s
	cp.Answers = append([]model.AnswerRecord(nil), s.Answers...)
	f.submissions = append(f.submissions, &cp)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tests[id]
	return ok, nil
}

func (f *fakeStore) GetDetail(_ context.Context, id uuid.UUID) (*model.SubmissionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.submissions {
		if s.ID != id {
			continue
		}
		d := &model.SubmissionDetail{
			ID:             s.ID,
			TestID:         s.TestID,
			StudentID:      s.StudentID,
			Score:          s.Score,
			Status:         s.Status,
			TotalQuestions: len(s.Answers),
		}
		if t, ok := f.tests[s.TestID]; ok {
			d.TestTitle = t.Title
		}
		for _, a := range s.Answers {
			d.Answers = append(d.Answers, model.AnswerReview{
				QuestionID:     a.QuestionID,
				SelectedAnswer: a.SelectedAnswer,
				IsCorrect:      a.IsCorrect,
			})
		}
		return d, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) ListByTest(_ context.Context, testID uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SubmissionSummary
	for _, s := range f.submissions {
		if s.TestID == testID {
			out = append(out, model.SubmissionSummary{ID: s.ID, TestID: s.TestID, Score: s.Score, Status: s.Status})
		}
	}
	return out, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, studentID int) ([]model.SubmissionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SubmissionSummary
	for _, s := range f.submissions {
		if s.StudentID == studentID {
			out = append(out, model.SubmissionSummary{ID: s.ID, TestID: s.TestID, Score: s.Score, Status: s.Status})
		}
	}
	return out, nil
}

func (f *fakeStore) CreateWithQuestions(_ context.Context, t *model.Test) error {
	f.addTest(t)
	return nil
}

func (f *fakeStore) List(_ context.Context) ([]model.TestSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestSummary
	for _, t := range f.tests {
		out = append(out, model.TestSummary{ID: t.ID, Title: t.Title, QuestionCount: len(t.Questions)})
	}
	return out, nil
}

func (f *fakeStore) GetWithQuestions(_ context.Context, id uuid.UUID) (*model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	t, ok := f.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

// fakeUsers implements UserStore.
type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int]*model.User
	nextID int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int]*model.User)}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeEvents struct {
	events []model.ProctorEvent
}

func (f *fakeEvents) ListByTest(_ context.Context, testID uuid.UUID) ([]model.ProctorEvent, error) {
	var out []model.ProctorEvent
	for _, e := range f.events {
		if e.TestID == testID {
			out = append(out, e)
		}
	}
	return out, nil
}
