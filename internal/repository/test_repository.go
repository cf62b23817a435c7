package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// TestRepository handles test and question data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// CreateWithQuestions inserts a test and all of its questions in one transaction.
// Question IDs and positions are assigned here.
func (r *TestRepository) CreateWithQuestions(ctx context.Context, t *model.Test) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO tests (title, description, duration_minutes, created_by)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			t.Title, t.Description, t.DurationMinutes, t.CreatedBy,
		).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return err
		}

		rows := make([][]any, len(t.Questions))
		for i := range t.Questions {
			q := &t.Questions[i]
			q.ID = uuid.New()
			q.TestID = t.ID
			q.Position = i + 1
			rows[i] = []any{q.ID, q.TestID, q.Position, q.Text, string(q.Type), q.Options, q.CorrectAnswer}
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"questions"},
			[]string{"id", "test_id", "position", "text", "type", "options", "correct_answer"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

// List returns every test with its author email and question count, newest first.
func (r *TestRepository) List(ctx context.Context) ([]model.TestSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.title, t.description, t.duration_minutes, u.email,
		        (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
		        t.created_at
		 FROM tests t
		 JOIN users u ON u.id = t.created_by
		 ORDER BY t.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.TestSummary
	for rows.Next() {
		var s model.TestSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.DurationMinutes, &s.CreatorEmail, &s.QuestionCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, s)
	}
	return tests, rows.Err()
}

// GetWithQuestions retrieves a test and its questions ordered by position.
// The returned questions include correct answers; callers must strip them
// before serving takers.
func (r *TestRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, duration_minutes, created_by, created_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.DurationMinutes, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, position, text, type, options, correct_answer
		 FROM questions WHERE test_id = $1
		 ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Position, &q.Text, &q.Type, &q.Options, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, q)
	}
	return t, rows.Err()
}

// Exists reports whether a test with the given ID exists.
func (r *TestRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)`, id,
	).Scan(&ok)
	return ok, err
}

// GetAnswerKey returns {question id, correct answer} for every question of a
// test in position order. An unknown test yields pgx.ErrNoRows.
func (r *TestRepository) GetAnswerKey(ctx context.Context, testID uuid.UUID) ([]model.AnswerKeyEntry, error) {
	ok, err := r.Exists(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pgx.ErrNoRows
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_answer FROM questions
		 WHERE test_id = $1
		 ORDER BY position`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var key []model.AnswerKeyEntry
	for rows.Next() {
		var e model.AnswerKeyEntry
		if err := rows.Scan(&e.QuestionID, &e.CorrectAnswer); err != nil {
			return nil, err
		}
		key = append(key, e)
	}
	return key, rows.Err()
}
