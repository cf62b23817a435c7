package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SubmissionRepository handles graded submissions and their answer records.
// Rows are written once by Create and never updated.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create writes the submission and all of its answer records atomically.
// IDs are generated client-side so the answer rows can be bulk copied.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.TestSubmission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO test_submissions (id, student_id, test_id, score, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			s.ID, s.StudentID, s.TestID, s.Score, s.Status,
		).Scan(&s.CreatedAt)
		if err != nil {
			return err
		}

		rows := make([][]any, len(s.Answers))
		for i := range s.Answers {
			a := &s.Answers[i]
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			a.SubmissionID = s.ID
			rows[i] = []any{a.ID, a.SubmissionID, a.QuestionID, a.Position, a.SelectedAnswer, a.IsCorrect}
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"answer_records"},
			[]string{"id", "submission_id", "question_id", "position", "selected_answer", "is_correct"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

// GetDetail loads a submission with its test title and the per-question review
// (including correct answers). Ownership is checked by the caller.
func (r *SubmissionRepository) GetDetail(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error) {
	d := &model.SubmissionDetail{}
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.test_id, t.title, s.student_id, s.score, s.status, s.created_at
		 FROM test_submissions s
		 JOIN tests t ON t.id = s.test_id
		 WHERE s.id = $1`, id,
	).Scan(&d.ID, &d.TestID, &d.TestTitle, &d.StudentID, &d.Score, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.question_id, q.text, q.options, a.selected_answer, a.is_correct, q.correct_answer
		 FROM answer_records a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.submission_id = $1
		 ORDER BY a.position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	d.Answers = []model.AnswerReview{}
	for rows.Next() {
		var a model.AnswerReview
		if err := rows.Scan(&a.QuestionID, &a.Text, &a.Options, &a.SelectedAnswer, &a.IsCorrect, &a.CorrectAnswer); err != nil {
			return nil, err
		}
		d.Answers = append(d.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	d.TotalQuestions = len(d.Answers)
	return d, nil
}

// ListByTest returns every submission for a test with the taker's email,
// ordered by score. Equal scores keep insertion order.
func (r *SubmissionRepository) ListByTest(ctx context.Context, testID uuid.UUID, order model.SortOrder) ([]model.SubmissionSummary, error) {
	query := `SELECT s.id, s.test_id, u.id, u.email, s.score, s.status, s.created_at
		 FROM test_submissions s
		 JOIN users u ON u.id = s.student_id
		 WHERE s.test_id = $1
		 ORDER BY s.score DESC, s.seq ASC`
	if order == model.SortAsc {
		query = `SELECT s.id, s.test_id, u.id, u.email, s.score, s.status, s.created_at
		 FROM test_submissions s
		 JOIN users u ON u.id = s.student_id
		 WHERE s.test_id = $1
		 ORDER BY s.score ASC, s.seq ASC`
	}

	rows, err := r.pool.Query(ctx, query, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SubmissionSummary
	for rows.Next() {
		s := model.SubmissionSummary{Student: &model.StudentContact{}}
		if err := rows.Scan(&s.ID, &s.TestID, &s.Student.ID, &s.Student.Email, &s.Score, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListByStudent returns a taker's own submissions, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.SubmissionSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.test_id, t.title, s.score, s.status, s.created_at
		 FROM test_submissions s
		 JOIN tests t ON t.id = s.test_id
		 WHERE s.student_id = $1
		 ORDER BY s.created_at DESC, s.seq DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SubmissionSummary
	for rows.Next() {
		var s model.SubmissionSummary
		if err := rows.Scan(&s.ID, &s.TestID, &s.TestTitle, &s.Score, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
