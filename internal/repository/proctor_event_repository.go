package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ProctorEventRepository handles client-reported proctoring events.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

// BulkInsert copies a batch of events in one round trip.
func (r *ProctorEventRepository) BulkInsert(ctx context.Context, events []model.ProctorEvent) (int64, error) {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.TestID, e.StudentID, string(e.Kind), e.ViolationCount, e.RecordedAt}
	}

	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"proctor_events"},
		[]string{"test_id", "student_id", "kind", "violation_count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
}

// Insert writes a single event.
func (r *ProctorEventRepository) Insert(ctx context.Context, e *model.ProctorEvent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO proctor_events (test_id, student_id, kind, violation_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.TestID, e.StudentID, e.Kind, e.ViolationCount, e.RecordedAt,
	).Scan(&e.ID)
}

// ListByTest returns every event for a test in the order they were recorded.
func (r *ProctorEventRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.ProctorEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.test_id, e.student_id, u.email, e.kind, e.violation_count, e.recorded_at
		 FROM proctor_events e
		 JOIN users u ON u.id = e.student_id
		 WHERE e.test_id = $1
		 ORDER BY e.recorded_at, e.id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ProctorEvent
	for rows.Next() {
		var e model.ProctorEvent
		if err := rows.Scan(&e.ID, &e.TestID, &e.StudentID, &e.StudentEmail, &e.Kind, &e.ViolationCount, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
