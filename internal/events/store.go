package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is an unpublished outbox row.
type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Store hands out batches of unpublished events. fn runs while the batch is
// locked; the batch is marked published only if fn returns nil.
type Store interface {
	PublishBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []Event) error) (int, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) PublishBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []Event) error) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}

	var batch []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(batch) == 0 {
		return 0, tx.Commit(ctx)
	}

	if err := fn(ctx, batch); err != nil {
		return 0, err
	}

	ids := make([]int64, 0, len(batch))
	for _, ev := range batch {
		ids = append(ids, ev.ID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE event_logs SET published_at = now() WHERE id = ANY($1)
	`, ids); err != nil {
		return 0, fmt.Errorf("mark events published: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(batch), nil
}
