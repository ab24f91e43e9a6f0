package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
)

type eventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Append(ctx context.Context, e *domain.Event) error {
	query := `INSERT INTO reservation_events (reservation_id, event_type, version, status, payload, occurred_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, e.ReservationID, e.Type, e.Version, e.Status, []byte(e.Payload), e.OccurredAt).Scan(&e.ID); err != nil {
		return fmt.Errorf("append %s event for reservation %d: %w", e.Type, e.ReservationID, err)
	}
	return nil
}

// ClaimBatch must run inside a transaction so the row locks hold until the
// lease is written.
func (r *eventRepository) ClaimBatch(ctx context.Context, relayID string, limit int, lease time.Duration) ([]domain.Event, error) {
	query := `WITH heads AS (
	              SELECT DISTINCT ON (reservation_id) id
	              FROM reservation_events
	              WHERE published_at IS NULL
	              ORDER BY reservation_id, id
	          )
	          SELECT e.id, e.reservation_id, e.event_type, e.version, e.status, e.payload, e.occurred_at, e.attempts, e.last_error
	          FROM reservation_events e JOIN heads h ON h.id = e.id
	          WHERE e.lease_until IS NULL OR e.lease_until < now()
	          ORDER BY e.id
	          LIMIT $1
	          FOR UPDATE OF e SKIP LOCKED`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.Type, &e.Version, &e.Status, &payload, &e.OccurredAt, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE reservation_events SET relay_id = $1, lease_until = now() + make_interval(secs => $2)
	                                WHERE id = ANY($3)`, relayID, lease.Seconds(), pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) MarkPublished(ctx context.Context, ids []int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reservation_events SET published_at = now(), lease_until = NULL WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// MarkFailed keeps the lease so the event is retried once it lapses.
func (r *eventRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reservation_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, errMsg)
	return err
}

func (r *eventRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservation_events WHERE published_at IS NOT NULL AND published_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
