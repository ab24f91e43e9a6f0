package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
)

const paymentColumns = `id, reservation_id, amount_cents, description, customer, created_at,
	delivery_kind, payment_id, outcome, token, payer_id, abandon_reason,
	attempts, next_attempt_at, lease_until, last_error`

type paymentOutboxRepository struct {
	db DBTX
}

func NewPaymentOutboxRepository(db DBTX) repository.PaymentOutboxRepository {
	return &paymentOutboxRepository{db: db}
}

func scanPayment(row rowScanner) (*domain.PaymentRecord, error) {
	p := &domain.PaymentRecord{}
	var (
		kind                               domain.DeliveryKind
		paymentID, outcome, token, payerID sql.NullString
		reason                             sql.NullString
	)
	err := row.Scan(&p.ID, &p.ReservationID, &p.AmountCents, &p.Description, &p.Customer, &p.CreatedAt,
		&kind, &paymentID, &outcome, &token, &payerID, &reason,
		&p.Attempts, &p.NextAttemptAt, &p.LeaseUntil, &p.LastError)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.DeliveryKindPending:
		p.Delivery = domain.DeliveryPending{}
	case domain.DeliveryKindSubmitted:
		p.Delivery = domain.DeliverySubmitted{PaymentID: paymentID.String}
	case domain.DeliveryKindAcknowledged:
		p.Delivery = domain.DeliveryAcknowledged{
			PaymentID: paymentID.String,
			Outcome:   domain.PaymentOutcome(outcome.String),
			Token:     token.String,
			PayerID:   payerID.String,
		}
	case domain.DeliveryKindAbandoned:
		p.Delivery = domain.DeliveryAbandoned{PaymentID: paymentID.String, Reason: reason.String}
	default:
		return nil, fmt.Errorf("%w: payment %s has unknown delivery kind %q", domain.ErrIntegrity, p.ID, kind)
	}
	return p, nil
}

func (r *paymentOutboxRepository) Insert(ctx context.Context, p *domain.PaymentRecord) error {
	query := `INSERT INTO payment_outbox (id, reservation_id, amount_cents, description, customer, created_at,
	          delivery_kind, attempts, next_attempt_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.ReservationID, p.AmountCents, p.Description, p.Customer, p.CreatedAt,
		p.Delivery.Kind(), p.NextAttemptAt)
	if isUniqueViolation(err) {
		return domain.ErrActivePayment
	}
	if err != nil {
		return fmt.Errorf("insert payment for reservation %d: %w", p.ReservationID, err)
	}
	return nil
}

func (r *paymentOutboxRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_outbox WHERE payment_id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func (r *paymentOutboxRepository) Outstanding(ctx context.Context, reservationID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payment_outbox WHERE reservation_id = $1
	          AND (delivery_kind IN ('PENDING', 'SUBMITTED') OR payment_id IS NOT NULL))`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, reservationID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check payments for reservation %d: %w", reservationID, err)
	}
	return ok, nil
}

func (r *paymentOutboxRepository) ClaimDue(ctx context.Context, relayID string, now time.Time, limit int, lease time.Duration) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_outbox
	          WHERE delivery_kind IN ('PENDING', 'SUBMITTED')
	            AND next_attempt_at <= $1
	            AND (lease_until IS NULL OR lease_until < $1)
	          ORDER BY next_attempt_at
	          LIMIT $2
	          FOR UPDATE SKIP LOCKED`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(records))
	for _, p := range records {
		ids = append(ids, p.ID.String())
	}
	leaseUntil := now.Add(lease)
	_, err = r.db.ExecContext(ctx, `UPDATE payment_outbox SET relay_id = $1, lease_until = $2 WHERE id = ANY($3::uuid[])`,
		relayID, leaseUntil, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].LeaseUntil = &leaseUntil
	}
	return records, nil
}

func (r *paymentOutboxRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, paymentID string, next time.Time) error {
	query := `UPDATE payment_outbox SET delivery_kind = $2, payment_id = $3, attempts = 0, next_attempt_at = $4,
	          lease_until = NULL, last_error = NULL
	          WHERE id = $1 AND delivery_kind = 'PENDING'`
	return r.exec(ctx, query, id, domain.DeliveryKindSubmitted, paymentID, next)
}

func (r *paymentOutboxRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errMsg string) error {
	query := `UPDATE payment_outbox SET attempts = $2, next_attempt_at = $3, last_error = $4, lease_until = NULL WHERE id = $1`
	return r.exec(ctx, query, id, attempts, next, errMsg)
}

func (r *paymentOutboxRepository) MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE payment_outbox SET delivery_kind = $2, abandon_reason = $3, lease_until = NULL WHERE id = $1`
	return r.exec(ctx, query, id, domain.DeliveryKindAbandoned, reason)
}

func (r *paymentOutboxRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM payment_outbox WHERE id = $1`, id)
}

func (r *paymentOutboxRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	ok, err := affected(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPaymentNotFound
	}
	return nil
}
