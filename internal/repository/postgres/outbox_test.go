package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository/postgres"
)

var paymentCols = []string{"id", "reservation_id", "amount_cents", "description", "customer", "created_at",
	"delivery_kind", "payment_id", "outcome", "token", "payer_id", "abandon_reason",
	"attempts", "next_attempt_at", "lease_until", "last_error"}

func TestPaymentOutboxRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPaymentOutboxRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &domain.PaymentRecord{
		ID:            uuid.New(),
		ReservationID: 1,
		AmountCents:   9000,
		Description:   "Reservation 1",
		Customer:      "alice",
		CreatedAt:     now,
		Delivery:      domain.DeliveryPending{},
		NextAttemptAt: now,
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payment_outbox").
			WithArgs(rec.ID, int64(1), int64(9000), "Reservation 1", "alice", now, "PENDING", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Insert(context.Background(), rec))
	})

	t.Run("Active record exists (pgx)", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payment_outbox").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Insert(context.Background(), rec)
		assert.ErrorIs(t, err, domain.ErrActivePayment)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Active record exists (pq)", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payment_outbox").
			WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.Insert(context.Background(), rec), domain.ErrActivePayment)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentOutboxRepository_ClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPaymentOutboxRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pendingID, submittedID := uuid.New(), uuid.New()

	rows := sqlmock.NewRows(paymentCols).
		AddRow(pendingID.String(), 1, 9000, "r1", "alice", now, "PENDING", nil, nil, nil, nil, nil, 0, now, nil, nil).
		AddRow(submittedID.String(), 2, 4500, "r2", "bob", now, "SUBMITTED", "PAY-2", nil, nil, nil, nil, 1, now, nil, "timeout")
	mock.ExpectQuery("SELECT (.+) FROM payment_outbox (.+) FOR UPDATE SKIP LOCKED").
		WithArgs(now, 10).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE payment_outbox SET relay_id = \\$1, lease_until = \\$2").
		WithArgs("relay-a", now.Add(30*time.Second), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	records, err := repo.ClaimDue(context.Background(), "relay-a", now, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, pendingID, records[0].ID)
	assert.Equal(t, domain.DeliveryPending{}, records[0].Delivery)
	assert.Equal(t, domain.DeliverySubmitted{PaymentID: "PAY-2"}, records[1].Delivery)
	assert.Equal(t, "PAY-2", records[1].PaymentID())
	require.NotNil(t, records[1].LastError)
	assert.Equal(t, "timeout", *records[1].LastError)
	assert.Equal(t, now.Add(30*time.Second), *records[0].LeaseUntil)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentOutboxRepository_MarkSubmittedMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE payment_outbox SET delivery_kind").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = postgres.NewPaymentOutboxRepository(db).MarkSubmitted(context.Background(), uuid.New(), "PAY-1", time.Now())
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPaymentOutboxRepository_GetAbandonedByPaymentID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM payment_outbox WHERE payment_id = \\$1").
		WithArgs("PAY-9").
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(id.String(), 3, 9000, "r3", "alice", now, "ABANDONED", "PAY-9", nil, nil, nil, "no acknowledgment", 8, now, nil, "timeout"))

	rec, err := postgres.NewPaymentOutboxRepository(db).GetByPaymentID(context.Background(), "PAY-9")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryAbandoned{PaymentID: "PAY-9", Reason: "no acknowledgment"}, rec.Delivery)
	assert.Equal(t, "PAY-9", rec.PaymentID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentOutboxRepository_Outstanding(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()
	repo := postgres.NewPaymentOutboxRepository(db)

	mock.ExpectQuery("SELECT EXISTS (.+) FROM payment_outbox WHERE reservation_id = \\$1").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.Outstanding(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	ok, err = repo.Outstanding(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_ClaimBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "reservation_id", "event_type", "version", "status", "payload", "occurred_at", "attempts", "last_error"}).
		AddRow(11, 1, "CREATED", 1, "PENDING", []byte(`{"id":1}`), now, 0, nil).
		AddRow(14, 2, "CONFIRMED", 2, "CONFIRMED", []byte(`{"id":2}`), now, 1, "broker down")

	mock.ExpectQuery("WITH heads AS (.+) FOR UPDATE OF e SKIP LOCKED").
		WithArgs(50).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE reservation_events SET relay_id").
		WithArgs("relay-a", float64(30), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	events, err := postgres.NewEventRepository(db).ClaimBatch(context.Background(), "relay-a", 50, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCreated, events[0].Type)
	assert.Equal(t, "1:CREATED:1", events[0].DedupKey())
	assert.JSONEq(t, `{"id":2}`, string(events[1].Payload))
	assert.Equal(t, 1, events[1].Attempts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_EmptyClaimSkipsLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("WITH heads AS").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "event_type", "version", "status", "payload", "occurred_at", "attempts", "last_error"}))

	events, err := postgres.NewEventRepository(db).ClaimBatch(context.Background(), "relay-a", 50, time.Second)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
