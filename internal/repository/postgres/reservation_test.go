package postgres_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
	"rentacar-backend/internal/repository/postgres"
)

var reservationCols = []string{"id", "vehicle_id", "customer_username", "status", "created_at",
	"planned_pick_up_date", "actual_pick_up_date", "planned_drop_off_date", "actual_drop_off_date", "buffered_drop_off_date",
	"total_amount_cents", "was_delivery_late", "was_charged_fee", "was_vehicle_damaged", "was_involved_in_accident",
	"damage_level", "dirtiness_level", "eligibility_delta", "payment_token",
	"pick_up_staff", "drop_off_staff", "updated_by", "cancelled_by", "copied_from", "version", "updated_at"}

func reservationRow(id int64, status domain.ReservationStatus, at time.Time) []driver.Value {
	return []driver.Value{id, int64(7), "alice", string(status), at,
		at.Add(time.Hour), nil, at.Add(49 * time.Hour), nil, at.Add(51 * time.Hour),
		int64(9000), false, false, false, false,
		int64(0), int64(0), nil, nil,
		nil, nil, nil, nil, nil, int64(1), at}
}

func TestReservationRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewReservationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(reservationRow(1, domain.ReservationStatusPending, now)...))

		res, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.ID)
		assert.Equal(t, domain.ReservationStatusPending, res.Status)
		assert.Nil(t, res.ActualPickUpDate)
		assert.Equal(t, now.Add(51*time.Hour), res.BufferedDropOffDate)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1").
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows(reservationCols))

		_, err := repo.GetByID(ctx, 2)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_CompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewReservationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	token := "tok_1"
	next := &domain.Reservation{
		ID:                  1,
		Status:              domain.ReservationStatusConfirmed,
		PlannedPickUpDate:   now,
		PlannedDropOffDate:  now.Add(48 * time.Hour),
		BufferedDropOffDate: now.Add(50 * time.Hour),
		PaymentToken:        &token,
		Version:             1,
		UpdatedAt:           now,
	}

	t.Run("Swapped", func(t *testing.T) {
		mock.ExpectQuery("UPDATE reservations SET").
			WithArgs(append([]driver.Value{int64(1), "PENDING", "CONFIRMED"}, anyArgs(19)...)...).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

		ok, err := repo.CompareAndSwap(ctx, domain.ReservationStatusPending, next)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(2), next.Version)
	})

	t.Run("Status moved on", func(t *testing.T) {
		mock.ExpectQuery("UPDATE reservations SET").
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		ok, err := repo.CompareAndSwap(ctx, domain.ReservationStatusPending, next)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Check constraint is an integrity failure", func(t *testing.T) {
		mock.ExpectQuery("UPDATE reservations SET").
			WillReturnError(&pq.Error{Code: "23514"})

		_, err := repo.CompareAndSwap(ctx, domain.ReservationStatusPending, next)
		assert.ErrorIs(t, err, domain.ErrIntegrity)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_ListStalePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id FROM reservations WHERE status = \\$1 AND created_at < \\$2").
		WithArgs("PENDING", cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(5))

	ids, err := postgres.NewReservationRepository(db).ListStalePending(context.Background(), cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_ListByCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM \\(SELECT (.+) FROM reservations WHERE customer_username = \\$1 AND status = \\$2\\) as sub").
		WithArgs("alice", "CONFIRMED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE customer_username = \\$1 AND status = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("alice", "CONFIRMED", int32(10), int32(10)).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(reservationRow(4, domain.ReservationStatusConfirmed, now)...))

	list, total, err := postgres.NewReservationRepository(db).ListByCustomer(context.Background(), "alice", domain.ReservationStatusConfirmed, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(11), total)
	require.Len(t, list, 1)
	assert.Equal(t, int64(4), list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	store := postgres.NewStore(db)
	ctx := context.Background()

	t.Run("Commits on success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET eligibility_score").
			WithArgs("alice", 2, 0, 100).
			WillReturnRows(sqlmock.NewRows([]string{"eligibility_score"}).AddRow(52))
		mock.ExpectCommit()

		var score int
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			var err error
			score, err = repos.Eligibility().Adjust(ctx, "alice", 2, 0, 100)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 52, score)
	})

	t.Run("Rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}
