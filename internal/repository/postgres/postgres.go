package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	repository.CustomerDirectory
	repository.VehicleDirectory
	repository.TrackingRepository
}

func NewStore(db *sql.DB) *Store {
	dir := NewDirectory(db)
	return &Store{
		db:                 db,
		CustomerDirectory:  dir,
		VehicleDirectory:   dir,
		TrackingRepository: NewTrackingRepository(db),
	}
}

// Open connects with the driver named in cfg ("postgres" for lib/pq,
// "pgx" for the pgx stdlib adapter) and verifies the connection.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxConns / 2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// WithinTx runs fn against repositories bound to a single transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, txRepos{tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txRepos struct {
	q DBTX
}

func (r txRepos) Reservations() repository.ReservationRepository {
	return NewReservationRepository(r.q)
}

func (r txRepos) Occupancy() repository.OccupancyRepository {
	return NewOccupancyRepository(r.q)
}

func (r txRepos) Eligibility() repository.EligibilityRepository {
	return NewEligibilityRepository(r.q)
}

func (r txRepos) Events() repository.EventRepository {
	return NewEventRepository(r.q)
}

func (r txRepos) Payments() repository.PaymentOutboxRepository {
	return NewPaymentOutboxRepository(r.q)
}
