package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentacar-backend/internal/domain"
)

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	// CompareAndSwap persists next only if the stored status still equals
	// expected. It bumps next.Version and reports whether a row was written.
	CompareAndSwap(ctx context.Context, expected domain.ReservationStatus, next *domain.Reservation) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error)
	ListByCustomer(ctx context.Context, username string, status domain.ReservationStatus, page, pageSize int32) ([]domain.Reservation, int32, error)
}

type OccupancyRepository interface {
	// LockVehicle serializes ledger writes for one vehicle until the
	// surrounding transaction ends.
	LockVehicle(ctx context.Context, vehicleID int64) error
	ListOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error)
	Insert(ctx context.Context, o *domain.Occupancy) error
	UpdateInterval(ctx context.Context, reservationID int64, from, to time.Time) (bool, error)
	SetState(ctx context.Context, reservationID int64, from, to domain.OccupancyState) (bool, error)
	Delete(ctx context.Context, vehicleID, reservationID int64) (bool, error)
}

type EligibilityRepository interface {
	// Adjust adds delta to the customer's score clamped to [floor, ceiling]
	// in a single statement and returns the new score.
	Adjust(ctx context.Context, username string, delta, floor, ceiling int) (int, error)
	Initialize(ctx context.Context, username string, score int) error
}

type EventRepository interface {
	Append(ctx context.Context, e *domain.Event) error
	// ClaimBatch leases the oldest unpublished event of each reservation.
	ClaimBatch(ctx context.Context, relayID string, limit int, lease time.Duration) ([]domain.Event, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

type PaymentOutboxRepository interface {
	// Insert fails with domain.ErrActivePayment when the reservation already
	// has a non-terminal record.
	Insert(ctx context.Context, p *domain.PaymentRecord) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentRecord, error)
	// Outstanding reports whether a payment for the reservation may still be
	// captured: a record not yet delivered, submitted, or abandoned after the
	// gateway accepted it.
	Outstanding(ctx context.Context, reservationID int64) (bool, error)
	ClaimDue(ctx context.Context, relayID string, now time.Time, limit int, lease time.Duration) ([]domain.PaymentRecord, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, paymentID string, next time.Time) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errMsg string) error
	MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repos is the set of repositories bound to one transaction.
type Repos interface {
	Reservations() ReservationRepository
	Occupancy() OccupancyRepository
	Eligibility() EligibilityRepository
	Events() EventRepository
	Payments() PaymentOutboxRepository
}

// Transactor runs fn in one all-or-nothing unit of work. Returning an error
// from fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// CustomerDirectory is a read-only lookup into the identity store.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, username string) (*domain.Customer, error)
}

// VehicleDirectory is a read-only lookup into the vehicle and car model stores.
type VehicleDirectory interface {
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
}

type TrackingRepository interface {
	// Open is idempotent: re-opening an existing session is a no-op.
	Open(ctx context.Context, s *domain.TrackingSession) error
	Close(ctx context.Context, reservationID int64, at time.Time) error
	AppendPoint(ctx context.Context, reservationID int64, p *domain.TrackingPoint) error
	Get(ctx context.Context, reservationID int64) (*domain.TrackingSession, error)
}
