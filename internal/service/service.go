package service

import (
	"context"
	"time"

	"rentacar-backend/internal/domain"
)

type ReservationService interface {
	Create(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error)
	ConfirmPayment(ctx context.Context, id int64, token string) (*domain.Reservation, error)
	PickUp(ctx context.Context, id int64, staff string) (*domain.Reservation, error)
	Finalize(ctx context.Context, in FinalizeInput) (*domain.Reservation, error)
	Expire(ctx context.Context, id int64) (bool, error)
	Cancel(ctx context.Context, id int64, actor string) (*domain.Reservation, error)
	Reschedule(ctx context.Context, id int64, w domain.Window, actor string) (*domain.Reservation, error)
	Copy(ctx context.Context, sourceID int64, w domain.Window, actor string) (*domain.Reservation, error)
	Get(ctx context.Context, id int64) (*domain.Reservation, error)
	ListByCustomer(ctx context.Context, username string, status domain.ReservationStatus, page, pageSize int32) ([]domain.Reservation, int32, error)
	VehicleOccupancy(ctx context.Context, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error)
	InitializeEligibility(ctx context.Context, username string) (int, error)
}

type PaymentService interface {
	RequestPayment(ctx context.Context, in PaymentRequest) (*domain.PaymentRecord, error)
	Acknowledge(ctx context.Context, ack domain.PaymentAck) error
}

// Refunder returns captured money for a reservation that can no longer be
// fulfilled.
type Refunder interface {
	Refund(ctx context.Context, token string, amountCents int64, reason string) error
}

type CreateReservationInput struct {
	CustomerUsername string    `json:"customer_username" validate:"required"`
	VehicleID        int64     `json:"vehicle_id" validate:"gt=0"`
	PickUp           time.Time `json:"planned_pick_up_date" validate:"required"`
	DropOff          time.Time `json:"planned_drop_off_date" validate:"required"`
	Actor            string    `json:"-"`
}

type FinalizeInput struct {
	ReservationID         int64     `json:"-" validate:"gt=0"`
	ActualDropOff         time.Time `json:"actual_drop_off_date" validate:"required"`
	WasChargedFee         bool      `json:"was_charged_fee"`
	WasVehicleDamaged     bool      `json:"was_vehicle_damaged"`
	WasInvolvedInAccident bool      `json:"was_involved_in_accident"`
	DamageLevel           int       `json:"damage_level" validate:"gte=0,lte=5"`
	DirtinessLevel        int       `json:"dirtiness_level" validate:"gte=0,lte=5"`
	Staff                 string    `json:"-" validate:"required"`
}

// PaymentRequest asks for a payment confirmation intent. Zero amount and empty
// customer default to the reservation's total and owner.
type PaymentRequest struct {
	ReservationID int64  `json:"-" validate:"gt=0"`
	AmountCents   int64  `json:"amount_cents" validate:"gte=0"`
	Description   string `json:"description" validate:"max=255"`
	Customer      string `json:"customer"`
}
