package domain

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrValidation         = errors.New("validation failure")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrExternalDependency = errors.New("external dependency failure")
	ErrIntegrity          = errors.New("integrity violation")
)

var (
	ErrInvalidWindow        = fmt.Errorf("%w: drop-off must be after pick-up", ErrValidation)
	ErrPickUpInPast         = fmt.Errorf("%w: pick-up date is in the past", ErrValidation)
	ErrInvalidSettlement    = fmt.Errorf("%w: settlement levels must be between 0 and %d", ErrValidation, MaxSettlementLevel)
	ErrInsufficientEligible = fmt.Errorf("%w: customer eligibility below minimum", ErrValidation)
	ErrNotCustomer          = fmt.Errorf("%w: account is not a customer", ErrValidation)

	ErrStaleState         = fmt.Errorf("%w: reservation state changed concurrently", ErrConflict)
	ErrInvalidTransition  = fmt.Errorf("%w: transition not allowed", ErrConflict)
	ErrVehicleBooked      = fmt.Errorf("%w: vehicle already booked for window", ErrConflict)
	ErrVehicleUnavailable = fmt.Errorf("%w: vehicle is not available", ErrConflict)
	ErrActivePayment      = fmt.Errorf("%w: an active payment already exists for reservation", ErrConflict)
	ErrAlreadyPaid        = fmt.Errorf("%w: reservation already confirmed under another payment", ErrConflict)
	ErrAmountLocked       = fmt.Errorf("%w: reservation amount is locked by a payment", ErrConflict)
	ErrPaymentWindowOpen  = fmt.Errorf("%w: payment window has not elapsed", ErrConflict)
	ErrSessionClosed      = fmt.Errorf("%w: tracking session is closed", ErrConflict)

	ErrReservationNotFound = fmt.Errorf("%w: reservation", ErrNotFound)
	ErrVehicleNotFound     = fmt.Errorf("%w: vehicle", ErrNotFound)
	ErrCustomerNotFound    = fmt.Errorf("%w: customer", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("%w: payment", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("%w: tracking session", ErrNotFound)

	ErrIntegrityPickUpDate  = fmt.Errorf("%w: actual pick-up date does not match status", ErrIntegrity)
	ErrIntegrityDropOffDate = fmt.Errorf("%w: actual drop-off date does not match status", ErrIntegrity)
	ErrIntegrityOverlap     = fmt.Errorf("%w: overlapping occupancy for vehicle", ErrIntegrity)
)

// Kind returns the failure kind err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrExternalDependency, ErrIntegrity} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
