package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusConfirmed,
	ReservationStatusPickedUp,
	ReservationStatusDelivered,
	ReservationStatusExpired,
	ReservationStatusCancelled,
}

func TestLookupTransition(t *testing.T) {
	t.Run("Terminal statuses have no exits", func(t *testing.T) {
		for _, from := range allStatuses {
			if !from.IsTerminal() {
				continue
			}
			assert.Empty(t, AllowedFrom(from), "from %s", from)
			for _, to := range allStatuses {
				_, err := LookupTransition(from, to)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.ErrorIs(t, err, ErrConflict)
			}
		}
	})

	t.Run("Allowed pairs", func(t *testing.T) {
		tests := []struct {
			from, to ReservationStatus
			event    EventType
			ledger   LedgerEffect
		}{
			{ReservationStatusPending, ReservationStatusConfirmed, EventConfirmed, LedgerNone},
			{ReservationStatusPending, ReservationStatusExpired, EventExpired, LedgerRelease},
			{ReservationStatusPending, ReservationStatusCancelled, EventDeleted, LedgerRelease},
			{ReservationStatusConfirmed, ReservationStatusPickedUp, EventPickedUp, LedgerPromote},
			{ReservationStatusConfirmed, ReservationStatusCancelled, EventUpdated, LedgerRelease},
			{ReservationStatusPickedUp, ReservationStatusDelivered, EventFinalized, LedgerRelease},
		}
		for _, tt := range tests {
			rule, err := LookupTransition(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.event, rule.Event)
			assert.Equal(t, tt.ledger, rule.Ledger)
		}
	})

	t.Run("Denied pairs", func(t *testing.T) {
		denied := []Transition{
			{ReservationStatusConfirmed, ReservationStatusExpired},
			{ReservationStatusPending, ReservationStatusPickedUp},
			{ReservationStatusPending, ReservationStatusDelivered},
			{ReservationStatusPickedUp, ReservationStatusCancelled},
			{ReservationStatusPickedUp, ReservationStatusExpired},
		}
		for _, tr := range denied {
			_, err := LookupTransition(tr.From, tr.To)
			assert.True(t, errors.Is(err, ErrInvalidTransition), tr.String())
		}
	})
}

func TestReservationInvariants(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	base := func() *Reservation {
		return &Reservation{
			Status:             ReservationStatusPending,
			PlannedPickUpDate:  now,
			PlannedDropOffDate: now.Add(48 * time.Hour),
		}
	}

	assert.NoError(t, base().CheckInvariants())

	r := base()
	r.PlannedDropOffDate = r.PlannedPickUpDate
	assert.ErrorIs(t, r.CheckInvariants(), ErrValidation)

	r = base()
	r.Status = ReservationStatusPickedUp
	assert.ErrorIs(t, r.CheckInvariants(), ErrIntegrityPickUpDate)

	r.ActualPickUpDate = &now
	assert.NoError(t, r.CheckInvariants())

	r.ActualDropOffDate = &now
	assert.ErrorIs(t, r.CheckInvariants(), ErrIntegrity)
}

func TestReservationOccupiedUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := &Reservation{PlannedPickUpDate: now, PlannedDropOffDate: now.Add(time.Hour)}
	assert.Equal(t, now.Add(time.Hour), r.OccupiedUntil())

	r.BufferedDropOffDate = now.Add(3 * time.Hour)
	assert.Equal(t, now.Add(3*time.Hour), r.OccupiedUntil())
}

func TestOverlaps(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	assert.True(t, Overlaps(t0, t0.Add(2*day), t0.Add(day), t0.Add(3*day)))
	// Half-open: touching intervals do not overlap.
	assert.False(t, Overlaps(t0, t0.Add(day), t0.Add(day), t0.Add(2*day)))
	assert.True(t, Overlaps(t0, t0.Add(3*day), t0.Add(day), t0.Add(2*day)))
}

func TestDeliveryStateTerminal(t *testing.T) {
	assert.False(t, DeliveryPending{}.Terminal())
	assert.False(t, DeliverySubmitted{PaymentID: "p"}.Terminal())
	assert.True(t, DeliveryAcknowledged{Outcome: PaymentOutcomePaid}.Terminal())
	assert.True(t, DeliveryAbandoned{}.Terminal())

	rec := PaymentRecord{Delivery: DeliverySubmitted{PaymentID: "PAY-1"}}
	assert.Equal(t, "PAY-1", rec.PaymentID())
}
