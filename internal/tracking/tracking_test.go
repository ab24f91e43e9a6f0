package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(t *testing.T, typ domain.EventType, res *domain.Reservation) domain.Event {
	t.Helper()
	e, err := domain.NewEvent(typ, res, t0)
	require.NoError(t, err)
	return *e
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), validator.New())

	pickedUp := t0.Add(10 * time.Minute)
	res := &domain.Reservation{ID: 3, VehicleID: 7, Status: domain.ReservationStatusPickedUp, Version: 3, ActualPickUpDate: &pickedUp}

	_, err := svc.RecordPoint(ctx, 3, domain.TrackingPoint{Latitude: 12.97, Longitude: 77.59, RecordedAt: t0})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, svc.Handle(ctx, event(t, domain.EventPickedUp, res)))
	// Redelivery leaves the session as it is.
	require.NoError(t, svc.Handle(ctx, event(t, domain.EventPickedUp, res)))

	p1, err := svc.RecordPoint(ctx, 3, domain.TrackingPoint{Latitude: 12.97, Longitude: 77.59, RecordedAt: pickedUp})
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Seq)
	p2, err := svc.RecordPoint(ctx, 3, domain.TrackingPoint{Latitude: 12.98, Longitude: 77.60, RecordedAt: pickedUp.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Seq)

	droppedOff := t0.Add(48 * time.Hour)
	res.Status = domain.ReservationStatusDelivered
	res.Version = 4
	res.ActualDropOffDate = &droppedOff
	require.NoError(t, svc.Handle(ctx, event(t, domain.EventFinalized, res)))

	s, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.VehicleID)
	assert.Equal(t, pickedUp, s.OpenedAt)
	require.NotNil(t, s.ClosedAt)
	assert.Equal(t, droppedOff, *s.ClosedAt)
	assert.Len(t, s.Points, 2)
	assert.False(t, s.Open())

	_, err = svc.RecordPoint(ctx, 3, domain.TrackingPoint{Latitude: 1, Longitude: 1, RecordedAt: droppedOff})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestService_RecordPointValidation(t *testing.T) {
	svc := NewService(memory.NewStore(), validator.New())
	tests := []struct {
		name  string
		point domain.TrackingPoint
	}{
		{"Latitude out of range", domain.TrackingPoint{Latitude: 91, RecordedAt: t0}},
		{"Longitude out of range", domain.TrackingPoint{Longitude: -181, RecordedAt: t0}},
		{"Missing timestamp", domain.TrackingPoint{Latitude: 1, Longitude: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPoint(context.Background(), 1, tt.point)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestService_HandleIgnoresOtherEvents(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, validator.New())
	res := &domain.Reservation{ID: 4, VehicleID: 7, Status: domain.ReservationStatusConfirmed, Version: 2}

	require.NoError(t, svc.Handle(context.Background(), event(t, domain.EventConfirmed, res)))
	_, err := svc.Get(context.Background(), 4)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestService_FinalizeWithoutSession(t *testing.T) {
	svc := NewService(memory.NewStore(), validator.New())
	res := &domain.Reservation{ID: 5, VehicleID: 7, Status: domain.ReservationStatusDelivered, Version: 4}
	assert.NoError(t, svc.Handle(context.Background(), event(t, domain.EventFinalized, res)))
}
