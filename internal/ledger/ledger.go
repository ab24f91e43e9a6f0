package ledger

import (
	"context"
	"fmt"
	"time"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

// Ledger keeps the per-vehicle occupancy intervals. Every method runs inside
// the caller's transaction through the OccupancyRepository it is handed, and
// writes take the vehicle row lock first.
type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Hold places a provisional occupancy for [from, to) or fails with
// domain.ErrVehicleBooked when it overlaps any other row of the vehicle.
func (l *Ledger) Hold(ctx context.Context, occ repository.OccupancyRepository, vehicleID, reservationID int64, from, to time.Time) error {
	if !to.After(from) {
		return domain.ErrInvalidWindow
	}
	if err := occ.LockVehicle(ctx, vehicleID); err != nil {
		return err
	}
	if err := l.checkFree(ctx, occ, vehicleID, reservationID, from, to); err != nil {
		return err
	}
	return occ.Insert(ctx, &domain.Occupancy{
		ReservationID: reservationID,
		VehicleID:     vehicleID,
		StartsAt:      from,
		EndsAt:        to,
		State:         domain.OccupancyHold,
		CreatedAt:     l.now(),
	})
}

// Release drops the reservation's occupancy. A missing row is reported but
// does not fail the caller since the vehicle is free either way.
func (l *Ledger) Release(ctx context.Context, occ repository.OccupancyRepository, vehicleID, reservationID int64) error {
	if err := occ.LockVehicle(ctx, vehicleID); err != nil {
		return err
	}
	ok, err := occ.Delete(ctx, vehicleID, reservationID)
	if err != nil {
		return fmt.Errorf("release occupancy: %w", err)
	}
	if !ok {
		logger.Integrity(ctx, "Released reservation had no occupancy", "vehicle_id", vehicleID, "reservation_id", reservationID)
	}
	return nil
}

// Promote turns the hold into active occupancy at pickup.
func (l *Ledger) Promote(ctx context.Context, occ repository.OccupancyRepository, reservationID int64) error {
	ok, err := occ.SetState(ctx, reservationID, domain.OccupancyHold, domain.OccupancyActive)
	if err != nil {
		return fmt.Errorf("promote occupancy: %w", err)
	}
	if !ok {
		logger.Integrity(ctx, "Picked up reservation has no hold", "reservation_id", reservationID)
		return fmt.Errorf("%w: no hold for reservation %d", domain.ErrIntegrity, reservationID)
	}
	return nil
}

// Reschedule moves the reservation's interval, checking the new one against
// every other row of the vehicle.
func (l *Ledger) Reschedule(ctx context.Context, occ repository.OccupancyRepository, vehicleID, reservationID int64, from, to time.Time) error {
	if !to.After(from) {
		return domain.ErrInvalidWindow
	}
	if err := occ.LockVehicle(ctx, vehicleID); err != nil {
		return err
	}
	if err := l.checkFree(ctx, occ, vehicleID, reservationID, from, to); err != nil {
		return err
	}
	ok, err := occ.UpdateInterval(ctx, reservationID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		logger.Integrity(ctx, "Rescheduled reservation has no occupancy", "vehicle_id", vehicleID, "reservation_id", reservationID)
		return fmt.Errorf("%w: no occupancy for reservation %d", domain.ErrIntegrity, reservationID)
	}
	return nil
}

// Occupancy lists the rows of a vehicle intersecting [from, to).
func (l *Ledger) Occupancy(ctx context.Context, occ repository.OccupancyRepository, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error) {
	if !to.After(from) {
		return nil, domain.ErrInvalidWindow
	}
	return occ.ListOverlapping(ctx, vehicleID, from, to)
}

func (l *Ledger) checkFree(ctx context.Context, occ repository.OccupancyRepository, vehicleID, reservationID int64, from, to time.Time) error {
	rows, err := occ.ListOverlapping(ctx, vehicleID, from, to)
	if err != nil {
		return fmt.Errorf("list occupancy: %w", err)
	}
	for _, o := range rows {
		if o.ReservationID != reservationID {
			return fmt.Errorf("%w: overlaps reservation %d", domain.ErrVehicleBooked, o.ReservationID)
		}
	}
	return nil
}
