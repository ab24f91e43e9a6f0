package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
)

type occupancyRepository struct {
	db DBTX
}

func NewOccupancyRepository(db DBTX) repository.OccupancyRepository {
	return &occupancyRepository{db: db}
}

func (r *occupancyRepository) LockVehicle(ctx context.Context, vehicleID int64) error {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM vehicles WHERE id = $1 FOR UPDATE`, vehicleID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrVehicleNotFound
	}
	if err != nil {
		return fmt.Errorf("lock vehicle %d: %w", vehicleID, err)
	}
	return nil
}

func (r *occupancyRepository) ListOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error) {
	query := `SELECT reservation_id, vehicle_id, starts_at, ends_at, state, created_at
	          FROM vehicle_occupancy
	          WHERE vehicle_id = $1 AND starts_at < $3 AND ends_at > $2
	          ORDER BY starts_at`
	rows, err := r.db.QueryContext(ctx, query, vehicleID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Occupancy
	for rows.Next() {
		var o domain.Occupancy
		if err := rows.Scan(&o.ReservationID, &o.VehicleID, &o.StartsAt, &o.EndsAt, &o.State, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *occupancyRepository) Insert(ctx context.Context, o *domain.Occupancy) error {
	query := `INSERT INTO vehicle_occupancy (reservation_id, vehicle_id, starts_at, ends_at, state, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, o.ReservationID, o.VehicleID, o.StartsAt, o.EndsAt, o.State, o.CreatedAt)
	if isExclusionViolation(err) || isUniqueViolation(err) {
		return domain.ErrVehicleBooked
	}
	return err
}

func (r *occupancyRepository) UpdateInterval(ctx context.Context, reservationID int64, from, to time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE vehicle_occupancy SET starts_at = $2, ends_at = $3 WHERE reservation_id = $1`, reservationID, from, to)
	if isExclusionViolation(err) {
		return false, domain.ErrVehicleBooked
	}
	return affected(res, err)
}

func (r *occupancyRepository) SetState(ctx context.Context, reservationID int64, from, to domain.OccupancyState) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE vehicle_occupancy SET state = $3 WHERE reservation_id = $1 AND state = $2`, reservationID, from, to)
	return affected(res, err)
}

func (r *occupancyRepository) Delete(ctx context.Context, vehicleID, reservationID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vehicle_occupancy WHERE vehicle_id = $1 AND reservation_id = $2`, vehicleID, reservationID)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
