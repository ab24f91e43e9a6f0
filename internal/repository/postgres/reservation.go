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

const reservationColumns = `id, vehicle_id, customer_username, status, created_at,
	planned_pick_up_date, actual_pick_up_date, planned_drop_off_date, actual_drop_off_date, buffered_drop_off_date,
	total_amount_cents, was_delivery_late, was_charged_fee, was_vehicle_damaged, was_involved_in_accident,
	damage_level, dirtiness_level, eligibility_delta, payment_token,
	pick_up_staff, drop_off_staff, updated_by, cancelled_by, copied_from, version, updated_at`

type reservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	r := &domain.Reservation{}
	err := row.Scan(&r.ID, &r.VehicleID, &r.CustomerUsername, &r.Status, &r.CreatedAt,
		&r.PlannedPickUpDate, &r.ActualPickUpDate, &r.PlannedDropOffDate, &r.ActualDropOffDate, &r.BufferedDropOffDate,
		&r.TotalAmountCents, &r.WasDeliveryLate, &r.WasChargedFee, &r.WasVehicleDamaged, &r.WasInvolvedInAccident,
		&r.DamageLevel, &r.DirtinessLevel, &r.EligibilityDelta, &r.PaymentToken,
		&r.PickUpStaff, &r.DropOffStaff, &r.UpdatedBy, &r.CancelledBy, &r.CopiedFrom, &r.Version, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `INSERT INTO reservations (vehicle_id, customer_username, status, created_at,
	          planned_pick_up_date, planned_drop_off_date, buffered_drop_off_date, total_amount_cents,
	          updated_by, copied_from, version, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $4) RETURNING id, version, updated_at`
	err := r.db.QueryRowContext(ctx, query, res.VehicleID, res.CustomerUsername, res.Status, res.CreatedAt,
		res.PlannedPickUpDate, res.PlannedDropOffDate, res.BufferedDropOffDate, res.TotalAmountCents,
		res.UpdatedBy, res.CopiedFrom).Scan(&res.ID, &res.Version, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return res, nil
}

// CompareAndSwap writes every mutable column in one conditional update.
func (r *reservationRepository) CompareAndSwap(ctx context.Context, expected domain.ReservationStatus, next *domain.Reservation) (bool, error) {
	query := `UPDATE reservations SET
	          status=$3, planned_pick_up_date=$4, actual_pick_up_date=$5, planned_drop_off_date=$6,
	          actual_drop_off_date=$7, buffered_drop_off_date=$8, total_amount_cents=$9,
	          was_delivery_late=$10, was_charged_fee=$11, was_vehicle_damaged=$12, was_involved_in_accident=$13,
	          damage_level=$14, dirtiness_level=$15, eligibility_delta=$16, payment_token=$17,
	          pick_up_staff=$18, drop_off_staff=$19, updated_by=$20, cancelled_by=$21,
	          version=version+1, updated_at=$22
	          WHERE id=$1 AND status=$2
	          RETURNING version`
	err := r.db.QueryRowContext(ctx, query, next.ID, expected,
		next.Status, next.PlannedPickUpDate, next.ActualPickUpDate, next.PlannedDropOffDate,
		next.ActualDropOffDate, next.BufferedDropOffDate, next.TotalAmountCents,
		next.WasDeliveryLate, next.WasChargedFee, next.WasVehicleDamaged, next.WasInvolvedInAccident,
		next.DamageLevel, next.DirtinessLevel, next.EligibilityDelta, next.PaymentToken,
		next.PickUpStaff, next.DropOffStaff, next.UpdatedBy, next.CancelledBy,
		next.UpdatedAt).Scan(&next.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if isCheckViolation(err) {
		return false, fmt.Errorf("%w: reservation %d: %v", domain.ErrIntegrity, next.ID, err)
	}
	if err != nil {
		return false, fmt.Errorf("update reservation %d: %w", next.ID, err)
	}
	return true, nil
}

func (r *reservationRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error) {
	query := `SELECT id FROM reservations WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, domain.ReservationStatusPending, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *reservationRepository) ListByCustomer(ctx context.Context, username string, status domain.ReservationStatus, page, pageSize int32) ([]domain.Reservation, int32, error) {
	offset := (page - 1) * pageSize
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_username = $1`

	args := []interface{}{username}
	argIdx := 2
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
		argIdx++
	}

	var count int32
	countQuery := "SELECT count(*) FROM (" + query + ") as sub"
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		reservations = append(reservations, *res)
	}
	return reservations, count, rows.Err()
}
