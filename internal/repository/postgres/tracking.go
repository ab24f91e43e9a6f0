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

type trackingRepository struct {
	db DBTX
}

func NewTrackingRepository(db DBTX) repository.TrackingRepository {
	return &trackingRepository{db: db}
}

func (r *trackingRepository) Open(ctx context.Context, s *domain.TrackingSession) error {
	query := `INSERT INTO tracking_sessions (reservation_id, vehicle_id, opened_at)
	          VALUES ($1, $2, $3) ON CONFLICT (reservation_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, s.ReservationID, s.VehicleID, s.OpenedAt)
	return classify(err, "open tracking session")
}

func (r *trackingRepository) Close(ctx context.Context, reservationID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tracking_sessions SET closed_at = $2 WHERE reservation_id = $1 AND closed_at IS NULL`, reservationID, at)
	ok, err := affected(res, err)
	if err != nil || ok {
		return classify(err, "close tracking session")
	}
	// Already closed is fine; a missing session is not.
	_, err = r.closedAt(ctx, reservationID)
	return err
}

func (r *trackingRepository) AppendPoint(ctx context.Context, reservationID int64, p *domain.TrackingPoint) error {
	query := `INSERT INTO tracking_points (reservation_id, seq, latitude, longitude, recorded_at)
	          SELECT s.reservation_id,
	                 COALESCE((SELECT MAX(seq) FROM tracking_points WHERE reservation_id = s.reservation_id), 0) + 1,
	                 $2, $3, $4
	          FROM tracking_sessions s
	          WHERE s.reservation_id = $1 AND s.closed_at IS NULL
	          RETURNING seq`
	err := r.db.QueryRowContext(ctx, query, reservationID, p.Latitude, p.Longitude, p.RecordedAt).Scan(&p.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		closed, lookupErr := r.closedAt(ctx, reservationID)
		if lookupErr != nil {
			return lookupErr
		}
		if closed != nil {
			return domain.ErrSessionClosed
		}
		return domain.ErrStaleState
	}
	if isUniqueViolation(err) {
		return domain.ErrStaleState
	}
	return classify(err, "append tracking point")
}

func (r *trackingRepository) Get(ctx context.Context, reservationID int64) (*domain.TrackingSession, error) {
	s := &domain.TrackingSession{}
	query := `SELECT reservation_id, vehicle_id, opened_at, closed_at FROM tracking_sessions WHERE reservation_id = $1`
	err := r.db.QueryRowContext(ctx, query, reservationID).Scan(&s.ReservationID, &s.VehicleID, &s.OpenedAt, &s.ClosedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, classify(err, fmt.Sprintf("get tracking session %d", reservationID))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT seq, latitude, longitude, recorded_at FROM tracking_points
	                                     WHERE reservation_id = $1 ORDER BY seq`, reservationID)
	if err != nil {
		return nil, classify(err, "list tracking points")
	}
	defer rows.Close()

	s.Points = []domain.TrackingPoint{}
	for rows.Next() {
		var p domain.TrackingPoint
		if err := rows.Scan(&p.Seq, &p.Latitude, &p.Longitude, &p.RecordedAt); err != nil {
			return nil, classify(err, "scan tracking point")
		}
		s.Points = append(s.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list tracking points")
	}
	return s, nil
}

func (r *trackingRepository) closedAt(ctx context.Context, reservationID int64) (*time.Time, error) {
	var closed *time.Time
	err := r.db.QueryRowContext(ctx, `SELECT closed_at FROM tracking_sessions WHERE reservation_id = $1`, reservationID).Scan(&closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return closed, classify(err, "look up tracking session")
}
