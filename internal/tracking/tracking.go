// Package tracking keeps the GPS trail of a rental. A session is opened when
// the vehicle is picked up and closed when the reservation is finalized.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

type Service struct {
	log      *slog.Logger
	repo     repository.TrackingRepository
	validate *validator.Validate
}

func NewService(repo repository.TrackingRepository, validate *validator.Validate) *Service {
	return &Service{
		log:      logger.WithComponent("tracking"),
		repo:     repo,
		validate: validate,
	}
}

// RecordPoint appends p to the open session of the reservation and returns it
// with its sequence number.
func (s *Service) RecordPoint(ctx context.Context, reservationID int64, p domain.TrackingPoint) (*domain.TrackingPoint, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.repo.AppendPoint(ctx, reservationID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, reservationID int64) (*domain.TrackingSession, error) {
	return s.repo.Get(ctx, reservationID)
}

// Handle opens or closes sessions from lifecycle events. Other event types
// are ignored.
func (s *Service) Handle(ctx context.Context, e domain.Event) error {
	switch e.Type {
	case domain.EventPickedUp:
		res, err := e.Snapshot()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		openedAt := e.OccurredAt
		if res.ActualPickUpDate != nil {
			openedAt = *res.ActualPickUpDate
		}
		if err := s.repo.Open(ctx, &domain.TrackingSession{
			ReservationID: e.ReservationID,
			VehicleID:     res.VehicleID,
			OpenedAt:      openedAt,
		}); err != nil {
			return err
		}
		s.log.InfoContext(ctx, "tracking session opened", "reservation_id", e.ReservationID, "vehicle_id", res.VehicleID)

	case domain.EventFinalized:
		closedAt := e.OccurredAt
		if res, err := e.Snapshot(); err == nil && res.ActualDropOffDate != nil {
			closedAt = *res.ActualDropOffDate
		}
		err := s.repo.Close(ctx, e.ReservationID, closedAt)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Picked up before tracking was deployed, or the PICKED_UP event was lost.
			s.log.WarnContext(ctx, "no tracking session to close", "reservation_id", e.ReservationID)
			return nil
		}
		if err != nil {
			return err
		}
		s.log.InfoContext(ctx, "tracking session closed", "reservation_id", e.ReservationID)
	}
	return nil
}
