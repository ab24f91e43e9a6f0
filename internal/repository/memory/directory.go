package memory

import (
	"context"
	"time"

	"rentacar-backend/internal/domain"
)

func (s *Store) GetCustomer(ctx context.Context, username string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[username]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	out := *c
	out.EligibilityScore = s.st.scores[username]
	return &out, nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, domain.ErrVehicleNotFound
	}
	out := *v
	return &out, nil
}

func (s *Store) Open(ctx context.Context, ts *domain.TrackingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ts.ReservationID]; ok {
		return nil
	}
	s.sessions[ts.ReservationID] = &domain.TrackingSession{
		ReservationID: ts.ReservationID,
		VehicleID:     ts.VehicleID,
		OpenedAt:      ts.OpenedAt,
		Points:        []domain.TrackingPoint{},
	}
	return nil
}

func (s *Store) Close(ctx context.Context, reservationID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[reservationID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if ts.ClosedAt == nil {
		ts.ClosedAt = &at
	}
	return nil
}

func (s *Store) AppendPoint(ctx context.Context, reservationID int64, p *domain.TrackingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[reservationID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if !ts.Open() {
		return domain.ErrSessionClosed
	}
	p.Seq = len(ts.Points) + 1
	ts.Points = append(ts.Points, *p)
	return nil
}

func (s *Store) Get(ctx context.Context, reservationID int64) (*domain.TrackingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sessions[reservationID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *ts
	out.Points = append([]domain.TrackingPoint{}, ts.Points...)
	return &out, nil
}
