package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
)

// Store is an in-process implementation of the repositories for local runs
// and tests. Transactions are serialized by one mutex and rolled back by
// restoring a snapshot taken at begin.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	st  *state

	customers map[string]*domain.Customer
	vehicles  map[int64]*domain.Vehicle
	sessions  map[int64]*domain.TrackingSession
}

type state struct {
	reservations map[int64]*domain.Reservation
	occupancy    map[int64]domain.Occupancy
	events       []domain.Event
	eventLeases  map[int64]time.Time
	payments     map[uuid.UUID]domain.PaymentRecord
	scores       map[string]int
	nextResID    int64
	nextEventID  int64
}

func NewStore() *Store {
	return &Store{
		now: time.Now,
		st: &state{
			reservations: map[int64]*domain.Reservation{},
			occupancy:    map[int64]domain.Occupancy{},
			eventLeases:  map[int64]time.Time{},
			payments:     map[uuid.UUID]domain.PaymentRecord{},
			scores:       map[string]int{},
		},
		customers: map[string]*domain.Customer{},
		vehicles:  map[int64]*domain.Vehicle{},
		sessions:  map[int64]*domain.TrackingSession{},
	}
}

// SetClock replaces the clock used for leases.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutCustomer seeds the customer directory.
func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.Username] = &c
	s.st.scores[c.Username] = c.EligibilityScore
}

// PutVehicle seeds the vehicle directory.
func (s *Store) PutVehicle(v domain.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = &v
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(ctx, txRepos{s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		reservations: make(map[int64]*domain.Reservation, len(st.reservations)),
		occupancy:    make(map[int64]domain.Occupancy, len(st.occupancy)),
		events:       append([]domain.Event(nil), st.events...),
		eventLeases:  make(map[int64]time.Time, len(st.eventLeases)),
		payments:     make(map[uuid.UUID]domain.PaymentRecord, len(st.payments)),
		scores:       make(map[string]int, len(st.scores)),
		nextResID:    st.nextResID,
		nextEventID:  st.nextEventID,
	}
	for k, v := range st.reservations {
		c.reservations[k] = v.Clone()
	}
	for k, v := range st.occupancy {
		c.occupancy[k] = v
	}
	for k, v := range st.eventLeases {
		c.eventLeases[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.scores {
		c.scores[k] = v
	}
	return c
}

// Score returns the stored eligibility score of a customer.
func (s *Store) Score(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.scores[username]
}

// Occupancies lists the ledger rows of a vehicle.
func (s *Store) Occupancies(vehicleID int64) []domain.Occupancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Occupancy
	for _, o := range s.st.occupancy {
		if o.VehicleID == vehicleID {
			out = append(out, o)
		}
	}
	return out
}

// Events returns a copy of every recorded lifecycle event.
func (s *Store) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.st.events...)
}

// Payments returns a copy of every outbox record.
func (s *Store) Payments() []domain.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PaymentRecord, 0, len(s.st.payments))
	for _, p := range s.st.payments {
		out = append(out, p)
	}
	return out
}

type txRepos struct {
	s *Store
}

func (r txRepos) Reservations() repository.ReservationRepository { return reservationRepo{r.s} }
func (r txRepos) Occupancy() repository.OccupancyRepository      { return occupancyRepo{r.s} }
func (r txRepos) Eligibility() repository.EligibilityRepository  { return eligibilityRepo{r.s} }
func (r txRepos) Events() repository.EventRepository             { return eventRepo{r.s} }
func (r txRepos) Payments() repository.PaymentOutboxRepository   { return paymentRepo{r.s} }
