package service_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/mock"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/eligibility"
	"rentacar-backend/internal/ledger"
	"rentacar-backend/internal/repository"
	"rentacar-backend/internal/repository/memory"
	"rentacar-backend/internal/service"
)

// MockRefunder
type MockRefunder struct {
	mock.Mock
}

func (m *MockRefunder) Refund(ctx context.Context, token string, amountCents int64, reason string) error {
	args := m.Called(ctx, token, amountCents, reason)
	return args.Error(0)
}

// MockVehicleDirectory
type MockVehicleDirectory struct {
	mock.Mock
}

func (m *MockVehicleDirectory) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vehicle), args.Error(1)
}

// countingTx reports how many transactions are open at a time.
type countingTx struct {
	repository.Transactor
	open atomic.Int32
}

func (c *countingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	c.open.Add(1)
	defer c.open.Add(-1)
	return c.Transactor.WithinTx(ctx, fn)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	store   *memory.Store
	svc     *service.Reservations
	pay     *service.Payments
	refunds *MockRefunder
	cfg     config.ReservationConfig
	now     time.Time
}

func newFixture() *fixture {
	f := &fixture{store: memory.NewStore(), refunds: new(MockRefunder), now: t0}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	f.store.PutCustomer(domain.Customer{Username: "alice", Role: domain.RoleCustomer, EligibilityScore: 50})
	f.store.PutCustomer(domain.Customer{Username: "carol", Role: domain.RoleCustomer, EligibilityScore: 10})
	f.store.PutCustomer(domain.Customer{Username: "dave", Role: domain.RoleCustomer, EligibilityScore: 100})
	f.store.PutCustomer(domain.Customer{Username: "bob", Role: domain.RoleStaff})
	f.store.PutVehicle(domain.Vehicle{ID: 7, Registration: "KA-01", Status: domain.VehicleStatusAvailable,
		Model: domain.CarModel{ID: 1, DailyRateCents: 5000, WeeklyRateCents: 30000, MonthlyRateCents: 100000}})
	f.store.PutVehicle(domain.Vehicle{ID: 8, Registration: "KA-02", Status: domain.VehicleStatusMaintenance,
		Model: domain.CarModel{ID: 2, DailyRateCents: 20000}})

	f.cfg = config.ReservationConfig{
		PaymentWindow:   15 * time.Minute,
		DropOffBuffer:   2 * time.Hour,
		MinEligibility:  20,
		ExpiryBatchSize: 100,
	}
	f.wire(f.store, f.store)
	return f
}

// wire builds the services over tx and vehicles; the store serves the rest.
func (f *fixture) wire(tx repository.Transactor, vehicles repository.VehicleDirectory) {
	clock := func() time.Time { return f.now }
	v := validator.New()
	f.svc = service.NewReservationService(tx, f.store, vehicles, ledger.New(clock),
		eligibility.NewScorer(config.EligibilityConfig{}), f.refunds, v, f.cfg)
	f.svc.SetClock(clock)
	f.pay = service.NewPaymentService(tx, f.svc, v)
}

func (f *fixture) create(customer string, from, to time.Time) (*domain.Reservation, error) {
	return f.svc.Create(context.Background(), service.CreateReservationInput{
		CustomerUsername: customer,
		VehicleID:        7,
		PickUp:           from,
		DropOff:          to,
	})
}

// submit requests a payment and records the gateway id the relay would get.
func (f *fixture) submit(reservationID int64, paymentID string) *domain.PaymentRecord {
	ctx := context.Background()
	rec, err := f.pay.RequestPayment(ctx, service.PaymentRequest{ReservationID: reservationID})
	if err != nil {
		panic(err)
	}
	err = f.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Payments().MarkSubmitted(ctx, rec.ID, paymentID, f.now)
	})
	if err != nil {
		panic(err)
	}
	return rec
}

// abandon gives up on rec the way the relay does once retries run out.
func (f *fixture) abandon(rec *domain.PaymentRecord) {
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repos) error {
		return repos.Payments().MarkAbandoned(ctx, rec.ID, "no acknowledgment")
	})
	if err != nil {
		panic(err)
	}
}

func (f *fixture) events(reservationID int64) []domain.EventType {
	var out []domain.EventType
	for _, e := range f.store.Events() {
		if e.ReservationID == reservationID {
			out = append(out, e.Type)
		}
	}
	return out
}
