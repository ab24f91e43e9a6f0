package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/eligibility"
	"rentacar-backend/internal/ledger"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/pricing"
	"rentacar-backend/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Reservations drives the reservation lifecycle. Each operation is one
// transaction: a guarded status update, its ledger effect and its event.
type Reservations struct {
	tx        repository.Transactor
	customers repository.CustomerDirectory
	vehicles  repository.VehicleDirectory
	ledger    *ledger.Ledger
	scorer    *eligibility.Scorer
	refunds   Refunder
	validate  *validator.Validate
	cfg       config.ReservationConfig
	now       func() time.Time
}

func NewReservationService(
	tx repository.Transactor,
	customers repository.CustomerDirectory,
	vehicles repository.VehicleDirectory,
	l *ledger.Ledger,
	scorer *eligibility.Scorer,
	refunds Refunder,
	validate *validator.Validate,
	cfg config.ReservationConfig,
) *Reservations {
	return &Reservations{
		tx:        tx,
		customers: customers,
		vehicles:  vehicles,
		ledger:    l,
		scorer:    scorer,
		refunds:   refunds,
		validate:  validate,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *Reservations) SetClock(now func() time.Time) {
	s.now = now
}

// step is one guarded status change.
type step struct {
	op string
	to domain.ReservationStatus
	// self keeps the current status (reschedule).
	self bool
	// done reports that cur already reflects the change; nothing is written.
	done func(cur *domain.Reservation) bool
	// prepare stages column values on next before the conditional update.
	prepare func(ctx context.Context, cur, next *domain.Reservation) error
	// apply runs after the update inside the same transaction.
	apply func(ctx context.Context, repos repository.Repos, next *domain.Reservation) error
}

type applied struct {
	res     *domain.Reservation
	from    domain.ReservationStatus
	changed bool
}

func (s *Reservations) transition(ctx context.Context, id int64, st step) (applied, error) {
	var out applied
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		out, err = s.transitionTx(ctx, repos, id, st)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrIntegrity) {
			logger.Integrity(ctx, "Reservation transition violated an invariant", "reservation_id", id, "operation", st.op, "error", err)
		}
		return applied{}, err
	}
	out.log(ctx, st.op)
	return out, nil
}

func (a applied) log(ctx context.Context, op string) {
	if a.changed {
		logger.Transition(ctx, a.res.ID, string(a.from), string(a.res.Status), "operation", op, "version", a.res.Version)
	}
}

// transitionTx reads the reservation, checks the transition table, writes the
// new state with a status-guarded update, then applies the ledger effect and
// appends the event. It must run inside a transaction.
func (s *Reservations) transitionTx(ctx context.Context, repos repository.Repos, id int64, st step) (applied, error) {
	cur, err := repos.Reservations().GetByID(ctx, id)
	if err != nil {
		return applied{}, err
	}
	if st.done != nil && st.done(cur) {
		return applied{res: cur, from: cur.Status}, nil
	}

	to := st.to
	if st.self {
		to = cur.Status
	}
	rule, err := domain.LookupTransition(cur.Status, to)
	if err != nil {
		return applied{}, fmt.Errorf("reservation %d: %w", id, err)
	}

	now := s.now()
	next := cur.Clone()
	next.Status = to
	next.UpdatedAt = now
	if st.prepare != nil {
		if err := st.prepare(ctx, cur, next); err != nil {
			return applied{}, err
		}
	}
	if err := next.CheckInvariants(); err != nil {
		return applied{}, err
	}

	ok, err := repos.Reservations().CompareAndSwap(ctx, cur.Status, next)
	if err != nil {
		return applied{}, err
	}
	if !ok {
		// Nothing matched: the row is gone or moved on since it was read.
		latest, err := repos.Reservations().GetByID(ctx, id)
		if err != nil {
			return applied{}, err
		}
		if st.done != nil && st.done(latest) {
			return applied{res: latest, from: latest.Status}, nil
		}
		return applied{}, fmt.Errorf("%w: reservation %d is %s", domain.ErrStaleState, id, latest.Status)
	}

	if err := s.applyLedger(ctx, repos.Occupancy(), rule.Ledger, next); err != nil {
		return applied{}, err
	}
	if st.apply != nil {
		if err := st.apply(ctx, repos, next); err != nil {
			return applied{}, err
		}
	}
	if err := appendEvent(ctx, repos, rule.Event, next, now); err != nil {
		return applied{}, err
	}
	return applied{res: next, from: cur.Status, changed: true}, nil
}

func (s *Reservations) applyLedger(ctx context.Context, occ repository.OccupancyRepository, effect domain.LedgerEffect, r *domain.Reservation) error {
	switch effect {
	case domain.LedgerRelease:
		return s.ledger.Release(ctx, occ, r.VehicleID, r.ID)
	case domain.LedgerPromote:
		return s.ledger.Promote(ctx, occ, r.ID)
	case domain.LedgerReschedule:
		return s.ledger.Reschedule(ctx, occ, r.VehicleID, r.ID, r.PlannedPickUpDate, r.OccupiedUntil())
	}
	return nil
}

func appendEvent(ctx context.Context, repos repository.Repos, t domain.EventType, r *domain.Reservation, at time.Time) error {
	e, err := domain.NewEvent(t, r, at)
	if err != nil {
		return err
	}
	return repos.Events().Append(ctx, e)
}

func (s *Reservations) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func checkWindow(w domain.Window, now time.Time) error {
	if !w.Valid() {
		return domain.ErrInvalidWindow
	}
	if w.PickUp.Before(now) {
		return domain.ErrPickUpInPast
	}
	return nil
}

func requireActor(actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: acting user is required", domain.ErrValidation)
	}
	return nil
}

func (s *Reservations) Create(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error) {
	logger.EnterMethod("ReservationService.Create", "customer", in.CustomerUsername, "vehicle_id", in.VehicleID)
	if err := s.check(in); err != nil {
		logger.ExitMethodWithError("ReservationService.Create", err)
		return nil, err
	}
	res, err := s.book(ctx, in.CustomerUsername, in.VehicleID, domain.Window{PickUp: in.PickUp, DropOff: in.DropOff}, in.Actor, nil, domain.EventCreated)
	if err != nil {
		logger.ExitMethodWithError("ReservationService.Create", err)
		return nil, err
	}
	logger.ExitMethod("ReservationService.Create", "reservation_id", res.ID)
	return res, nil
}

// book checks the booking preconditions, inserts a PENDING reservation and
// holds the vehicle for it.
func (s *Reservations) book(ctx context.Context, username string, vehicleID int64, w domain.Window, actor string, copiedFrom *int64, evt domain.EventType) (*domain.Reservation, error) {
	now := s.now()
	if err := checkWindow(w, now); err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomer(ctx, username)
	if err != nil {
		return nil, err
	}
	if customer.Role != domain.RoleCustomer {
		return nil, domain.ErrNotCustomer
	}
	if customer.EligibilityScore < s.cfg.MinEligibility {
		return nil, fmt.Errorf("%w: score %d, minimum %d", domain.ErrInsufficientEligible, customer.EligibilityScore, s.cfg.MinEligibility)
	}

	vehicle, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.Status != domain.VehicleStatusAvailable {
		return nil, fmt.Errorf("%w: vehicle %d is %s", domain.ErrVehicleUnavailable, vehicleID, vehicle.Status)
	}
	total, err := pricing.Calculate(w, vehicle.Model)
	if err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		VehicleID:           vehicleID,
		CustomerUsername:    username,
		Status:              domain.ReservationStatusPending,
		CreatedAt:           now,
		PlannedPickUpDate:   w.PickUp,
		PlannedDropOffDate:  w.DropOff,
		BufferedDropOffDate: w.DropOff.Add(s.cfg.DropOffBuffer),
		TotalAmountCents:    total,
		CopiedFrom:          copiedFrom,
	}
	if actor != "" {
		res.UpdatedBy = &actor
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := repos.Reservations().Create(ctx, res); err != nil {
			return err
		}
		if err := s.ledger.Hold(ctx, repos.Occupancy(), vehicleID, res.ID, res.PlannedPickUpDate, res.OccupiedUntil()); err != nil {
			return err
		}
		return appendEvent(ctx, repos, evt, res, now)
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Reservation created", "reservation_id", res.ID, "vehicle_id", vehicleID, "customer", username, "total_cents", total)
	return res, nil
}

// confirmStep moves PENDING to CONFIRMED under token. Repeating it with the
// same token is a no-op; a reservation already confirmed under another token
// fails with ErrAlreadyPaid.
func confirmStep(token string) step {
	return step{
		op: "confirm",
		to: domain.ReservationStatusConfirmed,
		done: func(cur *domain.Reservation) bool {
			return cur.Status == domain.ReservationStatusConfirmed && cur.PaymentToken != nil && *cur.PaymentToken == token
		},
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			if cur.Status == domain.ReservationStatusConfirmed {
				return fmt.Errorf("%w: reservation %d", domain.ErrAlreadyPaid, cur.ID)
			}
			next.PaymentToken = &token
			return nil
		},
	}
}

// ConfirmPayment records an acknowledged payment. Confirming again with the
// same token returns the reservation unchanged.
func (s *Reservations) ConfirmPayment(ctx context.Context, id int64, token string) (*domain.Reservation, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: payment token is required", domain.ErrValidation)
	}
	out, err := s.transition(ctx, id, confirmStep(token))
	if err != nil {
		return nil, err
	}
	return out.res, nil
}

func (s *Reservations) PickUp(ctx context.Context, id int64, staff string) (*domain.Reservation, error) {
	if err := requireActor(staff); err != nil {
		return nil, err
	}
	out, err := s.transition(ctx, id, step{
		op: "pickup",
		to: domain.ReservationStatusPickedUp,
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			at := next.UpdatedAt
			next.ActualPickUpDate = &at
			next.PickUpStaff = &staff
			next.UpdatedBy = &staff
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out.res, nil
}

// Finalize settles a returned vehicle. The eligibility delta is computed from
// the settlement and the vehicle's category and applied exactly once.
func (s *Reservations) Finalize(ctx context.Context, in FinalizeInput) (*domain.Reservation, error) {
	logger.EnterMethod("ReservationService.Finalize", "reservation_id", in.ReservationID)
	if err := s.check(in); err != nil {
		logger.ExitMethodWithError("ReservationService.Finalize", err)
		return nil, err
	}

	vehicle, err := s.vehicleOf(ctx, in.ReservationID)
	if err != nil {
		logger.ExitMethodWithError("ReservationService.Finalize", err)
		return nil, err
	}
	category := s.scorer.Categorize(vehicle.Model)

	out, err := s.transition(ctx, in.ReservationID, step{
		op: "finalize",
		to: domain.ReservationStatusDelivered,
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			if cur.ActualPickUpDate != nil && in.ActualDropOff.Before(*cur.ActualPickUpDate) {
				return fmt.Errorf("%w: drop-off before pick-up", domain.ErrValidation)
			}
			next.Settlement = domain.Settlement{
				WasDeliveryLate:       in.ActualDropOff.After(cur.BufferedDropOffDate),
				WasChargedFee:         in.WasChargedFee,
				WasVehicleDamaged:     in.WasVehicleDamaged,
				WasInvolvedInAccident: in.WasInvolvedInAccident,
				DamageLevel:           in.DamageLevel,
				DirtinessLevel:        in.DirtinessLevel,
			}
			delta := s.scorer.Compute(next.Settlement, category)
			drop := in.ActualDropOff
			next.ActualDropOffDate = &drop
			next.EligibilityDelta = &delta
			next.DropOffStaff = &in.Staff
			next.UpdatedBy = &in.Staff
			return nil
		},
		apply: func(ctx context.Context, repos repository.Repos, next *domain.Reservation) error {
			score, err := repos.Eligibility().Adjust(ctx, next.CustomerUsername, *next.EligibilityDelta, s.scorer.MinScore(), s.scorer.MaxScore())
			if err != nil {
				return fmt.Errorf("adjust eligibility: %w", err)
			}
			logger.InfoContext(ctx, "Eligibility adjusted", "customer", next.CustomerUsername, "delta", *next.EligibilityDelta, "score", score)
			return nil
		},
	})
	if err != nil {
		logger.ExitMethodWithError("ReservationService.Finalize", err)
		return nil, err
	}
	logger.ExitMethod("ReservationService.Finalize", "reservation_id", in.ReservationID)
	return out.res, nil
}

// Expire moves a PENDING reservation whose payment window has elapsed to
// EXPIRED. It reports false when the reservation has already moved on.
func (s *Reservations) Expire(ctx context.Context, id int64) (bool, error) {
	out, err := s.transition(ctx, id, step{
		op:   "expire",
		to:   domain.ReservationStatusExpired,
		done: func(cur *domain.Reservation) bool { return cur.Status != domain.ReservationStatusPending },
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			if !next.UpdatedAt.After(cur.CreatedAt.Add(s.cfg.PaymentWindow)) {
				return fmt.Errorf("%w: reservation %d", domain.ErrPaymentWindowOpen, cur.ID)
			}
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return out.changed, nil
}

// Cancel releases the vehicle. A confirmed reservation is refunded after the
// cancellation commits; refund failures are logged and leave it cancelled.
func (s *Reservations) Cancel(ctx context.Context, id int64, actor string) (*domain.Reservation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	out, err := s.transition(ctx, id, step{
		op: "cancel",
		to: domain.ReservationStatusCancelled,
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			next.CancelledBy = &actor
			next.UpdatedBy = &actor
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if out.from == domain.ReservationStatusConfirmed && out.res.PaymentToken != nil {
		s.refund(ctx, out.res.ID, *out.res.PaymentToken, out.res.TotalAmountCents, "reservation cancelled")
	}
	return out.res, nil
}

func (s *Reservations) refund(ctx context.Context, reservationID int64, token string, amountCents int64, reason string) {
	if s.refunds == nil {
		logger.WarnContext(ctx, "No refunder configured, refund skipped", "reservation_id", reservationID)
		return
	}
	logger.ExternalServiceCall("payment-gateway", "Refund", "reservation_id", reservationID, "amount_cents", amountCents)
	err := s.refunds.Refund(ctx, token, amountCents, reason)
	logger.ExternalServiceResult("payment-gateway", "Refund", err, "reservation_id", reservationID)
}

// Reschedule moves the planned window of a PENDING or CONFIRMED reservation
// and reprices it. The price is locked once a payment is in flight or
// captured: a window change that alters it fails with ErrAmountLocked.
func (s *Reservations) Reschedule(ctx context.Context, id int64, w domain.Window, actor string) (*domain.Reservation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := checkWindow(w, s.now()); err != nil {
		return nil, err
	}
	vehicle, err := s.vehicleOf(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := pricing.Calculate(w, vehicle.Model)
	if err != nil {
		return nil, err
	}

	var repriced bool
	out, err := s.transition(ctx, id, step{
		op:   "reschedule",
		self: true,
		prepare: func(ctx context.Context, cur, next *domain.Reservation) error {
			repriced = total != cur.TotalAmountCents
			if repriced && cur.Status == domain.ReservationStatusConfirmed {
				return fmt.Errorf("%w: reservation %d is paid %d, new window costs %d", domain.ErrAmountLocked, id, cur.TotalAmountCents, total)
			}
			next.PlannedPickUpDate = w.PickUp
			next.PlannedDropOffDate = w.DropOff
			next.BufferedDropOffDate = w.DropOff.Add(s.cfg.DropOffBuffer)
			next.TotalAmountCents = total
			next.UpdatedBy = &actor
			return nil
		},
		apply: func(ctx context.Context, repos repository.Repos, next *domain.Reservation) error {
			if !repriced {
				return nil
			}
			outstanding, err := repos.Payments().Outstanding(ctx, id)
			if err != nil {
				return err
			}
			if outstanding {
				return fmt.Errorf("%w: reservation %d has a payment in flight", domain.ErrAmountLocked, id)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out.res, nil
}

// vehicleOf resolves a reservation's vehicle before any transaction is opened.
// A reservation never changes vehicle, so the lookup stays valid inside it.
func (s *Reservations) vehicleOf(ctx context.Context, id int64) (*domain.Vehicle, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.vehicles.GetVehicle(ctx, res.VehicleID)
}

// Copy books the source reservation's customer and vehicle again for a new
// window.
func (s *Reservations) Copy(ctx context.Context, sourceID int64, w domain.Window, actor string) (*domain.Reservation, error) {
	src, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return s.book(ctx, src.CustomerUsername, src.VehicleID, w, actor, &src.ID, domain.EventCopied)
}

func (s *Reservations) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		res, err = repos.Reservations().GetByID(ctx, id)
		return err
	})
	return res, err
}

func (s *Reservations) ListByCustomer(ctx context.Context, username string, status domain.ReservationStatus, page, pageSize int32) ([]domain.Reservation, int32, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var (
		list  []domain.Reservation
		total int32
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		list, total, err = repos.Reservations().ListByCustomer(ctx, username, status, page, pageSize)
		return err
	})
	return list, total, err
}

func (s *Reservations) VehicleOccupancy(ctx context.Context, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error) {
	var rows []domain.Occupancy
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		rows, err = s.ledger.Occupancy(ctx, repos.Occupancy(), vehicleID, from, to)
		return err
	})
	return rows, err
}

// InitializeEligibility sets a newly onboarded customer's score to the
// configured initial value.
func (s *Reservations) InitializeEligibility(ctx context.Context, username string) (int, error) {
	if _, err := s.customers.GetCustomer(ctx, username); err != nil {
		return 0, err
	}
	score := s.scorer.InitialScore()
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Eligibility().Initialize(ctx, username, score)
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}
