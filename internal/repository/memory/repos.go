package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"rentacar-backend/internal/domain"
)

// The repos below run with Store.mu held by WithinTx.

type reservationRepo struct{ s *Store }

func (r reservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	st := r.s.st
	st.nextResID++
	res.ID = st.nextResID
	res.Version = 1
	res.UpdatedAt = res.CreatedAt
	st.reservations[res.ID] = res.Clone()
	return nil
}

func (r reservationRepo) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	res, ok := r.s.st.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return res.Clone(), nil
}

func (r reservationRepo) CompareAndSwap(ctx context.Context, expected domain.ReservationStatus, next *domain.Reservation) (bool, error) {
	cur, ok := r.s.st.reservations[next.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	stored := next.Clone()
	stored.CreatedAt = cur.CreatedAt
	stored.CustomerUsername = cur.CustomerUsername
	stored.VehicleID = cur.VehicleID
	stored.CopiedFrom = cur.CopiedFrom
	stored.Version = cur.Version + 1
	if err := stored.CheckInvariants(); err != nil {
		return false, err
	}
	r.s.st.reservations[next.ID] = stored
	next.Version = stored.Version
	return true, nil
}

func (r reservationRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error) {
	var stale []*domain.Reservation
	for _, res := range r.s.st.reservations {
		if res.Status == domain.ReservationStatusPending && res.CreatedAt.Before(createdBefore) {
			stale = append(stale, res)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]int64, 0, len(stale))
	for i, res := range stale {
		if i == limit {
			break
		}
		ids = append(ids, res.ID)
	}
	return ids, nil
}

func (r reservationRepo) ListByCustomer(ctx context.Context, username string, status domain.ReservationStatus, page, pageSize int32) ([]domain.Reservation, int32, error) {
	var all []domain.Reservation
	for _, res := range r.s.st.reservations {
		if res.CustomerUsername != username || (status != "" && res.Status != status) {
			continue
		}
		all = append(all, *res.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int32(len(all))
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

type occupancyRepo struct{ s *Store }

func (r occupancyRepo) LockVehicle(ctx context.Context, vehicleID int64) error {
	if _, ok := r.s.vehicles[vehicleID]; !ok {
		return domain.ErrVehicleNotFound
	}
	return nil
}

func (r occupancyRepo) ListOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]domain.Occupancy, error) {
	var out []domain.Occupancy
	for _, o := range r.s.st.occupancy {
		if o.VehicleID == vehicleID && o.Overlaps(from, to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// conflicts mirrors the exclusion constraint on vehicle_occupancy.
func (r occupancyRepo) conflicts(o domain.Occupancy) bool {
	for _, other := range r.s.st.occupancy {
		if other.ReservationID != o.ReservationID && other.VehicleID == o.VehicleID && other.Overlaps(o.StartsAt, o.EndsAt) {
			return true
		}
	}
	return false
}

func (r occupancyRepo) Insert(ctx context.Context, o *domain.Occupancy) error {
	if _, exists := r.s.st.occupancy[o.ReservationID]; exists || r.conflicts(*o) {
		return domain.ErrVehicleBooked
	}
	r.s.st.occupancy[o.ReservationID] = *o
	return nil
}

func (r occupancyRepo) UpdateInterval(ctx context.Context, reservationID int64, from, to time.Time) (bool, error) {
	o, ok := r.s.st.occupancy[reservationID]
	if !ok {
		return false, nil
	}
	o.StartsAt, o.EndsAt = from, to
	if r.conflicts(o) {
		return false, domain.ErrVehicleBooked
	}
	r.s.st.occupancy[reservationID] = o
	return true, nil
}

func (r occupancyRepo) SetState(ctx context.Context, reservationID int64, from, to domain.OccupancyState) (bool, error) {
	o, ok := r.s.st.occupancy[reservationID]
	if !ok || o.State != from {
		return false, nil
	}
	o.State = to
	r.s.st.occupancy[reservationID] = o
	return true, nil
}

func (r occupancyRepo) Delete(ctx context.Context, vehicleID, reservationID int64) (bool, error) {
	o, ok := r.s.st.occupancy[reservationID]
	if !ok || o.VehicleID != vehicleID {
		return false, nil
	}
	delete(r.s.st.occupancy, reservationID)
	return true, nil
}

type eligibilityRepo struct{ s *Store }

func (r eligibilityRepo) Adjust(ctx context.Context, username string, delta, floor, ceiling int) (int, error) {
	score, ok := r.s.st.scores[username]
	if !ok {
		return 0, domain.ErrCustomerNotFound
	}
	score += delta
	if score < floor {
		score = floor
	}
	if score > ceiling {
		score = ceiling
	}
	r.s.st.scores[username] = score
	return score, nil
}

func (r eligibilityRepo) Initialize(ctx context.Context, username string, score int) error {
	if _, ok := r.s.customers[username]; !ok {
		return domain.ErrCustomerNotFound
	}
	r.s.st.scores[username] = score
	return nil
}

type eventRepo struct{ s *Store }

func (r eventRepo) Append(ctx context.Context, e *domain.Event) error {
	r.s.st.nextEventID++
	e.ID = r.s.st.nextEventID
	r.s.st.events = append(r.s.st.events, *e)
	return nil
}

func (r eventRepo) ClaimBatch(ctx context.Context, relayID string, limit int, lease time.Duration) ([]domain.Event, error) {
	now := r.s.now()
	seen := map[int64]bool{}
	var out []domain.Event
	for _, e := range r.s.st.events {
		if e.PublishedAt != nil || seen[e.ReservationID] {
			continue
		}
		seen[e.ReservationID] = true
		if until, leased := r.s.st.eventLeases[e.ID]; leased && until.After(now) {
			continue
		}
		if len(out) == limit {
			break
		}
		r.s.st.eventLeases[e.ID] = now.Add(lease)
		out = append(out, e)
	}
	return out, nil
}

func (r eventRepo) MarkPublished(ctx context.Context, ids []int64) error {
	now := r.s.now()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for i := range r.s.st.events {
		if want[r.s.st.events[i].ID] {
			r.s.st.events[i].PublishedAt = &now
			delete(r.s.st.eventLeases, r.s.st.events[i].ID)
		}
	}
	return nil
}

func (r eventRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	for i := range r.s.st.events {
		if r.s.st.events[i].ID == id {
			r.s.st.events[i].Attempts++
			msg := errMsg
			r.s.st.events[i].LastError = &msg
		}
	}
	return nil
}

func (r eventRepo) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	kept := r.s.st.events[:0:0]
	var n int64
	for _, e := range r.s.st.events {
		if e.PublishedAt != nil && e.PublishedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.st.events = kept
	return n, nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Insert(ctx context.Context, p *domain.PaymentRecord) error {
	for _, other := range r.s.st.payments {
		if other.ReservationID == p.ReservationID && !other.Delivery.Terminal() {
			return domain.ErrActivePayment
		}
	}
	r.s.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentRecord, error) {
	for _, p := range r.s.st.payments {
		if p.PaymentID() == paymentID {
			rec := p
			return &rec, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r paymentRepo) Outstanding(ctx context.Context, reservationID int64) (bool, error) {
	for _, p := range r.s.st.payments {
		if p.ReservationID == reservationID && (!p.Delivery.Terminal() || p.PaymentID() != "") {
			return true, nil
		}
	}
	return false, nil
}

func (r paymentRepo) ClaimDue(ctx context.Context, relayID string, now time.Time, limit int, lease time.Duration) ([]domain.PaymentRecord, error) {
	var due []domain.PaymentRecord
	for _, p := range r.s.st.payments {
		if p.Delivery.Terminal() || p.NextAttemptAt.After(now) {
			continue
		}
		if p.LeaseUntil != nil && !p.LeaseUntil.Before(now) {
			continue
		}
		due = append(due, p)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	until := now.Add(lease)
	for i := range due {
		due[i].LeaseUntil = &until
		r.s.st.payments[due[i].ID] = due[i]
	}
	return due, nil
}

func (r paymentRepo) update(id uuid.UUID, fn func(p *domain.PaymentRecord) bool) error {
	p, ok := r.s.st.payments[id]
	if !ok || !fn(&p) {
		return domain.ErrPaymentNotFound
	}
	r.s.st.payments[id] = p
	return nil
}

func (r paymentRepo) MarkSubmitted(ctx context.Context, id uuid.UUID, paymentID string, next time.Time) error {
	return r.update(id, func(p *domain.PaymentRecord) bool {
		if p.Delivery.Kind() != domain.DeliveryKindPending {
			return false
		}
		p.Delivery = domain.DeliverySubmitted{PaymentID: paymentID}
		p.Attempts = 0
		p.NextAttemptAt = next
		p.LeaseUntil = nil
		p.LastError = nil
		return true
	})
}

func (r paymentRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errMsg string) error {
	return r.update(id, func(p *domain.PaymentRecord) bool {
		p.Attempts = attempts
		p.NextAttemptAt = next
		p.LastError = &errMsg
		p.LeaseUntil = nil
		return true
	})
}

func (r paymentRepo) MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error {
	return r.update(id, func(p *domain.PaymentRecord) bool {
		p.Delivery = domain.DeliveryAbandoned{PaymentID: p.PaymentID(), Reason: reason}
		p.LeaseUntil = nil
		return true
	})
}

func (r paymentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.s.st.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(r.s.st.payments, id)
	return nil
}
