package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusPickedUp  ReservationStatus = "PICKED_UP"
	ReservationStatusDelivered ReservationStatus = "DELIVERED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// IsTerminal reports whether no transition can leave the status.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusDelivered, ReservationStatusExpired, ReservationStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusPickedUp,
		ReservationStatusDelivered, ReservationStatusExpired, ReservationStatusCancelled:
		return true
	}
	return false
}

// MaxSettlementLevel is the upper bound of the damage and dirtiness ordinals.
const MaxSettlementLevel = 5

// Settlement carries the outcome signals recorded at drop-off.
type Settlement struct {
	WasDeliveryLate       bool `json:"was_delivery_late"`
	WasChargedFee         bool `json:"was_charged_fee"`
	WasVehicleDamaged     bool `json:"was_vehicle_damaged"`
	WasInvolvedInAccident bool `json:"was_involved_in_accident"`
	DamageLevel           int  `json:"damage_level" validate:"gte=0,lte=5"`
	DirtinessLevel        int  `json:"dirtiness_level" validate:"gte=0,lte=5"`
}

// Clean reports whether the settlement carries no negative signal.
func (s Settlement) Clean() bool {
	return !s.WasDeliveryLate && !s.WasChargedFee && !s.WasVehicleDamaged && !s.WasInvolvedInAccident &&
		s.DamageLevel == 0 && s.DirtinessLevel == 0
}

// Window is a planned rental period. DropOff is strictly after PickUp.
type Window struct {
	PickUp  time.Time `json:"pick_up"`
	DropOff time.Time `json:"drop_off"`
}

func (w Window) Valid() bool {
	return !w.PickUp.IsZero() && w.DropOff.After(w.PickUp)
}

type Reservation struct {
	ID               int64             `json:"id"`
	VehicleID        int64             `json:"vehicle_id"`
	CustomerUsername string            `json:"customer_username"`
	Status           ReservationStatus `json:"status"`

	CreatedAt           time.Time  `json:"created_at"`
	PlannedPickUpDate   time.Time  `json:"planned_pick_up_date"`
	ActualPickUpDate    *time.Time `json:"actual_pick_up_date,omitempty"`
	PlannedDropOffDate  time.Time  `json:"planned_drop_off_date"`
	ActualDropOffDate   *time.Time `json:"actual_drop_off_date,omitempty"`
	BufferedDropOffDate time.Time  `json:"buffered_drop_off_date"`

	TotalAmountCents int64 `json:"total_amount_cents"`
	Settlement       `json:"settlement"`
	// Set once, at DELIVERED.
	EligibilityDelta *int    `json:"eligibility_delta,omitempty"`
	PaymentToken     *string `json:"-"`

	PickUpStaff  *string `json:"pick_up_staff,omitempty"`
	DropOffStaff *string `json:"drop_off_staff,omitempty"`
	UpdatedBy    *string `json:"updated_by,omitempty"`
	CancelledBy  *string `json:"cancelled_by,omitempty"`
	CopiedFrom   *int64  `json:"copied_from,omitempty"`

	Version   int32     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns the planned rental window.
func (r *Reservation) Window() Window {
	return Window{PickUp: r.PlannedPickUpDate, DropOff: r.PlannedDropOffDate}
}

// OccupiedUntil is the exclusive end of the vehicle occupancy interval.
func (r *Reservation) OccupiedUntil() time.Time {
	if r.BufferedDropOffDate.After(r.PlannedDropOffDate) {
		return r.BufferedDropOffDate
	}
	return r.PlannedDropOffDate
}

// CheckInvariants verifies the timestamp/status coupling of a reservation.
func (r *Reservation) CheckInvariants() error {
	if !r.PlannedDropOffDate.After(r.PlannedPickUpDate) {
		return ErrInvalidWindow
	}
	pickedUp := r.Status == ReservationStatusPickedUp || r.Status == ReservationStatusDelivered
	if (r.ActualPickUpDate != nil) != pickedUp {
		return ErrIntegrityPickUpDate
	}
	if (r.ActualDropOffDate != nil) != (r.Status == ReservationStatusDelivered) {
		return ErrIntegrityDropOffDate
	}
	return nil
}

// Clone returns a deep copy so callers can stage a transition without
// touching the stored value.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.ActualPickUpDate = cloneTime(r.ActualPickUpDate)
	c.ActualDropOffDate = cloneTime(r.ActualDropOffDate)
	c.EligibilityDelta = cloneInt(r.EligibilityDelta)
	c.PaymentToken = cloneString(r.PaymentToken)
	c.PickUpStaff = cloneString(r.PickUpStaff)
	c.DropOffStaff = cloneString(r.DropOffStaff)
	c.UpdatedBy = cloneString(r.UpdatedBy)
	c.CancelledBy = cloneString(r.CancelledBy)
	if r.CopiedFrom != nil {
		v := *r.CopiedFrom
		c.CopiedFrom = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
