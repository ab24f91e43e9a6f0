package domain

import "fmt"

// LedgerEffect is the side effect a transition has on the vehicle ledger.
type LedgerEffect int

const (
	LedgerNone LedgerEffect = iota
	LedgerRelease
	LedgerPromote
	LedgerReschedule
)

func (e LedgerEffect) String() string {
	switch e {
	case LedgerRelease:
		return "release"
	case LedgerPromote:
		return "promote"
	case LedgerReschedule:
		return "reschedule"
	}
	return "none"
}

// Transition is a (from, to) status pair.
type Transition struct {
	From ReservationStatus
	To   ReservationStatus
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s", t.From, t.To)
}

// TransitionRule describes what an allowed transition emits and does to the ledger.
type TransitionRule struct {
	Event  EventType
	Ledger LedgerEffect
}

// Creation is not a transition; it always emits CREATED and places a hold.
var transitions = map[Transition]TransitionRule{
	{ReservationStatusPending, ReservationStatusConfirmed}:   {EventConfirmed, LedgerNone},
	{ReservationStatusPending, ReservationStatusExpired}:     {EventExpired, LedgerRelease},
	{ReservationStatusPending, ReservationStatusCancelled}:   {EventDeleted, LedgerRelease},
	{ReservationStatusPending, ReservationStatusPending}:     {EventUpdated, LedgerReschedule},
	{ReservationStatusConfirmed, ReservationStatusPickedUp}:  {EventPickedUp, LedgerPromote},
	{ReservationStatusConfirmed, ReservationStatusCancelled}: {EventUpdated, LedgerRelease},
	{ReservationStatusConfirmed, ReservationStatusConfirmed}: {EventUpdated, LedgerReschedule},
	{ReservationStatusPickedUp, ReservationStatusDelivered}:  {EventFinalized, LedgerRelease},
}

// LookupTransition returns the rule for from->to or ErrInvalidTransition.
func LookupTransition(from, to ReservationStatus) (TransitionRule, error) {
	rule, ok := transitions[Transition{From: from, To: to}]
	if !ok {
		return TransitionRule{}, fmt.Errorf("%w: %s", ErrInvalidTransition, Transition{From: from, To: to})
	}
	return rule, nil
}

// AllowedFrom lists the statuses reachable from s, self transitions included.
func AllowedFrom(s ReservationStatus) []ReservationStatus {
	var out []ReservationStatus
	for t := range transitions {
		if t.From == s {
			out = append(out, t.To)
		}
	}
	return out
}
