package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentOutcome string

const (
	PaymentOutcomePending   PaymentOutcome = "PENDING"
	PaymentOutcomePaid      PaymentOutcome = "PAID"
	PaymentOutcomeFailed    PaymentOutcome = "FAILED"
	PaymentOutcomeCancelled PaymentOutcome = "CANCELLED"
)

// Terminal reports whether the gateway will not change the outcome again.
func (o PaymentOutcome) Terminal() bool {
	return o == PaymentOutcomePaid || o == PaymentOutcomeFailed || o == PaymentOutcomeCancelled
}

type DeliveryKind string

const (
	DeliveryKindPending      DeliveryKind = "PENDING"
	DeliveryKindSubmitted    DeliveryKind = "SUBMITTED"
	DeliveryKindAcknowledged DeliveryKind = "ACKNOWLEDGED"
	DeliveryKindAbandoned    DeliveryKind = "ABANDONED"
)

// DeliveryState is the closed set of delivery states of a payment intent.
// Only the types in this file implement it.
type DeliveryState interface {
	Kind() DeliveryKind
	Terminal() bool
	sealed()
}

// DeliveryPending: written, not yet handed to the gateway.
type DeliveryPending struct{}

// DeliverySubmitted: the gateway accepted the intent; outcome unknown.
type DeliverySubmitted struct {
	PaymentID string
}

// DeliveryAcknowledged: the gateway reported a terminal outcome.
type DeliveryAcknowledged struct {
	PaymentID string
	Outcome   PaymentOutcome
	Token     string
	PayerID   string
}

// DeliveryAbandoned: retries exhausted without an acknowledgment. PaymentID
// is kept when the gateway had accepted the intent, since it may still report
// an outcome for it.
type DeliveryAbandoned struct {
	PaymentID string
	Reason    string
}

func (DeliveryPending) Kind() DeliveryKind      { return DeliveryKindPending }
func (DeliverySubmitted) Kind() DeliveryKind    { return DeliveryKindSubmitted }
func (DeliveryAcknowledged) Kind() DeliveryKind { return DeliveryKindAcknowledged }
func (DeliveryAbandoned) Kind() DeliveryKind    { return DeliveryKindAbandoned }

func (DeliveryPending) Terminal() bool      { return false }
func (DeliverySubmitted) Terminal() bool    { return false }
func (DeliveryAcknowledged) Terminal() bool { return true }
func (DeliveryAbandoned) Terminal() bool    { return true }

func (DeliveryPending) sealed()      {}
func (DeliverySubmitted) sealed()    {}
func (DeliveryAcknowledged) sealed() {}
func (DeliveryAbandoned) sealed()    {}

// PaymentRecord is the durable payment-confirmation intent. The intent fields
// are written once; only the delivery bookkeeping moves.
type PaymentRecord struct {
	ID            uuid.UUID `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	AmountCents   int64     `json:"amount_cents"`
	Description   string    `json:"description"`
	Customer      string    `json:"customer"`
	CreatedAt     time.Time `json:"created_at"`

	Delivery      DeliveryState `json:"-"`
	Attempts      int           `json:"attempts"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	LeaseUntil    *time.Time    `json:"-"`
	LastError     *string       `json:"last_error,omitempty"`
}

// PaymentID returns the gateway id once the intent has been submitted.
func (p *PaymentRecord) PaymentID() string {
	switch d := p.Delivery.(type) {
	case DeliverySubmitted:
		return d.PaymentID
	case DeliveryAcknowledged:
		return d.PaymentID
	case DeliveryAbandoned:
		return d.PaymentID
	}
	return ""
}

// PaymentAck is an acknowledgment received from the gateway.
type PaymentAck struct {
	PaymentID string         `json:"payment_id" validate:"required"`
	Outcome   PaymentOutcome `json:"outcome" validate:"required,oneof=PAID FAILED CANCELLED"`
	Token     string         `json:"token"`
	PayerID   string         `json:"payer_id"`
}
