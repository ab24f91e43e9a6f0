package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

// Payments writes payment confirmation intents and applies the gateway's
// acknowledgments. Delivery to the gateway happens in the outbox relay.
type Payments struct {
	tx       repository.Transactor
	res      *Reservations
	validate *validator.Validate
}

func NewPaymentService(tx repository.Transactor, res *Reservations, validate *validator.Validate) *Payments {
	return &Payments{tx: tx, res: res, validate: validate}
}

// RequestPayment records a pending intent for a PENDING reservation, always
// for the reservation total. It returns once the record is committed.
func (p *Payments) RequestPayment(ctx context.Context, in PaymentRequest) (*domain.PaymentRecord, error) {
	logger.EnterMethod("PaymentService.RequestPayment", "reservation_id", in.ReservationID)
	if err := p.validate.Struct(in); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrValidation, err)
		logger.ExitMethodWithError("PaymentService.RequestPayment", err)
		return nil, err
	}

	var rec *domain.PaymentRecord
	err := p.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		r, err := repos.Reservations().GetByID(ctx, in.ReservationID)
		if err != nil {
			return err
		}
		if r.Status != domain.ReservationStatusPending {
			return fmt.Errorf("%w: reservation %d is %s", domain.ErrInvalidTransition, r.ID, r.Status)
		}
		if in.AmountCents != 0 && in.AmountCents != r.TotalAmountCents {
			return fmt.Errorf("%w: amount %d does not match reservation total %d", domain.ErrValidation, in.AmountCents, r.TotalAmountCents)
		}

		now := p.res.now()
		rec = &domain.PaymentRecord{
			ID:            uuid.New(),
			ReservationID: r.ID,
			AmountCents:   r.TotalAmountCents,
			Description:   in.Description,
			Customer:      in.Customer,
			CreatedAt:     now,
			Delivery:      domain.DeliveryPending{},
			NextAttemptAt: now,
		}
		if rec.Customer == "" {
			rec.Customer = r.CustomerUsername
		}
		if rec.Description == "" {
			rec.Description = fmt.Sprintf("Reservation #%d", r.ID)
		}
		return repos.Payments().Insert(ctx, rec)
	})
	if err != nil {
		logger.ExitMethodWithError("PaymentService.RequestPayment", err)
		return nil, err
	}
	logger.ExitMethod("PaymentService.RequestPayment", "payment_record", rec.ID)
	return rec, nil
}

// Acknowledge applies a terminal gateway outcome. PAID confirms the
// reservation, or refunds when it can no longer be confirmed (expired,
// cancelled, or already paid through another intent); FAILED and
// CANCELLED only drop the record and leave expiry to the scheduler. Either way
// the record is deleted in the same transaction.
func (p *Payments) Acknowledge(ctx context.Context, ack domain.PaymentAck) error {
	if err := p.validate.Struct(ack); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var (
		rec       *domain.PaymentRecord
		confirmed applied
		late      error
	)
	token := ack.Token
	if token == "" {
		token = ack.PaymentID
	}

	err := p.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		rec, err = repos.Payments().GetByPaymentID(ctx, ack.PaymentID)
		if err != nil {
			return err
		}
		if ack.Outcome == domain.PaymentOutcomePaid {
			confirmed, err = p.res.transitionTx(ctx, repos, rec.ReservationID, confirmStep(token))
			switch {
			case errors.Is(err, domain.ErrConflict):
				late = err
			case err != nil:
				return err
			}
		}
		return repos.Payments().Delete(ctx, rec.ID)
	})
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.InfoContext(ctx, "Acknowledgment for unknown or already applied payment ignored", "payment_id", ack.PaymentID, "outcome", ack.Outcome)
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case late != nil:
		logger.WarnContext(ctx, "Payment succeeded for a reservation that can no longer be confirmed",
			"reservation_id", rec.ReservationID, "payment_id", ack.PaymentID, "reason", late)
		p.res.refund(ctx, rec.ReservationID, token, rec.AmountCents, "reservation no longer payable")
	case ack.Outcome == domain.PaymentOutcomePaid:
		confirmed.log(ctx, "confirm")
	default:
		logger.InfoContext(ctx, "Payment not completed", "reservation_id", rec.ReservationID, "payment_id", ack.PaymentID, "outcome", ack.Outcome)
	}
	return nil
}
