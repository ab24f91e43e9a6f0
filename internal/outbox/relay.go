package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/gateway"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

type Gateway interface {
	CreatePayment(ctx context.Context, rec *domain.PaymentRecord) (string, error)
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

type Acknowledger interface {
	Acknowledge(ctx context.Context, ack domain.PaymentAck) error
}

// Relay resumes payment intents: it submits pending ones to the gateway and
// polls submitted ones until a terminal outcome is acknowledged. Records are
// claimed with a lease, so several relays can share the table and a crashed
// relay's records become due again once the lease runs out.
type Relay struct {
	log     *slog.Logger
	tx      repository.Transactor
	gw      Gateway
	acks    Acknowledger
	relayID string
	cfg     config.OutboxConfig
	now     func() time.Time
}

func NewRelay(tx repository.Transactor, gw Gateway, acks Acknowledger, relayID string, cfg config.OutboxConfig) *Relay {
	return &Relay{
		log:     logger.WithComponent("payment-outbox"),
		tx:      tx,
		gw:      gw,
		acks:    acks,
		relayID: relayID,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (r *Relay) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	r.log.Info("payment relay started", "relay_id", r.relayID, "interval", r.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("payment relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("payment relay claim failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch of due records and works each of them. It returns
// the number of records claimed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var due []domain.PaymentRecord
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		due, err = repos.Payments().ClaimDue(ctx, r.relayID, r.now(), r.cfg.BatchSize, r.cfg.Lease)
		return err
	})
	if err != nil {
		return 0, err
	}
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		r.deliver(ctx, &due[i])
	}
	return len(due), nil
}

func (r *Relay) deliver(ctx context.Context, rec *domain.PaymentRecord) {
	switch d := rec.Delivery.(type) {
	case domain.DeliveryPending:
		paymentID, err := r.gw.CreatePayment(ctx, rec)
		if err != nil {
			r.fail(ctx, rec, err)
			return
		}
		next := r.now().Add(r.cfg.BaseBackoff)
		err = r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return repos.Payments().MarkSubmitted(ctx, rec.ID, paymentID, next)
		})
		if err != nil {
			// The gateway dedups on the record id; a resubmission returns the same payment.
			r.log.Error("failed to record submitted payment", "record_id", rec.ID, "payment_id", paymentID, "error", err)
			return
		}
		r.log.Info("payment submitted", "record_id", rec.ID, "reservation_id", rec.ReservationID, "payment_id", paymentID)

	case domain.DeliverySubmitted:
		p, err := r.gw.GetPayment(ctx, d.PaymentID)
		if err != nil {
			r.fail(ctx, rec, err)
			return
		}
		if !p.Status.Terminal() {
			r.fail(ctx, rec, fmt.Errorf("payment %s is %s", d.PaymentID, p.Status))
			return
		}
		ack := domain.PaymentAck{PaymentID: d.PaymentID, Outcome: p.Status, Token: p.Token, PayerID: p.PayerID}
		if err := r.acks.Acknowledge(ctx, ack); err != nil {
			r.fail(ctx, rec, err)
			return
		}

	default:
		r.log.Warn("claimed record in terminal state", "record_id", rec.ID, "delivery", rec.Delivery.Kind())
	}
}

// fail schedules the next attempt with exponential backoff, or abandons the
// record when attempts run out or the gateway refused it.
func (r *Relay) fail(ctx context.Context, rec *domain.PaymentRecord, cause error) {
	attempts := rec.Attempts + 1
	if gateway.IsRejected(cause) || attempts >= r.cfg.MaxAttempts {
		reason := fmt.Sprintf("gave up after %d attempts: %v", attempts, cause)
		err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return repos.Payments().MarkAbandoned(ctx, rec.ID, reason)
		})
		if err != nil {
			r.log.Error("failed to abandon payment record", "record_id", rec.ID, "error", err)
			return
		}
		r.log.ErrorContext(ctx, "payment delivery abandoned",
			"kind", domain.ErrExternalDependency.Error(),
			"record_id", rec.ID, "reservation_id", rec.ReservationID, "attempts", attempts, "error", cause)
		return
	}

	next := r.now().Add(Backoff(attempts, r.cfg.BaseBackoff, r.cfg.MaxBackoff))
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Payments().ScheduleRetry(ctx, rec.ID, attempts, next, cause.Error())
	})
	if err != nil {
		r.log.Error("failed to schedule payment retry", "record_id", rec.ID, "error", err)
		return
	}
	r.log.Warn("payment delivery retry scheduled", "record_id", rec.ID, "attempts", attempts, "next_attempt_at", next, "error", cause)
}

// Backoff returns base*2^(attempt-1), capped at ceiling.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
