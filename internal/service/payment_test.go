package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/service"
)

func TestPaymentService_RequestPayment(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)

		rec, err := f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID})
		require.NoError(t, err)
		assert.Equal(t, res.TotalAmountCents, rec.AmountCents)
		assert.Equal(t, "alice", rec.Customer)
		assert.Equal(t, domain.DeliveryKindPending, rec.Delivery.Kind())
		assert.Equal(t, t0, rec.NextAttemptAt)
		assert.Len(t, f.store.Payments(), 1)
	})

	t.Run("Active record exists", func(t *testing.T) {
		f := newFixture()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		_, err = f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID})
		require.NoError(t, err)

		_, err = f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID, AmountCents: res.TotalAmountCents})
		assert.ErrorIs(t, err, domain.ErrActivePayment)
		assert.Len(t, f.store.Payments(), 1)
	})

	t.Run("Reservation not pending", func(t *testing.T) {
		f := newFixture()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		_, err = f.svc.ConfirmPayment(context.Background(), res.ID, "tok")
		require.NoError(t, err)

		_, err = f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Amount must match the total", func(t *testing.T) {
		f := newFixture()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)

		_, err = f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID, AmountCents: 100})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Empty(t, f.store.Payments())
	})

	t.Run("Unknown reservation", func(t *testing.T) {
		f := newFixture()
		_, err := f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: 5})
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestPaymentService_Acknowledge(t *testing.T) {
	t.Run("Failed leaves reservation pending", func(t *testing.T) {
		f := newFixture()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		f.submit(res.ID, "pay_1")

		err = f.pay.Acknowledge(context.Background(), domain.PaymentAck{PaymentID: "pay_1", Outcome: domain.PaymentOutcomeFailed})
		require.NoError(t, err)
		assert.Empty(t, f.store.Payments())

		got, err := f.svc.Get(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusPending, got.Status)

		// A new attempt may be requested once the old record is gone.
		_, err = f.pay.RequestPayment(context.Background(), service.PaymentRequest{ReservationID: res.ID})
		assert.NoError(t, err)
	})

	t.Run("Paid after expiry is refunded", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		rec := f.submit(res.ID, "pay_2")

		f.now = t0.Add(20 * time.Minute)
		expired, err := f.svc.Expire(ctx, res.ID)
		require.NoError(t, err)
		require.True(t, expired)

		f.refunds.On("Refund", mock.Anything, "tok_2", rec.AmountCents, "reservation no longer payable").Return(nil)
		err = f.pay.Acknowledge(ctx, domain.PaymentAck{PaymentID: "pay_2", Outcome: domain.PaymentOutcomePaid, Token: "tok_2"})
		require.NoError(t, err)

		f.refunds.AssertExpectations(t)
		assert.Empty(t, f.store.Payments())
		got, err := f.svc.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusExpired, got.Status)
	})

	t.Run("Duplicate acknowledgment is a no-op", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		f.submit(res.ID, "pay_3")

		ack := domain.PaymentAck{PaymentID: "pay_3", Outcome: domain.PaymentOutcomePaid}
		require.NoError(t, f.pay.Acknowledge(ctx, ack))
		require.NoError(t, f.pay.Acknowledge(ctx, ack))

		got, err := f.svc.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)
		assert.Equal(t, "pay_3", *got.PaymentToken)
		assert.Equal(t, []domain.EventType{domain.EventCreated, domain.EventConfirmed}, f.events(res.ID))
	})

	t.Run("Paid after abandonment confirms", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		rec := f.submit(res.ID, "pay_5")
		f.abandon(rec)

		err = f.pay.Acknowledge(ctx, domain.PaymentAck{PaymentID: "pay_5", Outcome: domain.PaymentOutcomePaid, Token: "tok_5"})
		require.NoError(t, err)

		got, err := f.svc.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)
		assert.Equal(t, "tok_5", *got.PaymentToken)
		assert.Empty(t, f.store.Payments())
		f.refunds.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Second paid intent is refunded", func(t *testing.T) {
		f := newFixture()
		ctx := context.Background()
		res, err := f.create("alice", t0.Add(day), t0.Add(2*day))
		require.NoError(t, err)
		first := f.submit(res.ID, "pay_6")
		f.abandon(first)
		// The customer retries; the old intent is terminal so a new one is allowed.
		f.submit(res.ID, "pay_7")

		require.NoError(t, f.pay.Acknowledge(ctx, domain.PaymentAck{PaymentID: "pay_7", Outcome: domain.PaymentOutcomePaid, Token: "tok_7"}))

		f.refunds.On("Refund", mock.Anything, "tok_6", first.AmountCents, "reservation no longer payable").Return(nil)
		require.NoError(t, f.pay.Acknowledge(ctx, domain.PaymentAck{PaymentID: "pay_6", Outcome: domain.PaymentOutcomePaid, Token: "tok_6"}))
		f.refunds.AssertExpectations(t)

		got, err := f.svc.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)
		assert.Equal(t, "tok_7", *got.PaymentToken)
		assert.Equal(t, []domain.EventType{domain.EventCreated, domain.EventConfirmed}, f.events(res.ID))
		assert.Empty(t, f.store.Payments())
	})

	t.Run("Invalid outcome", func(t *testing.T) {
		f := newFixture()
		err := f.pay.Acknowledge(context.Background(), domain.PaymentAck{PaymentID: "pay_4", Outcome: domain.PaymentOutcomePending})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
