package jobs

import (
	"context"
	"errors"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

// SweepResult counts the outcomes of one expiry sweep.
type SweepResult struct {
	Candidates int
	Expired    int
	Skipped    int
	Failed     int
}

// ExpireStaleReservations expires PENDING reservations whose payment window
// has elapsed.
func (jr *JobRunner) ExpireStaleReservations() {
	jr.runWithRecovery("ExpireStaleReservations", func() {
		res, err := jr.SweepStale(context.Background())
		if err != nil {
			logger.Error("Failed to list stale reservations", "error", err)
			return
		}
		logger.Info("Expired stale reservations",
			"candidates", res.Candidates,
			"expired", res.Expired,
			"skipped", res.Skipped,
			"failed", res.Failed)
	})
}

// SweepStale runs one bounded expiry pass. A failure on one reservation is
// logged and counted; it never stops the sweep.
func (jr *JobRunner) SweepStale(ctx context.Context) (SweepResult, error) {
	cfg := jr.config.Reservation
	cutoff := jr.now().Add(-cfg.PaymentWindow)

	var ids []int64
	err := jr.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		ids, err = repos.Reservations().ListStalePending(ctx, cutoff, cfg.ExpiryBatchSize)
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Candidates: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		changed, err := jr.expirer.Expire(ctx, id)
		switch {
		case err == nil && changed:
			res.Expired++
		case err == nil, errors.Is(err, domain.ErrStaleState):
			// Confirmed or cancelled since it was listed.
			res.Skipped++
		default:
			res.Failed++
			if errors.Is(err, domain.ErrIntegrity) {
				logger.Integrity(ctx, "expiry failed", "reservation_id", id, "error", err)
			} else {
				logger.Error("Failed to expire reservation", "reservation_id", id, "error", err)
			}
		}
	}
	return res, nil
}

// PurgePublishedEvents deletes relayed events older than the retention period.
func (jr *JobRunner) PurgePublishedEvents() {
	jr.runWithRecovery("PurgePublishedEvents", func() {
		ctx := context.Background()
		before := jr.now().Add(-jr.config.Events.Retention)

		var n int64
		err := jr.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			var err error
			n, err = repos.Events().PurgePublished(ctx, before)
			return err
		})
		if err != nil {
			logger.Error("Failed to purge published events", "error", err)
			return
		}
		logger.Info("Purged published events", "count", n, "before", before)
	})
}
