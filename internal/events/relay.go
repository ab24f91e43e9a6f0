package events

import (
	"context"
	"log/slog"
	"time"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

// Relay moves recorded lifecycle events to the bus. Each claim returns at most
// the oldest unpublished event per reservation, so a reservation's events go
// out in version order even with several relays running. A failed event keeps
// its lease, which doubles as the retry delay.
type Relay struct {
	log     *slog.Logger
	tx      repository.Transactor
	sink    Sink
	relayID string
	cfg     config.EventsConfig
}

func NewRelay(tx repository.Transactor, sink Sink, relayID string, cfg config.EventsConfig) *Relay {
	return &Relay{
		log:     logger.WithComponent("event-relay"),
		tx:      tx,
		sink:    sink,
		relayID: relayID,
		cfg:     cfg,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	r.log.Info("event relay started", "relay_id", r.relayID, "sink", r.cfg.Sink, "interval", r.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("event relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			// Drain the backlog before waiting for the next tick.
			for {
				n, err := r.RunOnce(ctx)
				if err != nil {
					r.log.Error("event relay batch failed", "error", err)
					break
				}
				if n == 0 || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce publishes one claimed batch and returns how many events went out.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var batch []domain.Event
	err := r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		batch, err = repos.Events().ClaimBatch(ctx, r.relayID, r.cfg.BatchSize, r.cfg.Lease)
		return err
	})
	if err != nil || len(batch) == 0 {
		return 0, err
	}

	published := make([]int64, 0, len(batch))
	for _, e := range batch {
		if err := r.sink.Publish(ctx, e); err != nil {
			r.log.Warn("event publish failed", "event_id", e.ID, "reservation_id", e.ReservationID, "type", e.Type, "error", err)
			if merr := r.markFailed(ctx, e.ID, err); merr != nil {
				r.log.Error("failed to record publish failure", "event_id", e.ID, "error", merr)
			}
			continue
		}
		published = append(published, e.ID)
	}
	if len(published) == 0 {
		return 0, nil
	}

	err = r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Events().MarkPublished(ctx, published)
	})
	if err != nil {
		// The events are re-sent once their lease expires; consumers dedup.
		return 0, err
	}
	r.log.Debug("events published", "count", len(published))
	return len(published), nil
}

func (r *Relay) markFailed(ctx context.Context, id int64, cause error) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Events().MarkFailed(ctx, id, cause.Error())
	})
}
