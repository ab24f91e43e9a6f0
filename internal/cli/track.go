package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"rentacar-backend/internal/events"
	"rentacar-backend/internal/logger"
)

type consumer interface {
	Run(ctx context.Context) error
}

func NewTrackCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Consume lifecycle events and maintain tracking sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			dedup := events.NewRedisDeduper(rdb, cfg.Events.ConsumerGroup, cfg.Redis.DedupTTL)

			var c consumer
			switch cfg.Events.Sink {
			case "kafka":
				c = events.NewKafkaConsumer(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.ConsumerGroup, dedup, a.tracking)
			case "amqp":
				c = events.NewAMQPConsumer(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.ConsumerGroup, dedup, a.tracking)
			default:
				return fmt.Errorf("tracking needs a kafka or amqp event sink, got %q", cfg.Events.Sink)
			}

			logger.Info("Tracking consumer started", "sink", cfg.Events.Sink, "group", cfg.Events.ConsumerGroup)
			return c.Run(ctx)
		},
	}
}
