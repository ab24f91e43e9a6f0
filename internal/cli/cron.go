package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/scheduler"
)

func NewCronCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Run the expiry scheduler and housekeeping jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cronScheduler, err := scheduler.NewScheduler(a.jobRunner())
			if err != nil {
				return err
			}
			cronScheduler.Start()
			logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.",
				"expire_stale_reservations", a.cfg.Scheduler.ExpireStaleReservations,
				"purge_published_events", a.cfg.Scheduler.PurgePublishedEvents)

			<-ctx.Done()
			cronScheduler.Stop()
			return nil
		},
	}
}

func NewRunOnceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once <job>",
		Short: "Run one scheduled job once and exit (expire-stale-reservations, purge-published-events)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("Running job once", "job", args[0])
			if err := a.jobRunner().Run(args[0]); err != nil {
				return fmt.Errorf("run-once: %w", err)
			}
			logger.Info("Job execution completed", "job", args[0])
			return nil
		},
	}
}
