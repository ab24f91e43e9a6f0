package cli

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func NewRoot() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "rentald",
		Short:         "Car rental reservation core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")

	cmd.AddCommand(NewServeCmd(&configPath))
	cmd.AddCommand(NewCronCmd(&configPath))
	cmd.AddCommand(NewRunOnceCmd(&configPath))
	cmd.AddCommand(NewTrackCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewTokenCmd(&configPath))
	return cmd
}
