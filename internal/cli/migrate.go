package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository/postgres"
)

func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				return errors.New("migrate needs a postgres database")
			}
			db, err := postgres.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info("Migrations up to date")
			return nil
		},
	}
}
