package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rentacar-backend/internal/security"
)

// NewTokenCmd issues a token signed like the identity provider's, for local
// testing against the API.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Issue a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			tok, err := security.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer).GenerateAccessToken(args[0], roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", []string{security.RoleCustomer}, "Roles to grant (CUSTOMER, STAFF)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
