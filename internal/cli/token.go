package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shatzii/sentinel/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		ttl  time.Duration
		role string
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the security API",
		Long:  "Signs a token with security.jwt_secret. The subject is recorded as the actor on acknowledgements, resolutions and scans.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return errors.New("security.jwt_secret is not set; set SENTINEL_SECURITY_JWT_SECRET or add it to the config file")
			}
			tok, err := auth.IssueToken(cfg.Security.JWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenExpiry, "token lifetime")
	cmd.Flags().StringVar(&role, "role", "admin", "role claim")
	return cmd
}
