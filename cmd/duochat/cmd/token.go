package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/config"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for a user",
	Long: `Signs a token with JWT_SECRET and JWT_ISSUER from the configuration. Use it
as the connection_init token or as a Bearer token on the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		if cfg.GetJWTSecret() == "" {
			return errors.New("JWT_SECRET is not set")
		}

		token, err := auth.IssueToken(cfg.GetJWTSecret(), cfg.GetJWTIssuer(), tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the subject claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
