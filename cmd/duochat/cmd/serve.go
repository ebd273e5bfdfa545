package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/duochat/internal/app"
	"github.com/nfrund/duochat/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Starts the HTTP API and the WebSocket endpoint and blocks until SIGINT or
SIGTERM. Open connections are closed with 1001 on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.New(cfg).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
