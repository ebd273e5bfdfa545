package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/duochat/internal/pubsub"
)

var rootCmd = &cobra.Command{
	Use:   "duochat",
	Short: "Two-party chat broker over WebSocket",
	Long: `duochat runs a WebSocket pub/sub broker for one-to-one chat rooms.

Available commands:
  serve      Start the HTTP and WebSocket server
  token      Issue a signed token for a user (development helper)
  room       Print the room id of a user pair
  version    Print the version

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		pubsub.ServiceVersion = version
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
