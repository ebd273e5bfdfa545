package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/duochat/internal/domain"
)

var roomCmd = &cobra.Command{
	Use:   "room <user> <peer>",
	Short: "Print the room id of a user pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == args[1] {
			return fmt.Errorf("%w: a room needs two different users", domain.ErrInvalidMessage)
		}
		fmt.Fprintln(cmd.OutOrStdout(), domain.RoomIDFor(args[0], args[1]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomCmd)
}
