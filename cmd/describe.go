package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
)

// describeCmd renames a saved chat
var describeCmd = &cobra.Command{
	Use:   "describe <id|url-id> <description>",
	Short: "Change the description of a saved chat",
	Long: `Change the description shown as a chat's title.

Descriptions are trimmed and must be between 2 and 60 characters long.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args[1:], " ")
		if _, err := internal.ValidateDescription(description); err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		item, err := internal.Resolve(cmd.Context(), store, args[0])
		if errors.Is(err, internal.ErrNotFound) {
			return fmt.Errorf("chat not found: %s (use 'chatstream list' to see saved chats)", args[0])
		}
		if err != nil {
			return err
		}

		updated, err := internal.UpdateDescription(cmd.Context(), store, item.ID, description)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", updated.Address(), updated.Description)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
