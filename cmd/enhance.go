package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/remote"
)

// enhanceCmd rewrites a draft prompt
var enhanceCmd = &cobra.Command{
	Use:   "enhance <draft>",
	Short: "Ask the relay to improve a draft prompt",
	Long: `Send a draft prompt to the relay's enhancer and print the improved
prompt as it streams in. Read the draft from stdin with "-".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		draft := strings.Join(args, " ")
		if draft == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read draft: %w", err)
			}
			draft = string(data)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		client := remote.NewClient(cfg.ServerURL, nil)
		spinner := internal.StartSpinner(os.Stderr, "Enhancing prompt")
		_, err := client.Enhance(ctx, draft, func(chunk string) {
			spinner.Clear()
			fmt.Fprint(out, chunk)
		})
		spinner.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enhanceCmd)
}
