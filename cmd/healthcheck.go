package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/remote"
)

var (
	healthcheckDetails bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that chat history and the relay are reachable",
	Long: `Check the health of chatstream by verifying:
  • The configured chat store opens
  • Saved chats can be listed
  • The chat relay answers on its health endpoint

A missing relay is reported as a warning: saved chats can still be listed,
shown and exported without it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runHealthcheck(ctx, cmd.OutOrStdout(), remote.NewClient(cfg.ServerURL, nil))
	},
}

func runHealthcheck(ctx context.Context, out io.Writer, client *remote.Client) error {
	fmt.Fprintln(out, sectionStyle.Render("🔍 chatstream Health Check"))
	fmt.Fprintln(out)

	// Step 1: Store
	fmt.Fprintln(out, infoStyle.Render("Step 1: Opening chat store..."))
	storeOK := false
	chatCount := 0
	store, err := openStore()
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Failed to open chat store:"), err)
	} else {
		defer func() { _ = store.Close() }()
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %s store opened", storeLabel())))
		if healthcheckDetails {
			fmt.Fprintf(out, "   Directory: %s\n", cfg.StoreDir())
		}
	}
	fmt.Fprintln(out)

	// Step 2: Chats
	fmt.Fprintln(out, infoStyle.Render("Step 2: Listing saved chats..."))
	if store != nil {
		items, err := store.List(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to list chats:"), err)
		} else {
			storeOK = true
			chatCount = len(items)
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d chat(s)", chatCount)))
			if healthcheckDetails {
				for i, item := range items {
					if i == 5 {
						fmt.Fprintf(out, "   ... and %d more\n", len(items)-5)
						break
					}
					fmt.Fprintf(out, "   [%d] %s (%s)\n", i+1, item.Title(), item.Address())
				}
			}
		}
	} else {
		fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped: no store"))
	}
	fmt.Fprintln(out)

	// Step 3: Relay
	fmt.Fprintln(out, infoStyle.Render("Step 3: Contacting the chat relay..."))
	relayOK := client.Ping(ctx) == nil
	if relayOK {
		fmt.Fprintln(out, successStyle.Render("✅ Relay is up at "+client.BaseURL()))
	} else {
		fmt.Fprintln(out, warningStyle.Render("⚠️  Relay not reachable at "+client.BaseURL()))
		if healthcheckDetails {
			fmt.Fprintln(out, "   Start it with 'chatstream serve' or point --server at a running relay")
		}
	}
	fmt.Fprintln(out)

	// Summary
	fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
	fmt.Fprintln(out)

	switch {
	case storeOK && relayOK:
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Chats: %d saved", chatCount)))
		return nil
	case storeOK:
		fmt.Fprintln(out, warningStyle.Render("⚠️  Chat history is available but the relay is not"))
		fmt.Fprintln(out, "   • New messages cannot be sent")
		return nil
	default:
		fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
		fmt.Fprintln(out, "   • Chat history is not available")
		return fmt.Errorf("health check failed: chat store unavailable")
	}
}

func storeLabel() string {
	if !cfg.PersistenceEnabled() {
		return "In-memory (persistence disabled)"
	}
	switch cfg.Store {
	case internal.StoreFile:
		return "File"
	case internal.StoreMemory:
		return "In-memory"
	default:
		return "SQLite"
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
