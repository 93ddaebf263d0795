package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
)

var (
	listLimit int
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	addressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats",
	Long:  `List saved chats, most recently updated first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		items, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list chats: %w", err)
		}
		if listLimit > 0 && listLimit < len(items) {
			items = items[:listLimit]
		}

		displayChats(cmd.OutOrStdout(), items, time.Now())
		return nil
	},
}

func displayChats(out io.Writer, items []internal.ChatHistoryItem, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No chats found"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d chat(s)", len(items))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Updated")+"\t"+titleStyle.Render("Address")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, item := range items {
		name := truncate(item.Title(), 50)
		name = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(name)

		msgCount := countStyle.Render(strconv.Itoa(len(item.Messages)))

		updated := dateStyle.Render("—")
		if t := item.GetTimestamp(); !t.IsZero() {
			updated = dateStyle.Render(formatRelativeDate(t.Local(), now))
		}

		id := idStyle.Render(item.ID)
		address := addressStyle.Render(item.Address())

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", id, name, msgCount, updated, address)
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use the ID or the address slug (e.g., ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(resumeKey(items[0]))+
		idStyle.Render(") with `chatstream show <id>` or `chatstream chat <id>`"))
}

// formatRelativeDate shortens dates that are close to now
func formatRelativeDate(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

// resumeKey is the shortest handle a user can pass back to show or chat
func resumeKey(item internal.ChatHistoryItem) string {
	if item.URLID != "" {
		return item.URLID
	}
	return item.ID
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most this many chats")
}
