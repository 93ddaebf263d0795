package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/export"
)

var (
	format      string
	outputDir   string
	exportIDs   []string
	exportRaw   bool
	exportDedup bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export chats to files",
	Long: `Export saved chats to various formats (jsonl, md, yaml, json).

Every chat is written to its own file named after its id. Export all chats, or
pick some with --chat (an id or an address slug, repeatable).
Use 'chatstream list' to see saved chats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}
		if md, ok := exporter.(*export.MarkdownExporter); ok {
			md.Raw = exportRaw
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx := cmd.Context()
		var items []internal.ChatHistoryItem
		if len(exportIDs) == 0 {
			items, err = store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list chats: %w", err)
			}
		} else {
			seen := make(map[string]bool)
			for _, id := range exportIDs {
				item, err := internal.Resolve(ctx, store, id)
				if errors.Is(err, internal.ErrNotFound) {
					return fmt.Errorf("chat not found: %s (use 'chatstream list' to see saved chats)", id)
				}
				if err != nil {
					return err
				}
				if !seen[item.ID] {
					seen[item.ID] = true
					items = append(items, *item)
				}
			}
		}

		if exportDedup {
			before := len(items)
			items = internal.NewDeduplicator().Deduplicate(items)
			if skipped := before - len(items); skipped > 0 {
				internal.LogInfo("Skipping %d chat(s) with duplicate transcripts", skipped)
			}
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d chat(s) to %s", len(items), outputDir), func() error {
			for i := range items {
				path, err := export.WriteFile(exporter, outputDir, &items[i])
				if err != nil {
					internal.LogError("%v", err)
					continue
				}
				internal.LogDebug("wrote %s", path)
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if exported < len(items) {
			return fmt.Errorf("exported %d of %d chat(s)", exported, len(items))
		}
		internal.PrintSuccess(fmt.Sprintf("Export complete: %d chat(s) exported to %s", exported, outputDir))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats(), ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringSliceVar(&exportIDs, "chat", nil, "Export only this chat (id or address slug, repeatable)")
	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "Keep message content as stored (md only)")
	exportCmd.Flags().BoolVar(&exportDedup, "dedupe", false, "Skip chats whose transcript duplicates an earlier one")
}
