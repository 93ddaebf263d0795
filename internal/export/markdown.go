package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/parser"
	"github.com/iksnae/chatstream/internal/workbench"
)

// MarkdownExporter exports chats in Markdown format. User messages lose
// their file modifications block; artifacts are summarized per action.
type MarkdownExporter struct {
	// Raw keeps message content exactly as stored
	Raw bool
}

// Export exports a chat to Markdown format
func (e *MarkdownExporter) Export(item *internal.ChatHistoryItem, w io.Writer) error {
	// Header
	_, _ = fmt.Fprintf(w, "# %s\n\n", item.Title())

	_, _ = fmt.Fprintf(w, "**Chat:** %s  \n", item.Address())
	if item.Timestamp != "" {
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", item.Timestamp)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(item.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range item.Messages {
		_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", msg.Role, e.content(msg))

		// Add horizontal rule after each message (except the last one)
		if i < len(item.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func (e *MarkdownExporter) content(msg internal.ChatMessage) string {
	if e.Raw {
		return msg.Content
	}
	switch msg.Role {
	case internal.RoleUser:
		return escapeMarkdown(workbench.StripModifications(msg.Content))
	default:
		return escapeMarkdown(parser.RenderPlain(parser.Parse(msg.Content)))
	}
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			// Escape markdown syntax outside code blocks
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
