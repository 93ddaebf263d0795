package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/chatstream/internal"
)

// JSONLExporter exports chats in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlLine struct {
	ChatID  string        `json:"chat_id"`
	Index   int           `json:"index"`
	ID      string        `json:"id"`
	Role    internal.Role `json:"role"`
	Content string        `json:"content"`
}

// Export exports a chat to JSONL format
func (e *JSONLExporter) Export(item *internal.ChatHistoryItem, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for i, msg := range item.Messages {
		line := jsonlLine{
			ChatID:  item.ID,
			Index:   i,
			ID:      msg.ID,
			Role:    msg.Role,
			Content: msg.Content,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
