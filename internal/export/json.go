package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/chatstream/internal"
)

// document is a stored chat plus its resolved address.
// The stored fields stay at the top level so the file loads back as a chat.
type document struct {
	internal.ChatHistoryItem `yaml:",inline"`
	Address                  string `json:"address" yaml:"address"`
}

func newDocument(item *internal.ChatHistoryItem) document {
	return document{ChatHistoryItem: *item, Address: item.Address()}
}

// JSONExporter writes a chat as one indented JSON document
type JSONExporter struct {
	// Indent is the per-level indent; two spaces when empty
	Indent string
}

func (e *JSONExporter) Export(item *internal.ChatHistoryItem, w io.Writer) error {
	indent := e.Indent
	if indent == "" {
		indent = "  "
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", indent)
	// markup in messages must survive untouched
	enc.SetEscapeHTML(false)
	return enc.Encode(newDocument(item))
}

func (e *JSONExporter) Extension() string { return FormatJSON }
