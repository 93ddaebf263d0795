package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/chatstream/internal"
)

// YAMLExporter writes a chat as a YAML document with the same fields as JSONExporter
type YAMLExporter struct{}

func (e *YAMLExporter) Export(item *internal.ChatHistoryItem, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(item)); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to encode chat %s: %w", item.ID, err)
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string { return FormatYAML }
