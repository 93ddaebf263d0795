package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/chatstream/internal"
)

// Exporter writes one chat in a single file format
type Exporter interface {
	Export(item *internal.ChatHistoryItem, w io.Writer) error
	Extension() string
}

// Format names accepted by NewExporter
const (
	FormatJSONL    = "jsonl"
	FormatMarkdown = "md"
	FormatYAML     = "yaml"
	FormatJSON     = "json"
)

var aliases = map[string]string{
	"markdown": FormatMarkdown,
	"yml":      FormatYAML,
	"ndjson":   FormatJSONL,
}

// Formats lists the canonical format names
func Formats() []string {
	return []string{FormatJSONL, FormatMarkdown, FormatYAML, FormatJSON}
}

// NewExporter returns the exporter for a format name or one of its aliases.
// Names are matched case-insensitively.
func NewExporter(format string) (Exporter, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	switch name {
	case FormatJSONL:
		return &JSONLExporter{}, nil
	case FormatMarkdown:
		return &MarkdownExporter{}, nil
	case FormatYAML:
		return &YAMLExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	}
	return nil, &internal.ExportError{
		Format: format,
		Err:    fmt.Errorf("unsupported format (supported: %s)", strings.Join(Formats(), ", ")),
	}
}

// FileName is the name a chat is exported under: chat_<id>.<ext>
func FileName(e Exporter, item *internal.ChatHistoryItem) string {
	return fmt.Sprintf("chat_%s.%s", item.ID, e.Extension())
}

// WriteFile exports item into dir and returns the written path.
// Failures are reported as *internal.ExportError.
func WriteFile(e Exporter, dir string, item *internal.ChatHistoryItem) (string, error) {
	path := filepath.Join(dir, FileName(e, item))
	fail := func(err error) (string, error) {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return fail(err)
	}
	if err := e.Export(item, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fail(err)
	}
	if err := file.Close(); err != nil {
		return fail(err)
	}
	return path, nil
}
