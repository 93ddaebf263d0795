package workbench

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	modificationsTag = "bolt_file_modifications"
	diffContextLines = 3
)

var modificationsPattern = regexp.MustCompile(`(?s)^\s*<` + modificationsTag + `>.*?</` + modificationsTag + `>\s*`)

// RenderModifications renders mods as the block prepended to a user message.
// Each file is sent as a unified diff, or in full when the diff would be
// longer than the new content.
func RenderModifications(mods []Modification) string {
	var b strings.Builder
	b.WriteString("<" + modificationsTag + ">\n")

	for _, m := range mods {
		path := html.EscapeString(m.Path)
		diff, err := unifiedDiff(m.Before, m.After)
		if err != nil || len(diff) > len(m.After) {
			fmt.Fprintf(&b, "<file path=\"%s\">\n%s\n</file>\n", path, m.After)
			continue
		}
		fmt.Fprintf(&b, "<diff path=\"%s\">\n%s</diff>\n", path, diff)
	}

	b.WriteString("</" + modificationsTag + ">")
	return b.String()
}

// ComposeMessage prefixes text with the rendered modifications, if any
func ComposeMessage(mods []Modification, text string) string {
	if len(mods) == 0 {
		return text
	}
	return RenderModifications(mods) + "\n\n" + text
}

// StripModifications removes a leading modifications block for display
func StripModifications(content string) string {
	return strings.TrimSpace(modificationsPattern.ReplaceAllString(content, ""))
}

func unifiedDiff(before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       difflib.SplitLines(before),
		B:       difflib.SplitLines(after),
		Context: diffContextLines,
	})
}
