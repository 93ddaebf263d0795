package parser

import (
	"fmt"
	"html"
	"strings"
)

// Render serializes segments to the canonical transcript form. Artifact
// headers are rewritten with only id and title; bodies are kept verbatim.
// Parsing the result yields the same segments.
func Render(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case SegmentText:
			b.WriteString(s.Text)
		case SegmentArtifact:
			a := s.Artifact
			fmt.Fprintf(&b, `%s id="%s" title="%s">`, artifactOpen, html.EscapeString(a.ID), html.EscapeString(a.Title))
			b.WriteString(a.Body)
			if a.Closed {
				b.WriteString(artifactClose)
			}
		}
	}
	return b.String()
}

// RenderPlain formats segments for a terminal: prose as is, artifacts as a
// short list of the files they write and the commands they run.
func RenderPlain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case SegmentText:
			b.WriteString(s.Text)
		case SegmentArtifact:
			writeArtifactPlain(&b, s.Artifact)
		}
	}
	return b.String()
}

func writeArtifactPlain(b *strings.Builder, a *Artifact) {
	title := a.Title
	if title == "" {
		title = a.ID
	}
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "[%s]", title)
	if !a.Closed {
		b.WriteString(" (incomplete)")
	}
	b.WriteString("\n")

	for _, action := range a.Actions {
		switch action.Type {
		case "file":
			fmt.Fprintf(b, "  - file: %s", action.FilePath)
		case "shell":
			fmt.Fprintf(b, "  - shell: %s", firstLine(action.Content))
		default:
			fmt.Fprintf(b, "  - %s", action.Type)
		}
		if !action.Closed {
			b.WriteString(" ...")
		}
		b.WriteString("\n")
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
