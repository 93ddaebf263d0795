package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/parser"
	"github.com/iksnae/chatstream/internal/session"
)

// chatView prints controller events as a reply streams in.
// Only the part of the reply that can no longer change is printed.
type chatView struct {
	out     io.Writer
	spinner *internal.Spinner
	index   int
	printed string
}

func newChatView(out io.Writer) *chatView {
	return &chatView{out: out, index: -1}
}

func (v *chatView) handle(e session.Event) {
	switch e.Kind {
	case session.EventState:
		v.state(e.State)
	case session.EventMessage:
		if e.Message.Role == internal.RoleAssistant {
			v.reply(e.Index, e.Segments)
		}
	case session.EventData:
		internal.LogDebug("data frame: %s", e.Data)
	case session.EventFinish:
		internal.LogDebug("reply finished (%s): %d prompt, %d completion tokens",
			e.Finish.FinishReason, e.Finish.Usage.PromptTokens, e.Finish.Usage.CompletionTokens)
	}
}

func (v *chatView) state(s session.State) {
	switch s {
	case session.StateSending:
		v.index = -1
		v.printed = ""
		v.spinner = internal.StartSpinner(os.Stderr, "Thinking")
	case session.StateCompleted, session.StateAborted, session.StateFailed:
		v.stopSpinner()
		if v.index >= 0 && !strings.HasSuffix(v.printed, "\n") {
			fmt.Fprintln(v.out)
		}
		if s == session.StateAborted {
			fmt.Fprintln(v.out, dateStyle.Render("(stopped)"))
		}
	}
}

func (v *chatView) reply(index int, segments []parser.Segment) {
	v.stopSpinner()
	if index != v.index {
		v.index = index
		v.printed = ""
		fmt.Fprintln(v.out, assistantMessageStyle.Render("🤖 Assistant"))
	}

	text := liveText(segments)
	if rest, ok := strings.CutPrefix(text, v.printed); ok && rest != "" {
		fmt.Fprint(v.out, rest)
		v.printed = text
	}
}

func (v *chatView) stopSpinner() {
	if v.spinner != nil {
		v.spinner.Clear()
		v.spinner = nil
	}
}

// liveText renders segments so that more input only ever appends to the
// result: artifacts show their title once the header is read and a line per
// action once the action is closed.
func liveText(segments []parser.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case parser.SegmentText:
			b.WriteString(s.Text)
		case parser.SegmentArtifact:
			a := s.Artifact
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
			title := a.Title
			if title == "" {
				title = a.ID
			}
			fmt.Fprintf(&b, "[%s]\n", title)
			for _, action := range a.Actions {
				if !action.Closed {
					break
				}
				switch action.Type {
				case "file":
					fmt.Fprintf(&b, "  - file: %s\n", action.FilePath)
				case "shell":
					fmt.Fprintf(&b, "  - shell: %s\n", strings.TrimSpace(action.Content))
				default:
					fmt.Fprintf(&b, "  - %s\n", action.Type)
				}
			}
		}
	}
	return b.String()
}
