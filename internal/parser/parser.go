// Package parser turns the streamed text of an assistant reply into prose
// and artifact segments while the reply is still arriving.
package parser

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/metrics"
)

const (
	artifactOpen  = "<boltArtifact"
	artifactClose = "</boltArtifact>"
	actionOpen    = "<boltAction"
	actionClose   = "</boltAction>"

	// headers longer than this without a closing '>' are treated as text
	maxHeaderLen = 4096
)

var attrPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

// State is the position of the parser relative to artifact markers
type State int

const (
	InProse State = iota
	InArtifactHeader
	InArtifactBody
)

func (s State) String() string {
	switch s {
	case InProse:
		return "prose"
	case InArtifactHeader:
		return "artifact-header"
	case InArtifactBody:
		return "artifact-body"
	default:
		return "unknown"
	}
}

// MessageParser parses one assistant message incrementally.
//
// Text that could still turn out to be the start of a marker is held back
// until enough input arrives to decide, so the segments returned for a
// prefix of a message never contain anything the full message would remove.
type MessageParser struct {
	raw      strings.Builder
	pos      int
	state    State
	inAction bool
	segments []Segment
}

// New creates a parser in the prose state
func New() *MessageParser {
	return &MessageParser{}
}

// Parse parses a complete message
func Parse(raw string) []Segment {
	p := New()
	p.Append(raw)
	return p.Finish()
}

// State reports the current parser state
func (p *MessageParser) State() State {
	return p.state
}

// InAction reports whether the parser is inside an action of the open artifact
func (p *MessageParser) InAction() bool {
	return p.inAction
}

// Append consumes delta and returns a copy of the segments parsed so far
func (p *MessageParser) Append(delta string) []Segment {
	p.raw.WriteString(delta)
	p.run(false)
	return p.Segments()
}

// Finish flushes held-back text and returns the final segments. An artifact
// that is still open stays in the result with Closed set to false.
func (p *MessageParser) Finish() []Segment {
	p.run(true)
	return p.Segments()
}

// Segments returns a deep copy of the segments parsed so far
func (p *MessageParser) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	for i, s := range p.segments {
		out[i] = s.clone()
	}
	return out
}

func (p *MessageParser) run(final bool) {
	for {
		var progressed bool
		switch p.state {
		case InProse:
			progressed = p.stepProse(final)
		case InArtifactHeader:
			progressed = p.stepHeader(final)
		case InArtifactBody:
			if p.inAction {
				progressed = p.stepAction(final)
			} else {
				progressed = p.stepBody(final)
			}
		}
		if !progressed {
			return
		}
	}
}

func (p *MessageParser) rest() string {
	return p.raw.String()[p.pos:]
}

// stepProse emits text up to the next artifact marker
func (p *MessageParser) stepProse(final bool) bool {
	rest := p.rest()
	if rest == "" {
		return false
	}

	if i := strings.Index(rest, artifactOpen); i >= 0 {
		switch markerFollows(rest, i+len(artifactOpen)) {
		case yes:
			p.emitText(rest[:i])
			p.pos += i
			p.state = InArtifactHeader
			return true
		case no:
			p.emitText(rest[:i+1])
			p.pos += i + 1
			return true
		}
		// undecided: the marker name ends the input
		if !final {
			p.emitText(rest[:i])
			p.pos += i
			return false
		}
	}

	keep := 0
	if !final {
		keep = len(rest) - holdFrom(rest, artifactOpen)
	}
	p.emitText(rest[:len(rest)-keep])
	p.pos += len(rest) - keep
	return false
}

// stepHeader waits for the end of <boltArtifact ...>
func (p *MessageParser) stepHeader(final bool) bool {
	rest := p.rest()

	end := headerEnd(rest, len(artifactOpen))
	if end < 0 {
		if final || len(rest) > maxHeaderLen {
			p.anomaly(rest, "unterminated artifact header")
			// the '<' becomes text and scanning resumes after it
			p.emitText(rest[:1])
			p.pos++
			p.state = InProse
			return true
		}
		return false
	}

	attrs := parseAttributes(rest[len(artifactOpen):end])
	if attrs["id"] == "" {
		p.anomaly(rest[:end+1], "artifact without id")
	}
	p.segments = append(p.segments, ArtifactSegment(Artifact{
		ID:    attrs["id"],
		Title: attrs["title"],
	}))
	p.pos += end + 1
	p.state = InArtifactBody
	p.inAction = false
	return true
}

// stepBody scans artifact content outside of actions
func (p *MessageParser) stepBody(final bool) bool {
	rest := p.rest()
	if rest == "" {
		return false
	}
	art := p.current()

	closeAt := strings.Index(rest, artifactClose)
	openAt := strings.Index(rest, actionOpen)

	if closeAt >= 0 && (openAt < 0 || closeAt < openAt) {
		art.Body += rest[:closeAt]
		art.Closed = true
		p.pos += closeAt + len(artifactClose)
		p.state = InProse
		return true
	}

	if openAt >= 0 {
		switch markerFollows(rest, openAt+len(actionOpen)) {
		case no:
			art.Body += rest[:openAt+1]
			p.pos += openAt + 1
			return true
		case yes:
			end := headerEnd(rest[openAt:], len(actionOpen))
			if end >= 0 {
				header := rest[openAt : openAt+end+1]
				attrs := parseAttributes(header[len(actionOpen) : len(header)-1])
				art.Body += rest[:openAt] + header
				art.Actions = append(art.Actions, ActionRef{
					Type:     attrs["type"],
					FilePath: attrs["filePath"],
				})
				p.pos += openAt + end + 1
				p.inAction = true
				return true
			}
			if final || len(rest)-openAt > maxHeaderLen {
				p.anomaly(rest[openAt:], "unterminated action header")
				art.Body += rest[:openAt+1]
				p.pos += openAt + 1
				return true
			}
		}
		if !final {
			art.Body += rest[:openAt]
			p.pos += openAt
			return false
		}
	}

	keep := 0
	if !final {
		keep = len(rest) - min(holdFrom(rest, artifactClose), holdFrom(rest, actionOpen))
	}
	art.Body += rest[:len(rest)-keep]
	p.pos += len(rest) - keep
	return false
}

// stepAction collects action content up to </boltAction>
func (p *MessageParser) stepAction(final bool) bool {
	rest := p.rest()
	if rest == "" {
		return false
	}
	art := p.current()
	action := &art.Actions[len(art.Actions)-1]

	if i := strings.Index(rest, actionClose); i >= 0 {
		action.Content += rest[:i]
		action.Closed = true
		art.Body += rest[:i+len(actionClose)]
		p.pos += i + len(actionClose)
		p.inAction = false
		return true
	}

	keep := 0
	if !final {
		keep = len(rest) - holdFrom(rest, actionClose)
	}
	action.Content += rest[:len(rest)-keep]
	art.Body += rest[:len(rest)-keep]
	p.pos += len(rest) - keep
	return false
}

func (p *MessageParser) current() *Artifact {
	return p.segments[len(p.segments)-1].Artifact
}

func (p *MessageParser) emitText(s string) {
	if s == "" {
		return
	}
	if n := len(p.segments); n > 0 && p.segments[n-1].Kind == SegmentText {
		p.segments[n-1].Text += s
		return
	}
	p.segments = append(p.segments, TextSegment(s))
}

func (p *MessageParser) anomaly(input, reason string) {
	internal.LogDebug("%v", &internal.ParseAnomaly{Source: "artifact", Input: input, Err: errors.New(reason)})
	metrics.ParseAnomalies.WithLabelValues("artifact").Inc()
}

type tristate int

const (
	undecided tristate = iota
	yes
	no
)

// markerFollows reports whether the byte at i ends a marker name.
func markerFollows(s string, i int) tristate {
	if i >= len(s) {
		return undecided
	}
	switch s[i] {
	case ' ', '\t', '\n', '\r', '>':
		return yes
	}
	return no
}

// holdFrom returns the start of the longest suffix of s that is a proper
// or complete prefix of marker, or len(s) when there is none.
func holdFrom(s, marker string) int {
	start := len(s) - len(marker)
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s); i++ {
		if s[i] == '<' && strings.HasPrefix(marker, s[i:]) {
			return i
		}
	}
	return len(s)
}

// headerEnd finds the '>' closing a tag that starts at s[0], skipping
// quoted attribute values. from is where attribute scanning starts.
func headerEnd(s string, from int) int {
	quoted := false
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '>':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		if _, seen := attrs[m[1]]; !seen {
			attrs[m[1]] = html.UnescapeString(m[2])
		}
	}
	return attrs
}
