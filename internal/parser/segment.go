package parser

// SegmentKind tells text and artifact segments apart
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentArtifact
)

// Segment is one piece of a parsed assistant message: either prose or an artifact.
type Segment struct {
	Kind     SegmentKind
	Text     string
	Artifact *Artifact
}

// Artifact is a <boltArtifact> block. Closed is false while the closing
// marker has not been seen, and stays false for artifacts cut off by the end
// of the stream.
type Artifact struct {
	ID      string
	Title   string
	Actions []ActionRef
	// Body is the raw text between the opening and closing markers,
	// action markup included.
	Body   string
	Closed bool
}

// ActionRef is a <boltAction> inside an artifact
type ActionRef struct {
	Type     string // "file" or "shell"
	FilePath string
	Content  string
	Closed   bool
}

// TextSegment returns a text segment
func TextSegment(s string) Segment {
	return Segment{Kind: SegmentText, Text: s}
}

// ArtifactSegment returns an artifact segment
func ArtifactSegment(a Artifact) Segment {
	return Segment{Kind: SegmentArtifact, Artifact: &a}
}

func (s Segment) clone() Segment {
	if s.Artifact == nil {
		return s
	}
	a := *s.Artifact
	a.Actions = append([]ActionRef(nil), s.Artifact.Actions...)
	s.Artifact = &a
	return s
}

// FirstArtifact returns the first artifact among segments, or nil
func FirstArtifact(segments []Segment) *Artifact {
	for _, s := range segments {
		if s.Kind == SegmentArtifact {
			return s.Artifact
		}
	}
	return nil
}
