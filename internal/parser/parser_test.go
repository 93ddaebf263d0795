package parser

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const sample = "Sure, here you go.\n" +
	`<boltArtifact id="todo-app" title="Todo &amp; Notes">` + "\n" +
	`  <boltAction type="file" filePath="src/App.tsx">export const App = () => <div>{"<boltArtifact"}</div>;</boltAction>` + "\n" +
	`  <boltAction type="shell">npm install && npm run dev</boltAction>` + "\n" +
	`</boltArtifact>` + "\nRun it with npm.\n"

func TestParse_Sample(t *testing.T) {
	got := Parse(sample)

	if len(got) != 3 {
		t.Fatalf("Parse() returned %d segments, want 3: %+v", len(got), got)
	}
	if got[0].Kind != SegmentText || got[0].Text != "Sure, here you go.\n" {
		t.Errorf("segment 0 = %+v", got[0])
	}
	if got[2].Kind != SegmentText || got[2].Text != "\nRun it with npm.\n" {
		t.Errorf("segment 2 = %+v", got[2])
	}

	a := got[1].Artifact
	if got[1].Kind != SegmentArtifact || a == nil {
		t.Fatalf("segment 1 = %+v, want artifact", got[1])
	}
	if a.ID != "todo-app" || a.Title != "Todo & Notes" || !a.Closed {
		t.Errorf("artifact = %+v", a)
	}

	wantActions := []ActionRef{
		{Type: "file", FilePath: "src/App.tsx", Content: `export const App = () => <div>{"<boltArtifact"}</div>;`, Closed: true},
		{Type: "shell", Content: "npm install && npm run dev", Closed: true},
	}
	if !reflect.DeepEqual(a.Actions, wantActions) {
		t.Errorf("actions = %+v, want %+v", a.Actions, wantActions)
	}
}

func TestParse_PlainTextIdentity(t *testing.T) {
	inputs := []string{
		"just prose",
		"html <b>bold</b> and <boltish> tags",
		"a stray </boltArtifact> closer",
		"<boltArtifactX id=\"a\">not a marker</boltArtifactX>",
		"ends with a partial marker <boltArt",
		"ends with the marker name <boltArtifact",
		"multi\nline\n\ttext",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got := Parse(in)
			want := []Segment{TextSegment(in)}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Parse(%q) = %+v, want single text segment", in, got)
			}
			if Render(got) != in {
				t.Errorf("Render(Parse(%q)) = %q", in, Render(got))
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	if got := Parse(""); len(got) != 0 {
		t.Errorf("Parse(\"\") = %+v, want no segments", got)
	}
}

func TestParse_BalancedMarkerOrder(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kinds []SegmentKind
	}{
		{
			name:  "artifact only",
			input: `<boltArtifact id="a" title="A"></boltArtifact>`,
			kinds: []SegmentKind{SegmentArtifact},
		},
		{
			name:  "text artifact text",
			input: `before <boltArtifact id="a" title="A">x</boltArtifact> after`,
			kinds: []SegmentKind{SegmentText, SegmentArtifact, SegmentText},
		},
		{
			name:  "two artifacts",
			input: `<boltArtifact id="a" title="A"></boltArtifact> and <boltArtifact id="b" title="B"></boltArtifact>`,
			kinds: []SegmentKind{SegmentArtifact, SegmentText, SegmentArtifact},
		},
		{
			name:  "header on several lines",
			input: "<boltArtifact\n  id=\"a\"\n  title=\"A\"\n>body</boltArtifact>",
			kinds: []SegmentKind{SegmentArtifact},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if len(got) != len(tt.kinds) {
				t.Fatalf("Parse() = %+v, want kinds %v", got, tt.kinds)
			}
			for i, k := range tt.kinds {
				if got[i].Kind != k {
					t.Errorf("segment %d kind = %v, want %v", i, got[i].Kind, k)
				}
				if k == SegmentArtifact && !got[i].Artifact.Closed {
					t.Errorf("segment %d should be closed", i)
				}
			}
		})
	}
}

func TestParse_NestedOpenMarkerIsLiteral(t *testing.T) {
	input := `<boltArtifact id="outer" title="Outer">one <boltArtifact id="inner" title="Inner"> two</boltArtifact>tail`
	got := Parse(input)

	if len(got) != 2 {
		t.Fatalf("Parse() = %+v, want artifact then text", got)
	}
	a := got[0].Artifact
	if a.ID != "outer" || !a.Closed {
		t.Errorf("artifact = %+v", a)
	}
	if a.Body != `one <boltArtifact id="inner" title="Inner"> two` {
		t.Errorf("Body = %q", a.Body)
	}
	if got[1].Text != "tail" {
		t.Errorf("trailing text = %q", got[1].Text)
	}
}

func TestParse_QuotedGreaterThanInHeader(t *testing.T) {
	got := Parse(`<boltArtifact id="cmp" title="a > b">x</boltArtifact>`)
	if len(got) != 1 || got[0].Artifact.Title != "a > b" || got[0].Artifact.Body != "x" {
		t.Errorf("Parse() = %+v", got)
	}
}

func TestFinish_UnclosedArtifactIsPartial(t *testing.T) {
	p := New()
	p.Append(`intro <boltArtifact id="app" title="App"><boltAction type="file" filePath="a.txt">hel`)
	got := p.Finish()

	if len(got) != 2 {
		t.Fatalf("Finish() = %+v", got)
	}
	a := got[1].Artifact
	if a.Closed {
		t.Error("artifact should be partial")
	}
	if len(a.Actions) != 1 || a.Actions[0].Content != "hel" || a.Actions[0].Closed {
		t.Errorf("actions = %+v", a.Actions)
	}
}

func TestFinish_UnterminatedHeaderIsText(t *testing.T) {
	in := `look: <boltArtifact id="x" title="never closed`
	got := Parse(in)
	if len(got) != 1 || got[0].Kind != SegmentText || got[0].Text != in {
		t.Errorf("Parse() = %+v, want the header as text", got)
	}
}

func TestAppend_HoldsBackMarkerPrefix(t *testing.T) {
	p := New()

	got := p.Append("Hello <bolt")
	if len(got) != 1 || got[0].Text != "Hello " {
		t.Fatalf("Append() = %+v, want held-back marker prefix", got)
	}
	if p.State() != InProse {
		t.Errorf("State() = %v, want prose", p.State())
	}

	got = p.Append(`Artifact id="a" title="A"`)
	if len(got) != 1 || p.State() != InArtifactHeader {
		t.Fatalf("Append() = %+v, state %v", got, p.State())
	}

	got = p.Append(`><boltAction type="shell">ls</bolt`)
	if p.State() != InArtifactBody || !p.InAction() {
		t.Fatalf("state = %v inAction = %v", p.State(), p.InAction())
	}
	if c := got[1].Artifact.Actions[0].Content; c != "ls" {
		t.Errorf("action content = %q, want closing marker prefix held back", c)
	}

	got = p.Append(`Action></boltArtifact>`)
	if p.State() != InProse || p.InAction() {
		t.Errorf("state = %v inAction = %v", p.State(), p.InAction())
	}
	if !got[1].Artifact.Closed || !got[1].Artifact.Actions[0].Closed {
		t.Errorf("artifact = %+v", got[1].Artifact)
	}
}

// checkPrefix reports whether partial could grow into full without any
// segment, field or character being taken back.
func checkPrefix(partial, full []Segment) error {
	if len(partial) > len(full) {
		return fmt.Errorf("%d segments, full has %d", len(partial), len(full))
	}
	for i, ps := range partial {
		fs := full[i]
		last := i == len(partial)-1
		if ps.Kind != fs.Kind {
			return fmt.Errorf("segment %d kind %v, full has %v", i, ps.Kind, fs.Kind)
		}
		if !last {
			if !reflect.DeepEqual(ps, fs) {
				return fmt.Errorf("segment %d = %+v, full has %+v", i, ps, fs)
			}
			continue
		}
		if ps.Kind == SegmentText {
			if !strings.HasPrefix(fs.Text, ps.Text) {
				return fmt.Errorf("text %q is not a prefix of %q", ps.Text, fs.Text)
			}
			continue
		}
		pa, fa := ps.Artifact, fs.Artifact
		if pa.ID != fa.ID || pa.Title != fa.Title {
			return fmt.Errorf("artifact header %q/%q, full has %q/%q", pa.ID, pa.Title, fa.ID, fa.Title)
		}
		if !strings.HasPrefix(fa.Body, pa.Body) {
			return fmt.Errorf("body %q is not a prefix of %q", pa.Body, fa.Body)
		}
		if pa.Closed && !fa.Closed {
			return fmt.Errorf("artifact closed early")
		}
		if len(pa.Actions) > len(fa.Actions) {
			return fmt.Errorf("%d actions, full has %d", len(pa.Actions), len(fa.Actions))
		}
		for j, act := range pa.Actions {
			fact := fa.Actions[j]
			if act.Type != fact.Type || act.FilePath != fact.FilePath || !strings.HasPrefix(fact.Content, act.Content) {
				return fmt.Errorf("action %d = %+v, full has %+v", j, act, fact)
			}
			if j < len(pa.Actions)-1 && act != fact {
				return fmt.Errorf("action %d = %+v, full has %+v", j, act, fact)
			}
		}
	}
	return nil
}

func TestAppend_EveryPrefixIsConsistent(t *testing.T) {
	inputs := []string{
		sample,
		`a <boltArtifactX> b <boltArtifact id="q" title="Q">c<boltActionZ>d</boltArtifact> e`,
		`<boltArtifact id="open" title="Open"><boltAction type="file" filePath="x">partial`,
	}

	for _, in := range inputs {
		full := Parse(in)
		p := New()
		for i := 0; i < len(in); i++ {
			partial := p.Append(in[i : i+1])
			if err := checkPrefix(partial, full); err != nil {
				t.Fatalf("after %d bytes of %q: %v", i+1, in, err)
			}
		}
	}
}

func TestAppend_SplitsMatchParse(t *testing.T) {
	want := Parse(sample)
	for split := 0; split <= len(sample); split++ {
		p := New()
		p.Append(sample[:split])
		p.Append(sample[split:])
		if got := p.Finish(); !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: got %+v, want %+v", split, got, want)
		}
	}
}

func TestParse_Idempotent(t *testing.T) {
	inputs := []string{
		sample,
		"plain",
		`<boltArtifact id="x" title="T &quot;quoted&quot;"><boltAction type="file" filePath="a b.txt">1</boltAction>`,
		`<boltArtifact title="no id">body</boltArtifact>`,
	}

	for _, in := range inputs {
		first := Parse(in)
		if second := Parse(in); !reflect.DeepEqual(first, second) {
			t.Errorf("Parse(%q) not stable", in)
		}
		if reparsed := Parse(Render(first)); !reflect.DeepEqual(reparsed, first) {
			t.Errorf("Parse(Render(Parse(%q))) = %+v, want %+v", in, reparsed, first)
		}
	}
}

func TestSegments_AreCopies(t *testing.T) {
	p := New()
	got := p.Append(`<boltArtifact id="a" title="A"><boltAction type="shell">ls</boltAction>`)
	got[0].Artifact.Title = "mutated"
	got[0].Artifact.Actions[0].Content = "rm -rf /"

	again := p.Segments()
	if again[0].Artifact.Title != "A" || again[0].Artifact.Actions[0].Content != "ls" {
		t.Errorf("parser state changed through returned segments: %+v", again[0].Artifact)
	}
}

func TestFirstArtifact(t *testing.T) {
	if FirstArtifact(Parse("none here")) != nil {
		t.Error("FirstArtifact() should be nil without artifacts")
	}
	a := FirstArtifact(Parse(sample))
	if a == nil || a.ID != "todo-app" {
		t.Errorf("FirstArtifact() = %+v", a)
	}
}
