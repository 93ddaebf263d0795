package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/remote"
	"github.com/iksnae/chatstream/internal/workbench"
	"github.com/iksnae/chatstream/testutil"
)

const todoReply = "Here is your app.\n" +
	`<boltArtifact id="todo-app" title="Todo App">` +
	`<boltAction type="file" filePath="index.html"><ul></ul></boltAction>` +
	`</boltArtifact>`

// scriptedTransport replays one body per call
type scriptedTransport struct {
	mu     sync.Mutex
	bodies []string
	err    error
	calls  [][]internal.ChatMessage
}

func (s *scriptedTransport) Stream(ctx context.Context, messages []internal.ChatMessage) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, messages)
	if s.err != nil {
		return nil, s.err
	}
	body := s.bodies[min(len(s.calls), len(s.bodies))-1]
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// pipeTransport hands out a body the test writes frames into
type pipeTransport struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	opened chan struct{}
	once   sync.Once
}

func newPipeTransport() *pipeTransport {
	r, w := io.Pipe()
	return &pipeTransport{r: r, w: w, opened: make(chan struct{})}
}

func (p *pipeTransport) Stream(ctx context.Context, messages []internal.ChatMessage) (io.ReadCloser, error) {
	p.once.Do(func() { close(p.opened) })
	return p.r, nil
}

type recordingNavigator struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNavigator) Replace(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, address)
}

func (n *recordingNavigator) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) Warn(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, message)
}

type fakeWorkbench struct {
	mu      sync.Mutex
	saves   int
	aborted int
	onSave  func()
}

func (w *fakeWorkbench) SaveAll(ctx context.Context) error {
	w.mu.Lock()
	w.saves++
	onSave := w.onSave
	w.mu.Unlock()
	if onSave != nil {
		onSave()
	}
	return nil
}

func (w *fakeWorkbench) AbortAllActions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborted++
}

// countingStore counts writes and can be made to fail them
type countingStore struct {
	*internal.MemoryStore
	mu   sync.Mutex
	puts int
	fail error
}

func (s *countingStore) Put(ctx context.Context, id string, messages []internal.ChatMessage, urlID, description string) error {
	s.mu.Lock()
	s.puts++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Put(ctx, id, messages, urlID, description)
}

func (s *countingStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type harness struct {
	ctrl      *Controller
	store     *countingStore
	navigator *recordingNavigator
	notifier  *recordingNotifier

	mu     sync.Mutex
	states []State
	events chan Event
}

func newHarness(t *testing.T, transport Transport, wb Workbench, tracker *workbench.Tracker) *harness {
	t.Helper()
	h := &harness{
		store:     &countingStore{MemoryStore: internal.NewMemoryStore()},
		navigator: &recordingNavigator{},
		notifier:  &recordingNotifier{},
		events:    make(chan Event, 256),
	}
	n := 0
	h.ctrl = NewController(Options{
		Store:     h.store,
		Transport: transport,
		Workbench: wb,
		Tracker:   tracker,
		Navigator: h.navigator,
		Notifier:  h.notifier,
		NewID: func() string {
			n++
			return "m" + string(rune('0'+n))
		},
	})
	cancel := h.ctrl.Subscribe(func(e Event) {
		if e.Kind == EventState {
			h.mu.Lock()
			h.states = append(h.states, e.State)
			h.mu.Unlock()
		}
		h.events <- e
	})
	t.Cleanup(cancel)
	return h
}

func (h *harness) States() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// waitFor returns the first event matching match
func (h *harness) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-h.events:
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestController_FirstTurnCreatesSession(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{testutil.FrameStream(t,
		"Here is your app.\n",
		`<boltArtifact id="todo-app" title="Todo App">`,
		`<boltAction type="file" filePath="index.html">`,
		"<ul></ul>",
		"</boltAction></boltArtifact>",
	)}}
	h := newHarness(t, transport, nil, nil)

	if err := h.ctrl.Submit(ctx, "Build a todo app"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	assertStates(t, h.States(), StateSending, StateStreaming, StateCompleted, StateIdle)

	messages := h.ctrl.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != internal.RoleUser || messages[0].Content != "Build a todo app" {
		t.Errorf("user message = %+v", messages[0])
	}
	if messages[1].Role != internal.RoleAssistant || messages[1].Content != todoReply {
		t.Errorf("assistant message = %+v", messages[1])
	}

	if h.ctrl.ChatID() != "1" || h.ctrl.URLID() != "todo-app" || h.ctrl.Description() != "Todo App" {
		t.Errorf("session = (%q, %q, %q), want (1, todo-app, Todo App)",
			h.ctrl.ChatID(), h.ctrl.URLID(), h.ctrl.Description())
	}
	if calls := h.navigator.Calls(); len(calls) != 1 || calls[0] != "/chat/todo-app" {
		t.Errorf("navigator calls = %v, want [/chat/todo-app]", calls)
	}

	stored, err := h.store.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(stored.Messages) != 2 || stored.URLID != "todo-app" || stored.Description != "Todo App" {
		t.Errorf("stored = %+v", stored)
	}
	if !h.ctrl.Started() || h.ctrl.Aborted() {
		t.Errorf("Started() = %v, Aborted() = %v", h.ctrl.Started(), h.ctrl.Aborted())
	}
}

func TestController_SecondTurnKeepsAddress(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{
		testutil.FrameStream(t, todoReply),
		testutil.FrameStream(t, "Done."),
	}}
	h := newHarness(t, transport, nil, nil)

	if err := h.ctrl.Submit(ctx, "Build a todo app"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.ctrl.Submit(ctx, "Make it blue"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if got := transport.calls[1]; len(got) != 3 {
		t.Errorf("second request carried %d messages, want 3", len(got))
	}
	if calls := h.navigator.Calls(); len(calls) != 1 {
		t.Errorf("navigator calls = %v, want a single replace", calls)
	}
	stored, _ := h.store.Get(ctx, "1")
	if len(stored.Messages) != 4 {
		t.Errorf("stored %d messages, want 4", len(stored.Messages))
	}
}

func TestController_AbortKeepsPartialContent(t *testing.T) {
	ctx := context.Background()
	transport := newPipeTransport()
	wb := &fakeWorkbench{}
	h := newHarness(t, transport, wb, nil)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(ctx, "Build a todo app") }()
	<-transport.opened

	partial := `Sure.<boltArtifact id="todo-app" title="Todo App"><boltAction type="file" filePath="index.html"><ul>`
	if _, err := io.WriteString(transport.w, testutil.TextFrame(t, partial)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	h.waitFor(t, func(e Event) bool {
		return e.Kind == EventMessage && e.Message.Role == internal.RoleAssistant
	})

	h.ctrl.Abort()
	if err := <-done; err != nil {
		t.Fatalf("Submit() after abort error = %v", err)
	}

	if !h.ctrl.Aborted() {
		t.Error("Aborted() = false after Abort")
	}
	assertStates(t, h.States(), StateSending, StateStreaming, StateAborted, StateIdle)

	messages := h.ctrl.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	// no finalization: the unclosed artifact stays open
	if messages[1].Content != partial {
		t.Errorf("assistant content = %q, want %q", messages[1].Content, partial)
	}
	if wb.aborted != 1 {
		t.Errorf("AbortAllActions called %d times, want 1", wb.aborted)
	}

	stored, err := h.store.Get(ctx, h.ctrl.ChatID())
	if err != nil {
		t.Fatalf("aborted turn should be persisted: %v", err)
	}
	if stored.Messages[1].Content != partial {
		t.Errorf("stored content = %q", stored.Messages[1].Content)
	}
	if h.ctrl.URLID() != "todo-app" {
		t.Errorf("URLID() = %q, want todo-app from the open artifact", h.ctrl.URLID())
	}
}

func TestController_AbortBeforeStream(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{testutil.FrameStream(t, "never seen")}}
	wb := &fakeWorkbench{}
	h := newHarness(t, transport, wb, nil)
	wb.onSave = h.ctrl.Abort

	if err := h.ctrl.Submit(ctx, "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !h.ctrl.Aborted() {
		t.Error("Aborted() = false")
	}
	for _, msg := range h.ctrl.Messages() {
		if msg.Role == internal.RoleAssistant {
			t.Errorf("unexpected assistant message %q", msg.Content)
		}
	}
}

func TestController_FailedFirstTurnIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{err: &internal.TransportError{
		URL:        "http://relay/api/chat",
		StatusCode: http.StatusInternalServerError,
		Err:        errors.New("boom"),
	}}
	h := newHarness(t, transport, nil, nil)

	err := h.ctrl.Submit(ctx, "Build a todo app")
	var tErr *internal.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("Submit() error = %v, want TransportError", err)
	}

	assertStates(t, h.States(), StateSending, StateFailed, StateIdle)
	if len(h.notifier.errors) != 1 {
		t.Errorf("notifier errors = %v, want one", h.notifier.errors)
	}
	if h.store.Puts() != 0 {
		t.Errorf("store written %d times, want 0", h.store.Puts())
	}
	if h.ctrl.ChatID() != "" {
		t.Errorf("ChatID() = %q, want none", h.ctrl.ChatID())
	}
	if len(h.navigator.Calls()) != 0 {
		t.Errorf("navigator calls = %v", h.navigator.Calls())
	}
	if got := h.ctrl.Messages(); len(got) != 1 || got[0].Role != internal.RoleUser {
		t.Errorf("messages = %+v, want only the user message", got)
	}
}

func TestController_ErrorFrameOnExistingSession(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{
		testutil.TextFrame(t, "Working on") + testutil.ErrorFrame(t, "rate limited"),
	}}
	h := newHarness(t, transport, nil, nil)
	_ = h.store.MemoryStore.Put(ctx, "5", internal.CreateTestTranscript(), "todo-app", "Todo App")

	if err := h.ctrl.Load(ctx, "todo-app"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	err := h.ctrl.Submit(ctx, "Add a footer")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Submit() error = %v, want the error frame text", err)
	}

	stored, _ := h.store.Get(ctx, "5")
	if len(stored.Messages) != 4 {
		t.Fatalf("stored %d messages, want 4", len(stored.Messages))
	}
	if stored.Messages[3].Content != "Working on" {
		t.Errorf("partial reply = %q", stored.Messages[3].Content)
	}
	if len(h.notifier.errors) != 1 {
		t.Errorf("notifier errors = %v", h.notifier.errors)
	}
}

func TestController_BusySubmitIsNoop(t *testing.T) {
	ctx := context.Background()
	transport := newPipeTransport()
	h := newHarness(t, transport, nil, nil)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(ctx, "first") }()
	<-transport.opened

	before := h.ctrl.Messages()
	if err := h.ctrl.Submit(ctx, "second"); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("Submit() while streaming error = %v, want ErrTurnInProgress", err)
	}
	if err := h.ctrl.Load(ctx, "1"); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("Load() while streaming error = %v, want ErrTurnInProgress", err)
	}
	if after := h.ctrl.Messages(); len(after) != len(before) {
		t.Errorf("busy Submit changed the transcript: %d -> %d messages", len(before), len(after))
	}
	if !h.ctrl.State().Busy() {
		t.Errorf("State() = %v, want busy", h.ctrl.State())
	}

	io.WriteString(transport.w, testutil.FrameStream(t, "ok"))
	transport.w.Close()
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := h.ctrl.Messages(); len(got) != 2 {
		t.Errorf("got %d messages, want 2", len(got))
	}
}

func TestController_EmptyInput(t *testing.T) {
	transport := &scriptedTransport{bodies: []string{""}}
	h := newHarness(t, transport, nil, nil)

	err := h.ctrl.Submit(context.Background(), "  \n ")
	if !errors.Is(err, internal.ErrEmptyInput) {
		t.Errorf("Submit() error = %v, want ErrEmptyInput", err)
	}
	if transport.Calls() != 0 || len(h.ctrl.Messages()) != 0 {
		t.Error("empty submit should have no effect")
	}
}

func TestController_PrefixesModifications(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{testutil.FrameStream(t, "Noted.")}}
	tracker := workbench.NewTracker()
	wb := &fakeWorkbench{}
	wb.onSave = func() { tracker.Record("src/app.js", "let a = 1;\n", "let a = 2;\n") }
	h := newHarness(t, transport, wb, tracker)

	if err := h.ctrl.Submit(ctx, "I changed a"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	user := h.ctrl.Messages()[0].Content
	if !strings.HasPrefix(user, "<bolt_file_modifications>") {
		t.Errorf("user message should start with the modifications block:\n%s", user)
	}
	if !strings.HasSuffix(user, "\n\nI changed a") {
		t.Errorf("user message should end with the typed text:\n%s", user)
	}
	if workbench.StripModifications(user) != "I changed a" {
		t.Errorf("StripModifications() = %q", workbench.StripModifications(user))
	}
	if tracker.Len() != 0 {
		t.Errorf("tracker holds %d modifications after submit, want 0", tracker.Len())
	}
	if wb.saves != 1 {
		t.Errorf("SaveAll called %d times, want 1", wb.saves)
	}
}

func TestController_SkipsUnchangedWrites(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{testutil.FrameStream(t, todoReply)}}
	h := newHarness(t, transport, nil, nil)

	if err := h.ctrl.Submit(ctx, "Build a todo app"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.store.Puts() != 1 {
		t.Fatalf("puts after first turn = %d, want 1", h.store.Puts())
	}

	if err := h.ctrl.SetDescription(ctx, "Todo App"); err != nil {
		t.Fatalf("SetDescription() error = %v", err)
	}
	if h.store.Puts() != 1 {
		t.Errorf("unchanged description caused a write: puts = %d", h.store.Puts())
	}

	if err := h.ctrl.SetDescription(ctx, "  My Todos "); err != nil {
		t.Fatalf("SetDescription() error = %v", err)
	}
	if h.store.Puts() != 2 {
		t.Errorf("puts = %d, want 2", h.store.Puts())
	}
	stored, _ := h.store.Get(ctx, "1")
	if stored.Description != "My Todos" {
		t.Errorf("stored description = %q", stored.Description)
	}

	if err := h.ctrl.SetDescription(ctx, "x"); !errors.Is(err, internal.ErrDescriptionLength) {
		t.Errorf("SetDescription(x) error = %v, want ErrDescriptionLength", err)
	}
	if h.ctrl.Description() != "My Todos" {
		t.Errorf("rejected description applied: %q", h.ctrl.Description())
	}
}

func TestController_StorageFailureWarnsOnce(t *testing.T) {
	ctx := context.Background()
	transport := &scriptedTransport{bodies: []string{
		testutil.FrameStream(t, "one"),
		testutil.FrameStream(t, "two"),
	}}
	h := newHarness(t, transport, nil, nil)
	h.store.fail = &internal.StorageError{Path: "chats.db", Op: "put", Err: internal.ErrWriteFailed}

	for _, text := range []string{"first", "second"} {
		if err := h.ctrl.Submit(ctx, text); err != nil {
			t.Fatalf("Submit(%q) error = %v", text, err)
		}
	}

	if len(h.notifier.warns) != 1 {
		t.Errorf("warnings = %v, want exactly one", h.notifier.warns)
	}
	if got := h.ctrl.Messages(); len(got) != 4 {
		t.Errorf("transcript has %d messages, want 4 despite storage errors", len(got))
	}
	if h.store.Puts() != 2 {
		t.Errorf("puts = %d, want a retry per turn", h.store.Puts())
	}
}

func TestController_DataAndFinishEvents(t *testing.T) {
	ctx := context.Background()
	body := testutil.TextFrame(t, "hi") +
		`2:[{"progress":"thinking"}]` + "\n" +
		testutil.FinishFrame("stop", 12, 3)
	h := newHarness(t, &scriptedTransport{bodies: []string{body}}, nil, nil)

	var kinds []EventKind
	var finish Event
	h.ctrl.Subscribe(func(e Event) {
		kinds = append(kinds, e.Kind)
		if e.Kind == EventFinish {
			finish = e
		}
	})

	if err := h.ctrl.Submit(ctx, "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var sawData bool
	for _, k := range kinds {
		if k == EventData {
			sawData = true
		}
	}
	if !sawData {
		t.Errorf("events %v have no data event", kinds)
	}
	if finish.Finish.FinishReason != "stop" || finish.Finish.Usage.PromptTokens != 12 {
		t.Errorf("finish = %+v", finish.Finish)
	}
}

func TestController_Load(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &scriptedTransport{bodies: []string{""}}, nil, nil)
	_ = h.store.MemoryStore.Put(ctx, "3", internal.CreateTestTranscript(), "todo-app", "Todo App")

	if err := h.ctrl.Load(ctx, "todo-app"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h.ctrl.ChatID() != "3" || h.ctrl.Address() != "/chat/todo-app" {
		t.Errorf("loaded (%q, %q)", h.ctrl.ChatID(), h.ctrl.Address())
	}
	if !h.ctrl.Started() || len(h.ctrl.Messages()) != 2 {
		t.Errorf("loaded %d messages", len(h.ctrl.Messages()))
	}

	if err := h.ctrl.Load(ctx, "nope"); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("Load(nope) error = %v, want ErrNotFound", err)
	}
}

func TestController_OverHTTP(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, line := range strings.SplitAfter(testutil.FrameStream(t,
			"Sure.\n", `<boltArtifact id="snake" title="Snake Game">`, "</boltArtifact>"), "\n") {
			io.WriteString(w, line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	h := newHarness(t, remote.NewClient(server.URL, nil), nil, nil)
	if err := h.ctrl.Submit(ctx, "Make a snake game"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.ctrl.URLID() != "snake" || h.ctrl.Description() != "Snake Game" {
		t.Errorf("session = (%q, %q)", h.ctrl.URLID(), h.ctrl.Description())
	}
	if calls := h.navigator.Calls(); len(calls) != 1 || calls[0] != "/chat/snake" {
		t.Errorf("navigator calls = %v", calls)
	}
}

func TestController_OverHTTP_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	h := newHarness(t, remote.NewClient(server.URL, nil), nil, nil)
	err := h.ctrl.Submit(context.Background(), "hello")
	if !errors.Is(err, remote.ErrRequestFailed) {
		t.Errorf("Submit() error = %v, want ErrRequestFailed", err)
	}
	if h.store.Puts() != 0 {
		t.Errorf("failed first turn wrote %d times", h.store.Puts())
	}
}
