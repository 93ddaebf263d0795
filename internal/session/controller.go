package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/metrics"
	"github.com/iksnae/chatstream/internal/parser"
	"github.com/iksnae/chatstream/internal/stream"
	"github.com/iksnae/chatstream/internal/workbench"
)

// ErrTurnInProgress is returned when Submit or Load is called while a turn is streaming
var ErrTurnInProgress = errors.New("a reply is still streaming")

// Transport opens the response stream for a transcript
type Transport interface {
	Stream(ctx context.Context, messages []internal.ChatMessage) (io.ReadCloser, error)
}

// Workbench flushes unsaved editor state before a turn is sent
type Workbench interface {
	SaveAll(ctx context.Context) error
}

// actionAborter is implemented by workbenches that run artifact actions
type actionAborter interface {
	AbortAllActions()
}

// Navigator replaces the current address without adding a history entry
type Navigator interface {
	Replace(address string)
}

// Notifier shows user-facing errors and warnings
type Notifier interface {
	Error(message string)
	Warn(message string)
}

// Options wires a Controller to its collaborators. Store and Transport are required.
type Options struct {
	Store     internal.SessionStore
	Transport Transport
	Workbench Workbench
	Tracker   *workbench.Tracker
	Navigator Navigator
	Notifier  Notifier
	// NewID generates message ids; defaults to ULIDs
	NewID func() string
}

// Controller runs chat turns: it sends the transcript, folds the response
// stream into the live assistant message and persists the result.
type Controller struct {
	opts Options

	// busy is held for the whole turn, persistence included
	busy sync.Mutex

	mu            sync.Mutex
	state         State
	messages      []internal.ChatMessage
	chatID        string
	urlID         string
	description   string
	started       bool
	aborted       bool
	cancel        context.CancelFunc
	lastDigest    string
	storageWarned bool

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewController creates an idle controller with an empty transcript
func NewController(opts Options) *Controller {
	if opts.NewID == nil {
		opts.NewID = func() string { return ulid.Make().String() }
	}
	return &Controller{
		opts: opts,
		subs: make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every subsequent event. Events are delivered
// synchronously on the goroutine that caused them.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) emit(e Event) {
	c.subsMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	// subscription order
	for n := 0; n < c.nextSub; n++ {
		if fn, ok := c.subs[n]; ok {
			fns = append(fns, fn)
		}
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// State returns the current turn state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Started reports whether the transcript has any message
func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Aborted reports whether the last turn was aborted
func (c *Controller) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Messages returns a copy of the transcript
func (c *Controller) Messages() []internal.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]internal.ChatMessage(nil), c.messages...)
}

// ChatID returns the persisted session id, or "" before the first save
func (c *Controller) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// URLID returns the session's urlId, or ""
func (c *Controller) URLID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urlID
}

// Description returns the session's description
func (c *Controller) Description() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

// Address returns /chat/{urlId|id}, or "" for an unsaved session
func (c *Controller) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addressLocked()
}

func (c *Controller) addressLocked() string {
	switch {
	case c.chatID == "":
		return ""
	case c.urlID != "":
		return internal.ChatAddress(c.urlID)
	default:
		return internal.ChatAddress(c.chatID)
	}
}

// Submit runs one turn. It returns once the turn has settled and been
// persisted. Aborted turns return nil; failed turns return the transport
// error after it was passed to the Notifier.
func (c *Controller) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &internal.ValidationError{Field: "message", Err: internal.ErrEmptyInput}
	}
	if !c.busy.TryLock() {
		return ErrTurnInProgress
	}
	defer c.busy.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.aborted = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	c.setState(StateSending, nil)

	if c.opts.Workbench != nil {
		if err := c.opts.Workbench.SaveAll(turnCtx); err != nil {
			internal.LogWarn("Failed to save workbench files: %v", err)
		}
	}

	var mods []workbench.Modification
	if c.opts.Tracker != nil {
		mods, _ = c.opts.Tracker.Snapshot()
	}
	c.appendMessage(internal.ChatMessage{
		ID:      c.opts.NewID(),
		Role:    internal.RoleUser,
		Content: workbench.ComposeMessage(mods, text),
	})
	if c.opts.Tracker != nil {
		c.opts.Tracker.Flush()
	}

	outcome, err := c.run(turnCtx)
	c.settle(context.WithoutCancel(ctx), outcome, err)
	if outcome == StateFailed {
		return err
	}
	return nil
}

// Abort cancels the running turn. It is a no-op when idle.
func (c *Controller) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		internal.LogDebug("Aborting turn")
		cancel()
	}
}

// run streams one response into the transcript and reports how the turn ended
func (c *Controller) run(ctx context.Context) (State, error) {
	body, err := c.opts.Transport.Stream(ctx, c.Messages())
	if err != nil {
		if ctx.Err() != nil {
			return StateAborted, nil
		}
		return StateFailed, err
	}
	defer body.Close()
	// unblocks a pending Read when the turn is aborted
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	c.setState(StateStreaming, nil)

	p := parser.New()
	assistant := -1
	for frame, err := range stream.NewDecoder(body).Frames() {
		if ctx.Err() != nil {
			return StateAborted, nil
		}
		if err != nil {
			return StateFailed, &internal.TransportError{Err: err}
		}

		switch frame.Kind {
		case stream.KindText:
			assistant = c.updateAssistant(assistant, p.Append(frame.Text))
		case stream.KindData:
			c.emit(Event{Kind: EventData, Data: frame.Data})
		case stream.KindError:
			return StateFailed, &internal.TransportError{Err: errors.New(frame.Text)}
		case stream.KindFinish:
			c.updateAssistant(assistant, p.Finish())
			c.emit(Event{Kind: EventFinish, Finish: frame.Finish})
			return StateCompleted, nil
		}
	}

	if ctx.Err() != nil {
		return StateAborted, nil
	}
	c.updateAssistant(assistant, p.Finish())
	return StateCompleted, nil
}

// updateAssistant overwrites the live assistant message with the rendered
// segments, appending it on first content. It returns the message index.
func (c *Controller) updateAssistant(index int, segments []parser.Segment) int {
	content := parser.Render(segments)

	c.mu.Lock()
	if index < 0 {
		if content == "" {
			c.mu.Unlock()
			return index
		}
		c.messages = append(c.messages, internal.ChatMessage{
			ID:   c.opts.NewID(),
			Role: internal.RoleAssistant,
		})
		index = len(c.messages) - 1
	}
	if c.messages[index].Content == content {
		c.mu.Unlock()
		return index
	}
	c.messages[index].Content = content
	msg := c.messages[index]
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessage, Index: index, Message: msg, Segments: segments})
	return index
}

func (c *Controller) appendMessage(msg internal.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.started = true
	index := len(c.messages) - 1
	c.mu.Unlock()

	c.emit(Event{Kind: EventMessage, Index: index, Message: msg})
}

func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	if s == StateAborted {
		c.aborted = true
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventState, State: s, Err: err})
}

func (c *Controller) settle(ctx context.Context, outcome State, err error) {
	metrics.TurnsSettled.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case StateCompleted:
		c.setState(StateCompleted, nil)
		c.persist(ctx, true)
	case StateAborted:
		if a, ok := c.opts.Workbench.(actionAborter); ok {
			a.AbortAllActions()
		}
		c.setState(StateAborted, nil)
		c.persist(ctx, true)
	case StateFailed:
		internal.LogError("Turn failed: %v", err)
		if c.opts.Notifier != nil {
			c.opts.Notifier.Error("There was an error processing your request: " + err.Error())
		}
		c.setState(StateFailed, err)
		c.persist(ctx, false)
	}

	c.setState(StateIdle, nil)
}

// persist writes the transcript when it changed since the last write.
// A new session is only created when create is set.
func (c *Controller) persist(ctx context.Context, create bool) {
	if c.opts.Store == nil {
		return
	}

	c.mu.Lock()
	messages := append([]internal.ChatMessage(nil), c.messages...)
	chatID, urlID, description := c.chatID, c.urlID, c.description
	before := c.addressLocked()
	c.mu.Unlock()

	if len(messages) == 0 || (chatID == "" && !create) {
		return
	}

	if urlID == "" || description == "" {
		if artifact := firstArtifact(messages); artifact != nil {
			if urlID == "" {
				seed := artifact.ID
				if seed == "" {
					seed = artifact.Title
				}
				allocated, err := c.opts.Store.AllocateURLID(ctx, seed)
				if err != nil {
					c.storageFailed(err)
					return
				}
				urlID = allocated
			}
			if description == "" {
				description = artifact.Title
			}
		}
	}

	if chatID == "" {
		allocated, err := c.opts.Store.AllocateNextID(ctx)
		if err != nil {
			c.storageFailed(err)
			return
		}
		chatID = allocated
	}

	// ids are kept even when the write fails so a retry reuses them
	c.mu.Lock()
	c.chatID, c.urlID, c.description = chatID, urlID, description
	after := c.addressLocked()
	digest := internal.ItemDigest(chatID, urlID, description, messages)
	unchanged := digest == c.lastDigest
	c.mu.Unlock()

	if unchanged {
		metrics.StoreWrites.WithLabelValues("skipped").Inc()
	} else if err := c.opts.Store.Put(ctx, chatID, messages, urlID, description); err != nil {
		c.storageFailed(err)
	} else {
		metrics.StoreWrites.WithLabelValues("ok").Inc()
		internal.LogDebug("Saved chat %s (%d messages)", chatID, len(messages))
		c.mu.Lock()
		c.lastDigest = digest
		c.mu.Unlock()
	}

	if after != before {
		if c.opts.Navigator != nil {
			c.opts.Navigator.Replace(after)
		}
		c.emit(Event{Kind: EventAddress, Address: after})
	}
}

// storageFailed logs err and warns the user the first time it happens
func (c *Controller) storageFailed(err error) {
	metrics.StoreWrites.WithLabelValues("error").Inc()
	internal.LogWarn("Failed to save chat: %v", err)

	c.mu.Lock()
	warned := c.storageWarned
	c.storageWarned = true
	c.mu.Unlock()

	if !warned && c.opts.Notifier != nil {
		c.opts.Notifier.Warn(fmt.Sprintf("Chat history could not be saved: %v", err))
	}
}

// SetDescription validates and applies a new description. An existing
// session is rewritten right away unless a turn is in flight, in which case
// the turn's own save picks it up.
func (c *Controller) SetDescription(ctx context.Context, description string) error {
	trimmed, err := internal.ValidateDescription(description)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.description = trimmed
	c.mu.Unlock()

	if !c.busy.TryLock() {
		return nil
	}
	defer c.busy.Unlock()
	c.persist(ctx, false)
	return nil
}

// Load replaces the transcript with a stored session found by id or urlId
func (c *Controller) Load(ctx context.Context, mixedID string) error {
	if !c.busy.TryLock() {
		return ErrTurnInProgress
	}
	defer c.busy.Unlock()

	item, err := internal.Resolve(ctx, c.opts.Store, mixedID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = internal.NormalizeMessages(item.Messages)
	c.chatID = item.ID
	c.urlID = item.URLID
	c.description = item.Description
	c.started = len(c.messages) > 0
	c.aborted = false
	c.state = StateIdle
	c.lastDigest = internal.ItemDigest(item.ID, item.URLID, item.Description, c.messages)
	address := c.addressLocked()
	c.mu.Unlock()

	internal.LogDebug("Loaded chat %s with %d messages", item.ID, len(item.Messages))
	c.emit(Event{Kind: EventLoaded, Address: address})
	return nil
}

func firstArtifact(messages []internal.ChatMessage) *parser.Artifact {
	for _, msg := range messages {
		if msg.Role != internal.RoleAssistant {
			continue
		}
		if a := parser.FirstArtifact(parser.Parse(msg.Content)); a != nil {
			return a
		}
	}
	return nil
}
