package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/parser"
	"github.com/iksnae/chatstream/internal/remote"
	"github.com/iksnae/chatstream/internal/session"
	"github.com/iksnae/chatstream/internal/workbench"
)

var (
	chatWorkdir string
	noApply     bool
)

const chatHelp = `Type a message and press enter to send it. End a line with \ to keep typing.
  /enhance <draft>  improve a draft prompt before sending it
  /title <text>     rename this chat
  /help             show this help
  /quit             leave (Ctrl-D works too)
Ctrl-C stops a reply that is still streaming.`

// chatCmd starts an interactive chat
var chatCmd = &cobra.Command{
	Use:   "chat [id|url-id]",
	Short: "Start or resume an interactive chat",
	Long: `Start an interactive chat with the relay, or resume a saved one.

With a workdir, the files in it are diffed before every message and the changes
are sent along, and the files the assistant writes are applied to it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		notifier := internal.NewTerminalNotifier()
		store := openStoreOrMemory(notifier)
		defer func() { _ = store.Close() }()

		workdir := chatWorkdir
		if workdir == "" {
			workdir = cfg.Workdir
		}

		s, err := newChatSession(chatSessionOptions{
			Store:    store,
			Client:   remote.NewClient(cfg.ServerURL, nil),
			Workdir:  workdir,
			Apply:    !noApply,
			Notifier: notifier,
			In:       cmd.InOrStdin(),
			Out:      cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}

		if len(args) == 1 {
			if err := s.load(ctx, args[0]); err != nil {
				return err
			}
		}

		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, os.Interrupt)
		defer signal.Stop(sigc)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sigc:
					if !s.intr.fire() {
						cancel()
					}
				}
			}
		}()

		return s.run(ctx)
	},
}

type chatSessionOptions struct {
	Store    internal.SessionStore
	Client   *remote.Client
	Workdir  string
	Apply    bool
	Notifier session.Notifier
	In       io.Reader
	Out      io.Writer
}

// chatSession is one interactive chat on a terminal
type chatSession struct {
	controller *session.Controller
	client     *remote.Client
	wb         *workbench.DirWorkbench
	apply      bool
	out        io.Writer
	lines      <-chan string
	intr       *interrupter
	view       *chatView
}

func newChatSession(opts chatSessionOptions) (*chatSession, error) {
	tracker := workbench.NewTracker()
	s := &chatSession{
		client: opts.Client,
		apply:  opts.Apply,
		out:    opts.Out,
		lines:  readLines(opts.In),
		intr:   &interrupter{},
		view:   newChatView(opts.Out),
	}

	controllerOpts := session.Options{
		Store:     opts.Store,
		Transport: opts.Client,
		Tracker:   tracker,
		Navigator: terminalNavigator{out: opts.Out},
		Notifier:  opts.Notifier,
	}
	if opts.Workdir != "" {
		wb, err := workbench.NewDirWorkbench(opts.Workdir, tracker)
		if err != nil {
			return nil, err
		}
		s.wb = wb
		controllerOpts.Workbench = wb
	}

	s.controller = session.NewController(controllerOpts)
	s.controller.Subscribe(s.view.handle)
	return s, nil
}

func (s *chatSession) load(ctx context.Context, mixedID string) error {
	err := s.controller.Load(ctx, mixedID)
	if errors.Is(err, internal.ErrNotFound) {
		return fmt.Errorf("chat not found: %s (use 'chatstream list' to see saved chats)", mixedID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(s.out, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", s.title())))
	messages := s.controller.Messages()
	for i, msg := range messages {
		displayMessage(s.out, i+1, msg, len(messages))
	}
	return nil
}

// run reads input until the user quits, stdin ends or ctx is cancelled
func (s *chatSession) run(ctx context.Context) error {
	if s.controller.ChatID() == "" {
		fmt.Fprintln(s.out, idStyle.Render("Type /help for commands."))
	}

	for {
		line, ok := s.readInput(ctx)
		if !ok {
			break
		}
		quit, err := s.handle(ctx, line)
		if err != nil {
			var vErr *internal.ValidationError
			if !errors.As(err, &vErr) {
				internal.LogDebug("turn failed: %v", err)
			} else {
				fmt.Fprintln(s.out, err)
			}
		}
		if quit {
			break
		}
	}

	if address := s.controller.Address(); address != "" {
		fmt.Fprintln(s.out, idStyle.Render("Saved as "+address))
	}
	return nil
}

// handle runs one line of input
func (s *chatSession) handle(ctx context.Context, line string) (quit bool, err error) {
	command, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
		return false, nil
	case "/title":
		if err := s.controller.SetDescription(ctx, rest); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, idStyle.Render(fmt.Sprintf("Renamed to %q", s.title())))
		return false, nil
	case "/enhance":
		return false, s.enhance(ctx, rest)
	}
	return false, s.send(ctx, line)
}

func (s *chatSession) send(ctx context.Context, text string) error {
	reset := s.intr.set(s.controller.Abort)
	err := s.controller.Submit(ctx, text)
	reset()
	if err != nil {
		return err
	}
	if s.controller.Aborted() {
		return nil
	}
	return s.applyArtifacts(ctx)
}

// applyArtifacts writes the files of the latest reply into the workdir
func (s *chatSession) applyArtifacts(ctx context.Context) error {
	if s.wb == nil || !s.apply {
		return nil
	}
	messages := s.controller.Messages()
	if len(messages) == 0 || messages[len(messages)-1].Role != internal.RoleAssistant {
		return nil
	}

	reset := s.intr.set(s.wb.AbortAllActions)
	defer reset()

	for _, seg := range parser.Parse(messages[len(messages)-1].Content) {
		if seg.Kind != parser.SegmentArtifact || !seg.Artifact.Closed {
			continue
		}
		written, err := s.wb.ApplyArtifact(ctx, seg.Artifact)
		for _, path := range written {
			fmt.Fprintln(s.out, addressStyle.Render("  wrote "+path))
		}
		if err != nil {
			internal.PrintWarning(fmt.Sprintf("Could not apply %s: %v", seg.Artifact.Title, err))
			return err
		}
	}
	return nil
}

func (s *chatSession) enhance(ctx context.Context, draft string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	reset := s.intr.set(cancel)
	defer reset()

	spinner := internal.StartSpinner(os.Stderr, "Enhancing prompt")
	improved, err := s.client.Enhance(ctx, draft, func(chunk string) {
		spinner.Clear()
		fmt.Fprint(s.out, chunk)
	})
	spinner.Clear()
	fmt.Fprintln(s.out)
	if err != nil {
		if ctx.Err() == nil {
			internal.PrintError(fmt.Sprintf("Could not enhance the prompt: %v", err))
		}
		return err
	}

	improved = strings.TrimSpace(improved)
	if improved == "" {
		return nil
	}
	fmt.Fprint(s.out, idStyle.Render("Send this prompt? [Y/n] "))
	answer, ok := s.readLine(ctx)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return s.send(ctx, improved)
	}
	return nil
}

// readInput prompts for a message; lines ending in a backslash continue it
func (s *chatSession) readInput(ctx context.Context) (string, bool) {
	fmt.Fprint(s.out, userMessageStyle.Render("you ›")+" ")

	var b strings.Builder
	for {
		line, ok := s.readLine(ctx)
		if !ok {
			if b.Len() > 0 {
				return b.String(), true
			}
			return "", false
		}
		if cont, found := strings.CutSuffix(line, `\`); found {
			b.WriteString(cont)
			b.WriteString("\n")
			continue
		}
		b.WriteString(line)
		return b.String(), true
	}
}

func (s *chatSession) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		return line, ok
	}
}

func (s *chatSession) title() string {
	if d := s.controller.Description(); d != "" {
		return d
	}
	return "Untitled Chat"
}

// readLines feeds the lines of r into a channel that is closed at EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// interrupter routes Ctrl-C to whatever is running
type interrupter struct {
	mu sync.Mutex
	fn func()
}

// set makes fn the interrupt handler until reset is called
func (i *interrupter) set(fn func()) (reset func()) {
	i.mu.Lock()
	i.fn = fn
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		i.fn = nil
		i.mu.Unlock()
	}
}

// fire runs the handler and reports whether there was one
func (i *interrupter) fire() bool {
	i.mu.Lock()
	fn := i.fn
	i.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// terminalNavigator prints the chat's address when it changes
type terminalNavigator struct {
	out io.Writer
}

func (n terminalNavigator) Replace(address string) {
	fmt.Fprintln(n.out, addressStyle.Render("→ "+address))
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatWorkdir, "workdir", "w", "", "Project directory to track and write files into")
	chatCmd.Flags().BoolVar(&noApply, "no-apply", false, "Do not write the assistant's files into the workdir")
}
