package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ShowProgress runs fn behind a spinner on a terminal, or logs the message otherwise
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	if !isTerminal(os.Stderr) {
		LogInfo(message)
		return fn()
	}

	spinner := StartSpinner(os.Stderr, message)
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		spinner.Stop(err == nil)
		return err
	case <-ctx.Done():
		spinner.Stop(false)
		return ctx.Err()
	}
}

// Spinner animates a message until stopped
type Spinner struct {
	w       io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// StartSpinner starts a spinner on w. Nothing is drawn when w is not a terminal.
func StartSpinner(w io.Writer, message string) *Spinner {
	s := &Spinner{
		w:       w,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if !isTerminal(w) {
		close(s.done)
		return s
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				char := spinnerChars[i%len(spinnerChars)]
				fmt.Fprintf(w, "\r%s %s", progressStyle.Render(char), message)
				i++
			}
		}
	}()
	return s
}

// Stop ends the animation and prints the final mark. Safe to call twice.
func (s *Spinner) Stop(ok bool) {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if !isTerminal(s.w) {
			return
		}
		mark := successStyle.Render("✓")
		if !ok {
			mark = errorStyle.Render("✗")
		}
		fmt.Fprintf(s.w, "\r%s %s\n", mark, s.message)
	})
}

// Clear ends the animation and erases its line
func (s *Spinner) Clear() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if isTerminal(s.w) {
			fmt.Fprint(s.w, "\r\033[K")
		}
	})
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// TerminalNotifier reports chat errors and warnings on a terminal
type TerminalNotifier struct {
	Out io.Writer
}

// NewTerminalNotifier creates a notifier writing to stderr
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{Out: os.Stderr}
}

// Error shows an error toast
func (n *TerminalNotifier) Error(message string) {
	if isTerminal(n.Out) {
		fmt.Fprintf(n.Out, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(n.Out, "ERROR: %s\n", message)
	}
}

// Warn shows a warning toast
func (n *TerminalNotifier) Warn(message string) {
	if isTerminal(n.Out) {
		fmt.Fprintf(n.Out, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(n.Out, "WARNING: %s\n", message)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintError prints an error message
func PrintError(message string) {
	NewTerminalNotifier().Error(message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	NewTerminalNotifier().Warn(message)
}
