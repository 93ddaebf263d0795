package workbench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/parser"
)

// MaxTrackedFileSize is the largest file DirWorkbench will diff
const MaxTrackedFileSize = 256 * 1024

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"vendor":       true,
}

// ErrOutsideRoot is returned for action paths that resolve outside the workbench root
var ErrOutsideRoot = errors.New("path escapes the workbench root")

// DirWorkbench watches a project directory. SaveAll compares the files on
// disk with the content last seen and records every difference.
type DirWorkbench struct {
	root    string
	tracker *Tracker

	mu       sync.Mutex
	baseline map[string]string
	cancel   context.CancelFunc
}

// NewDirWorkbench snapshots root and records future changes into tracker
func NewDirWorkbench(root string, tracker *Tracker) (*DirWorkbench, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workdir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workdir %s is not a directory", abs)
	}

	w := &DirWorkbench{root: abs, tracker: tracker}
	files, err := w.scan(context.Background())
	if err != nil {
		return nil, err
	}
	w.baseline = files
	internal.LogDebug("Tracking %d files under %s", len(files), abs)
	return w, nil
}

// Root returns the absolute project directory
func (w *DirWorkbench) Root() string {
	return w.root
}

// Tracker returns the tracker modifications are recorded into
func (w *DirWorkbench) Tracker() *Tracker {
	return w.tracker
}

// SaveAll rescans the directory and records what changed since the last scan.
// Deleted files are recorded with empty content.
func (w *DirWorkbench) SaveAll(ctx context.Context) error {
	files, err := w.scan(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for path, after := range files {
		if before, ok := w.baseline[path]; !ok || before != after {
			w.tracker.Record(path, before, after)
		}
	}
	for path, before := range w.baseline {
		if _, ok := files[path]; !ok {
			w.tracker.Record(path, before, "")
		}
	}
	w.baseline = files
	return nil
}

// ApplyArtifact writes the closed file actions of a to disk. The written
// content becomes the new baseline, so it is not reported back as a user
// modification. Shell actions are not run.
func (w *DirWorkbench) ApplyArtifact(ctx context.Context, a *parser.Artifact) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer func() {
		cancel()
		w.mu.Lock()
		w.cancel = nil
		w.mu.Unlock()
	}()

	var written []string
	for _, action := range a.Actions {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if action.Type != "file" || !action.Closed {
			continue
		}

		rel, err := w.resolve(action.FilePath)
		if err != nil {
			return written, err
		}
		full := filepath.Join(w.root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(full, []byte(action.Content), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", rel, err)
		}

		w.mu.Lock()
		w.baseline[filepath.ToSlash(rel)] = action.Content
		w.mu.Unlock()
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}

// AbortAllActions stops an ApplyArtifact in progress
func (w *DirWorkbench) AbortAllActions() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// resolve maps an action path to a clean path relative to root
func (w *DirWorkbench) resolve(path string) (string, error) {
	// model output often uses the sandbox's project directory
	path = strings.TrimPrefix(path, "/home/project/")
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(path, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return rel, nil
}

func (w *DirWorkbench) scan(ctx context.Context) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip entries we can't access
			if d != nil && d.IsDir() && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != w.root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > MaxTrackedFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", w.root, err)
	}
	return files, nil
}

func isText(data []byte) bool {
	return utf8.Valid(data) && !bytes.ContainsRune(data, 0)
}
