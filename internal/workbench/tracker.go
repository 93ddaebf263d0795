// Package workbench tracks local file edits made between chat turns and
// renders them into the block that prefixes the next user message.
package workbench

import (
	"sort"
	"sync"
)

// Modification is one file's change since it was last sent to the model.
// Before is the content the model last saw; After is the current content.
type Modification struct {
	Path   string
	Before string
	After  string
}

// Tracker accumulates modifications until they are folded into a message.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]*Modification
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]*Modification)}
}

// Record notes that path changed from before to after. A path that is
// already pending keeps its original before. A change back to that original
// content drops the path from the batch.
func (t *Tracker) Record(path, before, after string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		t.pending = make(map[string]*Modification)
	}

	if existing, ok := t.pending[path]; ok {
		if existing.Before == after {
			delete(t.pending, path)
			return
		}
		existing.After = after
		return
	}

	if before == after {
		return
	}
	t.pending[path] = &Modification{Path: path, Before: before, After: after}
}

// Snapshot returns the pending batch sorted by path, and false when it is empty
func (t *Tracker) Snapshot() ([]Modification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == 0 {
		return nil, false
	}

	mods := make([]Modification, 0, len(t.pending))
	for _, m := range t.pending {
		mods = append(mods, *m)
	}
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Path < mods[j].Path
	})
	return mods, true
}

// Flush clears the batch. Records made afterwards start the next batch.
func (t *Tracker) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[string]*Modification)
}

// Len returns the number of pending paths
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
