package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/gosimple/slug"
)

// SessionStore persists chat transcripts keyed by a numeric id with a
// secondary urlId index.
type SessionStore interface {
	// AllocateNextID returns an id greater than every id stored or handed out so far.
	AllocateNextID(ctx context.Context) (string, error)
	// AllocateURLID derives a free urlId from seed.
	AllocateURLID(ctx context.Context, seed string) (string, error)
	Get(ctx context.Context, id string) (*ChatHistoryItem, error)
	GetByURLID(ctx context.Context, urlID string) (*ChatHistoryItem, error)
	// Put upserts the item, overwriting its messages wholesale.
	Put(ctx context.Context, id string, messages []ChatMessage, urlID, description string) error
	List(ctx context.Context) ([]ChatHistoryItem, error)
	Close() error
}

// Store kinds accepted by OpenStore
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// OpenStore opens the store of the given kind under dataDir.
// An unknown kind is an error; callers decide whether to fall back to memory.
func OpenStore(kind, dataDir string) (SessionStore, error) {
	switch kind {
	case StoreSQLite, "":
		return OpenSQLiteStore(SQLiteStorePath(dataDir))
	case StoreFile:
		return NewFileStore(dataDir)
	case StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q (expected sqlite, file or memory)", kind)
	}
}

// Resolve looks up a chat by id first, then by urlId.
func Resolve(ctx context.Context, store SessionStore, mixedID string) (*ChatHistoryItem, error) {
	item, err := store.Get(ctx, mixedID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return store.GetByURLID(ctx, mixedID)
}

// UpdateDescription validates description and rewrites the stored item with it.
func UpdateDescription(ctx context.Context, store SessionStore, id, description string) (*ChatHistoryItem, error) {
	trimmed, err := ValidateDescription(description)
	if err != nil {
		return nil, err
	}

	item, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := store.Put(ctx, item.ID, item.Messages, item.URLID, trimmed); err != nil {
		return nil, err
	}
	item.Description = trimmed
	return item, nil
}

// urlIDCandidates yields seed's slug and then its -2, -3, ... variants.
func urlIDCandidates(seed string) func(yield func(string) bool) {
	base := slug.Make(seed)
	if base == "" {
		base = "chat"
	}
	return func(yield func(string) bool) {
		if !yield(base) {
			return
		}
		for n := 2; ; n++ {
			if !yield(base + "-" + strconv.Itoa(n)) {
				return
			}
		}
	}
}

// nextNumericID returns max(ids as numbers, last)+1. Non-numeric ids are ignored.
func nextNumericID(ids []string, last int64) int64 {
	highest := last
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// sortByTimestamp orders items newest first
func sortByTimestamp(items []ChatHistoryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].GetTimestamp().After(items[j].GetTimestamp())
	})
}

func cloneMessages(messages []ChatMessage) []ChatMessage {
	if messages == nil {
		return []ChatMessage{}
	}
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}
