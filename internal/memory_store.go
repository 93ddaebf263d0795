package internal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryStore keeps chats for the lifetime of the process.
// It backs sessions when persistence is disabled or the on-disk store failed to open.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]ChatHistoryItem
	lastID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]ChatHistoryItem),
		now:   time.Now,
	}
}

func (m *MemoryStore) AllocateNextID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	m.lastID = nextNumericID(ids, m.lastID)
	return strconv.FormatInt(m.lastID, 10), nil
}

func (m *MemoryStore) AllocateURLID(ctx context.Context, seed string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for candidate := range urlIDCandidates(seed) {
		if _, taken := m.findURLID(candidate); !taken {
			return candidate, nil
		}
	}
	return "", nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*ChatHistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, &StorageError{Path: "memory", Op: "get", Err: fmt.Errorf("id %q: %w", id, ErrNotFound)}
	}
	return copyItem(item), nil
}

func (m *MemoryStore) GetByURLID(ctx context.Context, urlID string) (*ChatHistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.findURLID(urlID)
	if !ok {
		return nil, &StorageError{Path: "memory", Op: "get", Err: fmt.Errorf("url_id %q: %w", urlID, ErrNotFound)}
	}
	return copyItem(item), nil
}

func (m *MemoryStore) Put(ctx context.Context, id string, messages []ChatMessage, urlID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[id] = ChatHistoryItem{
		ID:          id,
		URLID:       urlID,
		Description: description,
		Messages:    cloneMessages(messages),
		Timestamp:   formatTimestamp(m.now()),
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]ChatHistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]ChatHistoryItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, *copyItem(item))
	}
	sortByTimestamp(items)
	return items, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) findURLID(urlID string) (ChatHistoryItem, bool) {
	if urlID == "" {
		return ChatHistoryItem{}, false
	}
	for _, item := range m.items {
		if item.URLID == urlID {
			return item, true
		}
	}
	return ChatHistoryItem{}, false
}

func copyItem(item ChatHistoryItem) *ChatHistoryItem {
	item.Messages = cloneMessages(item.Messages)
	return &item
}
