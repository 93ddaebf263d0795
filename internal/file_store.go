package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const fileStoreVersion = "1.0"

// FileStore keeps one JSON file per chat plus a YAML index of all chats
type FileStore struct {
	dir string

	mu     sync.Mutex
	lastID int64
	now    func() time.Time
}

// StoreMetadata stores metadata about the index
type StoreMetadata struct {
	Version   string    `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// SessionIndexEntry represents a chat entry in the index
type SessionIndexEntry struct {
	ID           string `yaml:"id"`
	URLID        string `yaml:"url_id,omitempty"`
	Description  string `yaml:"description,omitempty"`
	Timestamp    string `yaml:"timestamp"`
	MessageCount int    `yaml:"message_count"`
}

// SessionIndex represents the YAML index of all chats
type SessionIndex struct {
	Sessions []SessionIndexEntry `yaml:"sessions"`
	Metadata StoreMetadata       `yaml:"metadata"`
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{dir: dir, now: time.Now}
	if err := fs.ensureDir(); err != nil {
		return nil, &StorageError{Path: dir, Op: "open", Err: errors.Join(ErrStorageUnavailable, err)}
	}
	return fs, nil
}

// Dir returns the store directory
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) ensureDir() error {
	return os.MkdirAll(fs.dir, 0755)
}

// IndexPath returns the path to the session index YAML file
func (fs *FileStore) IndexPath() string {
	return filepath.Join(fs.dir, "sessions.yaml")
}

// SessionPath returns the path to a chat's JSON file
func (fs *FileStore) SessionPath(id string) string {
	return filepath.Join(fs.dir, fmt.Sprintf("session_%s.json", id))
}

// LoadIndex loads the session index. A missing index is an empty one.
func (fs *FileStore) LoadIndex() (*SessionIndex, error) {
	data, err := os.ReadFile(fs.IndexPath())
	if os.IsNotExist(err) {
		return &SessionIndex{
			Sessions: make([]SessionIndexEntry, 0),
			Metadata: StoreMetadata{Version: fileStoreVersion, CreatedAt: fs.now()},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var index SessionIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}

	return &index, nil
}

// saveIndex writes the index through a temp file so readers never see half of it
func (fs *FileStore) saveIndex(index *SessionIndex) error {
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return writeFileAtomic(fs.IndexPath(), data)
}

// AllocateNextID returns the next numeric chat id
func (fs *FileStore) AllocateNextID(ctx context.Context) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	index, err := fs.LoadIndex()
	if err != nil {
		return "", fs.wrap("allocate", err)
	}

	ids := make([]string, len(index.Sessions))
	for i, entry := range index.Sessions {
		ids[i] = entry.ID
	}
	fs.lastID = nextNumericID(ids, fs.lastID)
	return strconv.FormatInt(fs.lastID, 10), nil
}

// AllocateURLID returns the first free slug derived from seed
func (fs *FileStore) AllocateURLID(ctx context.Context, seed string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	index, err := fs.LoadIndex()
	if err != nil {
		return "", fs.wrap("allocate", err)
	}

	taken := make(map[string]bool, len(index.Sessions))
	for _, entry := range index.Sessions {
		if entry.URLID != "" {
			taken[entry.URLID] = true
		}
	}

	for candidate := range urlIDCandidates(seed) {
		if !taken[candidate] {
			return candidate, nil
		}
	}
	return "", nil
}

// Get loads a chat by id
func (fs *FileStore) Get(ctx context.Context, id string) (*ChatHistoryItem, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.load(id)
}

// GetByURLID loads a chat through the index's urlId column
func (fs *FileStore) GetByURLID(ctx context.Context, urlID string) (*ChatHistoryItem, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	index, err := fs.LoadIndex()
	if err != nil {
		return nil, fs.wrap("get", err)
	}
	for _, entry := range index.Sessions {
		if urlID != "" && entry.URLID == urlID {
			return fs.load(entry.ID)
		}
	}
	return nil, &StorageError{Path: fs.dir, Op: "get", Err: fmt.Errorf("url_id %q: %w", urlID, ErrNotFound)}
}

func (fs *FileStore) load(id string) (*ChatHistoryItem, error) {
	path := fs.SessionPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &StorageError{Path: path, Op: "get", Err: fmt.Errorf("id %q: %w", id, ErrNotFound)}
	}
	if err != nil {
		return nil, &StorageError{Path: path, Op: "get", Err: err}
	}

	var raw struct {
		ID          string          `json:"id"`
		URLID       string          `json:"urlId"`
		Description string          `json:"description"`
		Messages    json.RawMessage `json:"messages"`
		Timestamp   string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &StorageError{Path: path, Op: "get", Err: fmt.Errorf("failed to unmarshal session: %w", err)}
	}

	messages := []ChatMessage{}
	if len(raw.Messages) > 0 {
		messages, err = ParseIncomingMessages(raw.Messages)
		if err != nil {
			return nil, &StorageError{Path: path, Op: "get", Err: err}
		}
	}

	return &ChatHistoryItem{
		ID:          raw.ID,
		URLID:       raw.URLID,
		Description: raw.Description,
		Messages:    messages,
		Timestamp:   raw.Timestamp,
	}, nil
}

// Put saves a chat file and updates its index entry
func (fs *FileStore) Put(ctx context.Context, id string, messages []ChatMessage, urlID, description string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.ensureDir(); err != nil {
		return &StorageError{Path: fs.dir, Op: "put", Err: errors.Join(ErrStorageUnavailable, err)}
	}

	now := fs.now()
	item := ChatHistoryItem{
		ID:          id,
		URLID:       urlID,
		Description: description,
		Messages:    cloneMessages(messages),
		Timestamp:   formatTimestamp(now),
	}

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := writeFileAtomic(fs.SessionPath(id), data); err != nil {
		return &StorageError{Path: fs.SessionPath(id), Op: "put", Err: errors.Join(ErrWriteFailed, err)}
	}

	index, err := fs.LoadIndex()
	if err != nil {
		return fs.wrap("put", err)
	}

	entry := SessionIndexEntry{
		ID:           id,
		URLID:        urlID,
		Description:  description,
		Timestamp:    item.Timestamp,
		MessageCount: len(item.Messages),
	}

	// Update or add entry in index
	found := false
	for i, existing := range index.Sessions {
		if existing.ID == id {
			index.Sessions[i] = entry
			found = true
			break
		}
	}
	if !found {
		index.Sessions = append(index.Sessions, entry)
	}
	index.Metadata.UpdatedAt = now

	if err := fs.saveIndex(index); err != nil {
		return &StorageError{Path: fs.IndexPath(), Op: "put", Err: errors.Join(ErrWriteFailed, err)}
	}
	return nil
}

// List loads every chat in the index, newest first
func (fs *FileStore) List(ctx context.Context) ([]ChatHistoryItem, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	index, err := fs.LoadIndex()
	if err != nil {
		return nil, fs.wrap("list", err)
	}

	items := make([]ChatHistoryItem, 0, len(index.Sessions))
	for _, entry := range index.Sessions {
		item, err := fs.load(entry.ID)
		if err != nil {
			// Log but continue
			LogWarn("Skipping chat %s: %v", entry.ID, err)
			continue
		}
		items = append(items, *item)
	}

	sortByTimestamp(items)
	return items, nil
}

// Close is a no-op; every write is flushed before Put returns
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) wrap(op string, err error) error {
	return &StorageError{Path: fs.dir, Op: op, Err: err}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
