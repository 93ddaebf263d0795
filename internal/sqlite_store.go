package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const chatsSchema = `
CREATE TABLE IF NOT EXISTS chats (
	id          TEXT PRIMARY KEY,
	url_id      TEXT UNIQUE,
	description TEXT,
	messages    TEXT NOT NULL,
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_url_id ON chats(url_id);
`

// SQLiteStorePath returns the default database path under dataDir
func SQLiteStorePath(dataDir string) string {
	return filepath.Join(dataDir, "chats.db")
}

// SQLiteStore keeps chats in a single sqlite table
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	lastID int64
	now    func() time.Time
}

// OpenDatabase opens a SQLite database in read-only mode
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// OpenSQLiteStore opens (creating if needed) the chats database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, &StorageError{Path: path, Op: "open", Err: errors.Join(ErrStorageUnavailable, err)}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: errors.Join(ErrStorageUnavailable, err)}
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: errors.Join(ErrStorageUnavailable, err)}
	}
	store.path = path
	return store, nil
}

// NewSQLiteStore wraps an open database and ensures the chats schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrStorageUnavailable
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(chatsSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the underlying handle for read-only inspection
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// AllocateNextID returns the next numeric chat id
func (s *SQLiteStore) AllocateNextID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", ErrStorageUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chats")
	if err != nil {
		return "", s.wrap("allocate", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", s.wrap("allocate", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", s.wrap("allocate", err)
	}

	s.lastID = nextNumericID(ids, s.lastID)
	return strconv.FormatInt(s.lastID, 10), nil
}

// AllocateURLID returns the first free slug derived from seed
func (s *SQLiteStore) AllocateURLID(ctx context.Context, seed string) (string, error) {
	if s.db == nil {
		return "", ErrStorageUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for candidate := range urlIDCandidates(seed) {
		var n int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats WHERE url_id = ?", candidate).Scan(&n)
		if err != nil {
			return "", s.wrap("allocate", err)
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", nil
}

// Get returns the chat with the given id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ChatHistoryItem, error) {
	return s.getBy(ctx, "id", id)
}

// GetByURLID returns the chat with the given urlId
func (s *SQLiteStore) GetByURLID(ctx context.Context, urlID string) (*ChatHistoryItem, error) {
	return s.getBy(ctx, "url_id", urlID)
}

func (s *SQLiteStore) getBy(ctx context.Context, column, value string) (*ChatHistoryItem, error) {
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}

	query := "SELECT id, url_id, description, messages, timestamp FROM chats WHERE " + column + " = ?"
	item, err := scanItem(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StorageError{Path: s.path, Op: "get", Err: fmt.Errorf("%s %q: %w", column, value, ErrNotFound)}
	}
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return item, nil
}

// Put upserts a chat
func (s *SQLiteStore) Put(ctx context.Context, id string, messages []ChatMessage, urlID, description string) error {
	if s.db == nil {
		return ErrStorageUnavailable
	}

	data, err := json.Marshal(cloneMessages(messages))
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, url_id, description, messages, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url_id = excluded.url_id,
			description = excluded.description,
			messages = excluded.messages,
			timestamp = excluded.timestamp`,
		id, nullString(urlID), description, string(data), formatTimestamp(s.now()))
	if err != nil {
		return &StorageError{Path: s.path, Op: "put", Err: errors.Join(ErrWriteFailed, err)}
	}
	return nil
}

// List returns every chat, newest first
func (s *SQLiteStore) List(ctx context.Context) ([]ChatHistoryItem, error) {
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, url_id, description, messages, timestamp FROM chats")
	if err != nil {
		return nil, s.wrap("list", err)
	}
	defer rows.Close()

	items := make([]ChatHistoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			// Log error but continue
			LogWarn("Skipping unreadable chat row: %v", err)
			continue
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list", err)
	}

	sortByTimestamp(items)
	return items, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) wrap(op string, err error) error {
	return &StorageError{Path: s.path, Op: op, Err: err}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*ChatHistoryItem, error) {
	var (
		item        ChatHistoryItem
		urlID       sql.NullString
		description sql.NullString
		messages    string
	)
	if err := row.Scan(&item.ID, &urlID, &description, &messages, &item.Timestamp); err != nil {
		return nil, err
	}
	item.URLID = urlID.String
	item.Description = description.String

	parsed, err := ParseIncomingMessages([]byte(messages))
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", item.ID, err)
	}
	item.Messages = parsed
	return &item, nil
}

// nullString keeps empty urlIds out of the unique index
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
