package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// ChatsSchema mirrors the table created by the sqlite chat store
const ChatsSchema = `
CREATE TABLE IF NOT EXISTS chats (
	id          TEXT PRIMARY KEY,
	url_id      TEXT UNIQUE,
	description TEXT,
	messages    TEXT NOT NULL,
	timestamp   TEXT NOT NULL
)`

// CreateInMemoryDB creates an in-memory SQLite database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// every connection to :memory: is a fresh database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ChatsSchema); err != nil {
		db.Close()
		t.Fatalf("Failed to create chats table: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateTestDB creates a test database with sample chats
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	chats := []struct {
		id          string
		urlID       any
		description string
		messages    string
		timestamp   string
	}{
		{
			id:          "1",
			urlID:       "todo-app",
			description: "Todo app",
			messages:    `[{"id":"u1","role":"user","content":"build a todo app"},{"id":"a1","role":"assistant","content":"Sure."}]`,
			timestamp:   "2024-05-01T10:00:00Z",
		},
		{
			id:          "2",
			urlID:       nil,
			description: "",
			messages:    `[{"id":"u2","role":"user","content":"hello"}]`,
			timestamp:   "2024-05-02T10:00:00Z",
		},
		{
			id:          "7",
			urlID:       "landing-page",
			description: "Landing page",
			messages:    `[{"role":"system","content":"dropped"},{"role":"user","content":"make a landing page"}]`,
			timestamp:   "2024-05-03T10:00:00Z",
		},
	}

	stmt, err := db.Prepare("INSERT INTO chats (id, url_id, description, messages, timestamp) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()

	for _, c := range chats {
		if _, err := stmt.Exec(c.id, c.urlID, c.description, c.messages, c.timestamp); err != nil {
			t.Fatalf("Failed to insert chat %s: %v", c.id, err)
		}
	}

	return db
}

// InsertChat inserts a raw chat row into the database
func InsertChat(t *testing.T, db *sql.DB, id, urlID, messages string) {
	t.Helper()
	var url any
	if urlID != "" {
		url = urlID
	}
	insertSQL := "INSERT INTO chats (id, url_id, description, messages, timestamp) VALUES (?, ?, '', ?, '2024-01-01T00:00:00Z')"
	if _, err := db.Exec(insertSQL, id, url, messages); err != nil {
		t.Fatalf("Failed to insert chat: %v", err)
	}
}
