package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateSQLiteFixture creates a chats database file with one sample chat
func CreateSQLiteFixture(t *testing.T, dbPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(ChatsSchema); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	messages := JSONMarshal(t, []map[string]string{
		{"id": "u1", "role": "user", "content": "Hello world"},
		{"id": "a1", "role": "assistant", "content": "Hi!"},
	})

	insertSQL := "INSERT INTO chats (id, url_id, description, messages, timestamp) VALUES (?, ?, ?, ?, ?)"
	if _, err := db.Exec(insertSQL, "1", "hello-world", "Test Conversation", string(messages), "2024-05-01T10:00:00Z"); err != nil {
		t.Fatalf("Failed to insert chat: %v", err)
	}
}

// TextFrame encodes a text delta line
func TextFrame(t *testing.T, text string) string {
	t.Helper()
	return "0:" + string(JSONMarshal(t, text)) + "\n"
}

// ErrorFrame encodes an error line
func ErrorFrame(t *testing.T, message string) string {
	t.Helper()
	return "3:" + string(JSONMarshal(t, message)) + "\n"
}

// FinishFrame encodes a finish line with the given reason and usage
func FinishFrame(reason string, promptTokens, completionTokens int) string {
	return fmt.Sprintf(`d:{"finishReason":%q,"usage":{"promptTokens":%d,"completionTokens":%d}}`+"\n",
		reason, promptTokens, completionTokens)
}

// FrameStream joins text deltas and a stop finish into one response body
func FrameStream(t *testing.T, deltas ...string) string {
	t.Helper()
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(TextFrame(t, d))
	}
	b.WriteString(FinishFrame("stop", 10, len(deltas)))
	return b.String()
}

// CreateFileStoreFixture writes one session file and its index into dir
func CreateFileStoreFixture(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create store directory: %v", err)
	}

	item := map[string]any{
		"id":          "3",
		"urlId":       "weather-widget",
		"description": "Weather widget",
		"messages": []map[string]string{
			{"id": "u1", "role": "user", "content": "weather widget please"},
		},
		"timestamp": "2024-05-01T10:00:00Z",
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session_3.json"), data, 0644); err != nil {
		t.Fatalf("Failed to write session file: %v", err)
	}

	index := "sessions:\n  - id: \"3\"\n    url_id: weather-widget\n    description: Weather widget\n    timestamp: \"2024-05-01T10:00:00Z\"\n    message_count: 1\nmetadata:\n  version: \"1.0\"\n"
	if err := os.WriteFile(filepath.Join(dir, "sessions.yaml"), []byte(index), 0644); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}
}
