package internal

import (
	"strings"
	"time"
)

// Role is the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two roles the chat model accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage represents one message of a chat transcript.
// For a live assistant message Content is the rendered projection of the
// parsed reply and is overwritten on every update.
type ChatMessage struct {
	ID      string `json:"id" yaml:"id"`
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ChatHistoryItem represents a persisted chat session
type ChatHistoryItem struct {
	ID          string        `json:"id" yaml:"id"`
	URLID       string        `json:"urlId,omitempty" yaml:"url_id,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Messages    []ChatMessage `json:"messages" yaml:"messages"`
	Timestamp   string        `json:"timestamp" yaml:"timestamp"`
}

// Address returns the /chat/{id} address of the item, preferring the urlId.
func (h *ChatHistoryItem) Address() string {
	if h.URLID != "" {
		return ChatAddress(h.URLID)
	}
	return ChatAddress(h.ID)
}

// GetTimestamp returns a time.Time from the timestamp
func (h *ChatHistoryItem) GetTimestamp() time.Time {
	t, err := time.Parse(time.RFC3339Nano, h.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Title returns the description, or a placeholder for untitled chats.
func (h *ChatHistoryItem) Title() string {
	if h.Description == "" {
		return "Untitled Chat"
	}
	return h.Description
}

// ChatAddress builds the address of a chat from its id or urlId.
func ChatAddress(id string) string {
	return "/chat/" + id
}

// ValidateDescription trims a user-supplied description and checks its length.
func ValidateDescription(description string) (string, error) {
	trimmed := strings.TrimSpace(description)
	n := len([]rune(trimmed))
	if n < 2 || n > 60 {
		return "", &ValidationError{Field: "description", Err: ErrDescriptionLength}
	}
	return trimmed, nil
}

// formatTimestamp formats a write time the way items are persisted
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
