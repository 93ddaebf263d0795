package internal

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// messageNamespace seeds the name-based ids assigned to messages that arrive without one.
var messageNamespace = uuid.MustParse("6f1c7a52-5d0e-4c55-9a0b-3f8e2f3b7c11")

// rawMessage is the loosely typed shape messages have before validation
type rawMessage struct {
	ID      *string          `json:"id"`
	Role    *string          `json:"role"`
	Content *json.RawMessage `json:"content"`
}

// ParseIncomingMessages is the single validation boundary for message lists
// that come from outside the controller (stored items, request bodies).
//
// Entries that are not objects, have a role other than user/assistant, or
// whose content is not a string are dropped. Entries without an id get a
// name-based UUID derived from role, position and content, so parsing the
// same payload twice yields the same ids.
func ParseIncomingMessages(data []byte) ([]ChatMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse message list: %w", err)
	}

	messages := make([]ChatMessage, 0, len(entries))
	for i, entry := range entries {
		msg, err := normalizeMessage(i, entry)
		if err != nil {
			LogDebug("%v", &ParseAnomaly{Source: "message", Input: string(entry), Err: err})
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// NormalizeMessages applies the same rules to already typed messages.
func NormalizeMessages(in []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(in))
	for i, msg := range in {
		if !msg.Role.Valid() {
			LogDebug("Dropping message %d with role %q", i, msg.Role)
			continue
		}
		if msg.ID == "" {
			msg.ID = deterministicID(i, string(msg.Role), msg.Content)
		}
		out = append(out, msg)
	}
	return out
}

// normalizeMessage converts one raw entry to a ChatMessage
func normalizeMessage(index int, entry json.RawMessage) (ChatMessage, error) {
	var raw rawMessage
	if err := json.Unmarshal(entry, &raw); err != nil {
		return ChatMessage{}, fmt.Errorf("not a message object: %w", err)
	}

	if raw.Role == nil || !Role(*raw.Role).Valid() {
		return ChatMessage{}, fmt.Errorf("unsupported role")
	}

	if raw.Content == nil {
		return ChatMessage{}, fmt.Errorf("missing content")
	}
	var content string
	if err := json.Unmarshal(*raw.Content, &content); err != nil {
		return ChatMessage{}, fmt.Errorf("content is not a string")
	}

	id := ""
	if raw.ID != nil {
		id = *raw.ID
	}
	if id == "" {
		id = deterministicID(index, *raw.Role, content)
	}

	return ChatMessage{
		ID:      id,
		Role:    Role(*raw.Role),
		Content: content,
	}, nil
}

func deterministicID(index int, role, content string) string {
	name := role + ":" + strconv.Itoa(index) + ":" + content
	return uuid.NewSHA1(messageNamespace, []byte(name)).String()
}
