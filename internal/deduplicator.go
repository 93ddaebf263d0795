package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Deduplicator removes chats whose transcripts are identical
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first chat of every group with the same transcript
func (d *Deduplicator) Deduplicate(items []ChatHistoryItem) []ChatHistoryItem {
	seen := make(map[string]bool)
	unique := make([]ChatHistoryItem, 0, len(items))

	for _, item := range items {
		hash := TranscriptDigest(item.Messages)
		if !seen[hash] {
			seen[hash] = true
			unique = append(unique, item)
		}
	}

	return unique
}

// TranscriptDigest hashes roles and contents of messages.
// Message ids are not part of the digest.
func TranscriptDigest(messages []ChatMessage) string {
	h := sha256.New()

	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// ItemDigest extends TranscriptDigest with the fields a Put would write
func ItemDigest(id, urlID, description string, messages []ChatMessage) string {
	h := sha256.New()
	for _, field := range []string{id, urlID, description, TranscriptDigest(messages)} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
