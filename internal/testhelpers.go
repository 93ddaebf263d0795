package internal

import (
	"time"
)

// CreateTestChat creates a chat item with the given messages
func CreateTestChat(id string, messages []ChatMessage) ChatHistoryItem {
	return ChatHistoryItem{
		ID:        id,
		Messages:  messages,
		Timestamp: formatTimestamp(time.Now()),
	}
}

// CreateTestTranscript creates a two-turn transcript with one artifact
func CreateTestTranscript() []ChatMessage {
	return []ChatMessage{
		{ID: "u1", Role: RoleUser, Content: "Build a todo app"},
		{
			ID:   "a1",
			Role: RoleAssistant,
			Content: "Sure.\n" +
				`<boltArtifact id="todo-app" title="Todo App">` +
				`<boltAction type="file" filePath="index.html"><ul></ul></boltAction>` +
				`</boltArtifact>`,
		},
	}
}
