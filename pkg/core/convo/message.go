package convo

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a conversation transcript. Messages are immutable
// once appended; the transcript copies slices on the way in and out.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Sources are citation strings attached to an assistant reply.
	Sources []string `json:"sources,omitempty"`

	// ToolUsed records which server-side tool produced an assistant reply.
	ToolUsed string `json:"tool_used,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func cloneSources(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	out := make([]string, len(sources))
	copy(out, sources)
	return out
}
