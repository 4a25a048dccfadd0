package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an individual entry within the conversation. It contains the participant's role,
// the text content and the time the message was created. The ID routes live updates of a message to the
// browser and is never sent to the inference backend.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message generated by the model. While a request is in flight the
	// last assistant message is the placeholder being filled.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

func newMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
}

// Clock formats the message timestamp the way the chat shows it, as a two digit hour and minute.
func (m Message) Clock() string {
	return m.Timestamp.Format("15:04")
}
