package models

import (
	"sync"
	"time"
)

// Conversation is the ordered sequence of messages shown in the chat. Insertion order is the
// chronological order and the rendering order. Only the trailing assistant placeholder is mutated
// after creation, and only while a request is in flight.
//
// The zero value is an empty conversation ready to use.
type Conversation struct {
	mu       sync.Mutex
	messages []Message

	now func() time.Time
}

// NewConversation returns an empty conversation that stamps messages with now. A nil now uses
// time.Now.
func NewConversation(now func() time.Time) *Conversation {
	return &Conversation{now: now}
}

func (c *Conversation) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// AppendUser appends a user message holding text and returns it.
func (c *Conversation) AppendUser(text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := newMessage(RoleUser, text, c.clock())
	c.messages = append(c.messages, m)
	return m
}

// AppendPlaceholder appends an empty assistant message and returns it.
func (c *Conversation) AppendPlaceholder() Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := newMessage(RoleAssistant, "", c.clock())
	c.messages = append(c.messages, m)
	return m
}

// AppendFragment appends fragment to the content of the last message, in place. The fragment is
// dropped and false returned when the last message is not the assistant message with the given ID,
// which happens when the conversation was cleared while a stream was still running.
func (c *Conversation) AppendFragment(id, fragment string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.placeholder(id)
	if !ok {
		return Message{}, false
	}
	last.Content += fragment
	return *last, true
}

// FailPlaceholder sets the content of the placeholder with the given ID to text, but only while the
// placeholder is still empty. Partial output that already streamed is kept.
func (c *Conversation) FailPlaceholder(id, text string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.placeholder(id)
	if !ok || last.Content != "" {
		return Message{}, false
	}
	last.Content = text
	return *last, true
}

func (c *Conversation) placeholder(id string) (*Message, bool) {
	if len(c.messages) == 0 {
		return nil, false
	}
	last := &c.messages[len(c.messages)-1]
	if last.Role != RoleAssistant || last.ID != id {
		return nil, false
	}
	return last, true
}

// Clear discards every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = nil
}

// Messages returns a copy of the messages in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// History returns the role and content of every message, in order, as sent to the backend.
func (c *Conversation) History() []HistoryMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]HistoryMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = HistoryMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Last returns the last message, if any.
func (c *Conversation) Last() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.messages)
}
