package models

// HistoryMessage is the reduced form of a Message sent to the inference backend.
type HistoryMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload of POST {base}/chat/stream. It is built fresh for every submission.
type ChatRequest struct {
	Message string           `json:"message"`
	Model   string           `json:"model"`
	History []HistoryMessage `json:"history"`
}

// StreamRecord is the structured record carried by a "data: " line of the response stream. Only
// Content is consumed by the chat; Error is written by the bridge when the upstream provider fails
// after the stream has started.
type StreamRecord struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Conversation converts the request into the full message sequence sent to a provider: the history
// followed by the new user message.
func (r ChatRequest) Conversation() []HistoryMessage {
	msgs := make([]HistoryMessage, 0, len(r.History)+1)
	msgs = append(msgs, r.History...)
	return append(msgs, HistoryMessage{Role: RoleUser, Content: r.Message})
}
