package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// Streaming states of a rendered message.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)

type message struct {
	ID      string
	Role    string
	Content template.HTML
	Clock   string

	StreamingState string
}

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
)

var templateFuncs = template.FuncMap{
	"isAssistant": func(role string) bool { return role == string(models.RoleAssistant) },
}

func (m *Main) renderMessage(msg models.Message, streamingState string) (message, error) {
	content, err := models.RenderMessage(msg)
	if err != nil {
		return message{}, err
	}
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        content,
		Clock:          msg.Clock(),
		StreamingState: streamingState,
	}, nil
}

// renderMessages renders every message of s. Only the trailing placeholder of an in-flight
// submission is marked as loading or streaming.
func (m *Main) renderMessages(s State) ([]message, error) {
	msgs := make([]message, len(s.Messages))
	for i, msg := range s.Messages {
		state := StreamingStateEnded
		if s.Loading && i == len(s.Messages)-1 && msg.Role == models.RoleAssistant {
			state = StreamingStateStreaming
			if msg.Content == "" {
				state = StreamingStateLoading
			}
		}
		rm, err := m.renderMessage(msg, state)
		if err != nil {
			return nil, err
		}
		msgs[i] = rm
	}
	return msgs, nil
}

// publishMessage sends the rendered body of msg to the page waiting for it.
func (m *Main) publishMessage(msg models.Message) {
	content, err := models.RenderMessage(msg)
	if err != nil {
		m.logger.Error("Failed to render message", zap.String("id", msg.ID), zap.Error(err))
		return
	}

	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(string(content))
	if err := m.sseSrv.Publish(e, messageIDTopic(msg.ID)); err != nil {
		m.logger.Debug("Failed to publish message", zap.String("id", msg.ID), zap.Error(err))
	}
}

func (m *Main) publishClose(messageID string) {
	e := &sse.Message{Type: closeMessageSSEType}
	e.AppendData("bye")
	if err := m.sseSrv.Publish(e, messageIDTopic(messageID)); err != nil {
		m.logger.Debug("Failed to publish close", zap.String("id", messageID), zap.Error(err))
	}
}

// HandleChats submits the "message" form field. For the first message of a conversation it renders
// the whole chat box, otherwise the user message and the assistant placeholder, which the page then
// fills from the SSE stream of the placeholder.
//
// Blank messages are answered with 400 and submissions made while a reply is streaming with 409; the
// conversation is unchanged in both cases.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	isNewChat := m.conv.Len() == 0

	user, placeholder, err := m.Submit(r.FormValue("message"))
	switch {
	case errors.Is(err, ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		m.logger.Error("Failed to submit message", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if isNewChat {
		msgs, err := m.renderMessages(m.State())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := m.templates.ExecuteTemplate(w, "chatbox", chatboxData{Messages: msgs}); err != nil {
			m.logger.Error("Failed to render chatbox", zap.Error(err))
		}
		return
	}

	um, err := m.renderMessage(user, StreamingStateEnded)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	am, err := m.renderMessage(placeholder, StreamingStateLoading)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "user_message", um); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(&sb, "ai_message", am); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(sb.String()))
}

// HandleClear starts a new conversation and renders the empty chat box.
func (m *Main) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.Clear()

	if err := m.templates.ExecuteTemplate(w, "chatbox", chatboxData{Suggestions: suggestions}); err != nil {
		m.logger.Error("Failed to render chatbox", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleModel selects the model named by the "model" form field.
func (m *Main) HandleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := m.SelectModel(r.Context(), r.FormValue("model"))
	switch {
	case errors.Is(err, ErrUnknownModel):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		m.logger.Error("Failed to select model", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleState writes the controller snapshot as JSON.
func (m *Main) HandleState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.State()); err != nil {
		m.logger.Error("Failed to encode state", zap.Error(err))
	}
}

// HandleSSE serves the server-sent events stream of the page.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// HandleHealth reports that the server is up.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
