package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
)

var testHistory = []models.HistoryMessage{
	{Role: models.RoleUser, Content: "hola"},
}

func drain(t *testing.T, seq func(func(string, error) bool)) (string, error) {
	t.Helper()
	var sb strings.Builder
	for fragment, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(fragment)
	}
	return sb.String(), nil
}

func TestOllamaChat(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, part := range []string{"Ho", "la", ""} {
			fmt.Fprintf(w, `{"model":"llama3.2","message":{"role":"assistant","content":%q},"done":%t}`+"\n",
				part, part == "")
		}
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, nil)
	require.NoError(t, err)

	got, err := drain(t, o.Chat(context.Background(), "llama3.2", testHistory))
	require.NoError(t, err)
	assert.Equal(t, "Hola", got)
	assert.Equal(t, "llama3.2", gotModel)
}

func TestOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3.2:latest"},{"name":"mistral:latest"}]}`)
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, nil)
	require.NoError(t, err)

	names, err := o.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "mistral:latest"}, names)
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Bue", "nas"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := NewOpenAI("key", srv.URL+"/v1", []string{"local"}, nil)

	got, err := drain(t, o.Chat(context.Background(), "local", testHistory))
	require.NoError(t, err)
	assert.Equal(t, "Buenas", got)

	names, err := o.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"local"}, names)
}

func TestOpenAIChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOpenAI("key", srv.URL+"/v1", nil, nil)

	_, err := drain(t, o.Chat(context.Background(), "local", testHistory))
	require.Error(t, err)
}

func TestAnthropicChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, 1024, req.MaxTokens)
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, part := range []string{"Bue", "nas"} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":%q}}\n\n", part)
		}
		_, _ = io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"ignored\"}}\n\n")
	}))
	defer srv.Close()

	a := NewAnthropic("key", srv.URL+"/v1", 0, []string{"claude-test"}, nil)

	got, err := drain(t, a.Chat(context.Background(), "claude-test", testHistory))
	require.NoError(t, err)
	assert.Equal(t, "Buenas", got)

	names, err := a.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-test"}, names)
}

func TestAnthropicChatError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		partial string
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
			},
		},
		{
			name: "error event",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"Hi\"}}\n\n")
				_, _ = io.WriteString(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
			},
			partial: "Hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a := NewAnthropic("key", srv.URL, 0, nil, nil)

			got, err := drain(t, a.Chat(context.Background(), "claude-test", testHistory))
			require.Error(t, err)
			assert.Equal(t, tt.partial, got)
		})
	}
}
