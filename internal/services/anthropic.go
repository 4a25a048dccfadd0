package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// Anthropic relays chat conversations to the Anthropic Messages API.
type Anthropic struct {
	apiKey    string
	baseURL   string
	maxTokens int
	models    []string

	client *http.Client
	logger *zap.Logger
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint    = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	anthropicDefaultMaxToks = 1024
)

// NewAnthropic creates a new Anthropic instance. An empty baseURL uses the public endpoint and a
// non-positive maxTokens uses 1024. available is the list returned by Models.
func NewAnthropic(apiKey, baseURL string, maxTokens int, available []string, logger *zap.Logger) Anthropic {
	if baseURL == "" {
		baseURL = anthropicAPIEndpoint
	}
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxToks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Anthropic{
		apiKey:    apiKey,
		baseURL:   baseURL,
		maxTokens: maxTokens,
		models:    available,
		client:    &http.Client{},
		logger:    logger.With(zap.String("module", "anthropic")),
	}
}

// Chat streams the reply of model to messages. The returned iterator yields response fragments in
// order and stops after the first error.
func (a Anthropic) Chat(ctx context.Context, model string, messages []models.HistoryMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]anthropicMessage, len(messages))
		for i, msg := range messages {
			msgs[i] = anthropicMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		jsonBody, err := json.Marshal(anthropicChatRequest{
			Model:     model,
			Messages:  msgs,
			MaxTokens: a.maxTokens,
			Stream:    true,
		})
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			JoinURL(a.baseURL, "/messages"), bytes.NewReader(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		a.logger.Debug("Chat request", zap.String("model", model), zap.Int("messages", len(msgs)))

		resp, err := a.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var e anthropicError
			if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Message != "" {
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			}
			yield("", &StatusError{Code: resp.StatusCode})
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				if res.Delta.Text == "" {
					continue
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			}
		}
	}
}

// Models returns the configured model list.
func (a Anthropic) Models(context.Context) ([]string, error) {
	return a.models, nil
}
