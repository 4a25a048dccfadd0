package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Ollama relays chat conversations to an Ollama server. It backs the bridge's /chat/stream endpoint
// and lists the locally installed models for the model selector.
type Ollama struct {
	client *api.Client
	logger *zap.Logger
}

// NewOllama creates a new Ollama instance for host. An empty host uses the OLLAMA_HOST environment
// variable and then Ollama's default address.
func NewOllama(host string, logger *zap.Logger) (Ollama, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("module", "ollama"))

	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return Ollama{}, fmt.Errorf("error creating ollama client: %w", err)
		}
		return Ollama{client: client, logger: logger}, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		client: api.NewClient(u, &http.Client{}),
		logger: logger,
	}, nil
}

// Chat streams the reply of model to messages. The returned iterator yields response fragments in
// order and stops after the first error.
func (o Ollama) Chat(ctx context.Context, model string, messages []models.HistoryMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, len(messages))
		for i, msg := range messages {
			msgs[i] = api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		t := true
		req := api.ChatRequest{
			Model:    model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		o.logger.Debug("Chat request", zap.String("model", model), zap.Int("messages", len(msgs)))

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

// Models lists the names of the models installed on the Ollama server.
func (o Ollama) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	names := make([]string, len(res.Models))
	for i, m := range res.Models {
		names[i] = m.Name
	}
	return names, nil
}
