package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAI relays chat conversations to an OpenAI-compatible chat completion API, such as llama.cpp's
// server, LM Studio or vLLM.
type OpenAI struct {
	models []string

	client *goopenai.Client
	logger *zap.Logger
}

// NewOpenAI creates a new OpenAI instance. baseURL may be empty to use the OpenAI endpoint. available
// is the list returned by Models, since compatible servers rarely implement model listing.
func NewOpenAI(apiKey, baseURL string, available []string, logger *zap.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return OpenAI{
		models: available,
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With(zap.String("module", "openai")),
	}
}

// Chat streams the reply of model to messages. The returned iterator yields response fragments in
// order and stops after the first error.
func (o OpenAI) Chat(ctx context.Context, model string, messages []models.HistoryMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]goopenai.ChatCompletionMessage, len(messages))
		for i, msg := range messages {
			msgs[i] = goopenai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		o.logger.Debug("Chat request", zap.String("model", model), zap.Int("messages", len(msgs)))

		stream, err := o.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
			Model:    model,
			Messages: msgs,
			Stream:   true,
		})
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			if content := response.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

// Models returns the configured model list.
func (o OpenAI) Models(context.Context) ([]string, error) {
	return o.models, nil
}
