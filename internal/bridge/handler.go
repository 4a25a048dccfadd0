// Package bridge serves the streaming chat API the web client talks to. It relays every request to
// an inference provider and writes the reply as "data: " records followed by a [DONE] sentinel.
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

const doneSentinel = "[DONE]"

// Provider streams chat replies from an inference server.
type Provider interface {
	Chat(ctx context.Context, model string, messages []models.HistoryMessage) iter.Seq2[string, error]
	Models(ctx context.Context) ([]string, error)
}

// Config configures a Handler.
type Config struct {
	// APIKey, when set, must match the X-API-Key header of every request.
	APIKey string
	// DefaultModel is used for requests that name no model.
	DefaultModel string
}

// Handler serves the chat stream and model listing endpoints.
type Handler struct {
	provider Provider
	cfg      Config
	logger   *zap.Logger
}

// NewHandler creates a Handler relaying to provider.
func NewHandler(provider Provider, cfg Config, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handler{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("module", "bridge")),
	}
}

// Routes mounts the endpoints under prefix, such as "/api".
func (h Handler) Routes(prefix string) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	mux.HandleFunc(services.JoinURL(prefix, services.ChatStreamPath), h.HandleChatStream)
	mux.HandleFunc(services.JoinURL(prefix, "/models"), h.HandleModels)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (h Handler) authorized(r *http.Request) bool {
	if h.cfg.APIKey == "" {
		return true
	}
	got := r.Header.Get(services.APIKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.APIKey)) == 1
}

// HandleChatStream relays a ChatRequest to the provider. Failures before the first fragment are
// answered with an error status; failures after it are written as an error record.
func (h Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	for _, m := range req.History {
		if !m.Role.Valid() {
			http.Error(w, "invalid history role", http.StatusBadRequest)
			return
		}
	}
	model := req.Model
	if model == "" {
		model = h.cfg.DefaultModel
	}
	if model == "" {
		http.Error(w, "model is required", http.StatusBadRequest)
		return
	}

	h.logger.Info("Relaying chat",
		zap.String("model", model),
		zap.Int("history", len(req.History)),
	)

	next, stop := iter.Pull2(h.provider.Chat(r.Context(), model, req.Conversation()))
	defer stop()

	// The status is committed by the upgrade, so the first item is read before it: a provider that
	// fails before any content is answered with 502.
	fragment, err, ok := next()
	if ok && err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("Provider failed", zap.String("model", model), zap.Error(err))
		http.Error(w, "upstream provider failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fragments := 0
	for ; ok; fragment, err, ok = next() {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.logger.Error("Provider failed", zap.String("model", model), zap.Error(err))
			if err := h.send(sess, models.StreamRecord{Error: err.Error()}); err != nil {
				return
			}
			break
		}
		if err := h.send(sess, models.StreamRecord{Content: fragment}); err != nil {
			h.logger.Debug("Client went away", zap.Error(err))
			return
		}
		fragments++
	}

	if err := h.sendData(sess, doneSentinel); err != nil {
		h.logger.Debug("Failed to send done", zap.Error(err))
		return
	}
	h.logger.Debug("Chat relayed", zap.Int("fragments", fragments))
}

func (h Handler) send(sess *sse.Session, rec models.StreamRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.sendData(sess, string(b))
}

func (h Handler) sendData(sess *sse.Session, data string) error {
	e := &sse.Message{}
	e.AppendData(data)
	if err := sess.Send(e); err != nil {
		return err
	}
	return sess.Flush()
}

// HandleModels lists the models of the provider as {"models": [...]}.
func (h Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	names, err := h.provider.Models(r.Context())
	if err != nil {
		h.logger.Error("Failed to list models", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if names == nil {
		names = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Models []string `json:"models"`
	}{names}); err != nil {
		h.logger.Error("Failed to encode models", zap.Error(err))
	}
}
