package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	llamawebui "github.com/MegaGrindStone/llama-web-ui"
	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// DefaultErrorMessage replaces an assistant message that received no content because the request
// failed.
const DefaultErrorMessage = "❌ Error de conexión. Verifica que Ollama esté corriendo."

var (
	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is required")
	// ErrBusy is returned by Submit while a previous submission is still in flight.
	ErrBusy = errors.New("a response is still streaming")
	// ErrUnknownModel is returned by SelectModel for a model that is not offered.
	ErrUnknownModel = errors.New("unknown model")
)

// Stream is an open response of the inference backend.
type Stream interface {
	Fragments() iter.Seq2[string, error]
	Close() error
}

// Backend opens a streaming chat response. Open returns once the backend answered with a success
// status, and fails without reading a body otherwise.
type Backend interface {
	Open(ctx context.Context, req models.ChatRequest) (Stream, error)
}

// Preferences stores UI preferences that outlive the process.
type Preferences interface {
	SelectedModel(ctx context.Context) (string, error)
	SetSelectedModel(ctx context.Context, model string) error
}

// ModelOption is an entry of the model selector.
type ModelOption struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Config configures Main.
type Config struct {
	// Models are offered in the model selector. When empty any model identifier is accepted.
	Models []ModelOption
	// DefaultModel is selected when no preference is stored.
	DefaultModel string
	// ErrorMessage replaces DefaultErrorMessage when set.
	ErrorMessage string
}

// Main is the controller of the chat. It owns the conversation and the phase of the current
// submission, runs the stream consumer, and pushes every change of a message to the browser through
// server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	backend Backend
	prefs   Preferences
	logger  *zap.Logger

	models       []ModelOption
	errorMessage string

	conv *models.Conversation

	mu    sync.Mutex
	phase Phase
	model string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// State is a snapshot of the controller.
type State struct {
	Phase    Phase            `json:"phase"`
	Loading  bool             `json:"loading"`
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
}

// NewMain creates a new Main. prefs may be nil. The selected model is read from prefs, falling back
// to cfg.DefaultModel and then to the first offered model.
func NewMain(cfg Config, backend Backend, prefs Preferences, logger *zap.Logger) (*Main, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(
		llamawebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	errorMessage := cfg.ErrorMessage
	if errorMessage == "" {
		errorMessage = DefaultErrorMessage
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// Updates of a single message are only sent to the page that is waiting for it.
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates:    tmpl,
		backend:      backend,
		prefs:        prefs,
		logger:       logger.With(zap.String("module", "chat")),
		models:       cfg.Models,
		errorMessage: errorMessage,
		conv:         models.NewConversation(nil),
		phase:        PhaseIdle,
		ctx:          ctx,
		cancel:       cancel,
	}

	m.model = m.initialModel(cfg.DefaultModel)

	return m, nil
}

func (m *Main) initialModel(fallback string) string {
	if m.prefs != nil {
		stored, err := m.prefs.SelectedModel(m.ctx)
		if err != nil {
			m.logger.Warn("Failed to read selected model", zap.Error(err))
		} else if stored != "" && m.offers(stored) {
			return stored
		}
	}
	if fallback != "" {
		return fallback
	}
	if len(m.models) > 0 {
		return m.models[0].ID
	}
	return ""
}

func (m *Main) offers(model string) bool {
	if len(m.models) == 0 {
		return true
	}
	return slices.ContainsFunc(m.models, func(o ModelOption) bool { return o.ID == model })
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// Submit appends text as a user message followed by an empty assistant placeholder, and starts
// streaming the reply into the placeholder. Blank text and submissions made while a reply is still
// streaming are rejected and leave the conversation unchanged.
func (m *Main) Submit(text string) (models.Message, models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, models.Message{}, ErrEmptyMessage
	}

	m.mu.Lock()
	if m.phase.Loading() {
		m.mu.Unlock()
		return models.Message{}, models.Message{}, ErrBusy
	}
	next, err := m.phase.Next(PhaseAwaitingResponse)
	if err != nil {
		m.mu.Unlock()
		return models.Message{}, models.Message{}, err
	}
	m.phase = next

	// The history is taken before the new entries: the new message travels in its own field and the
	// placeholder is never sent.
	req := models.ChatRequest{
		Message: text,
		Model:   m.model,
		History: m.conv.History(),
	}
	user := m.conv.AppendUser(text)
	placeholder := m.conv.AppendPlaceholder()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("Submitting message",
		zap.String("model", req.Model),
		zap.Int("history", len(req.History)),
		zap.String("placeholder", placeholder.ID),
	)

	go m.consume(req, placeholder.ID)

	return user, placeholder, nil
}

// consume streams the reply to req into the placeholder with the given ID.
func (m *Main) consume(req models.ChatRequest, placeholderID string) {
	defer m.wg.Done()

	outcome := PhaseFailed
	defer func() {
		m.settle(outcome)
		m.publishClose(placeholderID)
	}()

	start := time.Now()

	stream, err := m.backend.Open(m.ctx, req)
	if err != nil {
		m.fail(placeholderID, err)
		return
	}
	defer stream.Close()

	m.advance(PhaseStreaming)

	fragments := 0
	for fragment, err := range stream.Fragments() {
		if err != nil {
			m.fail(placeholderID, err)
			return
		}

		msg, ok := m.conv.AppendFragment(placeholderID, fragment)
		if !ok {
			// The conversation was cleared; the stream still runs to its end.
			continue
		}
		fragments++
		m.advance(PhaseStreaming)
		m.publishMessage(msg)
	}

	outcome = PhaseDone
	m.logger.Info("Response completed",
		zap.String("placeholder", placeholderID),
		zap.Int("fragments", fragments),
		zap.Duration("duration", time.Since(start)),
	)
}

func (m *Main) advance(to Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.phase.Next(to)
	if err != nil {
		m.logger.Warn("Ignoring phase change", zap.Error(err))
		return
	}
	m.phase = next
}

// settle ends the submission. It always leaves a non-loading phase behind.
func (m *Main) settle(outcome Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.phase.Next(outcome)
	if err != nil {
		next = PhaseFailed
	}
	m.phase = next
}

func (m *Main) fail(placeholderID string, err error) {
	m.logger.Error("Chat request failed",
		zap.String("placeholder", placeholderID),
		zap.Error(err),
	)

	msg, ok := m.conv.FailPlaceholder(placeholderID, m.errorMessage)
	if !ok {
		return
	}
	m.publishMessage(msg)
}

// Clear discards the conversation. A reply that is still streaming keeps running, but its fragments
// are dropped.
func (m *Main) Clear() {
	m.conv.Clear()
	m.logger.Info("Conversation cleared")
}

// SelectModel changes the model used by the next submission and stores it as a preference.
func (m *Main) SelectModel(ctx context.Context, model string) error {
	if model == "" || !m.offers(model) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	m.mu.Lock()
	m.model = model
	m.mu.Unlock()

	if m.prefs != nil {
		if err := m.prefs.SetSelectedModel(ctx, model); err != nil {
			return fmt.Errorf("failed to store selected model: %w", err)
		}
	}
	return nil
}

// State returns a snapshot of the controller.
func (m *Main) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		Phase:    m.phase,
		Loading:  m.phase.Loading(),
		Model:    m.model,
		Messages: m.conv.Messages(),
	}
}

// Wait blocks until every started submission has settled.
func (m *Main) Wait() {
	m.wg.Wait()
}

// Shutdown broadcasts a close message to all connected clients, cancels running submissions and
// waits up to 5 seconds for connections to terminate.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	e.AppendData("bye")
	_ = m.sseSrv.Publish(e)

	m.cancel()
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// HTTPBackend adapts the streaming chat client to Backend.
func HTTPBackend(b services.Backend) Backend {
	return httpBackend{b}
}

type httpBackend struct {
	services.Backend
}

func (b httpBackend) Open(ctx context.Context, req models.ChatRequest) (Stream, error) {
	s, err := b.Backend.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}
