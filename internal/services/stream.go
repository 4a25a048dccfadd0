package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"go.uber.org/zap"
)

const (
	eventDataPrefix = "data: "
	eventDone       = "[DONE]"

	// APIKeyHeader carries the static credential when one is configured.
	APIKeyHeader = "X-API-Key"
)

// ErrNoStream is returned when the backend answered without a readable body.
var ErrNoStream = errors.New("no response stream available")

// StatusError is returned when the backend answers with a non-success status. The body is not read.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// BackendConfig configures a Backend.
type BackendConfig struct {
	// BaseURL is the absolute root of the inference API, see ResolveBaseURL.
	BaseURL string
	// APIKey, when set, is attached to every request in the X-API-Key header.
	APIKey string
	// HTTPClient defaults to a client without timeout: a streaming response may take arbitrarily long.
	HTTPClient *http.Client
}

// Backend is the transport of the chat: it submits a ChatRequest to POST {base}/chat/stream and
// exposes the response as a sequence of content fragments.
type Backend struct {
	baseURL string
	apiKey  string

	client *http.Client
	logger *zap.Logger
}

// NewBackend creates a Backend from cfg.
func NewBackend(cfg BackendConfig, logger *zap.Logger) Backend {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Backend{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger.With(zap.String("module", "backend")),
	}
}

// Endpoint returns the URL the chat requests are sent to.
func (b Backend) Endpoint() string {
	return JoinURL(b.baseURL, ChatStreamPath)
}

// Open sends req and returns the response stream once the backend answered with a success status.
// The caller must Close the returned stream.
func (b Backend) Open(ctx context.Context, req models.ChatRequest) (*EventStream, error) {
	if req.History == nil {
		req.History = []models.HistoryMessage{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set(APIKeyHeader, b.apiKey)
	}

	b.logger.Debug("Sending chat request",
		zap.String("url", httpReq.URL.String()),
		zap.String("model", req.Model),
		zap.Int("history", len(req.History)),
	)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	// An empty 200 body is a valid, empty stream.
	if resp.Body == nil {
		return nil, ErrNoStream
	}

	return &EventStream{body: resp.Body, logger: b.logger}, nil
}

// Chat sends req and yields the content fragments of the response. A failure to open the stream is
// yielded as the only error.
func (b Backend) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := b.Open(ctx, req)
		if err != nil {
			yield("", err)
			return
		}
		defer stream.Close()

		for fragment, err := range stream.Fragments() {
			if !yield(fragment, err) {
				return
			}
		}
	}
}

// EventStream is an open response of the chat endpoint.
type EventStream struct {
	body   io.ReadCloser
	logger *zap.Logger
}

// Close releases the response body.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// Fragments reads the body until end-of-stream and yields every content fragment in order. A line
// split across reads is assembled before it is parsed, so multi-byte characters are never cut. Lines
// that carry no content are skipped, and a read error is yielded once before iteration stops. The
// [DONE] sentinel does not end the iteration; only the end of the body does.
func (s *EventStream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		r := bufio.NewReader(s.body)
		for {
			line, readErr := r.ReadString('\n')
			if line != "" {
				fragment, kind := parseEventLine(line)
				switch kind {
				case lineContent:
					if !yield(fragment, nil) {
						return
					}
				case lineMalformed:
					s.logger.Debug("Skipping malformed line", zap.String("line", strings.TrimSpace(line)))
				}
			}

			if readErr == nil {
				continue
			}
			if !errors.Is(readErr, io.EOF) {
				yield("", fmt.Errorf("error reading response: %w", readErr))
			}
			return
		}
	}
}

type lineKind int

const (
	lineIgnored lineKind = iota
	lineDone
	lineMalformed
	lineEmpty
	lineContent
)

// ParseEventLine extracts the content fragment carried by one line of the response stream. It reports
// false for lines without the "data: " prefix, for the [DONE] sentinel, for data that is not a JSON
// record and for records without content.
func ParseEventLine(line string) (string, bool) {
	fragment, kind := parseEventLine(line)
	return fragment, kind == lineContent
}

func parseEventLine(line string) (string, lineKind) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.ToValidUTF8(line, "\uFFFD")

	data, ok := strings.CutPrefix(line, eventDataPrefix)
	if !ok {
		return "", lineIgnored
	}
	if data == eventDone {
		return "", lineDone
	}

	var rec struct {
		Content any `json:"content"`
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", lineMalformed
	}
	content, ok := scalarContent(rec.Content)
	if !ok {
		return "", lineEmpty
	}
	return content, lineContent
}

// scalarContent converts a decoded content value to text. Empty strings, zero, false, null and
// structured values carry no content.
func scalarContent(v any) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, c != ""
	case float64:
		if c == 0 || math.IsNaN(c) {
			return "", false
		}
		if math.Abs(c) < 1e21 {
			return strconv.FormatFloat(c, 'f', -1, 64), true
		}
		return strconv.FormatFloat(c, 'g', -1, 64), true
	case bool:
		return "true", c
	default:
		return "", false
	}
}
