package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTitle is used when a title cannot be generated and no other fallback is configured
const DefaultTitle = "New Chat"

var (
	// ErrProcessorRejected means the processor answered with status "error"
	ErrProcessorRejected = errors.New("processor reported an error")
	// ErrEmptyReply means the processor succeeded without an assistant message
	ErrEmptyReply = errors.New("processor returned no assistant message")
)

// StatusError is a non-2xx answer from the processor
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("processor returned %d: %s", e.StatusCode, e.Body)
}

// HistoryMessage is one prior turn sent as context
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProcessRequest is the body of POST /process-message
type ProcessRequest struct {
	UserMessage    string           `json:"user_message"`
	ChatID         string           `json:"chat_id"`
	UserID         string           `json:"user_id"`
	MessageHistory []HistoryMessage `json:"message_history"`
	SystemPrompt   string           `json:"system_prompt,omitempty"`
}

// AssistantMessage is the reply produced by the processor
type AssistantMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	ChatID    string `json:"chat_id"`
}

// Timestamp parses CreatedAt, returning the zero time when it is absent or malformed
func (m AssistantMessage) Timestamp() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, m.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ProcessResponse is the body returned by POST /process-message
type ProcessResponse struct {
	Status           string            `json:"status"`
	UserMessage      *AssistantMessage `json:"user_message,omitempty"`
	AssistantMessage *AssistantMessage `json:"assistant_message,omitempty"`
	Error            string            `json:"error,omitempty"`
}

type titleRequest struct {
	Message string `json:"message"`
}

type titleResponse struct {
	Title string `json:"title"`
}

// ProcessorConfig configures the processor client
type ProcessorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker resilience.Config
	// FallbackTitle replaces DefaultTitle when set
	FallbackTitle string
}

// ProcessorClient talks to the external message-processing service
type ProcessorClient struct {
	client        *http.Client
	baseURL       string
	apiKey        string
	fallbackTitle string
	breaker       *resilience.CircuitBreaker
	tracer        trace.Tracer
	log           *logger.Logger
}

// NewProcessorClient creates a client for the processor at cfg.BaseURL
func NewProcessorClient(cfg ProcessorConfig, log *logger.Logger) *ProcessorClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 55 * time.Second
	}
	if strings.TrimSpace(cfg.FallbackTitle) == "" {
		cfg.FallbackTitle = DefaultTitle
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = resilience.DefaultConfig("message-processor")
	}
	// A 4xx is our request's fault, not the processor's health
	cfg.Breaker.IsFailure = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode >= 500
		}
		return !errors.Is(err, context.Canceled)
	}

	return &ProcessorClient{
		client:        &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		fallbackTitle: cfg.FallbackTitle,
		breaker:       resilience.NewCircuitBreaker(cfg.Breaker, log),
		tracer:        otel.Tracer("persona-chat/processor"),
		log:           log,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (c *ProcessorClient) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// ProcessMessage forwards a user message with its history and returns the assistant reply
func (c *ProcessorClient) ProcessMessage(ctx context.Context, req ProcessRequest) (*AssistantMessage, error) {
	ctx, span := c.tracer.Start(ctx, "processor.process_message", trace.WithAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.Int("chat.history_length", len(req.MessageHistory)),
	))
	defer span.End()

	if req.MessageHistory == nil {
		req.MessageHistory = []HistoryMessage{}
	}

	var resp ProcessResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/process-message", req, &resp)
	})
	if err == nil && resp.Status == "error" {
		err = fmt.Errorf("%w: %s", ErrProcessorRejected, resp.Error)
	}
	if err == nil && resp.AssistantMessage == nil {
		err = ErrEmptyReply
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContext(ctx).LogError(err, "Message processor call failed", "chat_id", req.ChatID)
		return nil, err
	}

	return resp.AssistantMessage, nil
}

// GenerateTitle asks the processor for a short chat title. Failures yield the fallback title.
func (c *ProcessorClient) GenerateTitle(ctx context.Context, message string) string {
	ctx, span := c.tracer.Start(ctx, "processor.generate_title")
	defer span.End()

	var resp titleResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/generate-title", titleRequest{Message: message}, &resp)
	})
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn("Title generation failed, using default", "error", err.Error())
		return c.fallbackTitle
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		return c.fallbackTitle
	}
	return title
}

func (c *ProcessorClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return &StatusError{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
