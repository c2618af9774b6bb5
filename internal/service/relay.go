package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"persona-chat/backend/ai"
	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/observability"

	"github.com/google/uuid"
)

// Relay event types, in the order a successful turn emits them
const (
	EventUserMessageID      = "user-message-id"
	EventAssistantMessageID = "assistant-message-id"
	EventText               = "text"
	EventDone               = "done"
	EventError              = "error"
)

// GenericRelayError is the only failure detail ever shown to the client
const GenericRelayError = "An error occurred while processing your message."

// Event is one relay notification sent to the client
type Event struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Sink receives relay events for one client connection
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// Processor is the external service that writes assistant replies
type Processor interface {
	ProcessMessage(ctx context.Context, req ai.ProcessRequest) (*ai.AssistantMessage, error)
	GenerateTitle(ctx context.Context, message string) string
}

// RelayConfig configures the chat relay
type RelayConfig struct {
	Models       []string
	DefaultModel string
	SystemPrompt string
	// Timeout bounds the processor call and the assistant save, independent of the client
	Timeout time.Duration
}

// RelayRequest is one chat turn submitted by a client
type RelayRequest struct {
	ChatID   string
	UserID   string
	ModelID  string
	Messages []models.ClientMessage
}

// Turn is a validated request whose user message has been stored
type Turn struct {
	Chat        *models.Chat
	UserID      string
	ModelID     string
	UserMessage *models.Message
	History     []ai.HistoryMessage
	transport   string
	started     time.Time
}

// Relay moves chat turns between clients and the message processor
type Relay struct {
	chats     *ChatService
	processor Processor
	titles    *TitleGenerator
	metrics   *observability.RelayMetrics
	cfg       RelayConfig
}

// NewRelay creates the chat relay
func NewRelay(chats *ChatService, processor Processor, titles *TitleGenerator, metrics *observability.RelayMetrics, cfg RelayConfig) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DefaultModel == "" && len(cfg.Models) > 0 {
		cfg.DefaultModel = cfg.Models[0]
	}
	return &Relay{
		chats:     chats,
		processor: processor,
		titles:    titles,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Models returns the selectable model ids
func (r *Relay) Models() []string {
	return slices.Clone(r.cfg.Models)
}

// DefaultModel returns the model used when a client does not pick one
func (r *Relay) DefaultModel() string {
	return r.cfg.DefaultModel
}

// HasModel reports whether id is a configured model
func (r *Relay) HasModel(id string) bool {
	return slices.Contains(r.cfg.Models, id)
}

// ToCoreMessages keeps the user and assistant turns of a client message list
func ToCoreMessages(messages []models.ClientMessage) []ai.HistoryMessage {
	out := make([]ai.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem || m.Role == models.RoleData {
			continue
		}
		out = append(out, ai.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// MostRecentUserMessage returns the last user message, if any
func MostRecentUserMessage(messages []ai.HistoryMessage) (ai.HistoryMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i], true
		}
	}
	return ai.HistoryMessage{}, false
}

// Prepare validates a turn, creates the chat on first use and stores the user message.
// Errors returned here happen before anything is streamed.
func (r *Relay) Prepare(ctx context.Context, req RelayRequest, transport string) (*Turn, error) {
	started := time.Now()

	modelID := req.ModelID
	if modelID == "" {
		modelID = r.cfg.DefaultModel
	}
	if !r.HasModel(modelID) {
		return nil, ErrUnknownModel
	}

	core := ToCoreMessages(req.Messages)
	userMessage, ok := MostRecentUserMessage(core)
	if !ok {
		return nil, ErrNoUserMessage
	}

	chat, err := r.chats.GetChatByID(ctx, req.ChatID)
	switch {
	case errors.Is(err, ErrChatNotFound):
		title := r.titles.Title(ctx, req.ChatID, userMessage.Content)
		chat, err = r.chats.SaveChat(ctx, &models.Chat{ID: req.ChatID, UserID: req.UserID, Title: title})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case chat.UserID != req.UserID:
		return nil, ErrChatForbidden
	}

	history := core
	if len(core) == 1 {
		// The client sent only the new message; use the stored conversation as context
		stored, err := r.chats.ListMessages(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			history = make([]ai.HistoryMessage, 0, len(stored)+1)
			for _, m := range stored {
				history = append(history, ai.HistoryMessage{Role: m.Role, Content: m.Content})
			}
			history = append(history, userMessage)
		}
	}

	stored := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Role:      models.RoleUser,
		Content:   userMessage.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.chats.SaveMessages(ctx, stored); err != nil {
		return nil, err
	}

	return &Turn{
		Chat:        chat,
		UserID:      req.UserID,
		ModelID:     modelID,
		UserMessage: stored,
		History:     history,
		transport:   transport,
		started:     started,
	}, nil
}

// Stream runs the processor call for a prepared turn and reports progress to sink.
// The processor call and the assistant save outlive a cancelled client context.
// Sink failures are logged once and do not stop the turn.
func (r *Relay) Stream(ctx context.Context, turn *Turn, sink Sink) (*models.Message, error) {
	log := logger.FromContext(ctx).WithUserID(turn.UserID)
	sinkFailed := false
	emit := func(eventType string, content any) {
		r.metrics.Event(ctx, eventType)
		if sinkFailed || sink == nil {
			return
		}
		if err := sink.Send(ctx, Event{Type: eventType, Content: content}); err != nil {
			sinkFailed = true
			log.Warn("Client went away during relay", "chat_id", turn.Chat.ID, "error", err.Error())
		}
	}

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	emit(EventUserMessageID, turn.UserMessage.ID)

	reply, err := r.processor.ProcessMessage(workCtx, ai.ProcessRequest{
		UserMessage:    turn.UserMessage.Content,
		ChatID:         turn.Chat.ID,
		UserID:         turn.UserID,
		MessageHistory: turn.History,
		SystemPrompt:   r.cfg.SystemPrompt,
	})
	if err != nil {
		return nil, r.fail(ctx, turn, log, emit, err)
	}

	assistant := &models.Message{
		ID:        reply.ID,
		ChatID:    turn.Chat.ID,
		Role:      models.RoleAssistant,
		Content:   reply.Content,
		CreatedAt: reply.Timestamp(),
	}
	if _, err := uuid.Parse(assistant.ID); err != nil {
		assistant.ID = uuid.NewString()
	}
	if !assistant.CreatedAt.After(turn.UserMessage.CreatedAt) {
		assistant.CreatedAt = time.Now().UTC()
	}

	emit(EventAssistantMessageID, assistant.ID)
	emit(EventText, assistant.Content)

	if err := r.chats.SaveMessages(workCtx, assistant); err != nil {
		return nil, r.fail(ctx, turn, log, emit, err)
	}

	emit(EventDone, nil)
	r.metrics.Turn(ctx, turn.transport, time.Since(turn.started), true)

	return assistant, nil
}

func (r *Relay) fail(ctx context.Context, turn *Turn, log *logger.Logger, emit func(string, any), err error) error {
	log.LogError(err, "Error processing message", "chat_id", turn.Chat.ID, "model", turn.ModelID)
	emit(EventError, GenericRelayError)
	r.metrics.Turn(ctx, turn.transport, time.Since(turn.started), false)
	return err
}
