package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"
	apperrors "persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ModelCookie remembers the model the user picked
const ModelCookie = "model-id"

const modelCookieMaxAge = 365 * 24 * 60 * 60

// ChatHandler serves the chat relay and chat/message/vote management
type ChatHandler struct {
	relay         *service.Relay
	chats         *service.ChatService
	secureCookies bool
}

func NewChatHandler(relay *service.Relay, chats *service.ChatService, secureCookies bool) *ChatHandler {
	return &ChatHandler{relay: relay, chats: chats, secureCookies: secureCookies}
}

// RegisterRoutes mounts the chat endpoints. Every route requires a session.
func (h *ChatHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	chat := r.Group("/chat/api", requireAuth)
	chat.POST("/chat", h.Chat)
	chat.DELETE("/chat", h.DeleteChat)
	chat.PATCH("/chat/visibility", h.UpdateVisibility)
	chat.GET("/history", h.History)
	chat.DELETE("/messages/trailing", h.DeleteTrailingMessages)
	chat.GET("/vote", h.GetVotes)
	chat.POST("/vote", h.Vote)
	chat.GET("/models", h.GetModels)
	chat.POST("/models", h.SelectModel)

	r.GET("/api/chat/messages", requireAuth, h.GetMessages)
}

// Chat relays one turn to the message processor.
// The reply is streamed as server-sent events unless the client asks for JSON.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID, _ = c.Cookie(ModelCookie)
	}

	wantJSON := wantsJSON(c)
	transport := "sse"
	if wantJSON {
		transport = "json"
	}

	ctx := c.Request.Context()
	turn, err := h.relay.Prepare(ctx, service.RelayRequest{
		ChatID:   req.ID,
		UserID:   middleware.UserID(c),
		ModelID:  modelID,
		Messages: req.Messages,
	}, transport)
	if err != nil {
		abortWith(c, err)
		return
	}

	if wantJSON {
		assistant, err := h.relay.Stream(ctx, turn, nil)
		if err != nil {
			_ = c.Error(apperrors.NewInternalServerError(apperrors.CodeUpstream, service.GenericRelayError).Wrap(err))
			return
		}
		c.JSON(http.StatusOK, models.ChatResponse{
			UserMessageID:    turn.UserMessage.ID,
			AssistantMessage: assistant,
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	_, _ = h.relay.Stream(ctx, turn, sseSink(c))
}

func wantsJSON(c *gin.Context) bool {
	if c.Query("stream") == "false" {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/event-stream")
}

// sseSink writes each event as one "data:" line and flushes it
func sseSink(c *gin.Context) service.Sink {
	return service.SinkFunc(func(ctx context.Context, event service.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
}

// DeleteChat removes a chat with its messages and votes
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, "Missing chat id", nil)
		return
	}

	if err := h.chats.DeleteChat(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.String(http.StatusOK, "Chat deleted successfully")
}

// History lists the user's chats, newest first
func (h *ChatHandler) History(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) UpdateVisibility(c *gin.Context) {
	var req models.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatId and visibility are required", err)
		return
	}

	chat, err := h.chats.UpdateVisibility(c.Request.Context(), req.ChatID, middleware.UserID(c), req.Visibility)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// DeleteTrailingMessages drops the given message and everything after it
func (h *ChatHandler) DeleteTrailingMessages(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, "Missing message id", nil)
		return
	}

	deleted, err := h.chats.DeleteTrailingMessages(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// GetMessages lists the messages of a chat the user owns or that is public
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		badRequest(c, "Missing chatId", nil)
		return
	}

	messages, err := h.chats.GetMessages(c.Request.Context(), chatID, middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) GetVotes(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		badRequest(c, "Missing chatId", nil)
		return
	}

	votes, err := h.chats.GetVotes(c.Request.Context(), chatID, middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

func (h *ChatHandler) Vote(c *gin.Context) {
	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatId and messageId are required", err)
		return
	}

	vote, err := h.chats.Vote(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, vote)
}

// GetModels lists the configured models and the current selection
func (h *ChatHandler) GetModels(c *gin.Context) {
	selected, _ := c.Cookie(ModelCookie)
	if !h.relay.HasModel(selected) {
		selected = h.relay.DefaultModel()
	}
	c.JSON(http.StatusOK, gin.H{
		"models":   h.relay.Models(),
		"selected": selected,
	})
}

// SelectModel stores the chosen model in a cookie
func (h *ChatHandler) SelectModel(c *gin.Context) {
	var req models.ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "modelId is required", err)
		return
	}
	if !h.relay.HasModel(req.ModelID) {
		abortWith(c, service.ErrUnknownModel)
		return
	}

	logger.FromGin(c).Debug("Model selected", "model_id", req.ModelID)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ModelCookie, req.ModelID, modelCookieMaxAge, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"modelId": req.ModelID})
}
