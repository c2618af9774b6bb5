package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"
	apperrors "persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024
)

const (
	rateLimitedMessage = "Too many requests. Please try again later."
	busyMessage        = "A message is already being processed"
)

var errClientClosed = errors.New("websocket client closed")

// FrameLimiter meters chat frames per key. *middleware.RateLimiter satisfies it,
// so a websocket turn draws from the same bucket as the user's HTTP requests.
type FrameLimiter interface {
	Allow(key string) bool
}

// Frame is the envelope of every websocket message in both directions
type Frame struct {
	Type    string          `json:"type"`
	ChatID  string          `json:"chatId,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type outFrame struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId,omitempty"`
	Content any    `json:"content"`
}

// ChatRelay is the part of the relay a websocket client drives
type ChatRelay interface {
	Prepare(ctx context.Context, req service.RelayRequest, transport string) (*service.Turn, error)
	Stream(ctx context.Context, turn *service.Turn, sink service.Sink) (*models.Message, error)
}

// Client is one websocket connection of an authenticated user
type Client struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
	relay   ChatRelay
	limiter FrameLimiter
	log     *logger.Logger

	// inFlight holds while a chat turn runs; one turn per connection
	inFlight atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// ReadPump reads chat frames until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.done:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected websocket close", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendFrame(outFrame{Type: service.EventError, Content: "Invalid message format"})
			continue
		}

		switch frame.Type {
		case "ping":
			c.sendFrame(outFrame{Type: "pong", Content: time.Now().Unix()})
		case "chat":
			var req models.ChatRequest
			if err := json.Unmarshal(frame.Content, &req); err != nil || req.ID == "" {
				c.sendFrame(outFrame{Type: service.EventError, Content: "Invalid chat request"})
				continue
			}
			if c.limiter != nil && !c.limiter.Allow(middleware.UserKey(c.UserID)) {
				c.log.Warn("Websocket rate limit exceeded", "client_id", c.ID, "chat_id", req.ID)
				c.sendFrame(outFrame{Type: service.EventError, ChatID: req.ID, Content: rateLimitedMessage})
				continue
			}
			if !c.inFlight.CompareAndSwap(false, true) {
				c.sendFrame(outFrame{Type: service.EventError, ChatID: req.ID, Content: busyMessage})
				continue
			}
			go func() {
				defer c.inFlight.Store(false)
				c.handleChat(req)
			}()
		default:
			c.sendFrame(outFrame{Type: service.EventError, Content: "Unknown message type"})
		}
	}
}

func (c *Client) handleChat(req models.ChatRequest) {
	ctx := c.ctx
	turn, err := c.relay.Prepare(ctx, service.RelayRequest{
		ChatID:   req.ID,
		UserID:   c.UserID,
		ModelID:  req.ModelID,
		Messages: req.Messages,
	}, "websocket")
	if err != nil {
		c.log.LogError(err, "Websocket chat rejected", "chat_id", req.ID)
		c.sendFrame(outFrame{Type: service.EventError, ChatID: req.ID, Content: rejectMessage(err)})
		return
	}

	sink := service.SinkFunc(func(_ context.Context, e service.Event) error {
		return c.sendFrame(outFrame{Type: e.Type, ChatID: req.ID, Content: e.Content})
	})
	_, _ = c.relay.Stream(ctx, turn, sink)
}

func rejectMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNoUserMessage):
		return "No user message found"
	case errors.Is(err, service.ErrUnknownModel):
		return "Model not found"
	case errors.Is(err, service.ErrChatForbidden):
		return "Unauthorized"
	default:
		return service.GenericRelayError
	}
}

func (c *Client) sendFrame(frame outFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	case c.Send <- data:
		return nil
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler upgrades authenticated requests to websocket chat connections
type Handler struct {
	hub      *Hub
	relay    ChatRelay
	limiter  FrameLimiter
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket endpoint handler. A nil limiter leaves
// chat frames unmetered.
func NewHandler(hub *Hub, relay ChatRelay, limiter FrameLimiter, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		hub:     hub,
		relay:   relay,
		limiter: limiter,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(allowedOrigins),
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes mounts the websocket endpoint behind session auth
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/chat/api/ws", requireAuth, h.ServeWs)
}

// ServeWs expects the session middleware to have set the user id
func (h *Handler) ServeWs(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		_ = c.Error(apperrors.NewUnauthorizedError(apperrors.CodeAuthRequired, "Unauthorized"))
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "Error upgrading connection")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.FromGin(c).WithUserID(userID)
	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:    make(chan []byte, 256),
		Hub:     h.hub,
		relay:   h.relay,
		limiter: h.limiter,
		log:     log,
		done:    make(chan struct{}),
		ctx:     logger.NewContext(ctx, log),
		cancel:  cancel,
	}

	if !h.hub.add(client) {
		client.close()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
