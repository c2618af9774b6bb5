package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visibility controls who may read a chat
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleData      = "data"
)

// Chat is a conversation owned by one user
type Chat struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string     `gorm:"index;type:varchar(36);not null" json:"userId"`
	Title      string     `gorm:"not null" json:"title"`
	Visibility Visibility `gorm:"size:16;not null;default:private" json:"visibility"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}

// BeforeCreate fills in defaults for new chats
func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityPrivate
	}
	c.CreatedAt = utcOrNow(c.CreatedAt)
	return nil
}

// Message is one turn of a chat
type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChatID    string    `gorm:"index:idx_message_chat_created,priority:1;type:varchar(36);not null" json:"chatId"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_message_chat_created,priority:2" json:"createdAt"`
}

// BeforeCreate assigns an id when the caller did not supply one
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = utcOrNow(m.CreatedAt)
	return nil
}

// utcOrNow keeps stored timestamps in one zone so they order correctly as text in sqlite
func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Vote is a user's rating of an assistant message
type Vote struct {
	ChatID    string `gorm:"primaryKey;type:varchar(36)" json:"chatId"`
	MessageID string `gorm:"primaryKey;type:varchar(36)" json:"messageId"`
	IsUpvoted bool   `gorm:"not null" json:"isUpvoted"`
}

// ClientMessage is a message as sent by the chat UI
type ClientMessage struct {
	ID        string     `json:"id,omitempty"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ChatRequest is the body of POST /chat/api/chat and of websocket frames
type ChatRequest struct {
	ID       string          `json:"id" binding:"required"`
	Messages []ClientMessage `json:"messages" binding:"required"`
	ModelID  string          `json:"modelId"`
}

// ChatResponse is the non-streaming reply of the chat relay
type ChatResponse struct {
	UserMessageID    string   `json:"userMessageId"`
	AssistantMessage *Message `json:"assistantMessage"`
}

// VisibilityRequest changes a chat's visibility
type VisibilityRequest struct {
	ChatID     string     `json:"chatId" binding:"required"`
	Visibility Visibility `json:"visibility" binding:"required"`
}

// VoteRequest rates a message. Either Value (1 or -1) or Type ("up" or "down") is set.
type VoteRequest struct {
	ChatID    string `json:"chatId" binding:"required"`
	MessageID string `json:"messageId" binding:"required"`
	Value     int    `json:"value,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Upvote resolves the request into an upvote flag
func (r VoteRequest) Upvote() (bool, bool) {
	switch {
	case r.Type == "up" || (r.Type == "" && r.Value == 1):
		return true, true
	case r.Type == "down" || (r.Type == "" && r.Value == -1):
		return false, true
	default:
		return false, false
	}
}

// ModelRequest selects the chat model
type ModelRequest struct {
	ModelID string `json:"modelId" binding:"required"`
}
