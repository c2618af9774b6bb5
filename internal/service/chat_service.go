package service

import (
	"context"
	"errors"

	"persona-chat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatService stores chats, their messages and votes
type ChatService struct {
	db *gorm.DB
}

// NewChatService creates a new chat service
func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

// GetChatByID retrieves a chat by id
func (s *ChatService) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

// ListChats returns a user's chats, newest first
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	chats := []models.Chat{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}

// SaveChat inserts chat unless a chat with that id already exists, and returns the stored row.
// A stored chat owned by a different user yields ErrChatForbidden.
func (s *ChatService) SaveChat(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	db := s.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(chat).Error; err != nil {
		return nil, err
	}

	stored, err := s.GetChatByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if stored.UserID != chat.UserID {
		return nil, ErrChatForbidden
	}
	return stored, nil
}

// ownedChat loads a chat and checks that userID owns it
func (s *ChatService) ownedChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatForbidden
	}
	return chat, nil
}

// readableChat loads a chat the user owns or that is public.
// Anything else is reported as not found so private chats do not leak.
func (s *ChatService) readableChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID && chat.Visibility != models.VisibilityPublic {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// DeleteChat removes a chat with its votes and messages
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID string) error {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&models.Chat{}).Error
	})
}

// UpdateVisibility changes who can read a chat
func (s *ChatService) UpdateVisibility(ctx context.Context, chatID, userID string, visibility models.Visibility) (*models.Chat, error) {
	if !visibility.Valid() {
		return nil, ErrInvalidVisibility
	}

	chat, err := s.ownedChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(chat).Update("visibility", visibility).Error; err != nil {
		return nil, err
	}
	chat.Visibility = visibility
	return chat, nil
}

// SaveMessages inserts messages in one statement
func (s *ChatService) SaveMessages(ctx context.Context, messages ...*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(messages).Error
}

// ListMessages returns a chat's messages in order without access checks
func (s *ChatService) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// GetMessages returns the messages of a chat the user may read
func (s *ChatService) GetMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	if _, err := s.readableChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.ListMessages(ctx, chatID)
}

// GetMessageByID retrieves a message by id
func (s *ChatService) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// DeleteTrailingMessages removes the given message and everything after it in its chat.
// It returns the number of messages deleted.
func (s *ChatService) DeleteTrailingMessages(ctx context.Context, messageID, userID string) (int64, error) {
	message, err := s.GetMessageByID(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if _, err := s.ownedChat(ctx, message.ChatID, userID); err != nil {
		return 0, err
	}

	var deleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trailing := tx.Model(&models.Message{}).
			Select("id").
			Where("chat_id = ? AND created_at >= ?", message.ChatID, message.CreatedAt)

		if err := tx.Where("chat_id = ? AND message_id IN (?)", message.ChatID, trailing).
			Delete(&models.Vote{}).Error; err != nil {
			return err
		}

		res := tx.Where("chat_id = ? AND created_at >= ?", message.ChatID, message.CreatedAt).
			Delete(&models.Message{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// GetVotes lists the votes of a chat the user may read
func (s *ChatService) GetVotes(ctx context.Context, chatID, userID string) ([]models.Vote, error) {
	if _, err := s.readableChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	votes := []models.Vote{}
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&votes).Error
	return votes, err
}

// Vote records the owner's up or down vote on a message, replacing any earlier vote
func (s *ChatService) Vote(ctx context.Context, userID string, req models.VoteRequest) (*models.Vote, error) {
	upvote, ok := req.Upvote()
	if !ok {
		return nil, ErrInvalidVote
	}

	if _, err := s.ownedChat(ctx, req.ChatID, userID); err != nil {
		return nil, err
	}

	vote := models.Vote{ChatID: req.ChatID, MessageID: req.MessageID, IsUpvoted: upvote}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_upvoted"}),
	}).Create(&vote).Error
	if err != nil {
		return nil, err
	}
	return &vote, nil
}
