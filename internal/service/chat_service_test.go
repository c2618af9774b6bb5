package service

import (
	"context"
	"testing"
	"time"

	"persona-chat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChat(t *testing.T, chats *ChatService, chatID, userID string, contents ...string) []*models.Message {
	t.Helper()
	ctx := context.Background()

	_, err := chats.SaveChat(ctx, &models.Chat{ID: chatID, UserID: userID, Title: "Seeded"})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	out := make([]*models.Message, 0, len(contents))
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out = append(out, &models.Message{ChatID: chatID, Role: role, Content: content, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, chats.SaveMessages(ctx, out...))
	return out
}

func TestSaveChatIsIdempotent(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()

	first, err := chats.SaveChat(ctx, &models.Chat{ID: "chat-1", UserID: "u1", Title: "First"})
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPrivate, first.Visibility)

	again, err := chats.SaveChat(ctx, &models.Chat{ID: "chat-1", UserID: "u1", Title: "Second"})
	require.NoError(t, err)
	assert.Equal(t, "First", again.Title)

	_, err = chats.SaveChat(ctx, &models.Chat{ID: "chat-1", UserID: "u2", Title: "Stolen"})
	assert.ErrorIs(t, err, ErrChatForbidden)
}

func TestListChatsNewestFirst(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := chats.SaveChat(ctx, &models.Chat{ID: "old", UserID: "u1", Title: "Old", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = chats.SaveChat(ctx, &models.Chat{ID: "new", UserID: "u1", Title: "New", CreatedAt: now})
	require.NoError(t, err)
	_, err = chats.SaveChat(ctx, &models.Chat{ID: "other", UserID: "u2", Title: "Other"})
	require.NoError(t, err)

	list, err := chats.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestDeleteChat(t *testing.T) {
	db := newTestDB(t)
	chats := NewChatService(db)
	ctx := context.Background()
	msgs := seedChat(t, chats, "chat-1", "owner", "hi", "hello")
	_, err := chats.Vote(ctx, "owner", models.VoteRequest{ChatID: "chat-1", MessageID: msgs[1].ID, Type: "up"})
	require.NoError(t, err)

	assert.ErrorIs(t, chats.DeleteChat(ctx, "missing", "owner"), ErrChatNotFound)
	assert.ErrorIs(t, chats.DeleteChat(ctx, "chat-1", "intruder"), ErrChatForbidden)

	require.NoError(t, chats.DeleteChat(ctx, "chat-1", "owner"))

	_, err = chats.GetChatByID(ctx, "chat-1")
	assert.ErrorIs(t, err, ErrChatNotFound)

	var messages, votes int64
	db.Model(&models.Message{}).Where("chat_id = ?", "chat-1").Count(&messages)
	db.Model(&models.Vote{}).Where("chat_id = ?", "chat-1").Count(&votes)
	assert.Zero(t, messages)
	assert.Zero(t, votes)
}

func TestGetMessagesAccess(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()
	seedChat(t, chats, "chat-1", "owner", "first", "second", "third")

	msgs, err := chats.GetMessages(ctx, "chat-1", "owner")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})

	_, err = chats.GetMessages(ctx, "chat-1", "stranger")
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = chats.GetMessages(ctx, "missing", "owner")
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = chats.UpdateVisibility(ctx, "chat-1", "owner", models.VisibilityPublic)
	require.NoError(t, err)

	msgs, err = chats.GetMessages(ctx, "chat-1", "stranger")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestGetMessagesEmptyChat(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	seedChat(t, chats, "chat-1", "owner")

	msgs, err := chats.GetMessages(context.Background(), "chat-1", "owner")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestUpdateVisibilityValidation(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()
	seedChat(t, chats, "chat-1", "owner")

	_, err := chats.UpdateVisibility(ctx, "chat-1", "owner", "friends")
	assert.ErrorIs(t, err, ErrInvalidVisibility)

	_, err = chats.UpdateVisibility(ctx, "chat-1", "stranger", models.VisibilityPublic)
	assert.ErrorIs(t, err, ErrChatForbidden)
}

func TestDeleteTrailingMessages(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()
	msgs := seedChat(t, chats, "chat-1", "owner", "q1", "a1", "q2", "a2")

	_, err := chats.DeleteTrailingMessages(ctx, msgs[2].ID, "stranger")
	assert.ErrorIs(t, err, ErrChatForbidden)

	deleted, err := chats.DeleteTrailingMessages(ctx, msgs[2].ID, "owner")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	left, err := chats.ListMessages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "a1", left[1].Content)

	_, err = chats.DeleteTrailingMessages(ctx, "missing", "owner")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestVoteUpserts(t *testing.T) {
	chats := NewChatService(newTestDB(t))
	ctx := context.Background()
	msgs := seedChat(t, chats, "chat-1", "owner", "q", "a")

	_, err := chats.Vote(ctx, "owner", models.VoteRequest{ChatID: "chat-1", MessageID: msgs[1].ID, Value: 1})
	require.NoError(t, err)
	_, err = chats.Vote(ctx, "owner", models.VoteRequest{ChatID: "chat-1", MessageID: msgs[1].ID, Type: "down"})
	require.NoError(t, err)

	votes, err := chats.GetVotes(ctx, "chat-1", "owner")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.False(t, votes[0].IsUpvoted)

	_, err = chats.Vote(ctx, "owner", models.VoteRequest{ChatID: "chat-1", MessageID: msgs[1].ID, Value: 3})
	assert.ErrorIs(t, err, ErrInvalidVote)

	_, err = chats.Vote(ctx, "stranger", models.VoteRequest{ChatID: "chat-1", MessageID: msgs[1].ID, Value: 1})
	assert.ErrorIs(t, err, ErrChatForbidden)

	_, err = chats.Vote(ctx, "owner", models.VoteRequest{ChatID: "missing", MessageID: msgs[1].ID, Value: 1})
	assert.ErrorIs(t, err, ErrChatNotFound)
}
