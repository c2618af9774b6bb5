package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatBody(chatID, content string) jsonBody {
	return jsonBody{
		"id":       chatID,
		"messages": []jsonBody{{"role": "user", "content": content}},
	}
}

func readEvents(t *testing.T, body string) []service.Event {
	t.Helper()
	var events []service.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e service.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func TestChatStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")
	chatID := uuid.NewString()

	w := s.do(t, http.MethodPost, "/chat/api/chat", token, chatBody(chatID, "hello"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := readEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, service.EventUserMessageID, events[0].Type)
	assert.Equal(t, service.EventAssistantMessageID, events[1].Type)
	assert.Equal(t, service.EventText, events[2].Type)
	assert.Equal(t, "echo: hello", events[2].Content)
	assert.Equal(t, service.EventDone, events[3].Type)
	assert.Nil(t, events[3].Content)

	msgs := s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chatID, token, nil)
	require.Equal(t, http.StatusOK, msgs.Code)
	var stored []models.Message
	require.NoError(t, json.Unmarshal(msgs.Body.Bytes(), &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, events[0].Content, stored[0].ID)
	assert.Equal(t, models.RoleAssistant, stored[1].Role)
}

func TestChatStreamReportsGenericError(t *testing.T) {
	s := newTestServer(t)
	s.processor.fail = true
	token, _ := s.signUp(t, "a@example.com")

	w := s.do(t, http.MethodPost, "/chat/api/chat", token, chatBody(uuid.NewString(), "hello"))
	require.Equal(t, http.StatusOK, w.Code)

	events := readEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, service.EventError, events[1].Type)
	assert.Equal(t, service.GenericRelayError, events[1].Content)
	assert.NotContains(t, w.Body.String(), "upstream down")
}

func TestChatJSONMode(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")

	w := s.do(t, http.MethodPost, "/chat/api/chat?stream=false", token, chatBody(uuid.NewString(), "hi"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.UserMessageID)
	require.NotNil(t, resp.AssistantMessage)
	assert.Equal(t, "echo: hi", resp.AssistantMessage.Content)

	s.processor.fail = true
	w = s.do(t, http.MethodPost, "/chat/api/chat", token, chatBody(uuid.NewString(), "hi"), "Accept", "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), service.GenericRelayError)
}

func TestChatRejectsBadTurns(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")
	other, _ := s.signUp(t, "b@example.com")
	chatID := uuid.NewString()

	w := s.do(t, http.MethodPost, "/chat/api/chat", "", chatBody(chatID, "hello"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/chat/api/chat", token, jsonBody{
		"id":       chatID,
		"messages": []jsonBody{{"role": "system", "content": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := chatBody(chatID, "hello")
	body["modelId"] = "missing"
	w = s.do(t, http.MethodPost, "/chat/api/chat", token, body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/chat/api/chat?stream=false", token, chatBody(chatID, "hello")).Code)
	w = s.do(t, http.MethodPost, "/chat/api/chat?stream=false", other, chatBody(chatID, "mine now"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteChat(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.signUp(t, "a@example.com")
	other, _ := s.signUp(t, "b@example.com")
	chatID := uuid.NewString()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/chat/api/chat?stream=false", owner, chatBody(chatID, "hello")).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/chat/api/chat", owner, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodDelete, "/chat/api/chat?id="+chatID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/chat/api/chat?id="+uuid.NewString(), owner, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodDelete, "/chat/api/chat?id="+chatID, other, nil).Code)

	w := s.do(t, http.MethodDelete, "/chat/api/chat?id="+chatID, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chat deleted successfully", w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chatID, owner, nil).Code)
}

func TestGetMessages(t *testing.T) {
	s := newTestServer(t)
	owner, ownerUser := s.signUp(t, "a@example.com")
	other, _ := s.signUp(t, "b@example.com")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/chat/messages", owner, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/chat/messages?chatId=x", "", nil).Code)

	missing := uuid.NewString()
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodGet, "/api/chat/messages?chatId="+missing, owner, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	chats := service.NewChatService(s.db)
	chat, err := chats.SaveChat(context.Background(), &models.Chat{ID: uuid.NewString(), UserID: ownerUser.ID, Title: "t"})
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chat.ID, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chat.ID, other, nil).Code)

	w = s.do(t, http.MethodPatch, "/chat/api/chat/visibility", owner, jsonBody{"chatId": chat.ID, "visibility": "public"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chat.ID, other, nil).Code)

	w = s.do(t, http.MethodPatch, "/chat/api/chat/visibility", owner, jsonBody{"chatId": chat.ID, "visibility": "friends"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryAndTrailingMessages(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")
	chatID := uuid.NewString()

	first := s.do(t, http.MethodPost, "/chat/api/chat?stream=false", token, chatBody(chatID, "one"))
	require.Equal(t, http.StatusOK, first.Code)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/chat/api/chat?stream=false", token, chatBody(chatID, "two")).Code)

	w := s.do(t, http.MethodGet, "/chat/api/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chats []models.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, "Title: one", chats[0].Title)

	w = s.do(t, http.MethodDelete, "/chat/api/messages/trailing?id="+resp.AssistantMessage.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/chat/messages?chatId="+chatID, token, nil)
	var left []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &left))
	require.Len(t, left, 1)
	assert.Equal(t, resp.UserMessageID, left[0].ID)
}

func TestVotes(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")
	chatID := uuid.NewString()

	w := s.do(t, http.MethodPost, "/chat/api/chat?stream=false", token, chatBody(chatID, "hi"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	messageID := resp.AssistantMessage.ID

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/chat/api/vote", token, jsonBody{"chatId": chatID, "messageId": messageID, "type": "up"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/chat/api/vote", token, jsonBody{"chatId": chatID, "messageId": messageID, "value": -1}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/chat/api/vote", token, jsonBody{"chatId": chatID, "messageId": messageID}).Code)

	w = s.do(t, http.MethodGet, "/chat/api/vote?chatId="+chatID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var votes []models.Vote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &votes))
	require.Len(t, votes, 1)
	assert.False(t, votes[0].IsUpvoted)
}

func TestModels(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")

	w := s.do(t, http.MethodGet, "/chat/api/models", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":["small","large"],"selected":"small"}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/chat/api/models", token, jsonBody{"modelId": "huge"}).Code)

	w = s.do(t, http.MethodPost, "/chat/api/models", token, jsonBody{"modelId": "large"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ModelCookie, cookies[0].Name)
	assert.Equal(t, "large", cookies[0].Value)

	w = s.do(t, http.MethodGet, "/chat/api/models", token, nil, "Cookie", ModelCookie+"=large")
	assert.JSONEq(t, `{"models":["small","large"],"selected":"large"}`, w.Body.String())
}
