package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"persona-chat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getContext(t *testing.T, s *testServer, token string) models.UserContext {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/context", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var uc models.UserContext
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uc))
	return uc
}

func TestContextRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")

	empty := s.do(t, http.MethodGet, "/api/context", token, nil)
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"profile":null,"interests":[],"goals":[],"traits":[],"connections":[]}`, empty.Body.String())

	w := s.do(t, http.MethodPost, "/api/context", token, jsonBody{
		"profile":   jsonBody{"name": "Ann", "age": 31, "location": "Lisbon"},
		"interests": []string{"climbing", "jazz"},
		"goals":     []string{"learn Go"},
		"connections": []jsonBody{{
			"name":         "Bea",
			"relationship": "sister",
			"details":      jsonBody{"notes": "likes tea", "interests": []string{"chess"}},
		}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	uc := getContext(t, s, token)
	require.NotNil(t, uc.Profile)
	assert.Equal(t, "Ann", uc.Profile.Name)
	assert.Len(t, uc.Interests, 2)
	require.Len(t, uc.Goals, 1)
	assert.False(t, uc.Goals[0].Completed)
	require.Len(t, uc.Connections, 1)
	assert.Equal(t, []string{"chess"}, uc.Connections[0].Details.Data().Interests)
}

func TestContextEmptyListClearsOnlyThatPart(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/context", token, jsonBody{
		"interests": []string{"climbing"},
		"traits":    []string{"curious"},
	}).Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/context", token, jsonBody{
		"interests": []string{},
	}).Code)

	uc := getContext(t, s, token)
	assert.Empty(t, uc.Interests)
	assert.Len(t, uc.Traits, 1)
}

func TestContextPartialProfileKeepsOtherFields(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp(t, "a@example.com")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/context", token, jsonBody{
		"profile": jsonBody{"name": "Ann", "age": 31, "location": "Lisbon"},
	}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/context", token, jsonBody{
		"profile": jsonBody{"occupation": "pilot"},
	}).Code)

	uc := getContext(t, s, token)
	require.NotNil(t, uc.Profile)
	assert.Equal(t, "Ann", uc.Profile.Name)
	require.NotNil(t, uc.Profile.Age)
	assert.Equal(t, 31, *uc.Profile.Age)
	assert.Equal(t, "Lisbon", uc.Profile.Location)
	assert.Equal(t, "pilot", uc.Profile.Occupation)
}

func TestContextRequiresSession(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/context", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/context", "", jsonBody{}).Code)
}
