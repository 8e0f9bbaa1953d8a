package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ast-secret/inboxcore/internal/domain"
)

type serverHarness struct {
	t   *testing.T
	srv *httptest.Server
	now *time.Time
}

func newHarness(t *testing.T) *serverHarness {
	t.Helper()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	h := &serverHarness{t: t, now: &now}
	server := NewServer(Options{
		PublicBaseURL: "https://ast-secret.test",
		Now:           func() time.Time { return *h.now },
	})
	h.srv = httptest.NewServer(server.Router("devserver-test"))
	t.Cleanup(func() {
		h.srv.Close()
		server.Shutdown()
	})
	return h
}

func (h *serverHarness) do(method, path string, body, out any) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (h *serverHarness) createUser(username string, isPublic bool) *domain.User {
	h.t.Helper()
	var user domain.User
	resp := h.do(http.MethodPost, "/api/users", map[string]any{
		"username": username,
		"isPublic": isPublic,
	}, &user)
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
	return &user
}

func (h *serverHarness) sendMessage(userID, content string, isPublic bool) *domain.Message {
	h.t.Helper()
	var msg domain.Message
	resp := h.do(http.MethodPost, "/api/messages", map[string]any{
		"userId":   userID,
		"content":  content,
		"isPublic": isPublic,
	}, &msg)
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
	return &msg
}

func TestServer_CreateAndFetchUser(t *testing.T) {
	h := newHarness(t)

	user := h.createUser("night_owl", true)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "night_owl", user.Username)
	assert.Equal(t, "https://ast-secret.test/u/night_owl", user.Link)
	assert.True(t, user.ExpiresAt.Equal(user.CreatedAt.Add(domain.AccountLifetime)))

	var fetched domain.User
	resp := h.do(http.MethodGet, "/api/users/"+user.ID, nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, user.Username, fetched.Username)

	var byName domain.User
	resp = h.do(http.MethodGet, "/api/users/by-username/NIGHT_OWL", nil, &byName)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "username lookup is case-insensitive")
	assert.Equal(t, user.ID, byName.ID)
}

func TestServer_DuplicateUsernameRejected(t *testing.T) {
	h := newHarness(t)
	h.createUser("taken_name", false)

	resp := h.do(http.MethodPost, "/api/users", map[string]any{"username": "taken_name"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ExpiredUserFreesHandle(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("short_lived", false)

	*h.now = h.now.Add(domain.AccountLifetime + time.Minute)

	resp := h.do(http.MethodGet, "/api/users/"+user.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The lapsed handle can be claimed again.
	fresh := h.createUser("short_lived", false)
	assert.NotEqual(t, user.ID, fresh.ID)
}

func TestServer_MessagesNewestFirst(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("inbox_owner", false)

	for i := 1; i <= 3; i++ {
		h.sendMessage(user.ID, fmt.Sprintf("message %d", i), false)
		*h.now = h.now.Add(time.Minute)
	}

	var messages []*domain.Message
	resp := h.do(http.MethodGet, "/api/messages/"+user.ID, nil, &messages)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, messages, 3)
	assert.Equal(t, "message 3", messages[0].Content)
	assert.Equal(t, "message 1", messages[2].Content)

	var fetched domain.User
	h.do(http.MethodGet, "/api/users/"+user.ID, nil, &fetched)
	assert.Equal(t, 3, fetched.MessageCount)
}

func TestServer_ReactionLifecycle(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("reactor", false)
	msg := h.sendMessage(user.ID, "react to me", false)

	var updated domain.Message
	for i := 0; i < 2; i++ {
		resp := h.do(http.MethodPost, "/api/messages/"+msg.ID+"/reactions",
			map[string]any{"userId": "visitor", "reactionType": "fire"}, &updated)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 2, updated.Reactions.Fire)

	resp := h.do(http.MethodPost, "/api/messages/"+msg.ID+"/reactions",
		map[string]any{"userId": "visitor", "reactionType": "shrug"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown reaction kind")
}

func TestServer_MarkReadIdempotentAndOwnerOnly(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("reader", false)
	msg := h.sendMessage(user.ID, "read me", false)

	var updated domain.Message
	resp := h.do(http.MethodPost, "/api/messages/"+msg.ID+"/read",
		map[string]any{"userId": user.ID}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, updated.IsRead)

	resp = h.do(http.MethodPost, "/api/messages/"+msg.ID+"/read",
		map[string]any{"userId": user.ID}, &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "second read is a no-op, not an error")
	assert.True(t, updated.IsRead)

	resp = h.do(http.MethodPost, "/api/messages/"+msg.ID+"/read",
		map[string]any{"userId": "someone-else"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ReplySetOnce(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("replier", false)
	msg := h.sendMessage(user.ID, "any advice?", false)

	var updated domain.Message
	resp := h.do(http.MethodPost, "/api/messages/"+msg.ID+"/reply",
		map[string]any{"userId": user.ID, "reply": "yes: sleep more"}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes: sleep more", updated.Reply)
	assert.NotNil(t, updated.ReplyTimestamp)

	resp = h.do(http.MethodPost, "/api/messages/"+msg.ID+"/reply",
		map[string]any{"userId": user.ID, "reply": "changed my mind"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a reply cannot be replaced")
}

func TestServer_DeleteMessage(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("deleter", false)
	msg := h.sendMessage(user.ID, "delete me", false)

	resp := h.do(http.MethodDelete, "/api/messages/intruder/"+msg.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "non-owner cannot delete")

	resp = h.do(http.MethodDelete, "/api/messages/"+user.ID+"/"+msg.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(http.MethodDelete, "/api/messages/"+user.ID+"/"+msg.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "deletion is terminal")

	var messages []*domain.Message
	h.do(http.MethodGet, "/api/messages/"+user.ID, nil, &messages)
	assert.Empty(t, messages)
}

func TestServer_ContentValidation(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("validator", false)

	resp := h.do(http.MethodPost, "/api/messages",
		map[string]any{"userId": user.ID, "content": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodPost, "/api/messages",
		map[string]any{"userId": "no-such-user", "content": "hello"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
