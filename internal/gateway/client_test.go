package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ast-secret/inboxcore/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/api", HTTPClient: srv.Client()})
}

func TestClient_FetchMessages(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/messages/u1", r.URL.Path)
		json.NewEncoder(w).Encode([]*domain.Message{
			{ID: "m1", Content: "hey", Timestamp: ts, Reactions: domain.Reactions{Heart: 2}},
		})
	})

	messages, err := c.FetchMessages(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, 2, messages[0].Reactions.Heart)
	assert.True(t, messages[0].Timestamp.Equal(ts))
}

func TestClient_SendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["userId"])
		assert.Equal(t, "hello", body["content"])
		assert.Equal(t, true, body["isPublic"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&domain.Message{ID: "m1", Content: "hello", IsPublic: true})
	})

	msg, err := c.SendMessage(context.Background(), "u1", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
}

func TestClient_SendMessageValidation(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	t.Run("empty", func(t *testing.T) {
		_, err := c.SendMessage(context.Background(), "u1", "   ", false)
		assert.ErrorIs(t, err, domain.ErrEmptyContent)
	})
	t.Run("too long", func(t *testing.T) {
		_, err := c.SendMessage(context.Background(), "u1", strings.Repeat("a", 501), false)
		assert.ErrorIs(t, err, domain.ErrContentTooLong)
	})
	assert.False(t, called, "validation failures never reach the wire")
}

func TestClient_AddReactionReturnsAuthoritativeCounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/m1/reactions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "heart", body["reactionType"])
		json.NewEncoder(w).Encode(&domain.Message{ID: "m1", Reactions: domain.Reactions{Heart: 7}})
	})

	msg, err := c.AddReaction(context.Background(), "m1", "u1", domain.ReactionHeart)
	require.NoError(t, err)
	assert.Equal(t, 7, msg.Reactions.Heart)
}

func TestClient_DeleteMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/messages/u1/m1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.DeleteMessage(context.Background(), "u1", "m1"))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.Code
	}{
		{"not found", http.StatusNotFound, `{"error":"user not found"}`, domain.CodeNotFound},
		{"gone", http.StatusGone, `{"error":"expired"}`, domain.CodeNotFound},
		{"bad request", http.StatusBadRequest, `{"error":"message too long"}`, domain.CodeValidation},
		{"conflict", http.StatusConflict, `{"error":"username is already taken"}`, domain.CodeValidation},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, domain.CodeServer},
		{"non-json body", http.StatusBadGateway, `upstream sad`, domain.CodeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.FetchUser(context.Background(), "u1")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.ErrCode(err))
		})
	}
}

func TestClient_ErrorBodyUsedForDisplay(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"user not found"}`))
	})
	_, err := c.FetchUser(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c := NewClient(Options{BaseURL: srv.URL + "/api"})
	_, err := c.FetchUser(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNetwork, domain.ErrCode(err))
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchUser(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNetwork, domain.ErrCode(err))
}
