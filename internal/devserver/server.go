// Package devserver is an in-memory reference implementation of the backend
// interface the inbox core consumes: the REST API plus the push channel. It
// exists for local development and end-to-end tests; it is not a production
// backend and deliberately persists nothing.
package devserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/domain"
	"github.com/ast-secret/inboxcore/internal/observability"
)

type Options struct {
	// PublicBaseURL builds the shareable profile link for new users.
	PublicBaseURL string
	Now           func() time.Time
}

type Server struct {
	store    *memoryStore
	hub      *Hub
	linkBase string
}

func NewServer(opts Options) *Server {
	linkBase := opts.PublicBaseURL
	if linkBase == "" {
		linkBase = "https://ast-secret.vercel.app"
	}
	return &Server{
		store:    newMemoryStore(opts.Now),
		hub:      NewHub(),
		linkBase: linkBase,
	}
}

func (s *Server) Shutdown() {
	s.hub.CloseAll()
}

func (s *Server) Router(serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware(serviceName))

	r.Get("/health/live", observability.HealthLiveHandler)
	r.Get("/health/ready", observability.HealthReadyHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/socket", s.hub.ServeWS)

	r.Route("/api", func(api chi.Router) {
		api.Post("/users", s.handleCreateUser)
		api.Get("/users/{id}", s.handleGetUser)
		api.Get("/users/by-username/{name}", s.handleGetUserByUsername)
		api.Get("/messages/{userId}", s.handleListMessages)
		api.Post("/messages", s.handleSendMessage)
		api.Post("/messages/{id}/reactions", s.handleAddReaction)
		api.Delete("/messages/{userId}/{id}", s.handleDeleteMessage)
		api.Post("/messages/{id}/read", s.handleMarkRead)
		api.Post("/messages/{id}/reply", s.handleReply)
	})
	return r
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		UsePin   bool   `json:"usePin"`
		Pin      string `json:"pin"`
		IsPublic bool   `json:"isPublic"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		req.Username = domain.GenerateUsername()
	}
	user, err := s.store.createUser(req.Username, req.UsePin, req.Pin, req.IsPublic, s.linkBase)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.user(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetUserByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.userByUsername(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.listMessages(chi.URLParam(r, "userId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		Content  string `json:"content"`
		IsPublic bool   `json:"isPublic"`
	}
	if !decode(w, r, &req) {
		return
	}
	msg, count, err := s.store.addMessage(req.UserID, req.Content, req.IsPublic)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := map[string]any{"message": msg, "messageCount": count}
	s.hub.Emit(req.UserID, "newMessage", payload)
	if msg.IsPublic {
		s.hub.Emit(anonymousScope, "newMessage", payload)
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"userId"`
		ReactionType string `json:"reactionType"`
	}
	if !decode(w, r, &req) {
		return
	}
	kind, err := domain.ParseReactionKind(req.ReactionType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	msg, ownerID, err := s.store.addReaction(chi.URLParam(r, "id"), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := map[string]any{"messageId": msg.ID, "reactions": msg.Reactions}
	s.hub.Emit(ownerID, "newReaction", payload)
	if msg.IsPublic {
		s.hub.Emit(anonymousScope, "newReaction", payload)
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "userId")
	if err := s.store.deleteMessage(ownerID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.store.markRead(chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Reply  string `json:"reply"`
	}
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.store.reply(chi.URLParam(r, "id"), req.UserID, req.Reply)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := map[string]any{
		"messageId":      msg.ID,
		"reply":          msg.Reply,
		"replyTimestamp": msg.ReplyTimestamp,
	}
	s.hub.Emit(req.UserID, "newReply", payload)
	if msg.IsPublic {
		s.hub.Emit(anonymousScope, "newReply", payload)
	}
	writeJSON(w, http.StatusOK, msg)
}

// anonymousScope mirrors push.AnonymousScope without importing the client
// side of the protocol.
const anonymousScope = "anonymous"

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger(context.Background()).Error("devserver: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch domain.ErrCode(err) {
	case domain.CodeNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.CodeValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
	}
}

func metricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			observability.HttpRequestsTotal.
				WithLabelValues(serviceName, r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
			observability.HttpRequestDuration.
				WithLabelValues(serviceName, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps the websocket upgrade working under the metrics middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
