package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/observability"
)

const (
	sendQueueSize = 128
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

type pushSession struct {
	id        string
	conn      *websocket.Conn
	sendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32

	mu     sync.Mutex
	scopes map[string]struct{}
}

func newPushSession(conn *websocket.Conn) *pushSession {
	return &pushSession{
		id:        uuid.NewString(),
		conn:      conn,
		sendQueue: make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		scopes:    make(map[string]struct{}),
	}
}

// join is idempotent: re-joining an already-joined scope is a no-op, which
// lets clients blindly re-emit the join request after a reconnect.
func (s *pushSession) join(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = struct{}{}
}

func (s *pushSession) trySend(msg []byte) bool {
	if s.closed.Load() == 1 {
		return false
	}
	select {
	case s.sendQueue <- msg:
		return true
	default:
		s.close()
		return false
	}
}

func (s *pushSession) close() {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}
	close(s.done)
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closing"), deadline)
	s.conn.Close()
}

func (s *pushSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg := <-s.sendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Hub fans push frames out to every session subscribed to a scope. Scopes are
// user ids, plus the "anonymous" sentinel for public-profile visitors.
type Hub struct {
	mu       sync.RWMutex
	byScope  map[string]map[string]*pushSession
	sessions map[string]*pushSession
}

func NewHub() *Hub {
	return &Hub{
		byScope:  make(map[string]map[string]*pushSession),
		sessions: make(map[string]*pushSession),
	}
}

func (h *Hub) add(s *pushSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
}

func (h *Hub) subscribe(s *pushSession, scope string) {
	s.join(scope)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byScope[scope] == nil {
		h.byScope[scope] = make(map[string]*pushSession)
	}
	h.byScope[scope][s.id] = s
}

func (h *Hub) remove(s *pushSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
	for scope, set := range h.byScope {
		delete(set, s.id)
		if len(set) == 0 {
			delete(h.byScope, scope)
		}
	}
}

// Emit serializes one push frame and delivers it to every subscriber of the
// scope. Delivery is best-effort; a dropped frame is not retried.
func (h *Hub) Emit(scope, event string, data any) {
	log := observability.GetLogger(context.Background())
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error("hub: encode push payload", zap.String("event", event), zap.Error(err))
		return
	}
	raw, err := json.Marshal(map[string]json.RawMessage{
		"event": json.RawMessage(`"` + event + `"`),
		"data":  payload,
	})
	if err != nil {
		log.Error("hub: encode push frame", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*pushSession, 0, len(h.byScope[scope]))
	for _, s := range h.byScope[scope] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.trySend(raw)
	}
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*pushSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// ServeWS upgrades the connection and handles join requests from the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogger(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("hub: upgrade error", zap.Error(err))
		return
	}

	s := newPushSession(conn)
	h.add(s)
	observability.WebSocketConnectionsActive.WithLabelValues("devserver").Inc()
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	s.conn.SetPingHandler(func(appData string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		deadline := time.Now().Add(writeWait)
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})

	go s.writeLoop()
	go h.readLoop(s)
}

func (h *Hub) readLoop(s *pushSession) {
	log := observability.GetLogger(context.Background())
	defer func() {
		h.remove(s)
		s.close()
		observability.WebSocketConnectionsActive.WithLabelValues("devserver").Dec()
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("hub: read error", zap.Error(err))
			}
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Event == "join" && f.Data != "" {
			h.subscribe(s, f.Data)
			log.Info("hub: joined", zap.String("scope", f.Data), zap.String("session", s.id))
		}
	}
}
