// Package push maintains the long-lived websocket connection to the push
// server and converts inbound frames into normalized reconciliation events.
// The channel gives no ordering guarantee; conflict resolution belongs to
// the reconciliation engine.
package push

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/domain"
	"github.com/ast-secret/inboxcore/internal/observability"
)

// AnonymousScope is the sentinel channel scope used when a public profile is
// viewed without a session identity, so visitors still receive live updates.
const AnonymousScope = "anonymous"

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxReconnectWait = 30 * time.Second
	eventQueueSize   = 128
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

type newMessagePayload struct {
	Message      *domain.Message `json:"message"`
	MessageCount int             `json:"messageCount"`
}

type newReplyPayload struct {
	MessageID      string    `json:"messageId"`
	Reply          string    `json:"reply"`
	ReplyTimestamp time.Time `json:"replyTimestamp"`
}

type newReactionPayload struct {
	MessageID string           `json:"messageId"`
	Reactions domain.Reactions `json:"reactions"`
}

// Channel is one push subscription, scoped to a single viewed user for the
// lifetime of a view instance. The scope is fixed at dial time.
type Channel struct {
	url    string
	scope  string
	events chan domain.Event

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool
	done   chan struct{}
}

// Dial connects, joins the scope and starts the read loop. Reconnection with
// an idempotent rejoin is handled internally until Close is called.
func Dial(ctx context.Context, socketURL, scope string) (*Channel, error) {
	c := &Channel{
		url:    socketURL,
		scope:  scope,
		events: make(chan domain.Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setConn(conn)
	observability.WebSocketConnectionsActive.WithLabelValues("push-client").Inc()

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Events delivers normalized events. The channel is closed when the
// subscription is torn down.
func (c *Channel) Events() <-chan domain.Event {
	return c.events
}

func (c *Channel) Scope() string { return c.scope }

// Close releases the connection and all goroutines. Safe to call twice.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	observability.WebSocketConnectionsActive.WithLabelValues("push-client").Dec()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "view teardown"), deadline)
		return conn.Close()
	}
	return nil
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, domain.NetworkFailure(err)
	}
	// The join request is re-emitted on every (re)connect; the server treats
	// joining an already-joined scope as a no-op.
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(joinFrame{Event: "join", Data: c.scope}); err != nil {
		conn.Close()
		return nil, domain.NetworkFailure(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return conn, nil
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Channel) readLoop() {
	log := observability.GetLogger(context.Background())
	defer close(c.events)

	for {
		conn := c.currentConn()
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			log.Warn("push: connection lost, reconnecting", zap.String("scope", c.scope), zap.Error(err))
			if !c.reconnect() {
				return
			}
			continue
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Warn("push: malformed frame dropped", zap.Error(err))
			continue
		}
		ev, ok := c.normalize(f)
		if !ok {
			continue
		}
		observability.PushEventsTotal.WithLabelValues(f.Event).Inc()
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// normalize parses a push frame once at the boundary into the closed event
// set. Unknown event names are ignored; delivery is best-effort anyway.
func (c *Channel) normalize(f frame) (domain.Event, bool) {
	log := observability.GetLogger(context.Background())
	switch f.Event {
	case "newMessage":
		var p newMessagePayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.Message == nil || p.Message.ID == "" {
			log.Warn("push: bad newMessage payload", zap.Error(err))
			return domain.Event{}, false
		}
		return domain.MessageArrived(p.Message), true
	case "newReply":
		var p newReplyPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.MessageID == "" {
			log.Warn("push: bad newReply payload", zap.Error(err))
			return domain.Event{}, false
		}
		return domain.ReplyAdded(p.MessageID, p.Reply, p.ReplyTimestamp), true
	case "newReaction":
		var p newReactionPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.MessageID == "" {
			log.Warn("push: bad newReaction payload", zap.Error(err))
			return domain.Event{}, false
		}
		return domain.ReactionChanged(p.MessageID, p.Reactions), true
	default:
		return domain.Event{}, false
	}
}

func (c *Channel) reconnect() bool {
	log := observability.GetLogger(context.Background())
	wait := time.Second
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(wait):
		}
		conn, err := c.connect(context.Background())
		if err == nil {
			c.setConn(conn)
			log.Info("push: rejoined", zap.String("scope", c.scope))
			return true
		}
		log.Warn("push: reconnect failed", zap.String("scope", c.scope), zap.Error(err))
		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
	}
}

func (c *Channel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn := c.currentConn()
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil && c.closed.Load() {
				return
			}
		case <-c.done:
			return
		}
	}
}
