// Package client ties the core together: session identity, initial load
// through the gateway, live updates through the push channel, and user
// actions. Every state mutation, whatever its origin, goes through the
// reconciliation engine.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/domain"
	"github.com/ast-secret/inboxcore/internal/gateway"
	"github.com/ast-secret/inboxcore/internal/inbox"
	"github.com/ast-secret/inboxcore/internal/observability"
	"github.com/ast-secret/inboxcore/internal/push"
	"github.com/ast-secret/inboxcore/internal/session"
)

type Options struct {
	Gateway   *gateway.Client
	Resolver  *session.Resolver
	SocketURL string
	Now       func() time.Time
}

// Client owns one viewing session: either the owner's inbox or a public
// profile. The push scope is fixed for the lifetime of the view.
type Client struct {
	gw        *gateway.Client
	resolver  *session.Resolver
	socketURL string
	now       func() time.Time

	store  *inbox.Store
	engine *inbox.Engine

	mu       sync.Mutex
	channel  *push.Channel
	viewedID string // inbox being looked at
	actorID  string // resolved identity, or AnonymousScope
	isOwner  bool
	updates  chan domain.Event
	pumpDone chan struct{}
}

func New(opts Options) *Client {
	store := inbox.NewStore()
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		gw:        opts.Gateway,
		resolver:  opts.Resolver,
		socketURL: opts.SocketURL,
		now:       now,
		store:     store,
		engine:    inbox.NewEngine(store),
		updates:   make(chan domain.Event, 64),
	}
}

func (c *Client) Store() *inbox.Store   { return c.store }
func (c *Client) Engine() *inbox.Engine { return c.engine }

// Updates notifies after an event has actually been applied to the store,
// so a UI can re-render. Best effort: a slow consumer misses notifications,
// never state.
func (c *Client) Updates() <-chan domain.Event { return c.updates }

// CreateProfile registers a new anonymous account and persists its id as the
// local session identity.
func (c *Client) CreateProfile(ctx context.Context, username string, usePin bool, pin string, isPublic bool) (*domain.User, error) {
	user, err := c.gw.CreateUser(ctx, username, usePin, pin, isPublic)
	if err != nil {
		return nil, err
	}
	if err := c.resolver.Save(user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Open starts an owner inbox view: resolve identity, seed from the gateway,
// then subscribe to the owner-scoped push channel.
func (c *Client) Open(ctx context.Context) error {
	userID, ok := c.resolver.Resolve()
	if !ok {
		return domain.ErrSessionExpired
	}
	user, err := c.gw.FetchUser(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			// Stale cookie pointing at a lapsed account.
			_ = c.resolver.Clear()
		}
		return err
	}
	if user.Expired(c.now()) {
		_ = c.resolver.Clear()
		return domain.ErrSessionExpired
	}
	return c.open(ctx, user, userID, user.ID, true)
}

// OpenPublic starts a visitor view of a public profile. With no session
// identity the anonymous sentinel scope still delivers live updates.
func (c *Client) OpenPublic(ctx context.Context, username string) error {
	user, err := c.gw.FetchUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	actorID, ok := c.resolver.Resolve()
	if !ok {
		actorID = push.AnonymousScope
	}
	return c.open(ctx, user, actorID, user.ID, false)
}

func (c *Client) open(ctx context.Context, user *domain.User, actorID, viewedID string, isOwner bool) error {
	messages, err := c.gw.FetchMessages(ctx, viewedID)
	if err != nil {
		return err
	}
	c.store.Seed(user, messages)

	scope := viewedID
	if !isOwner {
		scope = push.AnonymousScope
	}
	channel, err := push.Dial(ctx, c.socketURL, scope)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.channel = channel
	c.viewedID = viewedID
	c.actorID = actorID
	c.isOwner = isOwner
	c.pumpDone = make(chan struct{})
	c.mu.Unlock()

	go c.pump(channel)
	return nil
}

// pump is the single consumer of the push channel for this view.
func (c *Client) pump(channel *push.Channel) {
	log := observability.GetLogger(context.Background())
	defer close(c.pumpDone)

	for ev := range channel.Events() {
		if !c.engine.Reconcile(ev) {
			continue
		}
		select {
		case c.updates <- ev:
		default:
			log.Debug("client: update notification dropped", zap.String("type", string(ev.Type)))
		}
	}
}

// Refresh re-seeds the store from a bulk refetch. This is the operation a
// pull-to-refresh gesture maps onto.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	viewedID := c.viewedID
	c.mu.Unlock()

	user, err := c.gw.FetchUser(ctx, viewedID)
	if err != nil {
		return err
	}
	messages, err := c.gw.FetchMessages(ctx, viewedID)
	if err != nil {
		return err
	}
	c.store.Seed(user, messages)
	return nil
}

// Send delivers an anonymous message to the viewed inbox. On success the
// returned authoritative message is reconciled locally; the owner receives
// it through their own push scope.
func (c *Client) Send(ctx context.Context, content string, isPublic bool) (*domain.Message, error) {
	c.mu.Lock()
	viewedID := c.viewedID
	c.mu.Unlock()

	msg, err := c.gw.SendMessage(ctx, viewedID, content, isPublic)
	if err != nil {
		return nil, err
	}
	c.engine.Reconcile(domain.MessageArrived(msg))
	return msg, nil
}

// React adds one reaction. The server's returned counts are authoritative;
// they replace the local ones through the engine rather than incrementing,
// so the follow-up push for the same fact cannot double-count.
func (c *Client) React(ctx context.Context, messageID string, kind domain.ReactionKind) error {
	c.mu.Lock()
	actorID := c.actorID
	c.mu.Unlock()

	msg, err := c.gw.AddReaction(ctx, messageID, actorID, kind)
	if err != nil {
		return err
	}
	c.engine.Reconcile(domain.ReactionChanged(msg.ID, msg.Reactions))
	return nil
}

// MarkRead is idempotent end to end; marking an already-read message is a
// no-op both on the server and in the store.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	ownerID, err := c.requireOwner()
	if err != nil {
		return err
	}
	msg, err := c.gw.MarkRead(ctx, messageID, ownerID)
	if err != nil {
		return err
	}
	c.engine.Reconcile(domain.ReadStateChanged(msg.ID))
	return nil
}

func (c *Client) Reply(ctx context.Context, messageID, text string) error {
	ownerID, err := c.requireOwner()
	if err != nil {
		return err
	}
	msg, err := c.gw.Reply(ctx, messageID, ownerID, text)
	if err != nil {
		return err
	}
	ts := c.now()
	if msg.ReplyTimestamp != nil {
		ts = *msg.ReplyTimestamp
	}
	c.engine.Reconcile(domain.ReplyAdded(msg.ID, msg.Reply, ts))
	return nil
}

func (c *Client) Delete(ctx context.Context, messageID string) error {
	ownerID, err := c.requireOwner()
	if err != nil {
		return err
	}
	if err := c.gw.DeleteMessage(ctx, ownerID, messageID); err != nil {
		return err
	}
	c.engine.Reconcile(domain.MessageDeleted(messageID))
	return nil
}

func (c *Client) requireOwner() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOwner {
		return "", domain.ErrNotOwner
	}
	return c.actorID, nil
}

// Close tears the view down and releases the push connection.
func (c *Client) Close() error {
	c.mu.Lock()
	channel := c.channel
	pumpDone := c.pumpDone
	c.channel = nil
	c.mu.Unlock()

	if channel == nil {
		return nil
	}
	err := channel.Close()
	<-pumpDone
	return err
}
