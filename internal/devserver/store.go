package devserver

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ast-secret/inboxcore/internal/domain"
)

// memoryStore is the in-memory data set behind the reference backend.
// It implements exactly the semantics the client core expects of a backend:
// 24-hour account expiry, newest-first message lists, messageCount derived
// from the live collection, idempotent read marking and set-once replies.
// Durability is a non-goal; restarting the server forgets everything.
type memoryStore struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	byUsername map[string]string
	messages   map[string][]*domain.Message // ownerID -> newest first
	owners     map[string]string            // messageID -> ownerID
	now        func() time.Time
}

func newMemoryStore(now func() time.Time) *memoryStore {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
		messages:   make(map[string][]*domain.Message),
		owners:     make(map[string]string),
		now:        now,
	}
}

func (s *memoryStore) createUser(username string, usePin bool, pin string, isPublic bool, linkBase string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if id, taken := s.byUsername[key]; taken {
		// Lapsed accounts free their handle.
		if existing := s.users[id]; existing != nil && !existing.Expired(s.now()) {
			return nil, domain.ErrUsernameTaken
		}
		s.evictLocked(id)
	}

	user, err := domain.NewUser(uuid.NewString(), username, usePin, pin, isPublic, s.now())
	if err != nil {
		return nil, err
	}
	user.Link = strings.TrimRight(linkBase, "/") + "/u/" + username
	user.Avatar = "/placeholder.svg?height=80&width=80"

	s.users[user.ID] = user
	s.byUsername[key] = user.ID
	s.messages[user.ID] = nil
	return s.userCopyLocked(user.ID), nil
}

func (s *memoryStore) user(id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeUserLocked(id)
}

func (s *memoryStore) userByUsername(name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.activeUserLocked(id)
}

func (s *memoryStore) activeUserLocked(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if u.Expired(s.now()) {
		s.evictLocked(id)
		return nil, domain.ErrUserNotFound
	}
	return s.userCopyLocked(id), nil
}

func (s *memoryStore) userCopyLocked(id string) *domain.User {
	u := *s.users[id]
	u.MessageCount = len(s.messages[id])
	return &u
}

func (s *memoryStore) evictLocked(id string) {
	u, ok := s.users[id]
	if !ok {
		return
	}
	for _, m := range s.messages[id] {
		delete(s.owners, m.ID)
	}
	delete(s.messages, id)
	delete(s.byUsername, strings.ToLower(u.Username))
	delete(s.users, id)
}

// listMessages returns the inbox newest first.
func (s *memoryStore) listMessages(ownerID string) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeUserLocked(ownerID); err != nil {
		return nil, err
	}
	out := make([]*domain.Message, 0, len(s.messages[ownerID]))
	for _, m := range s.messages[ownerID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// addMessage creates the message and reports the new derived count.
func (s *memoryStore) addMessage(recipientID, content string, isPublic bool) (*domain.Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeUserLocked(recipientID); err != nil {
		return nil, 0, err
	}
	msg, err := domain.NewMessage(uuid.NewString(), content, isPublic, s.now())
	if err != nil {
		return nil, 0, err
	}
	s.messages[recipientID] = append([]*domain.Message{msg}, s.messages[recipientID]...)
	s.owners[msg.ID] = recipientID

	cp := *msg
	return &cp, len(s.messages[recipientID]), nil
}

func (s *memoryStore) addReaction(messageID string, kind domain.ReactionKind) (*domain.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ownerID, err := s.messageLocked(messageID)
	if err != nil {
		return nil, "", err
	}
	m.Reactions.Increment(kind)
	cp := *m
	return &cp, ownerID, nil
}

func (s *memoryStore) deleteMessage(ownerID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owners[messageID] != ownerID {
		return domain.ErrMessageNotFound
	}
	list := s.messages[ownerID]
	for i, m := range list {
		if m.ID == messageID {
			s.messages[ownerID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(s.owners, messageID)
	return nil
}

// markRead is idempotent; re-marking an already-read message changes nothing.
func (s *memoryStore) markRead(messageID, ownerID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, owner, err := s.messageLocked(messageID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, domain.ErrNotOwner
	}
	m.IsRead = true
	cp := *m
	return &cp, nil
}

func (s *memoryStore) reply(messageID, ownerID, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, owner, err := s.messageLocked(messageID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, domain.ErrNotOwner
	}
	if m.HasReply() {
		return nil, domain.ErrReplyExists
	}
	if err := domain.ValidateContent(text); err != nil {
		return nil, err
	}
	ts := s.now()
	m.Reply = strings.TrimSpace(text)
	m.ReplyTimestamp = &ts
	cp := *m
	return &cp, nil
}

func (s *memoryStore) messageLocked(messageID string) (*domain.Message, string, error) {
	ownerID, ok := s.owners[messageID]
	if !ok {
		return nil, "", domain.ErrMessageNotFound
	}
	for _, m := range s.messages[ownerID] {
		if m.ID == messageID {
			return m, ownerID, nil
		}
	}
	return nil, "", domain.ErrMessageNotFound
}
