// Package inbox holds the authoritative in-memory message collection for the
// current viewing context and the reconciliation engine that is the single
// mutation path into it.
package inbox

import (
	"sort"
	"sync"

	"github.com/ast-secret/inboxcore/internal/domain"
)

type Filter string

const (
	FilterAll     Filter = "all"
	FilterUnread  Filter = "unread"
	FilterRead    Filter = "read"
	FilterPublic  Filter = "public"
	FilterPrivate Filter = "private"
)

// Counts are always computed from the live collection on read. There is no
// separately maintained counter anywhere that could drift from it.
type Counts struct {
	Total   int
	Unread  int
	Read    int
	Public  int
	Private int
}

// Store Invariants:
// 1. Never two entries with the same message id.
// 2. isRead transitions false -> true once; re-apply is a no-op.
// 3. Reaction counters never decrease.
// 4. Reply is set at most once.
// 5. messageCount reported for the user always equals len(messages).
type Store struct {
	mu       sync.RWMutex
	user     *domain.User
	messages map[string]*domain.Message
}

func NewStore() *Store {
	return &Store{messages: make(map[string]*domain.Message)}
}

// Seed replaces the collection with the result of a bulk fetch. Server order
// is opaque, so the store keeps its own ordering on read.
func (s *Store) Seed(user *domain.User, messages []*domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = user
	s.messages = make(map[string]*domain.Message, len(messages))
	for _, m := range messages {
		if m == nil || m.ID == "" {
			continue
		}
		if _, ok := s.messages[m.ID]; ok {
			continue
		}
		cp := *m
		s.messages[m.ID] = &cp
	}
}

// User returns the current user with MessageCount derived from the live
// collection size.
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	u.MessageCount = len(s.messages)
	return &u
}

// Contains reports whether the id is currently present.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[id]
	return ok
}

// Get returns a copy of the message, if present.
func (s *Store) Get(id string) (*domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// apply performs the per-kind mutation. It assumes the engine has already
// filtered tombstoned ids. It reports whether state actually changed.
func (s *Store) apply(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case domain.EventMessageArrived:
		if ev.Message == nil || ev.Message.ID == "" {
			return false
		}
		// Idempotent on id: a duplicate arrival is a no-op, not a duplicate.
		if _, ok := s.messages[ev.Message.ID]; ok {
			return false
		}
		cp := *ev.Message
		s.messages[cp.ID] = &cp
		return true

	case domain.EventReactionChanged:
		m, ok := s.messages[ev.MessageID]
		if !ok {
			return false
		}
		merged := m.Reactions.Merge(ev.Reactions)
		if merged == m.Reactions {
			return false
		}
		m.Reactions = merged
		return true

	case domain.EventReplyAdded:
		m, ok := s.messages[ev.MessageID]
		if !ok || m.HasReply() {
			return false
		}
		m.Reply = ev.Reply
		ts := ev.ReplyTimestamp
		m.ReplyTimestamp = &ts
		return true

	case domain.EventReadStateChanged:
		m, ok := s.messages[ev.MessageID]
		if !ok || m.IsRead {
			return false
		}
		m.IsRead = true
		return true

	case domain.EventMessageDeleted:
		if _, ok := s.messages[ev.MessageID]; !ok {
			return false
		}
		delete(s.messages, ev.MessageID)
		return true
	}
	return false
}

// FilteredView returns copies of the messages matching the filter, newest
// first (timestamp descending, id as tiebreak). It never mutates the store.
func (s *Store) FilteredView(f Filter) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if !matches(m, f) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func matches(m *domain.Message, f Filter) bool {
	switch f {
	case FilterUnread:
		return !m.IsRead
	case FilterRead:
		return m.IsRead
	case FilterPublic:
		return m.IsPublic
	case FilterPrivate:
		return !m.IsPublic
	default:
		return true
	}
}

// DerivedCounts is computed on every read.
func (s *Store) DerivedCounts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{Total: len(s.messages)}
	for _, m := range s.messages {
		if m.IsRead {
			c.Read++
		} else {
			c.Unread++
		}
		if m.IsPublic {
			c.Public++
		} else {
			c.Private++
		}
	}
	return c
}
