package inbox

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/domain"
	"github.com/ast-secret/inboxcore/internal/observability"
)

// Engine merges locally initiated facts (applied after gateway confirmation,
// using the server's returned authoritative state) with server-pushed facts.
// Both paths go through Reconcile, so there is exactly one mutation path into
// the store regardless of origin.
type Engine struct {
	mu         sync.Mutex
	store      *Store
	tombstones map[string]struct{}
}

func NewEngine(store *Store) *Engine {
	return &Engine{
		store:      store,
		tombstones: make(map[string]struct{}),
	}
}

// Reconcile applies one event and reports whether state changed.
//
// Rules:
//   - a deleted id is tombstoned for the session; any later event for it is
//     dropped (a stale push cannot resurrect a message),
//   - arrivals are idempotent on id,
//   - reaction events replace counters with the authoritative counts, floored
//     per kind at the current value, so optimistic-then-push double delivery
//     of the same fact converges instead of double-counting,
//   - read and reply transitions are one-way and idempotent.
func (e *Engine) Reconcile(ev domain.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dead := e.tombstones[ev.MessageID]; dead {
		observability.ReconcileDroppedTotal.WithLabelValues("tombstoned").Inc()
		observability.GetLogger(context.Background()).Debug("reconcile: event for deleted message dropped",
			zap.String("message_id", ev.MessageID), zap.String("type", string(ev.Type)))
		return false
	}

	if ev.Type == domain.EventMessageDeleted {
		e.tombstones[ev.MessageID] = struct{}{}
	}

	applied := e.store.apply(ev)
	if !applied && ev.Type != domain.EventMessageDeleted {
		observability.ReconcileDroppedTotal.WithLabelValues("no_op").Inc()
	}
	return applied
}
