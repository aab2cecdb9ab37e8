package predicate

import (
	"sync"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Live is a standing query over a store. It keeps the resolved form of its
// expression and resolves again only after a commit touched something the
// resolution read.
type Live struct {
	expr  Expr
	store *store.Store

	mu       sync.Mutex
	resolved Expr
	sub      *Subscription
	remove   func()
}

// Watch starts a standing query for e.
func Watch(s *store.Store, e Expr) *Live {
	return &Live{expr: Normalize(e), store: s}
}

// Expr returns the query expression.
func (l *Live) Expr() Expr {
	return l.expr
}

// Items evaluates the query against the latest snapshot.
func (l *Live) Items() ([]item.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil && l.sub.Valid() && l.resolved != nil {
		return EvaluateResolved(l.resolved, l.store.Snapshot())
	}
	snap, err := l.refresh()
	if err != nil {
		return nil, err
	}
	return EvaluateResolved(l.resolved, snap)
}

// Current reports whether the cached resolution is still valid.
func (l *Live) Current() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil && l.sub.Valid()
}

// refresh re-resolves the expression. The listener is registered before the
// snapshot is taken so no commit after it can go unnoticed.
func (l *Live) refresh() (*store.Snapshot, error) {
	if l.remove != nil {
		l.remove()
	}
	sub := NewSubscription()
	l.remove = l.store.AddListener(sub.Observe)
	l.sub = sub

	snap := l.store.Snapshot()
	resolved, err := Resolve(l.expr, snap, sub)
	if err != nil {
		l.resolved = nil
		return nil, err
	}
	l.resolved = resolved
	return snap, nil
}

// Close stops tracking commits.
func (l *Live) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remove != nil {
		l.remove()
		l.remove = nil
	}
	l.sub = nil
}
