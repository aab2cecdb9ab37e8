package predicate

import (
	"sync"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Subscription tracks what a resolution read so the resolved expression can
// be dropped once the data changes.
//
// A nil *Subscription is valid and records nothing.
//
// Thread-safety: Subscription is safe for concurrent use. Observe is
// meant to be registered as a store listener.
type Subscription struct {
	mu       sync.Mutex
	all      bool
	attrs    map[item.AttrID]struct{}
	invalid  bool
	onChange []func()
}

// NewSubscription creates an empty, valid subscription.
func NewSubscription() *Subscription {
	return &Subscription{attrs: make(map[item.AttrID]struct{})}
}

// Watch adds attributes to the subscription.
func (s *Subscription) Watch(attrs ...item.AttrID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		s.attrs[a] = struct{}{}
	}
}

// WatchAll makes every commit invalidate the subscription.
func (s *Subscription) WatchAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = true
}

func (s *Subscription) watchPredicate(p Predicate) {
	if s == nil {
		return
	}
	switch x := p.(type) {
	case fn:
		if len(x.Reads) == 0 {
			s.WatchAll()
			return
		}
		s.Watch(x.Reads...)
	case Dependent:
		s.Watch(x.Attrs()...)
	default:
		s.WatchAll()
	}
}

// Watching reports whether a change to attr invalidates the subscription.
func (s *Subscription) Watching(attr item.AttrID) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all {
		return true
	}
	_, ok := s.attrs[attr]
	return ok
}

// Observe invalidates the subscription when c touches a watched attribute.
// Item creation and removal count as touching the item's attributes, so a
// removed referrer invalidates a ReferredBy resolution.
func (s *Subscription) Observe(c store.Commit) {
	if s == nil {
		return
	}
	s.mu.Lock()
	hit := s.all && len(c.Items) > 0
	if !hit {
	scan:
		for _, attrs := range c.Items {
			for _, a := range attrs {
				if _, ok := s.attrs[a]; ok {
					hit = true
					break scan
				}
			}
		}
	}
	s.mu.Unlock()

	if hit {
		s.Invalidate()
	}
}

// OnChange registers fn to run (once per invalidation) when the
// subscription becomes invalid.
func (s *Subscription) OnChange(fn func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Invalidate marks the subscription stale.
func (s *Subscription) Invalidate() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.invalid {
		s.mu.Unlock()
		return
	}
	s.invalid = true
	callbacks := append([]func(){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Valid reports whether nothing the resolution read has changed.
func (s *Subscription) Valid() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalid
}
