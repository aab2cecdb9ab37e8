package edit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

var (
	// ErrItemsBusy is returned by Start when an item is held by another session.
	ErrItemsBusy = errors.New("items are being edited")
	// ErrDuplicateCommit is returned by Commit while another commit of the
	// same session is in flight.
	ErrDuplicateCommit = errors.New("commit already in progress")
	// ErrReleased is returned when committing a released session.
	ErrReleased = errors.New("session released")
)

// Result describes a successful commit.
type Result struct {
	Session uuid.UUID
	ICN     int64
	// Created lists the items the commit created.
	Created []item.ID
}

// IDGenerator issues session ids.
type IDGenerator interface {
	Generate() (uuid.UUID, error)
}

// UUIDv7Generator issues time-sortable UUIDv7 session ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7.
func (UUIDv7Generator) Generate() (uuid.UUID, error) {
	return uuid.NewV7()
}

// Manager grants exclusive edit rights over items.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
	ids    IDGenerator

	mu     sync.Mutex
	holder map[item.ID]uuid.UUID
	active map[uuid.UUID]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithIDGenerator sets the session id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// NewManager creates a Manager editing items of s.
func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		logger: s.Logger(),
		ids:    UUIDv7Generator{},
		holder: make(map[item.ID]uuid.UUID),
		active: make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session holding items. Returns ErrItemsBusy without
// blocking if any of them is held by another session.
func (m *Manager) Start(items ...item.ID) (*Session, error) {
	id, err := m.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range items {
		if other, busy := m.holder[it]; busy {
			return nil, fmt.Errorf("item %d held by session %s: %w", it, other, ErrItemsBusy)
		}
	}

	s := &Session{
		id:      id,
		manager: m,
		items:   make(map[item.ID]struct{}, len(items)),
	}
	for _, it := range items {
		m.holder[it] = id
		s.items[it] = struct{}{}
	}
	m.active[id] = s
	m.logger.Debug("edit session started", "session", id, "items", len(items))
	return s, nil
}

// Busy reports whether id is held by a session.
func (m *Manager) Busy(id item.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.holder[id]
	return ok
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for it, holder := range m.holder {
		if holder == s.id {
			delete(m.holder, it)
		}
	}
	delete(m.active, s.id)
}

// Session is an exclusive edit of a set of items.
type Session struct {
	id      uuid.UUID
	manager *Manager

	committing atomic.Bool
	released   atomic.Bool

	mu        sync.Mutex
	items     map[item.ID]struct{}
	listeners []func(Result)
}

// ID returns the session id, a UUIDv7.
func (s *Session) ID() uuid.UUID { return s.id }

// Holds reports whether the session holds id.
func (s *Session) Holds(id item.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok
}

// Released reports whether the session was committed or discarded.
func (s *Session) Released() bool { return s.released.Load() }

// OnCommit registers fn to run after a successful commit.
func (s *Session) OnCommit(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Commit runs fn in a foreground write. On success the session is released
// and the commit listeners run; on failure nothing is written and the
// session stays open for another attempt.
func (s *Session) Commit(ctx context.Context, fn func(w *Writer) error) error {
	if s.released.Load() {
		return fmt.Errorf("commit session %s: %w", s.id, ErrReleased)
	}
	if !s.committing.CompareAndSwap(false, true) {
		s.manager.logger.Error("duplicate commit rejected", "session", s.id)
		return fmt.Errorf("commit session %s: %w", s.id, ErrDuplicateCommit)
	}
	defer s.committing.Store(false)
	if s.released.Load() {
		return fmt.Errorf("commit session %s: %w", s.id, ErrReleased)
	}

	var created []item.ID
	p := s.manager.store.Enqueue(ctx, store.Foreground, func(tx *store.Tx) error {
		w := &Writer{tx: tx, session: s}
		if err := fn(w); err != nil {
			return err
		}
		created = w.created
		return nil
	})
	<-p.Done()
	if err := p.Err(); err != nil {
		if !store.IsCancelled(err) {
			s.manager.logger.Debug("commit failed", "session", s.id, "error", err)
		}
		return fmt.Errorf("commit session %s: %w", s.id, err)
	}

	s.release()
	res := Result{Session: s.id, ICN: p.ICN(), Created: created}
	s.manager.logger.Debug("edit session committed", "session", s.id, "icn", res.ICN, "created", len(created))

	s.mu.Lock()
	listeners := append([]func(Result){}, s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(res)
	}
	return nil
}

// Discard releases the session without writing. It is ignored, with a
// warning, while a commit is in flight.
func (s *Session) Discard() {
	if !s.committing.CompareAndSwap(false, true) {
		s.manager.logger.Warn("discard ignored during commit", "session", s.id)
		return
	}
	s.release()
	s.committing.Store(false)
}

func (s *Session) release() {
	if s.released.CompareAndSwap(false, true) {
		s.manager.release(s)
	}
}
