package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/itemsync/internal/item"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - items, item_values, identities, meta
const currentSchemaVersion = 1

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Commit describes one committed write. It is handed to listeners after the
// new snapshot is published.
type Commit struct {
	// ICN is the commit number stamped on the write.
	ICN int64

	// Items maps every changed item to the attributes changed on it.
	// Item creation and removal show up with the attributes they affected.
	Items map[item.ID][]item.AttrID

	// Snapshot is the snapshot published by the commit.
	Snapshot *Snapshot
}

// Touches reports whether the commit changed attr on any item.
func (c Commit) Touches(attr item.AttrID) bool {
	for _, attrs := range c.Items {
		for _, a := range attrs {
			if a == attr {
				return true
			}
		}
	}
	return false
}

// Listener observes commits. Listeners run on the writer goroutine and must
// not block or write to the store synchronously.
type Listener func(Commit)

// Store is the transactional item store.
//
// Thread-safety model:
//   - Snapshot(), Read(): safe from any goroutine, never block on writes
//   - Write(), Enqueue(): safe from any goroutine; writes run one at a time
//     on the writer goroutine started by Open
//   - Close(): safe to call more than once
type Store struct {
	db       *sql.DB
	registry *item.Registry
	logger   *slog.Logger
	metrics  *Metrics
	clock    *Clock
	queue    *writeQueue

	current atomic.Pointer[Snapshot]

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	registry   *item.Registry
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithRegistry sets the attribute registry. Default: item.NewRegistry().
func WithRegistry(r *item.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics registers the store collectors with r.
// Without it the collectors are kept but never exported.
func WithMetrics(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// Open creates or opens a store backed by the SQLite database at path.
// Applies required pragmas and migrations, loads the persisted items and
// starts the writer goroutine.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Use MemoryPath for a throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = item.NewRegistry()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also keeps a
	// :memory: database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	snap, err := load(context.Background(), db, o.registry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	metrics := NewMetrics()
	if o.registerer != nil {
		if err := metrics.Register(o.registerer); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	s := &Store{
		db:        db,
		registry:  o.registry,
		logger:    o.logger,
		metrics:   metrics,
		clock:     NewClockAt(snap.icn),
		queue:     newWriteQueue(),
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
	s.current.Store(snap)

	go s.run()

	s.logger.Info("store opened",
		"path", path,
		"items", snap.items.Len(),
		"icn", snap.icn,
	)
	return s, nil
}

// Close stops the writer and closes the database. Writes still queued fail
// with ErrClosed; a write already running finishes first.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		for _, j := range s.queue.Close() {
			s.metrics.AbortedWrites.WithLabelValues(AbortClosed).Inc()
			j.pending.finish(0, ErrClosed)
		}
		<-s.done
		s.metrics.QueueDepth.Set(0)
		s.closeErr = s.db.Close()
		s.logger.Info("store closed", "icn", s.clock.Current())
	})
	return s.closeErr
}

// Registry returns the attribute registry.
func (s *Store) Registry() *item.Registry {
	return s.registry
}

// Metrics returns the store's prometheus collectors.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Snapshot returns the latest committed snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Read runs fn against the latest committed snapshot.
func (s *Store) Read(fn func(*Snapshot) error) error {
	return fn(s.Snapshot())
}

// Write queues fn and blocks until the writer has committed or discarded it.
//
// The write is all-or-nothing: if fn returns an error, panics, or ctx is
// done before the changes are committed, nothing is applied. A cancelled
// ctx yields ErrCancelled. A panic yields a *ContractError.
func (s *Store) Write(ctx context.Context, priority Priority, fn func(*Tx) error) error {
	p := s.Enqueue(ctx, priority, fn)
	<-p.Done()
	return p.Err()
}

// Enqueue queues fn without waiting. The returned Pending reports the result.
func (s *Store) Enqueue(ctx context.Context, priority Priority, fn func(*Tx) error) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}
	p := newPending()
	j := &job{ctx: ctx, priority: priority, fn: fn, pending: p}
	if !s.queue.Enqueue(j) {
		s.metrics.AbortedWrites.WithLabelValues(AbortClosed).Inc()
		p.finish(0, ErrClosed)
		return p
	}
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	return p
}

// AddListener registers l for every future commit and returns a function
// that removes it.
func (s *Store) AddListener(l Listener) (remove func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// run is the single-writer loop.
// CRITICAL: exactly one goroutine runs it; it owns every mutation.
func (s *Store) run() {
	defer close(s.done)

	for {
		if j, ok := s.queue.TryDequeue(); ok {
			s.metrics.QueueDepth.Set(float64(s.queue.Len()))
			s.execute(j)
			continue
		}

		// The signal channel closes when the queue is closed.
		if _, ok := <-s.queue.Wait(); !ok {
			return
		}
	}
}

// execute applies one job: run the function on a fresh Tx, then persist,
// publish and notify, or discard everything.
func (s *Store) execute(j *job) {
	start := time.Now()
	defer func() {
		s.metrics.WriteSeconds.Observe(time.Since(start).Seconds())
	}()

	if j.ctx.Err() != nil {
		s.abort(j, AbortCancelled, ErrCancelled)
		return
	}

	base := s.current.Load()
	tx := newTx(j.ctx, base)

	err := s.call(tx, j.fn)
	if err == nil && j.ctx.Err() != nil {
		err = ErrCancelled
	}
	if err != nil {
		s.abort(j, abortReason(err), err)
		return
	}

	if !tx.changed() {
		j.pending.finish(0, nil)
		return
	}

	icn := s.clock.Current() + 1
	// Once the function has succeeded the commit is not cancellable anymore.
	if err := s.persist(context.WithoutCancel(j.ctx), icn, tx); err != nil {
		s.logger.Error("write not persisted",
			"icn", icn,
			"items", len(tx.dirty),
			"error", err,
		)
		s.abort(j, AbortPersist, err)
		return
	}

	next := base.apply(icn, tx.dirty, tx.idents, tx.lastID)
	s.current.Store(next)
	s.clock.Next()
	s.metrics.Commits.Inc()

	s.logger.Debug("write committed",
		"icn", icn,
		"priority", j.priority.String(),
		"items", len(tx.touched),
	)

	j.pending.finish(icn, nil)
	s.notify(Commit{ICN: icn, Items: touchedAttrs(tx), Snapshot: next})
}

// call runs fn, converting a panic into a ContractError.
func (s *Store) call(tx *Tx, fn func(*Tx) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ce, ok := r.(*ContractError)
		if !ok {
			ce = NewContractError(ErrCodePanic, 0, "", "%v", r)
		}
		s.logger.Error("contract violation, write aborted",
			"code", ce.Code,
			"item", ce.Item,
			"attr", ce.Attr,
			"error", ce.Message,
			"stack", string(debug.Stack()),
		)
		err = ce
	}()
	return fn(tx)
}

func (s *Store) abort(j *job, reason string, err error) {
	s.metrics.AbortedWrites.WithLabelValues(reason).Inc()
	if reason != AbortContract && reason != AbortPersist {
		// Cancellation and caller errors are reported to the caller only.
		s.logger.Debug("write discarded", "reason", reason, "error", err)
	}
	j.pending.finish(0, err)
}

func abortReason(err error) string {
	var ce *ContractError
	switch {
	case errors.Is(err, ErrCancelled):
		return AbortCancelled
	case errors.As(err, &ce):
		return AbortContract
	}
	return AbortError
}

func (s *Store) notify(c Commit) {
	s.listenersMu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextListener; id++ {
		if l, ok := s.listeners[id]; ok {
			ls = append(ls, l)
		}
	}
	s.listenersMu.Unlock()

	for _, l := range ls {
		s.safeNotify(l, c)
	}
}

func (s *Store) safeNotify(l Listener, c Commit) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("commit listener panicked", "icn", c.ICN, "panic", r)
		}
	}()
	l(c)
}

func touchedAttrs(tx *Tx) map[item.ID][]item.AttrID {
	out := make(map[item.ID][]item.AttrID, len(tx.touched))
	for id, attrs := range tx.touched {
		out[id] = sortedAttrs(attrs)
	}
	return out
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	// WAL has no meaning for an in-memory database.
	if path != MemoryPath {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
