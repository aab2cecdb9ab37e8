package store

import (
	"context"
	"sync"
)

// Priority orders queued writes. Foreground writes are serviced before
// Background ones; within a priority writes run in enqueue order.
type Priority int

const (
	// Background is used for download/upload drains and bulk work.
	Background Priority = iota
	// Foreground is used for interactive edits.
	Foreground
)

func (p Priority) String() string {
	if p == Foreground {
		return "foreground"
	}
	return "background"
}

// job is a queued write transaction.
type job struct {
	ctx      context.Context
	priority Priority
	fn       func(*Tx) error
	pending  *Pending
}

// Pending tracks a queued write until the writer has finished with it.
type Pending struct {
	done chan struct{}
	err  error
	icn  int64
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) finish(icn int64, err error) {
	p.icn = icn
	p.err = err
	close(p.done)
}

// Done is closed when the write has committed or been abandoned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finishes or ctx is done.
// An expired ctx only stops the waiting; the write's own context decides
// whether it is cancelled.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.err
	}
}

// Err returns the write result. Only valid after Done is closed.
func (p *Pending) Err() error {
	return p.err
}

// ICN returns the commit number of the write, or zero if it changed nothing
// or failed. Only valid after Done is closed.
func (p *Pending) ICN() int64 {
	return p.icn
}

// writeQueue is a thread-safe two-level FIFO queue of write jobs.
//
// The queue is unbounded so callers never block on enqueue; the writer
// goroutine drains it. A buffered signal channel (size 1) coalesces wakeups
// and enables context-aware waiting in the writer loop.
type writeQueue struct {
	mu         sync.Mutex
	foreground []*job
	background []*job
	closed     bool
	signal     chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		foreground: make([]*job, 0, 16),
		background: make([]*job, 0, 16),
		signal:     make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of its priority lane.
// Returns false if the queue is closed.
func (q *writeQueue) Enqueue(j *job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if j.priority == Foreground {
		q.foreground = append(q.foreground, j)
	} else {
		q.background = append(q.background, j)
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the next job without blocking: the oldest foreground
// job if any, otherwise the oldest background job.
func (q *writeQueue) TryDequeue() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := popFront(&q.foreground); ok {
		return j, true
	}
	return popFront(&q.background)
}

func popFront(lane *[]*job) (*job, bool) {
	if len(*lane) == 0 {
		return nil, false
	}
	j := (*lane)[0]
	// Nil out the slot so the backing array does not retain finished jobs.
	(*lane)[0] = nil
	if len(*lane) == 1 {
		*lane = (*lane)[:0]
	} else {
		*lane = (*lane)[1:]
	}
	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *writeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.foreground) + len(q.background)
}

// Close stops accepting jobs and returns the ones still queued so the
// caller can fail them.
func (q *writeQueue) Close() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := append(q.foreground, q.background...)
	q.foreground = nil
	q.background = nil
	return rest
}
