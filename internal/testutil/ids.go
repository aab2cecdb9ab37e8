package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// SequentialIDs issues predictable session ids: SessionID(1), SessionID(2), ...
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu sync.Mutex
	n  uint64
}

// Generate returns the next id. It never fails.
func (g *SequentialIDs) Generate() (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return SessionID(g.n), nil
}

// Reset restarts the sequence at SessionID(1).
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// SessionID returns the n-th id of a SequentialIDs, a version 7 UUID with
// n in its low bytes: SessionID(1) is 00000000-0000-7000-8000-000000000001.
func SessionID(n uint64) uuid.UUID {
	var id uuid.UUID
	id[6] = 0x70
	id[8] = 0x80
	binary.BigEndian.PutUint64(id[8:], n)
	id[8] |= 0x80
	return id
}
