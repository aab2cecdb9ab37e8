package store

import (
	"cmp"
	"sort"

	"github.com/benbjohnson/immutable"

	"github.com/roach88/itemsync/internal/item"
)

// Slot selects one of the three value sets kept per item.
type Slot int

const (
	// Trunk holds the live, authoritative values.
	Trunk Slot = iota
	// Base holds the server values as of the last successful sync.
	Base
	// Conflict holds the server's competing values awaiting resolution.
	Conflict
)

var slotNames = [...]string{"trunk", "base", "conflict"}

func (s Slot) String() string {
	if s >= Trunk && s <= Conflict {
		return slotNames[s]
	}
	return "slot(?)"
}

// Reader is the read view shared by published snapshots and in-flight
// write transactions (which see their own uncommitted changes).
type Reader interface {
	// ICN returns the commit number the view is based on.
	ICN() int64
	// Registry returns the attribute registry of the store.
	Registry() *item.Registry
	// Exists reports whether id is a live (created, not cleared) item.
	Exists(id item.ID) bool
	// Value reads a trunk value. ok is false when the attribute was never set.
	Value(id item.ID, attr item.AttrID) (item.Value, bool)
	// ValueAt reads a value from the given slot.
	ValueAt(id item.ID, slot Slot, attr item.AttrID) (item.Value, bool)
	// HasSlot reports whether the slot holds any value for id.
	HasSlot(id item.ID, slot Slot) bool
	// Attrs lists the attributes set in a slot, sorted.
	Attrs(id item.ID, slot Slot) []item.AttrID
	// Items lists all live items, sorted ascending.
	Items() []item.ID
	// LookupKey lists live items whose trunk value of attr has the index key.
	LookupKey(attr item.AttrID, key string) []item.ID
	// Find resolves a stable identity to its item.
	Find(identity string) (item.ID, bool)
}

// record is one item's state. Records reachable from a snapshot are never
// mutated; transactions copy a record before changing it.
type record struct {
	slots   [3]map[item.AttrID]item.Value
	removed bool
}

func newRecord() *record {
	return &record{}
}

func (r *record) clone() *record {
	c := &record{removed: r.removed}
	for i, m := range r.slots {
		if len(m) == 0 {
			continue
		}
		cp := make(map[item.AttrID]item.Value, len(m))
		for k, v := range m {
			cp[k] = v
		}
		c.slots[i] = cp
	}
	return c
}

func (r *record) get(slot Slot, attr item.AttrID) (item.Value, bool) {
	v, ok := r.slots[slot][attr]
	return v, ok
}

func (r *record) attrs(slot Slot) []item.AttrID {
	m := r.slots[slot]
	if len(m) == 0 {
		return nil
	}
	out := make([]item.AttrID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// indexKeys returns the value-index entries of the record's trunk.
func (r *record) indexKeys() []string {
	if r.removed {
		return nil
	}
	var keys []string
	for attr, v := range r.slots[Trunk] {
		for _, k := range item.IndexKeys(v) {
			keys = append(keys, indexKey(attr, k))
		}
	}
	return keys
}

func indexKey(attr item.AttrID, valueKey string) string {
	return string(attr) + "\x00" + valueKey
}

// idComparer orders item IDs for immutable sorted maps.
type idComparer struct{}

func (idComparer) Compare(a, b item.ID) int {
	return cmp.Compare(a, b)
}

type idSet = immutable.SortedMap[item.ID, struct{}]

func newIDSet() *idSet {
	return immutable.NewSortedMap[item.ID, struct{}](idComparer{})
}

// Snapshot is an immutable, consistent view of the whole store at one ICN.
//
// Thread-safety: Snapshot is safe for concurrent use; it never changes.
type Snapshot struct {
	icn      int64
	registry *item.Registry
	items    *immutable.SortedMap[item.ID, *record]
	index    *immutable.Map[string, *idSet]
	idents   *immutable.Map[string, item.ID]
	lastID   item.ID
}

func emptySnapshot(reg *item.Registry) *Snapshot {
	return &Snapshot{
		registry: reg,
		items:    immutable.NewSortedMap[item.ID, *record](idComparer{}),
		index:    immutable.NewMap[string, *idSet](nil),
		idents:   immutable.NewMap[string, item.ID](nil),
	}
}

// ICN returns the commit number of the snapshot.
func (s *Snapshot) ICN() int64 { return s.icn }

// Registry returns the attribute registry.
func (s *Snapshot) Registry() *item.Registry { return s.registry }

func (s *Snapshot) record(id item.ID) (*record, bool) {
	return s.items.Get(id)
}

// Exists reports whether id is a live item.
func (s *Snapshot) Exists(id item.ID) bool {
	r, ok := s.items.Get(id)
	return ok && !r.removed
}

// Removed reports whether id was cleared (tombstoned).
func (s *Snapshot) Removed(id item.ID) bool {
	r, ok := s.items.Get(id)
	return ok && r.removed
}

// Value reads a trunk value.
func (s *Snapshot) Value(id item.ID, attr item.AttrID) (item.Value, bool) {
	return s.ValueAt(id, Trunk, attr)
}

// ValueAt reads a value from the given slot.
func (s *Snapshot) ValueAt(id item.ID, slot Slot, attr item.AttrID) (item.Value, bool) {
	r, ok := s.items.Get(id)
	if !ok {
		return nil, false
	}
	return r.get(slot, attr)
}

// HasSlot reports whether the slot holds any value.
func (s *Snapshot) HasSlot(id item.ID, slot Slot) bool {
	r, ok := s.items.Get(id)
	return ok && len(r.slots[slot]) > 0
}

// Attrs lists the attributes set in a slot.
func (s *Snapshot) Attrs(id item.ID, slot Slot) []item.AttrID {
	r, ok := s.items.Get(id)
	if !ok {
		return nil
	}
	return r.attrs(slot)
}

// Items lists all live items in ascending order.
func (s *Snapshot) Items() []item.ID {
	out := make([]item.ID, 0, s.items.Len())
	itr := s.items.Iterator()
	for !itr.Done() {
		id, r, _ := itr.Next()
		if !r.removed {
			out = append(out, id)
		}
	}
	return out
}

// LookupKey lists live items whose trunk value of attr carries the index key.
func (s *Snapshot) LookupKey(attr item.AttrID, key string) []item.ID {
	set, ok := s.index.Get(indexKey(attr, key))
	if !ok {
		return nil
	}
	out := make([]item.ID, 0, set.Len())
	itr := set.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		out = append(out, id)
	}
	return out
}

// Find resolves a stable identity to its item.
func (s *Snapshot) Find(identity string) (item.ID, bool) {
	return s.idents.Get(normalIdentity(identity))
}

// LastID returns the highest item ID issued so far.
func (s *Snapshot) LastID() item.ID { return s.lastID }

// apply produces the successor snapshot from a set of changed records.
// The receiver is left untouched.
func (s *Snapshot) apply(icn int64, changed map[item.ID]*record, idents map[string]item.ID, lastID item.ID) *Snapshot {
	next := &Snapshot{
		icn:      icn,
		registry: s.registry,
		items:    s.items,
		index:    s.index,
		idents:   s.idents,
		lastID:   lastID,
	}

	for _, id := range sortedIDs(changed) {
		rec := changed[id]
		var oldKeys []string
		if prev, ok := s.items.Get(id); ok {
			oldKeys = prev.indexKeys()
		}
		newKeys := rec.indexKeys()

		for _, k := range diffKeys(oldKeys, newKeys) {
			next.index = removeFromIndex(next.index, k, id)
		}
		for _, k := range diffKeys(newKeys, oldKeys) {
			next.index = addToIndex(next.index, k, id)
		}
		next.items = next.items.Set(id, rec)
	}

	for identity, id := range idents {
		next.idents = next.idents.Set(identity, id)
	}
	return next
}

func addToIndex(idx *immutable.Map[string, *idSet], key string, id item.ID) *immutable.Map[string, *idSet] {
	set, ok := idx.Get(key)
	if !ok {
		set = newIDSet()
	}
	return idx.Set(key, set.Set(id, struct{}{}))
}

func removeFromIndex(idx *immutable.Map[string, *idSet], key string, id item.ID) *immutable.Map[string, *idSet] {
	set, ok := idx.Get(key)
	if !ok {
		return idx
	}
	set = set.Delete(id)
	if set.Len() == 0 {
		return idx.Delete(key)
	}
	return idx.Set(key, set)
}

// diffKeys returns the keys of a that are not in b.
func diffKeys(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}
	inB := make(map[string]struct{}, len(b))
	for _, k := range b {
		inB[k] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, k := range a {
		if _, ok := inB[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func sortedIDs[V any](m map[item.ID]V) []item.ID {
	out := make([]item.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
