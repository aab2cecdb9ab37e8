package store

import (
	"context"
	"sort"

	"github.com/roach88/itemsync/internal/item"
)

// Tx is a write transaction. It is only valid inside the function passed to
// Store.Write or Store.Enqueue and must not be retained after it returns.
//
// Reads through a Tx see its own uncommitted changes. Changes are staged on
// private copies of the affected records; nothing reaches the published
// snapshot unless the transaction function returns nil.
type Tx struct {
	ctx    context.Context
	base   *Snapshot
	dirty  map[item.ID]*record
	idents map[string]item.ID
	lastID item.ID

	touched map[item.ID]map[item.AttrID]struct{}
}

func newTx(ctx context.Context, base *Snapshot) *Tx {
	return &Tx{
		ctx:     ctx,
		base:    base,
		dirty:   make(map[item.ID]*record),
		idents:  make(map[string]item.ID),
		lastID:  base.lastID,
		touched: make(map[item.ID]map[item.AttrID]struct{}),
	}
}

// Context returns the context the write was submitted with.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Check returns ErrCancelled once the write's context is done.
// Long-running transaction functions call it between steps.
func (tx *Tx) Check() error {
	if tx.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// ICN returns the commit number the transaction is based on.
func (tx *Tx) ICN() int64 { return tx.base.icn }

// Registry returns the attribute registry.
func (tx *Tx) Registry() *item.Registry { return tx.base.registry }

// Base returns the snapshot the transaction started from.
func (tx *Tx) Base() *Snapshot { return tx.base }

func (tx *Tx) record(id item.ID) (*record, bool) {
	if r, ok := tx.dirty[id]; ok {
		return r, true
	}
	return tx.base.record(id)
}

// Exists reports whether id is a live item.
func (tx *Tx) Exists(id item.ID) bool {
	r, ok := tx.record(id)
	return ok && !r.removed
}

// Value reads a trunk value.
func (tx *Tx) Value(id item.ID, attr item.AttrID) (item.Value, bool) {
	return tx.ValueAt(id, Trunk, attr)
}

// ValueAt reads a value from the given slot.
func (tx *Tx) ValueAt(id item.ID, slot Slot, attr item.AttrID) (item.Value, bool) {
	r, ok := tx.record(id)
	if !ok {
		return nil, false
	}
	return r.get(slot, attr)
}

// HasSlot reports whether the slot holds any value.
func (tx *Tx) HasSlot(id item.ID, slot Slot) bool {
	r, ok := tx.record(id)
	return ok && len(r.slots[slot]) > 0
}

// Attrs lists the attributes set in a slot.
func (tx *Tx) Attrs(id item.ID, slot Slot) []item.AttrID {
	r, ok := tx.record(id)
	if !ok {
		return nil
	}
	return r.attrs(slot)
}

// Items lists all live items, including ones created in this transaction.
func (tx *Tx) Items() []item.ID {
	out := make([]item.ID, 0, tx.base.items.Len()+len(tx.dirty))
	itr := tx.base.items.Iterator()
	for !itr.Done() {
		id, r, _ := itr.Next()
		if d, ok := tx.dirty[id]; ok {
			r = d
		}
		if !r.removed {
			out = append(out, id)
		}
	}
	for id, r := range tx.dirty {
		if _, existed := tx.base.items.Get(id); !existed && !r.removed {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LookupKey lists live items whose trunk value of attr carries the index key.
func (tx *Tx) LookupKey(attr item.AttrID, key string) []item.ID {
	var out []item.ID
	for _, id := range tx.base.LookupKey(attr, key) {
		if _, ok := tx.dirty[id]; !ok {
			out = append(out, id)
		}
	}
	want := indexKey(attr, key)
	for id, r := range tx.dirty {
		for _, k := range r.indexKeys() {
			if k == want {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Find resolves a stable identity to its item.
func (tx *Tx) Find(identity string) (item.ID, bool) {
	identity = normalIdentity(identity)
	if id, ok := tx.idents[identity]; ok {
		return id, true
	}
	return tx.base.Find(identity)
}

// NextItem creates a new, empty item and returns its ID.
func (tx *Tx) NextItem() item.ID {
	tx.lastID++
	id := tx.lastID
	tx.dirty[id] = newRecord()
	tx.touch(id, "")
	return id
}

// Materialize resolves identity to its item, creating the item on first use.
// Repeated calls return the same ID.
func (tx *Tx) Materialize(identity string) item.ID {
	identity = normalIdentity(identity)
	if id, ok := tx.Find(identity); ok {
		return id
	}
	id := tx.NextItem()
	tx.Set(id, item.IdentityAttr.ID, item.String(identity))
	tx.idents[identity] = id
	return id
}

// Set writes a trunk value.
func (tx *Tx) Set(id item.ID, attr item.AttrID, v item.Value) {
	tx.SetAt(id, Trunk, attr, v)
}

// SetAt writes a value into a slot. Strings are stored in NFC, exactly as
// they are persisted. Base and conflict slots only accept
// shadowable attributes. Writing an undeclared attribute, a value of the wrong
// kind or to a removed item is a contract violation.
func (tx *Tx) SetAt(id item.ID, slot Slot, attr item.AttrID, v item.Value) {
	v = item.Normalize(v)
	a, ok := tx.base.registry.Lookup(attr)
	if !ok {
		Violate(ErrCodeUndeclaredAttribute, id, attr, "attribute is not declared")
	}
	if !a.Accepts(v) {
		Violate(ErrCodeKindMismatch, id, attr, "value of kind %s does not fit %s", kindOf(v), a.Kind)
	}
	if slot != Trunk && !a.Shadowable {
		Violate(ErrCodeNotEditable, id, attr, "attribute is not shadowable, cannot write %s", slot)
	}
	if attr == item.IdentityAttr.ID && slot == Trunk {
		tx.checkIdentity(id, v)
	}

	if prev, ok := tx.ValueAt(id, slot, attr); ok && item.Equal(prev, v) {
		return
	}
	r := tx.writable(id)
	if r.slots[slot] == nil {
		r.slots[slot] = make(map[item.AttrID]item.Value)
	}
	r.slots[slot][attr] = v
	tx.touch(id, attr)
}

// normalIdentity puts identity in the form it is stored under.
func normalIdentity(identity string) string {
	return string(item.Normalize(item.String(identity)).(item.String))
}

func (tx *Tx) checkIdentity(id item.ID, v item.Value) {
	s, ok := v.(item.String)
	if !ok {
		return
	}
	if other, found := tx.Find(string(s)); found && other != id {
		Violate(ErrCodeDuplicateIdentity, id, item.IdentityAttr.ID, "identity %q already belongs to item %d", s, other)
	}
	if prev, ok := tx.Value(id, item.IdentityAttr.ID); ok && !item.Equal(prev, v) {
		Violate(ErrCodeDuplicateIdentity, id, item.IdentityAttr.ID, "item already has identity %s", item.Format(prev))
	}
	tx.idents[string(s)] = id
}

// Unset removes a trunk value.
func (tx *Tx) Unset(id item.ID, attr item.AttrID) {
	tx.UnsetAt(id, Trunk, attr)
}

// UnsetAt removes a value from a slot.
func (tx *Tx) UnsetAt(id item.ID, slot Slot, attr item.AttrID) {
	if _, ok := tx.ValueAt(id, slot, attr); !ok {
		return
	}
	r := tx.writable(id)
	delete(r.slots[slot], attr)
	tx.touch(id, attr)
}

// ClearSlot drops every value of a base or conflict slot.
func (tx *Tx) ClearSlot(id item.ID, slot Slot) {
	if slot == Trunk {
		Violate(ErrCodeNotEditable, id, "", "trunk cannot be cleared as a slot, use Clear")
	}
	if !tx.HasSlot(id, slot) {
		return
	}
	r := tx.writable(id)
	for attr := range r.slots[slot] {
		tx.touch(id, attr)
	}
	r.slots[slot] = nil
}

// Clear tombstones an item: all its values are dropped and it no longer
// shows up in queries. Clearing a missing or removed item is a no-op.
func (tx *Tx) Clear(id item.ID) {
	if !tx.Exists(id) {
		return
	}
	r := tx.writable(id)
	for slot := range r.slots {
		for attr := range r.slots[slot] {
			tx.touch(id, attr)
		}
		r.slots[slot] = nil
	}
	r.removed = true
	tx.touch(id, "")
}

// Drop forgets an item created earlier in this transaction, identity
// included, so the commit carries no trace of it. It reports false and does
// nothing for items that predate the transaction.
func (tx *Tx) Drop(id item.ID) bool {
	if _, ok := tx.base.record(id); ok {
		return false
	}
	if _, ok := tx.dirty[id]; !ok {
		return false
	}
	delete(tx.dirty, id)
	delete(tx.touched, id)
	for identity, owner := range tx.idents {
		if owner == id {
			delete(tx.idents, identity)
		}
	}
	return true
}

// writable returns the transaction's private copy of a live record.
func (tx *Tx) writable(id item.ID) *record {
	if r, ok := tx.dirty[id]; ok {
		if r.removed {
			Violate(ErrCodeNotEditable, id, "", "item was removed")
		}
		return r
	}
	r, ok := tx.base.record(id)
	if !ok {
		Violate(ErrCodeNotEditable, id, "", "item does not exist")
	}
	if r.removed {
		Violate(ErrCodeNotEditable, id, "", "item was removed")
	}
	c := r.clone()
	tx.dirty[id] = c
	return c
}

func (tx *Tx) touch(id item.ID, attr item.AttrID) {
	attrs, ok := tx.touched[id]
	if !ok {
		attrs = make(map[item.AttrID]struct{})
		tx.touched[id] = attrs
	}
	if attr != "" {
		attrs[attr] = struct{}{}
	}
}

// Touched lists the items changed so far, sorted.
func (tx *Tx) Touched() []item.ID {
	return sortedIDs(tx.touched)
}

// TouchedAttrs lists the attributes changed on id so far, sorted.
func (tx *Tx) TouchedAttrs(id item.ID) []item.AttrID {
	return sortedAttrs(tx.touched[id])
}

func (tx *Tx) changed() bool {
	return len(tx.touched) > 0
}

func sortedAttrs(m map[item.AttrID]struct{}) []item.AttrID {
	out := make([]item.AttrID, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func kindOf(v item.Value) string {
	if v == nil {
		return "none"
	}
	return v.Kind().String()
}
