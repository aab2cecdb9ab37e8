package merge

import (
	"sort"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Data is what a strategy sees while resolving one item: the diff, the
// three values of every attribute, and the resolutions made so far.
type Data struct {
	diff     *version.Diff
	reg      *item.Registry
	pending  map[item.AttrID]item.Value
	resolved map[item.AttrID]item.Value
	discard  map[item.AttrID]struct{}
}

func newData(r store.Reader, d *version.Diff) *Data {
	m := &Data{
		diff:     d,
		reg:      r.Registry(),
		pending:  make(map[item.AttrID]item.Value),
		resolved: make(map[item.AttrID]item.Value),
		discard:  make(map[item.AttrID]struct{}),
	}
	for _, attr := range r.Attrs(d.Item, store.Conflict) {
		v, _ := r.ValueAt(d.Item, store.Conflict, attr)
		m.pending[attr] = v
	}
	return m
}

// Item returns the item being merged.
func (m *Data) Item() item.ID { return m.diff.Item }

// Diff returns the (possibly widened) diff.
func (m *Data) Diff() *version.Diff { return m.diff }

// Kind returns the declared kind of attr.
func (m *Data) Kind(attr item.AttrID) item.Kind {
	a, _ := m.reg.Lookup(attr)
	return a.Kind
}

// Trunk returns the local value of attr, or nil.
func (m *Data) Trunk(attr item.AttrID) item.Value {
	v, _ := m.diff.Trunk(attr)
	return v
}

// Base returns the last synced value of attr, or nil.
func (m *Data) Base(attr item.AttrID) item.Value {
	v, _ := m.diff.Base(attr)
	return v
}

// Server returns the newest server value of attr: the incoming one, else a
// still unresolved conflict value, else the base.
func (m *Data) Server(attr item.AttrID) item.Value {
	v, _ := m.server(attr)
	return v
}

func (m *Data) server(attr item.AttrID) (item.Value, bool) {
	if v, ok := m.diff.Server(attr); ok {
		return v, true
	}
	if v, ok := m.pending[attr]; ok {
		return v, true
	}
	return nil, false
}

// LocalChanged reports whether attr changed locally.
func (m *Data) LocalChanged(attr item.AttrID) bool {
	return m.diff.LocalChanged(attr)
}

// RemoteChanged reports whether the server changed attr, now or in an
// earlier, still unresolved merge.
func (m *Data) RemoteChanged(attr item.AttrID) bool {
	if m.diff.RemoteChanged(attr) {
		return true
	}
	_, pending := m.pending[attr]
	return pending
}

// IsUnresolved reports whether attr changed locally and has neither been
// resolved nor discarded yet.
func (m *Data) IsUnresolved(attr item.AttrID) bool {
	if !m.diff.LocalChanged(attr) {
		return false
	}
	if _, ok := m.resolved[attr]; ok {
		return false
	}
	_, ok := m.discard[attr]
	return !ok
}

// Unresolved lists the unresolved attributes, sorted.
func (m *Data) Unresolved() []item.AttrID {
	var out []item.AttrID
	for _, attr := range m.diff.Local() {
		if m.IsUnresolved(attr) {
			out = append(out, attr)
		}
	}
	return out
}

// Conflicting lists unresolved attributes whose local and server values differ.
func (m *Data) Conflicting() []item.AttrID {
	var out []item.AttrID
	for _, attr := range m.Unresolved() {
		srv, ok := m.server(attr)
		if ok && m.RemoteChanged(attr) && !item.Same(m.Trunk(attr), srv) {
			out = append(out, attr)
		}
	}
	return out
}

// Resolve records a composite resolution: v becomes the trunk value and
// the conflict, if any, is cleared.
//
// Contract: attr must have changed locally, v must fit the attribute, and
// an attribute is resolved at most once (repeating the same value is fine).
func (m *Data) Resolve(attr item.AttrID, v item.Value) {
	if !m.diff.LocalChanged(attr) {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "resolved an attribute that did not change locally")
	}
	a, ok := m.reg.Lookup(attr)
	if !ok || !a.Accepts(v) {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "resolution %s does not fit the attribute", item.Format(v))
	}
	if _, ok := m.discard[attr]; ok {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "attribute was already discarded")
	}
	if prev, ok := m.resolved[attr]; ok && !item.Equal(prev, v) {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "attribute already resolved to %s", item.Format(prev))
	}
	m.resolved[attr] = v
}

// Discard drops the local edit of attr in favour of the server value.
// Contract: attr must have changed locally and not be resolved.
func (m *Data) Discard(attr item.AttrID) {
	if !m.diff.LocalChanged(attr) {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "discarded an attribute that did not change locally")
	}
	if _, ok := m.resolved[attr]; ok {
		store.Violate(store.ErrCodeResolutionViolation, m.Item(), attr, "attribute was already resolved")
	}
	m.discard[attr] = struct{}{}
}

// Resolution returns the recorded resolution of attr.
func (m *Data) Resolution(attr item.AttrID) (v item.Value, discarded, ok bool) {
	if v, ok := m.resolved[attr]; ok {
		return v, false, true
	}
	if _, ok := m.discard[attr]; ok {
		return nil, true, true
	}
	return nil, false, false
}

// touched lists every attribute the merge must look at: local changes,
// server payload and pending conflicts.
func (m *Data) touched() []item.AttrID {
	set := make(map[item.AttrID]struct{})
	for _, a := range m.diff.Local() {
		set[a] = struct{}{}
	}
	for _, a := range m.diff.ServerAttrs() {
		set[a] = struct{}{}
	}
	for a := range m.pending {
		set[a] = struct{}{}
	}
	out := make([]item.AttrID, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
