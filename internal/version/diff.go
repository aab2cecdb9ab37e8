package version

import (
	"sort"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Diff is the merge input for one item: which shadowable attributes changed
// locally (trunk vs base) and which changed remotely (server vs base).
//
// A Diff is computed once from a reader and never touches the store. Only
// attributes present in the server payload count as remotely changed, so a
// partial payload leaves the other attributes alone. Empty values (no value,
// Null, empty collections) compare equal.
type Diff struct {
	Item item.ID

	trunk  map[item.AttrID]item.Value
	base   map[item.AttrID]item.Value
	server map[item.AttrID]item.Value

	hasBase bool
	local   map[item.AttrID]struct{}
	remote  map[item.AttrID]struct{}
}

// NewDiff computes the diff of id against a server payload. Non-shadowable
// attributes of the payload are ignored.
func NewDiff(r store.Reader, id item.ID, server item.AttributeMap) *Diff {
	reg := r.Registry()
	d := &Diff{
		Item:    id,
		trunk:   make(map[item.AttrID]item.Value),
		base:    make(map[item.AttrID]item.Value),
		server:  make(map[item.AttrID]item.Value),
		hasBase: r.HasSlot(id, store.Base),
		local:   make(map[item.AttrID]struct{}),
		remote:  make(map[item.AttrID]struct{}),
	}

	for _, a := range reg.Shadowable() {
		if v, ok := r.Value(id, a.ID); ok {
			d.trunk[a.ID] = v
		}
		if d.hasBase {
			if v, ok := r.ValueAt(id, store.Base, a.ID); ok {
				d.base[a.ID] = v
			}
		} else if v, ok := d.trunk[a.ID]; ok {
			// Never diverged: trunk is the last known server state.
			d.base[a.ID] = v
		}
	}
	for _, a := range server.Attributes() {
		if !a.Shadowable {
			continue
		}
		v, _ := server.Get(a.ID)
		d.server[a.ID] = v
	}

	for attr := range unionKeys(d.trunk, d.base) {
		if !item.Same(d.trunk[attr], d.base[attr]) {
			d.local[attr] = struct{}{}
		}
	}
	for attr, v := range d.server {
		if !item.Same(v, d.base[attr]) {
			d.remote[attr] = struct{}{}
		}
	}
	return d
}

// HasBase reports whether the item had diverged before this diff.
func (d *Diff) HasBase() bool { return d.hasBase }

// Trunk returns the local value of attr.
func (d *Diff) Trunk(attr item.AttrID) (item.Value, bool) {
	v, ok := d.trunk[attr]
	return v, ok
}

// Base returns the last synced value of attr.
func (d *Diff) Base(attr item.AttrID) (item.Value, bool) {
	v, ok := d.base[attr]
	return v, ok
}

// Server returns the incoming server value of attr.
func (d *Diff) Server(attr item.AttrID) (item.Value, bool) {
	v, ok := d.server[attr]
	return v, ok
}

// LocalChanged reports whether attr changed locally.
func (d *Diff) LocalChanged(attr item.AttrID) bool {
	_, ok := d.local[attr]
	return ok
}

// RemoteChanged reports whether the server changed attr.
func (d *Diff) RemoteChanged(attr item.AttrID) bool {
	_, ok := d.remote[attr]
	return ok
}

// MarkLocalChanged widens the local change set. Merge strategies call it
// from PreProcess to have attributes re-evaluated together.
func (d *Diff) MarkLocalChanged(attr item.AttrID) {
	d.local[attr] = struct{}{}
}

// Local lists the locally changed attributes, sorted.
func (d *Diff) Local() []item.AttrID { return sortedKeys(d.local) }

// Remote lists the remotely changed attributes, sorted.
func (d *Diff) Remote() []item.AttrID { return sortedKeys(d.remote) }

// ServerAttrs lists the shadowable attributes of the server payload, sorted.
func (d *Diff) ServerAttrs() []item.AttrID {
	out := make([]item.AttrID, 0, len(d.server))
	for a := range d.server {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Conflicting lists attributes changed on both sides to different values.
func (d *Diff) Conflicting() []item.AttrID {
	var out []item.AttrID
	for _, attr := range d.Local() {
		if d.RemoteChanged(attr) && !item.Same(d.trunk[attr], d.server[attr]) {
			out = append(out, attr)
		}
	}
	return out
}

// Empty reports whether nothing changed on either side.
func (d *Diff) Empty() bool {
	return len(d.local) == 0 && len(d.remote) == 0
}

func unionKeys(a, b map[item.AttrID]item.Value) map[item.AttrID]struct{} {
	out := make(map[item.AttrID]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[item.AttrID]struct{}) []item.AttrID {
	out := make([]item.AttrID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
