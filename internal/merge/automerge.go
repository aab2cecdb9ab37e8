package merge

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/version"
)

// AutoMerge is a conflict-resolution strategy.
type AutoMerge interface {
	// PreProcess may widen the locally changed set of d.
	PreProcess(d *version.Diff)
	// Resolve may resolve or discard unresolved attributes of m.
	Resolve(m *Data) error
}

// None resolves nothing.
var None AutoMerge = Composite()

// composite runs strategies in order.
type composite struct {
	strategies []AutoMerge
}

// Composite runs each strategy in order for both hooks. Strategies should
// target disjoint attributes; otherwise the first resolution of an
// attribute wins and a later, different one is a contract violation.
func Composite(strategies ...AutoMerge) AutoMerge {
	var flat []AutoMerge
	for _, s := range strategies {
		if c, ok := s.(composite); ok {
			flat = append(flat, c.strategies...)
			continue
		}
		if s != nil {
			flat = append(flat, s)
		}
	}
	return composite{strategies: flat}
}

func (c composite) PreProcess(d *version.Diff) {
	for _, s := range c.strategies {
		s.PreProcess(d)
	}
}

func (c composite) Resolve(m *Data) error {
	for _, s := range c.strategies {
		if err := s.Resolve(m); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of strategies.
func (c composite) Len() int { return len(c.strategies) }

// longSets merges LongSet attributes by replaying local additions and removals.
type longSets struct {
	attrs []item.AttrID
}

// LongSets resolves LongSet attributes to
// (server ∪ (trunk − base)) − (base − trunk).
func LongSets(attrs ...item.AttrID) AutoMerge {
	return longSets{attrs: attrs}
}

func (longSets) PreProcess(*version.Diff) {}

func (s longSets) Resolve(m *Data) error {
	for _, attr := range s.attrs {
		if !m.IsUnresolved(attr) || !m.RemoteChanged(attr) {
			continue
		}
		trunk, base, server := longSet(m.Trunk(attr)), longSet(m.Base(attr)), longSet(m.Server(attr))
		m.Resolve(attr, UnionMergeLongs(trunk, base, server))
	}
	return nil
}

// UnionMergeLongs computes (server ∪ (local − base)) − (base − local).
func UnionMergeLongs(local, base, server item.LongSet) item.LongSet {
	added := local.Minus(base)
	removed := base.Minus(local)
	return server.Union(added).Minus(removed)
}

// stringSets merges StringSet attributes by replaying local additions and removals.
type stringSets struct {
	attrs []item.AttrID
}

// StringSets resolves StringSet attributes to
// (server ∪ (trunk − base)) − (base − trunk).
func StringSets(attrs ...item.AttrID) AutoMerge {
	return stringSets{attrs: attrs}
}

func (stringSets) PreProcess(*version.Diff) {}

func (s stringSets) Resolve(m *Data) error {
	for _, attr := range s.attrs {
		if !m.IsUnresolved(attr) || !m.RemoteChanged(attr) {
			continue
		}
		trunk, base, server := stringSet(m.Trunk(attr)), stringSet(m.Base(attr)), stringSet(m.Server(attr))
		m.Resolve(attr, UnionMergeStrings(trunk, base, server))
	}
	return nil
}

// UnionMergeStrings computes (server ∪ (local − base)) − (base − local).
func UnionMergeStrings(local, base, server item.StringSet) item.StringSet {
	added := local.Minus(base)
	removed := base.Minus(local)
	return server.Union(added).Minus(removed)
}

// uniteSets resolves set attributes to the union of both sides.
type uniteSets struct {
	attrs []item.AttrID
}

// UniteSets resolves LongSet and StringSet attributes to local ∪ server.
// Removals are not replayed; use it for attributes that only grow.
func UniteSets(attrs ...item.AttrID) AutoMerge {
	return uniteSets{attrs: attrs}
}

func (uniteSets) PreProcess(*version.Diff) {}

func (s uniteSets) Resolve(m *Data) error {
	for _, attr := range s.attrs {
		if !m.IsUnresolved(attr) || !m.RemoteChanged(attr) {
			continue
		}
		switch m.Kind(attr) {
		case item.KindLongSet:
			m.Resolve(attr, longSet(m.Trunk(attr)).Union(longSet(m.Server(attr))))
		case item.KindStringSet:
			m.Resolve(attr, stringSet(m.Trunk(attr)).Union(stringSet(m.Server(attr))))
		}
	}
	return nil
}

// conflictGroup makes a group of attributes change together.
type conflictGroup struct {
	attrs []item.AttrID
}

// ConflictGroup treats a local change of any attribute of the group as a
// change of all of them, so they are resolved or conflicted together.
func ConflictGroup(attrs ...item.AttrID) AutoMerge {
	return conflictGroup{attrs: attrs}
}

func (g conflictGroup) PreProcess(d *version.Diff) {
	touched := false
	for _, attr := range g.attrs {
		if d.LocalChanged(attr) {
			touched = true
			break
		}
	}
	if !touched {
		return
	}
	for _, attr := range g.attrs {
		d.MarkLocalChanged(attr)
	}
}

func (conflictGroup) Resolve(*Data) error { return nil }

// copyRemote rolls back local edits of its attributes.
type copyRemote struct {
	attrs []item.AttrID
}

// CopyRemote discards local edits of attrs in favour of the server value.
func CopyRemote(attrs ...item.AttrID) AutoMerge {
	return copyRemote{attrs: attrs}
}

func (copyRemote) PreProcess(*version.Diff) {}

func (c copyRemote) Resolve(m *Data) error {
	for _, attr := range c.attrs {
		if m.IsUnresolved(attr) {
			m.Discard(attr)
		}
	}
	return nil
}

// discardAll discards every unresolved attribute but one marker.
type discardAll struct {
	keep item.AttrID
}

// DiscardAll discards every unresolved local edit except keep (the
// invisible marker of submit-only items).
func DiscardAll(keep item.AttrID) AutoMerge {
	return discardAll{keep: keep}
}

func (discardAll) PreProcess(*version.Diff) {}

func (d discardAll) Resolve(m *Data) error {
	for _, attr := range m.Unresolved() {
		if attr != d.keep {
			m.Discard(attr)
		}
	}
	return nil
}

// longSet reads a LongSet value; absent, Null and empty read as the empty set.
func longSet(v item.Value) item.LongSet {
	if s, ok := v.(item.LongSet); ok {
		return s
	}
	return item.LongSet{}
}

func stringSet(v item.Value) item.StringSet {
	if s, ok := v.(item.StringSet); ok {
		return s
	}
	return item.StringSet{}
}
