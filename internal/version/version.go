package version

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// ItemVersion is a read-only view of one item at one slot.
type ItemVersion struct {
	r    store.Reader
	id   item.ID
	slot store.Slot
}

// Version returns the view of id at slot.
func Version(r store.Reader, id item.ID, slot store.Slot) ItemVersion {
	return ItemVersion{r: r, id: id, slot: slot}
}

// Trunk returns the live view of id.
func Trunk(r store.Reader, id item.ID) ItemVersion {
	return Version(r, id, store.Trunk)
}

// ID returns the item.
func (v ItemVersion) ID() item.ID { return v.id }

// Slot returns the slot the view reads.
func (v ItemVersion) Slot() store.Slot { return v.slot }

// Present reports whether the slot holds anything. The trunk of a live item
// is always present.
func (v ItemVersion) Present() bool {
	if v.slot == store.Trunk {
		return v.r.Exists(v.id)
	}
	return v.r.HasSlot(v.id, v.slot)
}

// Get reads one attribute.
func (v ItemVersion) Get(attr item.AttrID) (item.Value, bool) {
	return v.r.ValueAt(v.id, v.slot, attr)
}

// Attrs lists the attributes set in the slot.
func (v ItemVersion) Attrs() []item.AttrID {
	return v.r.Attrs(v.id, v.slot)
}

// Map copies the slot into an AttributeMap. Attributes missing from the
// registry are skipped.
func (v ItemVersion) Map() item.AttributeMap {
	reg := v.r.Registry()
	b := item.NewMapBuilder()
	for _, attr := range v.Attrs() {
		a, ok := reg.Lookup(attr)
		if !ok {
			continue
		}
		val, _ := v.Get(attr)
		b.Set(a, val)
	}
	return b.Build()
}
