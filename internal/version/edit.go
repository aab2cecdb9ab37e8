package version

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// LocalEdit writes a user edit to the trunk of id and keeps the base slot
// consistent. A nil value unsets the attribute.
//
//   - Before the first local change of a synced item, the shadowable trunk
//     is copied into base (absent values as Null).
//   - Editing an attribute with an unresolved conflict is a contract
//     violation (CONFLICTED_ATTRIBUTE).
//   - When trunk returns to base, base is dropped and the item is SYNC again.
//
// Items created locally (sys:new) have no base: they were never on the server.
func LocalEdit(tx *store.Tx, id item.ID, attr item.AttrID, v item.Value) {
	a, ok := tx.Registry().Lookup(attr)
	if !ok {
		store.Violate(store.ErrCodeUndeclaredAttribute, id, attr, "attribute is not declared")
	}
	if !tx.Exists(id) {
		store.Violate(store.ErrCodeNotEditable, id, attr, "item does not exist")
	}
	if _, conflicted := tx.ValueAt(id, store.Conflict, attr); conflicted {
		store.Violate(store.ErrCodeConflictedAttribute, id, attr, "attribute has an unresolved conflict")
	}

	if a.Shadowable {
		CaptureBase(tx, id)
	}
	if v == nil {
		tx.Unset(id, attr)
	} else {
		tx.Set(id, attr, v)
	}
	if a.Shadowable {
		DropBaseIfClean(tx, id)
	}
}

// CaptureBase records the current shadowable trunk of id as its base, unless
// a base already exists or the item is new.
func CaptureBase(tx *store.Tx, id item.ID) {
	if tx.HasSlot(id, store.Base) || IsNew(tx, id) {
		return
	}
	for _, a := range tx.Registry().Shadowable() {
		v, ok := tx.Value(id, a.ID)
		if !ok {
			v = item.Null{}
		}
		tx.SetAt(id, store.Base, a.ID, v)
	}
}

// DropBaseIfClean clears the base of id when no conflict is pending and
// every shadowable trunk value equals its base.
func DropBaseIfClean(tx *store.Tx, id item.ID) bool {
	if !tx.HasSlot(id, store.Base) || tx.HasSlot(id, store.Conflict) {
		return false
	}
	if removed, ok := tx.Value(id, item.RemovedAttr.ID); ok && item.Equal(removed, item.Bool(true)) {
		return false
	}
	for _, a := range tx.Registry().Shadowable() {
		trunk, _ := tx.Value(id, a.ID)
		base, _ := tx.ValueAt(id, store.Base, a.ID)
		if !item.Same(trunk, base) {
			return false
		}
	}
	tx.ClearSlot(id, store.Base)
	return true
}
