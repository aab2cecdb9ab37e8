package merge

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// ResolveConflict settles a conflicted attribute with v: trunk := v and the
// server value moves to base. Returns true if the item became SYNC.
func ResolveConflict(tx *store.Tx, id item.ID, attr item.AttrID, v item.Value) bool {
	srv := conflictValue(tx, id, attr)
	setTrunk(tx, id, attr, v)
	tx.SetAt(id, store.Base, attr, srv)
	tx.UnsetAt(id, store.Conflict, attr)
	return version.DropBaseIfClean(tx, id)
}

// AcceptServer resolves each attribute to its server value.
func AcceptServer(tx *store.Tx, id item.ID, attrs ...item.AttrID) bool {
	synced := false
	for _, attr := range attrs {
		synced = ResolveConflict(tx, id, attr, conflictValue(tx, id, attr))
	}
	return synced
}

// KeepLocal resolves each attribute to its local value. The item stays
// EDITED so the local value is uploaded.
func KeepLocal(tx *store.Tx, id item.ID, attrs ...item.AttrID) bool {
	synced := false
	for _, attr := range attrs {
		trunk, _ := tx.Value(id, attr)
		synced = ResolveConflict(tx, id, attr, trunk)
	}
	return synced
}

// Conflicts lists the attributes of id awaiting explicit resolution.
func Conflicts(r store.Reader, id item.ID) []item.AttrID {
	return r.Attrs(id, store.Conflict)
}

func conflictValue(tx *store.Tx, id item.ID, attr item.AttrID) item.Value {
	v, ok := tx.ValueAt(id, store.Conflict, attr)
	if !ok {
		store.Violate(store.ErrCodeResolutionViolation, id, attr, "attribute is not in conflict")
	}
	return v
}
