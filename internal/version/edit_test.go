package version

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

func TestLocalEdit_CapturesAndDropsBase(t *testing.T) {
	s := openStore(t)
	var id item.ID
	write(t, s, func(tx *store.Tx) {
		id = tx.NextItem()
		tx.Set(id, attrA.ID, item.String("a"))
	})

	write(t, s, func(tx *store.Tx) {
		LocalEdit(tx, id, attrA.ID, item.String("b"))
	})
	snap := s.Snapshot()
	assert.Equal(t, Edited, State(snap, id))
	base, _ := snap.ValueAt(id, store.Base, attrA.ID)
	assert.Equal(t, item.String("a"), base)
	nullB, ok := snap.ValueAt(id, store.Base, attrB.ID)
	assert.True(t, ok, "absent shadowable values are captured as null")
	assert.Equal(t, item.Null{}, nullB)

	write(t, s, func(tx *store.Tx) {
		LocalEdit(tx, id, attrA.ID, item.String("a"))
	})
	assert.Equal(t, Sync, State(s.Snapshot(), id))
	assert.False(t, s.Snapshot().HasSlot(id, store.Base))
}

func TestLocalEdit_LocalAttributeDoesNotDiverge(t *testing.T) {
	s := openStore(t)
	var id item.ID
	write(t, s, func(tx *store.Tx) {
		id = tx.NextItem()
	})
	write(t, s, func(tx *store.Tx) {
		LocalEdit(tx, id, attrN.ID, item.String("scribble"))
	})
	assert.Equal(t, Sync, State(s.Snapshot(), id))
}

func TestLocalEdit_NewItemHasNoBase(t *testing.T) {
	s := openStore(t)
	write(t, s, func(tx *store.Tx) {
		id := tx.NextItem()
		tx.Set(id, item.NewAttr.ID, item.Bool(true))
		LocalEdit(tx, id, attrA.ID, item.String("draft"))
		assert.False(t, tx.HasSlot(id, store.Base))
		assert.Equal(t, New, State(tx, id))
	})
}

func TestLocalEdit_RejectsConflictedAttribute(t *testing.T) {
	s := openStore(t)
	var id item.ID
	write(t, s, func(tx *store.Tx) {
		id = tx.NextItem()
		tx.Set(id, attrA.ID, item.String("a"))
		tx.SetAt(id, store.Base, attrA.ID, item.String("a"))
		tx.SetAt(id, store.Conflict, attrA.ID, item.String("server"))
	})

	err := writeErr(s, func(tx *store.Tx) {
		LocalEdit(tx, id, attrA.ID, item.String("mine"))
	})
	assert.Equal(t, store.ErrCodeConflictedAttribute, store.ContractCode(err))

	// Other attributes stay editable.
	write(t, s, func(tx *store.Tx) {
		LocalEdit(tx, id, attrB.ID, item.String("fine"))
	})
	assert.Equal(t, Conflict, State(s.Snapshot(), id))
}

func TestVersion_Views(t *testing.T) {
	s := openStore(t)
	var id item.ID
	write(t, s, func(tx *store.Tx) {
		id = tx.NextItem()
		tx.Set(id, attrA.ID, item.String("a"))
		LocalEdit(tx, id, attrA.ID, item.String("b"))
	})
	snap := s.Snapshot()

	trunk := Trunk(snap, id)
	assert.True(t, trunk.Present())
	v, _ := trunk.Get(attrA.ID)
	assert.Equal(t, item.String("b"), v)

	base := Version(snap, id, store.Base)
	assert.True(t, base.Present())
	m := base.Map()
	v, _ = m.Get(attrA.ID)
	assert.Equal(t, item.String("a"), v)

	assert.False(t, Version(snap, id, store.Conflict).Present())
}
