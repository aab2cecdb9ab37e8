package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/store"
)

// statusFixture builds the classification fixture: masters with slaves in
// various states. Names map to item IDs.
func statusFixture(t *testing.T) (*store.Store, map[string]item.ID) {
	s := openStore(t)
	ids := make(map[string]item.ID)

	synced := func(tx *store.Tx, name string, master item.ID) item.ID {
		id := tx.NextItem()
		tx.Set(id, attrA.ID, item.String(name))
		if master != 0 {
			tx.Set(id, item.MasterAttr.ID, item.Long(master))
		}
		ids[name] = id
		return id
	}
	edited := func(tx *store.Tx, id item.ID) {
		LocalEdit(tx, id, attrA.ID, item.String("locally edited"))
	}
	conflicted := func(tx *store.Tx, id item.ID) {
		edited(tx, id)
		tx.SetAt(id, store.Conflict, attrA.ID, item.String("server"))
	}
	newSlave := func(tx *store.Tx, name string, master item.ID) {
		id := synced(tx, name, master)
		tx.Set(id, item.NewAttr.ID, item.Bool(true))
	}

	write(t, s, func(tx *store.Tx) {
		// New, submit-only.
		n := synced(tx, "new", 0)
		tx.Set(n, item.NewAttr.ID, item.Bool(true))
		tx.Set(n, item.InvisibleAttr.ID, item.Bool(true))

		// Slave newly created.
		m := synced(tx, "newSlaveMaster", 0)
		newSlave(tx, "newSlave", m)

		// Siblings, nothing changed.
		m = synced(tx, "notChanged", 0)
		synced(tx, "notChangedSlave1", m)
		synced(tx, "notChangedSlave2", m)

		// Own conflict and conflicted slave.
		m = synced(tx, "conflict", 0)
		conflicted(tx, m)
		conflicted(tx, synced(tx, "conflictSlave", m))

		// Changed slave.
		m = synced(tx, "modified", 0)
		edited(tx, synced(tx, "modifiedSlave", m))
		synced(tx, "modifiedSibling", m)

		// One slave changed, one conflicted.
		m = synced(tx, "mixed", 0)
		edited(tx, synced(tx, "mixedEdited", m))
		conflicted(tx, synced(tx, "mixedConflicted", m))

		// Second-order change only.
		m = synced(tx, "grandparent", 0)
		child := synced(tx, "child", m)
		conflicted(tx, synced(tx, "grandchild", child))

		// Own edit.
		edited(tx, synced(tx, "edited", 0))
	})
	return s, ids
}

func TestState_ClassificationTable(t *testing.T) {
	s, ids := statusFixture(t)
	snap := s.Snapshot()

	want := map[string]string{
		"new":            "NEW",
		"newSlaveMaster": "MODIFIED",
		"notChanged":     "NOT_CHANGED",
		"conflict":       "CONFLICT",
		"modified":       "MODIFIED",
		"mixed":          "CONFLICT",
		"grandparent":    "NOT_CHANGED",
		"child":          "CONFLICT",
		"edited":         "EDITED",
	}
	for name, stateName := range want {
		expected, err := ParseState(stateName)
		require.NoError(t, err)
		assert.Equal(t, expected, State(snap, ids[name]), name)
	}
}

func TestStateIs_Predicate(t *testing.T) {
	s, ids := statusFixture(t)

	got, err := predicate.Evaluate(StateIs(Edited, New), s.Snapshot())
	require.NoError(t, err)

	assert.Contains(t, got, ids["new"])
	assert.Contains(t, got, ids["edited"])
	assert.Contains(t, got, ids["newSlave"])
	assert.NotContains(t, got, ids["notChanged"])
	assert.True(t, predicate.Equal(StateIs(New, Edited), StateIs(Edited, New)))
}

func TestParseState(t *testing.T) {
	st, err := ParseState("not_changed")
	require.NoError(t, err)
	assert.Equal(t, Sync, st)

	_, err = ParseState("bogus")
	assert.Error(t, err)
	assert.Equal(t, "MODIFIED", Modified.String())
}
