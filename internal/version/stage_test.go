package version

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

func TestMergeStages_KeepsMaximum(t *testing.T) {
	all := []Stage{NoStage, Dummy, Quick, Stale, Full}
	for _, a := range all {
		for _, b := range all {
			got := MergeStages(a, b)
			assert.Equal(t, MergeStages(b, a), got, "commutative")
			assert.GreaterOrEqual(t, got, a)
			assert.GreaterOrEqual(t, got, b)
		}
	}
}

func TestApplyStage(t *testing.T) {
	cases := []struct {
		current, incoming, want Stage
	}{
		{NoStage, Dummy, Dummy},
		{Dummy, Quick, Quick},
		{Quick, Full, Full},
		{Full, Full, Full},
		{Full, Quick, Stale},
		{Stale, Quick, Stale},
		{Stale, Full, Full},
		{Full, Dummy, Full},
		{Quick, Dummy, Quick},
		{Full, Stale, Stale},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ApplyStage(tc.current, tc.incoming), "%s + %s", tc.current, tc.incoming)
	}
}

func TestSetStage_Persists(t *testing.T) {
	s := openStore(t)
	var id item.ID
	write(t, s, func(tx *store.Tx) {
		id = tx.NextItem()
		assert.Equal(t, Full, SetStage(tx, id, Full))
	})
	write(t, s, func(tx *store.Tx) {
		assert.Equal(t, Stale, SetStage(tx, id, Quick))
	})
	assert.Equal(t, Stale, StageOf(s.Snapshot(), id))
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("quick")
	assert.NoError(t, err)
	assert.Equal(t, Quick, st)
	_, err = ParseStage("slow")
	assert.Error(t, err)
}
