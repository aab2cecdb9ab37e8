package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

func TestApplyWithoutBase(t *testing.T) {
	s := openStore(t)
	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})

	out := download(t, s, id, map[item.Attribute]item.Value{
		attrA:    item.String("b"),
		attrSeen: item.Long(42),
	}, nil)

	assert.Equal(t, []item.AttrID{attrA.ID}, out.Server)
	assert.Equal(t, item.String("b"), trunk(s, id, attrA))
	assert.Equal(t, item.Long(42), trunk(s, id, attrSeen))
	assert.False(t, s.Snapshot().HasSlot(id, store.Base))
	assert.Equal(t, version.Sync, state(s, id))
}

func TestApplyRules(t *testing.T) {
	t.Run("local only keeps trunk and base", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
		edit(t, s, id, attrA, item.String("mine"))

		out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("a")}, nil)

		assert.Equal(t, []item.AttrID{attrA.ID}, out.Kept)
		assert.Equal(t, item.String("mine"), trunk(s, id, attrA))
		base, _ := slot(s, id, store.Base, attrA)
		assert.Equal(t, item.String("a"), base)
		assert.Equal(t, version.Edited, state(s, id))
	})

	t.Run("remote only takes the server value", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
		edit(t, s, id, attrA, item.String("mine"))

		out := download(t, s, id, map[item.Attribute]item.Value{attrB: item.String("2")}, nil)

		assert.Equal(t, []item.AttrID{attrB.ID}, out.Server)
		assert.Equal(t, item.String("2"), trunk(s, id, attrB))
		base, _ := slot(s, id, store.Base, attrB)
		assert.Equal(t, item.String("2"), base)
	})

	t.Run("same change on both sides is trivial", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		edit(t, s, id, attrA, item.String("b"))

		out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("b")}, nil)

		assert.Equal(t, []item.AttrID{attrA.ID}, out.Trivial)
		assert.True(t, out.Synced)
		assert.Equal(t, version.Sync, state(s, id))
	})

	t.Run("different changes conflict", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		edit(t, s, id, attrA, item.String("b"))

		out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, nil)

		assert.Equal(t, []item.AttrID{attrA.ID}, out.Conflicted)
		assert.Equal(t, item.String("b"), trunk(s, id, attrA))
		base, _ := slot(s, id, store.Base, attrA)
		assert.Equal(t, item.String("a"), base)
		conflict, _ := slot(s, id, store.Conflict, attrA)
		assert.Equal(t, item.String("c"), conflict)
		assert.Equal(t, version.Conflict, state(s, id))
		assert.Equal(t, []item.AttrID{attrA.ID}, Conflicts(s.Snapshot(), id))
	})

	t.Run("pending conflict survives an unrelated download", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
		edit(t, s, id, attrA, item.String("b"))
		download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, nil)

		download(t, s, id, map[item.Attribute]item.Value{attrB: item.String("2")}, nil)

		conflict, ok := slot(s, id, store.Conflict, attrA)
		require.True(t, ok)
		assert.Equal(t, item.String("c"), conflict)
		assert.Equal(t, item.String("2"), trunk(s, id, attrB))
	})

	t.Run("server catching up clears a conflict", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		edit(t, s, id, attrA, item.String("b"))
		download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, nil)

		out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("b")}, nil)

		assert.Equal(t, []item.AttrID{attrA.ID}, out.Trivial)
		assert.Equal(t, version.Sync, state(s, id))
	})

	t.Run("server returning to base clears a conflict and keeps the edit", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		edit(t, s, id, attrA, item.String("b"))
		download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, nil)
		require.Equal(t, version.Conflict, state(s, id))

		out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("a")}, nil)

		assert.Equal(t, []item.AttrID{attrA.ID}, out.Kept)
		assert.Empty(t, out.Conflicted)
		_, ok := slot(s, id, store.Conflict, attrA)
		assert.False(t, ok)
		base, _ := slot(s, id, store.Base, attrA)
		assert.Equal(t, item.String("a"), base)
		assert.Equal(t, item.String("b"), trunk(s, id, attrA))
		assert.Equal(t, version.Edited, state(s, id))
	})
}

func TestApplyStrategyOnlyOnConflict(t *testing.T) {
	s := openStore(t)
	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
	edit(t, s, id, attrA, item.String("b"))

	calls := 0
	spy := strategyFunc(func(*Data) error {
		calls++
		return nil
	})
	download(t, s, id, map[item.Attribute]item.Value{attrB: item.String("2")}, spy)
	assert.Zero(t, calls)

	download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, spy)
	assert.Equal(t, 1, calls)
}

func TestApplyStrategyError(t *testing.T) {
	s := openStore(t)
	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
	edit(t, s, id, attrA, item.String("b"))

	boom := errors.New("boom")
	err := s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
		_, err := Apply(tx, id, serverMap(map[item.Attribute]item.Value{attrA: item.String("c")}), strategyFunc(func(*Data) error {
			return boom
		}))
		return err
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, item.String("b"), trunk(s, id, attrA), "failed merge leaves the item untouched")
	_, conflicted := slot(s, id, store.Conflict, attrA)
	assert.False(t, conflicted)
}

func TestResolutionViolation(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(m *Data)
	}{
		{"attribute not changed locally", func(m *Data) { m.Resolve(attrB.ID, item.String("x")) }},
		{"wrong kind", func(m *Data) { m.Resolve(attrA.ID, item.Long(1)) }},
		{"resolved twice differently", func(m *Data) {
			m.Resolve(attrA.ID, item.String("x"))
			m.Resolve(attrA.ID, item.String("y"))
		}},
		{"resolved after discard", func(m *Data) {
			m.Discard(attrA.ID)
			m.Resolve(attrA.ID, item.String("x"))
		}},
		{"discard not changed locally", func(m *Data) { m.Discard(attrB.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t)
			id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
			edit(t, s, id, attrA, item.String("b"))

			err := s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
				_, err := Apply(tx, id, serverMap(map[item.Attribute]item.Value{attrA: item.String("c")}), strategyFunc(func(m *Data) error {
					tt.resolve(m)
					return nil
				}))
				return err
			})
			require.Error(t, err)
			assert.Equal(t, store.ErrCodeResolutionViolation, store.ContractCode(err))
			assert.Equal(t, item.String("b"), trunk(s, id, attrA))
		})
	}
}

func TestResolveSameValueTwice(t *testing.T) {
	s := openStore(t)
	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
	edit(t, s, id, attrA, item.String("b"))

	out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, strategyFunc(func(m *Data) error {
		m.Resolve(attrA.ID, item.String("bc"))
		m.Resolve(attrA.ID, item.String("bc"))
		return nil
	}))

	assert.Equal(t, []item.AttrID{attrA.ID}, out.Resolved)
	assert.Equal(t, item.String("bc"), trunk(s, id, attrA))
	base, _ := slot(s, id, store.Base, attrA)
	assert.Equal(t, item.String("c"), base)
	assert.Equal(t, version.Edited, state(s, id))
}

func TestExplicitResolution(t *testing.T) {
	conflicted := func(t *testing.T) (*store.Store, item.ID) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		edit(t, s, id, attrA, item.String("b"))
		download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, nil)
		require.Equal(t, version.Conflict, state(s, id))
		return s, id
	}

	t.Run("accept server", func(t *testing.T) {
		s, id := conflicted(t)
		write(t, s, func(tx *store.Tx) error {
			assert.True(t, AcceptServer(tx, id, attrA.ID))
			return nil
		})
		assert.Equal(t, item.String("c"), trunk(s, id, attrA))
		assert.Equal(t, version.Sync, state(s, id))
	})

	t.Run("keep local", func(t *testing.T) {
		s, id := conflicted(t)
		write(t, s, func(tx *store.Tx) error {
			assert.False(t, KeepLocal(tx, id, attrA.ID))
			return nil
		})
		assert.Equal(t, item.String("b"), trunk(s, id, attrA))
		base, _ := slot(s, id, store.Base, attrA)
		assert.Equal(t, item.String("c"), base)
		assert.Equal(t, version.Edited, state(s, id))
	})

	t.Run("custom value", func(t *testing.T) {
		s, id := conflicted(t)
		write(t, s, func(tx *store.Tx) error {
			ResolveConflict(tx, id, attrA.ID, item.String("bc"))
			return nil
		})
		assert.Equal(t, item.String("bc"), trunk(s, id, attrA))
		assert.Empty(t, Conflicts(s.Snapshot(), id))
	})

	t.Run("not in conflict", func(t *testing.T) {
		s := openStore(t)
		id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a")})
		err := s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
			AcceptServer(tx, id, attrA.ID)
			return nil
		})
		assert.Equal(t, store.ErrCodeResolutionViolation, store.ContractCode(err))
	})
}

func TestOutcomeRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := openStore(t, store.WithMetrics(reg))
	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
	edit(t, s, id, attrA, item.String("b"))

	out := download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c"), attrB: item.String("2")}, nil)
	out.Record(s.Metrics())

	m := s.Metrics().MergeOutcomes
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WithLabelValues(OutcomeServer)))
	assert.Contains(t, out.String(), "conflict=test:a")

	var nilMetrics *store.Metrics
	assert.NotPanics(t, func() { out.Record(nilMetrics) })
}

// TestEndToEnd walks one item through edit, download with CopyRemote, and a
// download that touches only an unedited attribute.
func TestEndToEnd(t *testing.T) {
	s := openStore(t)
	strategy := CopyRemote(attrA.ID)

	id := synced(t, s, map[item.Attribute]item.Value{attrA: item.String("a"), attrB: item.String("1")})
	require.Equal(t, version.Sync, state(s, id))

	edit(t, s, id, attrA, item.String("b"))
	assert.Equal(t, item.String("b"), trunk(s, id, attrA))
	base, _ := slot(s, id, store.Base, attrA)
	assert.Equal(t, item.String("a"), base)
	assert.Equal(t, version.Edited, state(s, id))

	download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("c")}, strategy)
	assert.Equal(t, item.String("c"), trunk(s, id, attrA))
	assert.False(t, s.Snapshot().HasSlot(id, store.Base))
	assert.Equal(t, version.Sync, state(s, id))

	edit(t, s, id, attrA, item.String("b"))
	out := download(t, s, id, map[item.Attribute]item.Value{attrB: item.String("3")}, strategy)
	assert.Empty(t, out.Conflicted)
	assert.Equal(t, item.String("3"), trunk(s, id, attrB))
	assert.Equal(t, item.String("b"), trunk(s, id, attrA))
	assert.Equal(t, version.Edited, state(s, id))

	download(t, s, id, map[item.Attribute]item.Value{attrA: item.String("d")}, nil)
	assert.Equal(t, version.Conflict, state(s, id))
}
