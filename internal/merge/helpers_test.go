package merge

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

var (
	testNS   item.Namespace = "test"
	attrA                   = testNS.Shadowable("a", item.KindString)
	attrB                   = testNS.Shadowable("b", item.KindString)
	attrTags                = testNS.Shadowable("tags", item.KindStringSet)
	attrIDs                 = testNS.Shadowable("ids", item.KindLongSet)
	attrSeen                = testNS.Attr("seen", item.KindLong)
)

func openStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	reg := item.NewRegistry()
	for _, a := range []item.Attribute{attrA, attrB, attrTags, attrIDs, attrSeen} {
		reg.Declare(a)
	}
	opts = append([]store.Option{
		store.WithRegistry(reg),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	s, err := store.Open(store.MemoryPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func write(t *testing.T, s *store.Store, fn func(tx *store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), store.Foreground, fn))
}

func serverMap(values map[item.Attribute]item.Value) item.AttributeMap {
	b := item.NewMapBuilder()
	for a, v := range values {
		b.Set(a, v)
	}
	return b.Build()
}

// synced creates an item holding values with no base (SYNC).
func synced(t *testing.T, s *store.Store, values map[item.Attribute]item.Value) item.ID {
	t.Helper()
	var id item.ID
	write(t, s, func(tx *store.Tx) error {
		id = tx.NextItem()
		_, err := Apply(tx, id, serverMap(values), None)
		return err
	})
	return id
}

func edit(t *testing.T, s *store.Store, id item.ID, attr item.Attribute, v item.Value) {
	t.Helper()
	write(t, s, func(tx *store.Tx) error {
		version.LocalEdit(tx, id, attr.ID, v)
		return nil
	})
}

// download merges values into id and returns the outcome.
func download(t *testing.T, s *store.Store, id item.ID, values map[item.Attribute]item.Value, strategy AutoMerge) *Outcome {
	t.Helper()
	var out *Outcome
	write(t, s, func(tx *store.Tx) error {
		var err error
		out, err = Apply(tx, id, serverMap(values), strategy)
		return err
	})
	return out
}

func trunk(s *store.Store, id item.ID, attr item.Attribute) item.Value {
	v, _ := s.Snapshot().Value(id, attr.ID)
	return v
}

func slot(s *store.Store, id item.ID, sl store.Slot, attr item.Attribute) (item.Value, bool) {
	return s.Snapshot().ValueAt(id, sl, attr.ID)
}

func state(s *store.Store, id item.ID) version.SyncState {
	return version.State(s.Snapshot(), id)
}

// strategyFunc adapts a function to AutoMerge for tests.
type strategyFunc func(m *Data) error

func (strategyFunc) PreProcess(*version.Diff) {}

func (f strategyFunc) Resolve(m *Data) error { return f(m) }
