package predicate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

var (
	testNS   item.Namespace = "test"
	attrX                   = testNS.Shadowable("x", item.KindString)
	attrTags                = testNS.Shadowable("tags", item.KindStringSet)
	attrRef                 = testNS.Shadowable("ref", item.KindLong)
	attrRefs                = testNS.Shadowable("refs", item.KindLongSet)
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	reg := item.NewRegistry()
	for _, a := range []item.Attribute{attrX, attrTags, attrRef, attrRefs} {
		reg.Declare(a)
	}
	s, err := store.Open(store.MemoryPath,
		store.WithRegistry(reg),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func write(t *testing.T, s *store.Store, fn func(tx *store.Tx)) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
		fn(tx)
		return nil
	}))
}

// newItem creates an item of type typ with the given trunk values.
func newItem(tx *store.Tx, typ item.ID, values map[item.AttrID]item.Value) item.ID {
	id := tx.NextItem()
	if typ != 0 {
		tx.Set(id, item.TypeAttr.ID, item.Long(typ))
	}
	for a, v := range values {
		tx.Set(id, a, v)
	}
	return id
}

func mustEval(t *testing.T, e Expr, r store.Reader) []item.ID {
	t.Helper()
	ids, err := Evaluate(e, r)
	require.NoError(t, err)
	return ids
}
