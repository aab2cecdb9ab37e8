package version

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
	testNS item.Namespace = "test"
	attrA                 = testNS.Shadowable("a", item.KindString)
	attrB                 = testNS.Shadowable("b", item.KindString)
	attrN                 = testNS.Attr("note", item.KindString)
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	reg := item.NewRegistry()
	reg.Declare(attrA)
	reg.Declare(attrB)
	reg.Declare(attrN)
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

func writeErr(s *store.Store, fn func(tx *store.Tx)) error {
	return s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
		fn(tx)
		return nil
	})
}

func serverMap(values map[item.Attribute]item.Value) item.AttributeMap {
	b := item.NewMapBuilder()
	for a, v := range values {
		b.Set(a, v)
	}
	return b.Build()
}
