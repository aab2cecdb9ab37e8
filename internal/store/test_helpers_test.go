package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
)

var (
	testNS    item.Namespace = "test"
	attrTitle                = testNS.Shadowable("title", item.KindString)
	attrTags                 = testNS.Shadowable("tags", item.KindStringSet)
	attrOwner                = testNS.Shadowable("owner", item.KindLong)
	attrLocal                = testNS.Attr("local", item.KindInt)
)

func testRegistry() *item.Registry {
	reg := item.NewRegistry()
	reg.Declare(attrTitle)
	reg.Declare(attrTags)
	reg.Declare(attrOwner)
	reg.Declare(attrLocal)
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestStore opens a file-backed store in a temp dir and closes it with the test.
func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.db")
	opts = append([]Option{WithRegistry(testRegistry()), WithLogger(quietLogger())}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// mustWrite runs a foreground write and fails the test on error.
func mustWrite(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), Foreground, fn))
}

// createItem creates one item with a title and returns its ID.
func createItem(t *testing.T, s *Store, title string) item.ID {
	t.Helper()
	var id item.ID
	mustWrite(t, s, func(tx *Tx) error {
		id = tx.NextItem()
		tx.Set(id, attrTitle.ID, item.String(title))
		return nil
	})
	return id
}
