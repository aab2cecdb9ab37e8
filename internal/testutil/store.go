package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// BufferLogger returns a debug-level text logger writing to the returned buffer.
func BufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// OpenStore opens an in-memory store declaring attrs. The store logs
// nowhere unless opts set a logger, and is closed when t ends.
func OpenStore(t testing.TB, attrs []item.Attribute, opts ...store.Option) *store.Store {
	t.Helper()
	reg := item.NewRegistry()
	for _, a := range attrs {
		reg.Declare(a)
	}
	opts = append([]store.Option{
		store.WithRegistry(reg),
		store.WithLogger(DiscardLogger()),
	}, opts...)
	s, err := store.Open(store.MemoryPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
