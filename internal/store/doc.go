// Package store provides the transactional item store for itemsync.
//
// The store keeps every item as a record of three slots:
//   - Trunk: the live, authoritative values
//   - Base: the server values as of the last sync (common ancestor for merges)
//   - Conflict: the server's competing values that could not be auto-resolved
//
// # Concurrency Model
//
// Single writer, many readers:
//   - Writes are queued (Foreground before Background, FIFO within a priority)
//     and applied one at a time by a single writer goroutine
//   - Reads run against an immutable Snapshot published atomically after each
//     commit; a reader never observes a partially-applied write
//   - A write either commits fully or has no effect (error, panic, cancellation)
//
// # Persistence
//
// Each commit is flushed to SQLite in one SQL transaction before its snapshot is
// published. On Open the snapshot is rebuilt from the tables.
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// All values are stored in the canonical encoding from internal/item.
package store
