// Package edit implements the local edit lifecycle: exclusive edit sessions
// over a set of items, and their atomic commit into the store.
//
// A Manager hands out Sessions. Starting a session on an item already held by
// another session fails immediately with ErrItemsBusy; it never waits. A
// session commits at most once at a time: a second Commit while one is in
// flight is logged and rejected with ErrDuplicateCommit. A successful commit
// releases the session and its items.
//
// Edits go through a Writer, which records base values before the first
// change of a synced item so later downloads can run the three-way merge.
package edit
