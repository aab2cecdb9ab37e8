// Package drain moves server data in and local edits out.
//
// A download runs as one background write. The transport (a Procedure) fills
// a Download with per-item server values and stage marks; Run then merges
// every touched item with its strategy and commits everything at once.
// Items that arrive without any download stage are logged and skipped.
//
// An upload locks the pending items, hands each to a Sender and records the
// acknowledgement: Done makes the uploaded values the new base, Failed
// unlocks the item for a later attempt.
package drain
