// Package merge implements the three-way merge applied when server data
// reaches an item, and the pluggable auto-merge strategies that resolve
// attributes changed on both sides.
//
// MERGE RULES (per shadowable attribute of an item that has a base):
//
//	changed locally only          trunk kept, base kept
//	changed on the server only    trunk := server, base := server
//	changed on both, same value   base := server (trivial)
//	changed on both, different    strategy resolves, discards, or:
//	                              conflict := server, base kept
//
// An item without a base never diverged: trunk simply takes the server
// values. Non-shadowable attributes of a payload are written to trunk as is.
// When nothing is left to reconcile the base is dropped and the item is
// SYNC again.
//
// STRATEGIES:
//
// An AutoMerge gets two hooks. PreProcess may widen the local change set
// before the merge (ConflictGroup). Resolve runs when at least one attribute
// conflicts and may resolve attributes to a computed value (LongSets,
// StringSets, UniteSets) or discard local edits (CopyRemote, DiscardAll).
// A resolution for an attribute that did not change locally, or with a value
// of the wrong kind, is a RESOLUTION_VIOLATION contract error.
package merge
