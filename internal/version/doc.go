// Package version derives synchronization state from an item's slots.
//
// Every item carries three slots (see package store): trunk, base and
// conflict. This package reads them as ItemVersions, computes the pure
// ItemDiff used as merge input, classifies items into a SyncState, tracks
// how completely an item was downloaded (Stage) and implements the local
// edit rules that maintain the base slot.
//
// State transitions of one attribute:
//
//	SYNC --local edit--> EDITED --server equal / revert--> SYNC
//	EDITED --server differs, unresolved--> CONFLICT --resolve--> SYNC
//
// There is no CONFLICT -> EDITED transition: an edit of a conflicted
// attribute is rejected until the conflict is resolved.
package version
