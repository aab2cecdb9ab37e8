package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/store"
)

// SyncState classifies an item against the server. It is derived from the
// slots on every call and never stored.
type SyncState int

const (
	// Sync: trunk equals the last known server state.
	Sync SyncState = iota
	// New: created locally, not yet confirmed by the server.
	New
	// Edited: trunk diverges from base, no unresolved conflict.
	Edited
	// Modified: a first-order dependent item changed, the item itself did not.
	Modified
	// Conflict: an attribute of the item, or of a dependent, is unresolved.
	Conflict
)

var stateNames = [...]string{"SYNC", "NEW", "EDITED", "MODIFIED", "CONFLICT"}

func (s SyncState) String() string {
	if s >= Sync && s <= Conflict {
		return stateNames[s]
	}
	return fmt.Sprintf("SyncState(%d)", int(s))
}

// ParseState parses a state name. NOT_CHANGED is accepted for SYNC.
func ParseState(s string) (SyncState, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "NOT_CHANGED" {
		return Sync, nil
	}
	for i, n := range stateNames {
		if n == name {
			return SyncState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sync state %q", s)
}

// State classifies id.
//
// Truth table, first match wins:
//
//	own conflict slot present           CONFLICT
//	sys:new set                         NEW
//	any first-order slave in conflict   CONFLICT
//	own base slot present               EDITED
//	any first-order slave NEW or EDITED MODIFIED
//	otherwise                           SYNC
//
// Slaves are the items whose sys:master points at id. Their own slaves
// (second order) are not looked at.
func State(r store.Reader, id item.ID) SyncState {
	own := ownState(r, id)
	if own == Conflict || own == New {
		return own
	}

	modified := false
	for _, slave := range Slaves(r, id) {
		switch ownState(r, slave) {
		case Conflict:
			return Conflict
		case New, Edited:
			modified = true
		}
	}

	if own == Edited {
		return Edited
	}
	if modified {
		return Modified
	}
	return Sync
}

// ownState classifies id from its own slots only.
func ownState(r store.Reader, id item.ID) SyncState {
	switch {
	case r.HasSlot(id, store.Conflict):
		return Conflict
	case IsNew(r, id):
		return New
	case r.HasSlot(id, store.Base):
		return Edited
	}
	return Sync
}

// IsNew reports whether id was created locally and not yet confirmed.
func IsNew(r store.Reader, id item.ID) bool {
	v, ok := r.Value(id, item.NewAttr.ID)
	return ok && item.Equal(v, item.Bool(true))
}

// Slaves lists the live items whose sys:master is id.
func Slaves(r store.Reader, id item.ID) []item.ID {
	return r.LookupKey(item.MasterAttr.ID, item.LongKey(int64(id)))
}

// stateIs matches items in one of a set of states.
type stateIs struct {
	states []SyncState
}

// StateIs matches items whose State is one of states.
func StateIs(states ...SyncState) predicate.Expr {
	sorted := append([]SyncState(nil), states...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return predicate.Of(stateIs{states: sorted})
}

func (p stateIs) Key() string {
	names := make([]string, len(p.states))
	for i, s := range p.states {
		names[i] = s.String()
	}
	return "state(" + strings.Join(names, ",") + ")"
}

func (p stateIs) String() string {
	return "STATE " + strings.TrimSuffix(strings.TrimPrefix(p.Key(), "state("), ")")
}

func (p stateIs) Accept(r store.Reader, id item.ID) bool {
	st := State(r, id)
	for _, s := range p.states {
		if s == st {
			return true
		}
	}
	return false
}
