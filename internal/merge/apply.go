package merge

import (
	"fmt"
	"strings"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Merge outcomes, also used as the "outcome" metric label.
const (
	OutcomeServer    = "server"
	OutcomeTrivial   = "trivial"
	OutcomeResolved  = "resolved"
	OutcomeDiscarded = "discarded"
	OutcomeConflict  = "conflict"
	OutcomeKept      = "kept"
)

// Outcome reports what a merge did with each attribute.
type Outcome struct {
	Item item.ID

	// Server: server value taken (no local change).
	Server []item.AttrID
	// Trivial: both sides made the same change.
	Trivial []item.AttrID
	// Resolved: a strategy computed the value.
	Resolved []item.AttrID
	// Discarded: the local edit was rolled back.
	Discarded []item.AttrID
	// Conflicted: left for explicit resolution.
	Conflicted []item.AttrID
	// Kept: local change kept, nothing new from the server.
	Kept []item.AttrID

	// Synced is true when the merge dropped the base: the item is SYNC.
	Synced bool
}

func (o *Outcome) add(outcome string, attr item.AttrID) {
	switch outcome {
	case OutcomeServer:
		o.Server = append(o.Server, attr)
	case OutcomeTrivial:
		o.Trivial = append(o.Trivial, attr)
	case OutcomeResolved:
		o.Resolved = append(o.Resolved, attr)
	case OutcomeDiscarded:
		o.Discarded = append(o.Discarded, attr)
	case OutcomeConflict:
		o.Conflicted = append(o.Conflicted, attr)
	case OutcomeKept:
		o.Kept = append(o.Kept, attr)
	}
}

// Record adds the outcome to the merge metrics.
func (o *Outcome) Record(m *store.Metrics) {
	if m == nil {
		return
	}
	counts := map[string]int{
		OutcomeServer:    len(o.Server),
		OutcomeTrivial:   len(o.Trivial),
		OutcomeResolved:  len(o.Resolved),
		OutcomeDiscarded: len(o.Discarded),
		OutcomeConflict:  len(o.Conflicted),
		OutcomeKept:      len(o.Kept),
	}
	for label, n := range counts {
		if n > 0 {
			m.MergeOutcomes.WithLabelValues(label).Add(float64(n))
		}
	}
}

func (o *Outcome) String() string {
	return fmt.Sprintf("item %d: %s", o.Item, o.Summary())
}

// Summary lists the attributes per outcome, e.g. "server=a:x conflict=a:y".
func (o *Outcome) Summary() string {
	var parts []string
	add := func(name string, attrs []item.AttrID) {
		if len(attrs) == 0 {
			return
		}
		names := make([]string, len(attrs))
		for i, a := range attrs {
			names[i] = string(a)
		}
		parts = append(parts, name+"="+strings.Join(names, ","))
	}
	add(OutcomeServer, o.Server)
	add(OutcomeTrivial, o.Trivial)
	add(OutcomeResolved, o.Resolved)
	add(OutcomeDiscarded, o.Discarded)
	add(OutcomeConflict, o.Conflicted)
	add(OutcomeKept, o.Kept)
	if o.Synced {
		parts = append(parts, "synced")
	}
	return strings.Join(parts, " ")
}

// Apply merges a server payload into id.
//
// Non-shadowable payload attributes go straight to trunk. If the item has no
// base, trunk takes the shadowable server values. Otherwise the three-way
// merge runs: strategy.PreProcess widens the diff, strategy.Resolve runs
// when at least one attribute conflicts, and trunk, base and conflict are
// written per the rules in the package documentation.
func Apply(tx *store.Tx, id item.ID, server item.AttributeMap, strategy AutoMerge) (*Outcome, error) {
	return apply(tx, id, server, strategy, false)
}

// Settle runs the strategy against the last synced state (base) as if the
// server had re-sent it. Strategies that discard local edits (CopyRemote)
// roll those edits back; if nothing else changed the base is dropped.
// Items without a base or with a pending conflict are left alone.
func Settle(tx *store.Tx, id item.ID, strategy AutoMerge) (*Outcome, error) {
	if !tx.HasSlot(id, store.Base) || tx.HasSlot(id, store.Conflict) {
		return &Outcome{Item: id}, nil
	}
	return apply(tx, id, version.Version(tx, id, store.Base).Map(), strategy, true)
}

func apply(tx *store.Tx, id item.ID, server item.AttributeMap, strategy AutoMerge, always bool) (*Outcome, error) {
	if !tx.Exists(id) {
		store.Violate(store.ErrCodeNotEditable, id, "", "merge into a missing or removed item")
	}
	if strategy == nil {
		strategy = None
	}
	out := &Outcome{Item: id}

	for _, a := range server.Attributes() {
		if a.Shadowable {
			continue
		}
		v, _ := server.Get(a.ID)
		tx.Set(id, a.ID, v)
	}

	d := version.NewDiff(tx, id, server)
	if !d.HasBase() {
		for _, attr := range d.ServerAttrs() {
			v, _ := d.Server(attr)
			tx.Set(id, attr, v)
			if d.RemoteChanged(attr) {
				out.add(OutcomeServer, attr)
			}
		}
		return out, nil
	}

	strategy.PreProcess(d)
	m := newData(tx, d)
	if always || len(m.Conflicting()) > 0 {
		if err := strategy.Resolve(m); err != nil {
			return nil, fmt.Errorf("merge item %d: %w", id, err)
		}
	}

	for _, attr := range m.touched() {
		srv, hasSrv := m.server(attr)
		_, inPayload := d.Server(attr)
		_, pending := m.pending[attr]
		resolvedValue, discarded, isResolved := m.Resolution(attr)

		switch {
		case isResolved && !discarded:
			setTrunk(tx, id, attr, resolvedValue)
			if hasSrv {
				setBase(tx, id, attr, srv)
			}
			tx.UnsetAt(id, store.Conflict, attr)
			out.add(OutcomeResolved, attr)

		case discarded:
			target := srv
			if !hasSrv {
				target = m.Base(attr)
			}
			setTrunk(tx, id, attr, target)
			setBase(tx, id, attr, target)
			tx.UnsetAt(id, store.Conflict, attr)
			out.add(OutcomeDiscarded, attr)

		case pending && !inPayload:
			// Conflict from an earlier merge, nothing new: left as is.
			out.add(OutcomeConflict, attr)

		case !d.LocalChanged(attr):
			if d.RemoteChanged(attr) {
				setTrunk(tx, id, attr, srv)
				out.add(OutcomeServer, attr)
			}
			setBase(tx, id, attr, srv)
			tx.UnsetAt(id, store.Conflict, attr)

		case pending && !d.RemoteChanged(attr):
			// The server went back to the base: the earlier conflict is gone
			// and only the local edit remains.
			setBase(tx, id, attr, srv)
			tx.UnsetAt(id, store.Conflict, attr)
			out.add(OutcomeKept, attr)

		case !m.RemoteChanged(attr):
			out.add(OutcomeKept, attr)

		case item.Same(m.Trunk(attr), srv):
			setBase(tx, id, attr, srv)
			tx.UnsetAt(id, store.Conflict, attr)
			out.add(OutcomeTrivial, attr)

		default:
			tx.SetAt(id, store.Conflict, attr, nullIfNone(srv))
			out.add(OutcomeConflict, attr)
		}
	}

	out.Synced = version.DropBaseIfClean(tx, id)
	return out, nil
}

func setTrunk(tx *store.Tx, id item.ID, attr item.AttrID, v item.Value) {
	if v == nil {
		tx.Unset(id, attr)
		return
	}
	tx.Set(id, attr, v)
}

func setBase(tx *store.Tx, id item.ID, attr item.AttrID, v item.Value) {
	tx.SetAt(id, store.Base, attr, nullIfNone(v))
}

func nullIfNone(v item.Value) item.Value {
	if v == nil {
		return item.Null{}
	}
	return v
}
