package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/querysql"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the harness store and
// returns the failure messages.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var failures []string
	snap := h.store.Snapshot()
	for i, a := range assertions {
		if err := evaluate(h, snap, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(h *Harness, snap *store.Snapshot, a Assertion) error {
	switch a.Type {
	case AssertState:
		return assertState(h, snap, a)
	case AssertValue:
		return assertValue(h, snap, a)
	case AssertConflicts:
		return assertConflicts(h, snap, a)
	case AssertQuery:
		return assertQuery(h, snap, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertState(h *Harness, snap *store.Snapshot, a Assertion) error {
	id, err := h.lookup(a.Item)
	if err != nil {
		return err
	}
	want, err := version.ParseState(fmt.Sprint(a.Expect))
	if err != nil {
		return err
	}
	if !snap.Exists(id) {
		return &AssertionError{Type: AssertState, Expected: want.String(), Actual: "cleared item"}
	}
	if got := version.State(snap, id); got != want {
		return &AssertionError{Type: AssertState, Expected: want.String(), Actual: got.String()}
	}
	return nil
}

func assertValue(h *Harness, snap *store.Snapshot, a Assertion) error {
	id, err := h.lookup(a.Item)
	if err != nil {
		return err
	}
	slot := store.Trunk
	switch a.Slot {
	case "base":
		slot = store.Base
	case "conflict":
		slot = store.Conflict
	}
	got, ok := snap.ValueAt(id, slot, item.AttrID(a.Attr))

	if a.Absent {
		if ok {
			return &AssertionError{Type: AssertValue, Expected: "no value", Actual: item.Format(got)}
		}
		return nil
	}
	_, want, err := h.value(a.Attr, a.Expect)
	if err != nil {
		return err
	}
	if !ok || !item.Equal(want, got) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s %s = %s", slot, a.Attr, item.Format(want)),
			Actual:   item.Format(got),
		}
	}
	return nil
}

func assertConflicts(h *Harness, snap *store.Snapshot, a Assertion) error {
	id, err := h.lookup(a.Item)
	if err != nil {
		return err
	}
	var got []string
	for _, attr := range merge.Conflicts(snap, id) {
		got = append(got, string(attr))
	}
	want := append([]string(nil), a.Attrs...)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{Type: AssertConflicts, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

func assertQuery(h *Harness, snap *store.Snapshot, a Assertion) error {
	var terms []predicate.Expr
	for _, attr := range sortedKeys(a.Where) {
		_, v, err := h.value(attr, a.Where[attr])
		if err != nil {
			return err
		}
		terms = append(terms, predicate.Equals(item.AttrID(attr), v))
	}
	expr := predicate.And(terms...)
	ids, err := predicate.Evaluate(expr, snap)
	if err != nil {
		return err
	}

	want := append([]string(nil), a.Items...)
	sort.Strings(want)
	if got := h.itemNames(ids); strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{Type: AssertQuery, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}

	// The same query run against the persisted tables must agree.
	selected, err := querysql.Select(context.Background(), h.store, expr)
	if err != nil {
		return err
	}
	if got := h.itemNames(selected); strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{Type: AssertQuery + " (sql)", Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

func (h *Harness) itemNames(ids []item.ID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, h.ids[id])
	}
	sort.Strings(names)
	return names
}
