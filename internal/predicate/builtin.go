package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// valueKey renders a value for predicate keys. Canonical encoding keeps the
// kind, so Long(1) and Int(1) get different keys.
func valueKey(v item.Value) string {
	data, err := item.MarshalCanonical(v)
	if err != nil {
		return "<invalid>"
	}
	return string(data)
}

// hasValue matches items with a non-empty trunk value for Attr.
type hasValue struct {
	Attr item.AttrID
}

// HasValue matches items where attr is set to a non-empty value.
func HasValue(attr item.AttrID) Expr {
	return Of(hasValue{Attr: attr})
}

func (p hasValue) Key() string          { return "has(" + string(p.Attr) + ")" }
func (p hasValue) String() string       { return string(p.Attr) + " IS SET" }
func (p hasValue) Attrs() []item.AttrID { return []item.AttrID{p.Attr} }
func (p hasValue) Present() item.AttrID { return p.Attr }

func (p hasValue) Accept(r store.Reader, id item.ID) bool {
	v, ok := r.Value(id, p.Attr)
	return ok && !item.IsEmpty(v)
}

// equals matches items whose trunk value of Attr is exactly Value.
type equals struct {
	Attr  item.AttrID
	Value item.Value
}

// Equals matches items where attr holds exactly v (same kind and content).
func Equals(attr item.AttrID, v item.Value) Expr {
	return Of(equals{Attr: attr, Value: item.Normalize(v)})
}

// TypeIs matches items of the given type.
func TypeIs(typeItem item.ID) Expr {
	return Equals(item.TypeAttr.ID, item.Long(typeItem))
}

func (p equals) Key() string {
	return "eq(" + string(p.Attr) + "," + valueKey(p.Value) + ")"
}

func (p equals) String() string {
	return string(p.Attr) + " = " + item.Format(p.Value)
}

func (p equals) Attrs() []item.AttrID { return []item.AttrID{p.Attr} }

func (p equals) Compared() (item.AttrID, []item.Value) {
	return p.Attr, []item.Value{p.Value}
}

func (p equals) Accept(r store.Reader, id item.ID) bool {
	v, ok := r.Value(id, p.Attr)
	return ok && item.Equal(v, p.Value)
}

func (p equals) Lower(r store.Reader) ([]item.ID, bool) {
	keys := item.IndexKeys(p.Value)
	if len(keys) == 0 {
		// Null and empty collections are not indexed.
		return nil, false
	}
	return filter(r, r.LookupKey(p.Attr, keys[0]), p.Accept), true
}

// in matches items whose trunk value of Attr equals one of Values.
type in struct {
	Attr   item.AttrID
	Values []item.Value
}

// In matches items where attr equals any of vals.
func In(attr item.AttrID, vals ...item.Value) Expr {
	if len(vals) == 0 {
		return False
	}
	sorted := make([]item.Value, len(vals))
	for i, v := range vals {
		sorted[i] = item.Normalize(v)
	}
	sort.Slice(sorted, func(i, j int) bool { return valueKey(sorted[i]) < valueKey(sorted[j]) })
	return Of(in{Attr: attr, Values: sorted})
}

func (p in) Key() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = valueKey(v)
	}
	return "in(" + string(p.Attr) + ",[" + strings.Join(parts, ",") + "])"
}

func (p in) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = item.Format(v)
	}
	return string(p.Attr) + " IN (" + strings.Join(parts, ", ") + ")"
}

func (p in) Attrs() []item.AttrID { return []item.AttrID{p.Attr} }

func (p in) Compared() (item.AttrID, []item.Value) { return p.Attr, p.Values }

func (p in) Accept(r store.Reader, id item.ID) bool {
	v, ok := r.Value(id, p.Attr)
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if item.Equal(v, want) {
			return true
		}
	}
	return false
}

func (p in) Lower(r store.Reader) ([]item.ID, bool) {
	var out []item.ID
	for _, v := range p.Values {
		ids, ok := equals{Attr: p.Attr, Value: v}.Lower(r)
		if !ok {
			return nil, false
		}
		out = union(out, ids)
	}
	return out, true
}

// contains matches items whose trunk value of Attr is, or includes, Element.
type contains struct {
	Attr    item.AttrID
	Element item.Value
}

// Contains matches items where attr is a collection holding elem, or a
// scalar equal to elem. elem must be a Long or a String.
func Contains(attr item.AttrID, elem item.Value) Expr {
	switch elem.(type) {
	case item.Long, item.String:
	default:
		panic(fmt.Sprintf("predicate: Contains element must be a long or string, got %T", elem))
	}
	return Of(contains{Attr: attr, Element: item.Normalize(elem)})
}

// Refers matches items whose reference attribute points at target.
func Refers(attr item.AttrID, target item.ID) Expr {
	return Contains(attr, item.Long(target))
}

func (p contains) Key() string {
	return "contains(" + string(p.Attr) + "," + valueKey(p.Element) + ")"
}

func (p contains) String() string {
	return string(p.Attr) + " CONTAINS " + item.Format(p.Element)
}

func (p contains) Attrs() []item.AttrID { return []item.AttrID{p.Attr} }

func (p contains) Accept(r store.Reader, id item.ID) bool {
	v, ok := r.Value(id, p.Attr)
	if !ok {
		return false
	}
	switch e := p.Element.(type) {
	case item.Long:
		switch val := v.(type) {
		case item.Long:
			return val == e
		case item.LongSet:
			return val.Contains(int64(e))
		case item.LongList:
			for _, x := range val {
				if x == int64(e) {
					return true
				}
			}
		}
	case item.String:
		switch val := v.(type) {
		case item.String:
			return val == e
		case item.StringSet:
			return val.Contains(string(e))
		case item.StringList:
			for _, x := range val {
				if x == string(e) {
					return true
				}
			}
		}
	}
	return false
}

func (p contains) Lower(r store.Reader) ([]item.ID, bool) {
	keys := item.IndexKeys(p.Element)
	return filter(r, r.LookupKey(p.Attr, keys[0]), p.Accept), true
}

// ids matches a fixed set of items.
type ids struct {
	IDs []item.ID
}

// IDs matches exactly the given items (when they are live).
func IDs(set ...item.ID) Expr {
	return Of(ids{IDs: sortUnique(set)})
}

func (p ids) Key() string {
	parts := make([]string, len(p.IDs))
	for i, id := range p.IDs {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return "ids(" + strings.Join(parts, ",") + ")"
}

func (p ids) String() string {
	return "ID IN {" + strings.TrimSuffix(strings.TrimPrefix(p.Key(), "ids("), ")") + "}"
}

func (p ids) Attrs() []item.AttrID { return nil }
func (p ids) Members() []item.ID   { return p.IDs }

func (p ids) Accept(r store.Reader, id item.ID) bool {
	i := sort.Search(len(p.IDs), func(i int) bool { return p.IDs[i] >= id })
	return i < len(p.IDs) && p.IDs[i] == id && r.Exists(id)
}

func (p ids) Lower(r store.Reader) ([]item.ID, bool) {
	out := make([]item.ID, 0, len(p.IDs))
	for _, id := range p.IDs {
		if r.Exists(id) {
			out = append(out, id)
		}
	}
	return out, true
}

// fn is an arbitrary named test. It is never lowered.
type fn struct {
	Name  string
	Test  func(r store.Reader, id item.ID) bool
	Reads []item.AttrID
}

// Func wraps an arbitrary test. name identifies the test: two Funcs with
// the same name are the same predicate. reads lists the attributes the
// test looks at; leave it empty when unknown.
func Func(name string, test func(r store.Reader, id item.ID) bool, reads ...item.AttrID) Expr {
	return Of(fn{Name: name, Test: test, Reads: reads})
}

func (p fn) Key() string    { return "func(" + p.Name + ")" }
func (p fn) String() string { return p.Name + "()" }

func (p fn) Accept(r store.Reader, id item.ID) bool {
	return p.Test(r, id)
}

// referredBy selects the targets of Attr on items matching Sub.
type referredBy struct {
	Attr item.AttrID
	Sub  Expr
}

// ReferredBy selects the items that are the target of attr from at least
// one item matching sub. It resolves to an IDs set.
func ReferredBy(attr item.AttrID, sub Expr) Expr {
	return Of(referredBy{Attr: attr, Sub: Normalize(sub)})
}

func (p referredBy) Key() string {
	return "referredBy(" + string(p.Attr) + "," + Key(p.Sub) + ")"
}

func (p referredBy) String() string {
	return "REFERRED BY " + string(p.Attr) + " FROM (" + p.Sub.String() + ")"
}

func (p referredBy) Resolve(r store.Reader, sub *Subscription) (Expr, error) {
	sub.Watch(p.Attr)
	referrers, err := evaluate(p.Sub, r, sub)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.Key(), err)
	}

	var targets []item.ID
	for _, id := range referrers {
		v, ok := r.Value(id, p.Attr)
		if !ok {
			continue
		}
		targets = append(targets, item.Refs(v)...)
	}
	return IDs(targets...), nil
}

// refersTo selects items whose Attr points at an item matching Sub.
type refersTo struct {
	Attr item.AttrID
	Sub  Expr
}

// RefersTo selects items whose reference attribute points at an item
// matching sub. It resolves to an IDs set.
func RefersTo(attr item.AttrID, sub Expr) Expr {
	return Of(refersTo{Attr: attr, Sub: Normalize(sub)})
}

func (p refersTo) Key() string {
	return "refersTo(" + string(p.Attr) + "," + Key(p.Sub) + ")"
}

func (p refersTo) String() string {
	return string(p.Attr) + " REFERS TO (" + p.Sub.String() + ")"
}

func (p refersTo) Resolve(r store.Reader, sub *Subscription) (Expr, error) {
	sub.Watch(p.Attr)
	targets, err := evaluate(p.Sub, r, sub)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.Key(), err)
	}

	var out []item.ID
	for _, t := range targets {
		out = union(out, r.LookupKey(p.Attr, item.LongKey(int64(t))))
	}
	return IDs(out...), nil
}

func filter(r store.Reader, candidates []item.ID, accept func(store.Reader, item.ID) bool) []item.ID {
	out := make([]item.ID, 0, len(candidates))
	for _, id := range candidates {
		if accept(r, id) {
			out = append(out, id)
		}
	}
	return out
}
