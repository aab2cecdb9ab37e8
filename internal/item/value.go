package item

import (
	"slices"
	"sort"
	"strconv"
)

// Value is a sealed interface representing the storable value types.
// Only the types in this file implement it. There is no float type.
type Value interface {
	Kind() Kind
	itemValue() // Sealed - only these types implement it
}

// Null is an explicitly stored null. It is distinct from "no value":
// reading an attribute that was never set reports ok == false instead.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) itemValue() {}

// String is a string scalar.
type String string

func (String) Kind() Kind { return KindString }
func (String) itemValue() {}

// Int is a 32-bit integer scalar.
type Int int32

func (Int) Kind() Kind { return KindInt }
func (Int) itemValue() {}

// Long is a 64-bit integer scalar. Item references are Longs.
type Long int64

func (Long) Kind() Kind { return KindLong }
func (Long) itemValue() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) itemValue() {}

// LongSet is an unordered, duplicate-free collection of longs.
// Always sorted ascending; build it with NewLongSet.
type LongSet []int64

func (LongSet) Kind() Kind { return KindLongSet }
func (LongSet) itemValue() {}

// LongList is an ordered collection of longs; duplicates are kept.
type LongList []int64

func (LongList) Kind() Kind { return KindLongList }
func (LongList) itemValue() {}

// StringSet is an unordered, duplicate-free collection of strings.
// Always sorted; build it with NewStringSet.
type StringSet []string

func (StringSet) Kind() Kind { return KindStringSet }
func (StringSet) itemValue() {}

// StringList is an ordered collection of strings; duplicates are kept.
type StringList []string

func (StringList) Kind() Kind { return KindStringList }
func (StringList) itemValue() {}

// NewLongSet creates a normalized LongSet from values.
func NewLongSet(vals ...int64) LongSet {
	out := make([]int64, len(vals))
	copy(out, vals)
	slices.Sort(out)
	return LongSet(slices.Compact(out))
}

// NewStringSet creates a normalized StringSet from values.
func NewStringSet(vals ...string) StringSet {
	out := make([]string, len(vals))
	copy(out, vals)
	sort.Strings(out)
	return StringSet(slices.Compact(out))
}

// Contains reports whether v is in the set.
func (s LongSet) Contains(v int64) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// Union returns s ∪ other.
func (s LongSet) Union(other LongSet) LongSet {
	return NewLongSet(append(slices.Clone([]int64(s)), other...)...)
}

// Minus returns s − other.
func (s LongSet) Minus(other LongSet) LongSet {
	out := make([]int64, 0, len(s))
	for _, v := range s {
		if !other.Contains(v) {
			out = append(out, v)
		}
	}
	return LongSet(out)
}

// Contains reports whether v is in the set.
func (s StringSet) Contains(v string) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// Union returns s ∪ other.
func (s StringSet) Union(other StringSet) StringSet {
	return NewStringSet(append(slices.Clone([]string(s)), other...)...)
}

// Minus returns s − other.
func (s StringSet) Minus(other StringSet) StringSet {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if !other.Contains(v) {
			out = append(out, v)
		}
	}
	return StringSet(out)
}

// IsEmpty reports whether v carries no data: no value, Null, or an empty
// collection. Empty values compare equal to each other in diffs.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case LongSet:
		return len(val) == 0
	case LongList:
		return len(val) == 0
	case StringSet:
		return len(val) == 0
	case StringList:
		return len(val) == 0
	}
	return false
}

// Equal reports whether two values are identical in kind and content.
// nil (no value) only equals nil.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case String:
		return av == b.(String)
	case Int:
		return av == b.(Int)
	case Long:
		return av == b.(Long)
	case Bool:
		return av == b.(Bool)
	case LongSet:
		return slices.Equal(av, b.(LongSet))
	case LongList:
		return slices.Equal(av, b.(LongList))
	case StringSet:
		return slices.Equal(av, b.(StringSet))
	case StringList:
		return slices.Equal(av, b.(StringList))
	}
	return false
}

// Same is the diff equality: two empty values are the same regardless of
// kind, otherwise Equal applies.
func Same(a, b Value) bool {
	if IsEmpty(a) || IsEmpty(b) {
		return IsEmpty(a) && IsEmpty(b)
	}
	return Equal(a, b)
}

// IndexKeys returns the keys under which v is found in a value index.
// Scalars have a single key; collections contribute one key per element so
// membership lookups ("contains X") can use the index.
func IndexKeys(v Value) []string {
	switch val := v.(type) {
	case String:
		return []string{StringKey(string(val))}
	case Int:
		return []string{"i:" + strconv.FormatInt(int64(val), 10)}
	case Long:
		return []string{LongKey(int64(val))}
	case Bool:
		if val {
			return []string{"b:1"}
		}
		return []string{"b:0"}
	case LongSet:
		return longKeys(val)
	case LongList:
		return longKeys(val)
	case StringSet:
		return stringKeys(val)
	case StringList:
		return stringKeys(val)
	}
	return nil
}

// LongKey is the index key of a long (scalar or collection element).
func LongKey(v int64) string {
	return "l:" + strconv.FormatInt(v, 10)
}

// StringKey is the index key of a string (scalar or collection element).
func StringKey(v string) string {
	return "s:" + v
}

func longKeys(vals []int64) []string {
	keys := make([]string, 0, len(vals))
	for _, v := range vals {
		keys = append(keys, LongKey(v))
	}
	return slices.Compact(keys)
}

func stringKeys(vals []string) []string {
	keys := make([]string, 0, len(vals))
	for _, v := range vals {
		keys = append(keys, StringKey(v))
	}
	sort.Strings(keys)
	return slices.Compact(keys)
}

// Refs returns the item IDs referenced by a Long, LongSet or LongList value.
func Refs(v Value) []ID {
	switch val := v.(type) {
	case Long:
		return []ID{ID(val)}
	case LongSet:
		return toIDs(val)
	case LongList:
		return toIDs(val)
	}
	return nil
}

func toIDs(vals []int64) []ID {
	out := make([]ID, len(vals))
	for i, v := range vals {
		out[i] = ID(v)
	}
	return out
}
