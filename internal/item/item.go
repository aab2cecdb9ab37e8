package item

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ID identifies an item. Zero is never issued by the store.
type ID int64

// AttrID is the stable "namespace:name" key of an attribute.
type AttrID string

// Namespace returns the namespace part of the attribute ID.
func (id AttrID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ":")
	return ns
}

// Kind is the value type an attribute carries.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindLong
	KindBool
	KindLongSet
	KindLongList
	KindStringSet
	KindStringList
)

var kindNames = map[Kind]string{
	KindNull:       "null",
	KindString:     "string",
	KindInt:        "int",
	KindLong:       "long",
	KindBool:       "bool",
	KindLongSet:    "longset",
	KindLongList:   "longlist",
	KindStringSet:  "stringset",
	KindStringList: "stringlist",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name (as produced by Kind.String) back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown attribute kind %q", s)
}

// IsCollection reports whether values of this kind hold several elements.
func (k Kind) IsCollection() bool {
	switch k {
	case KindLongSet, KindLongList, KindStringSet, KindStringList:
		return true
	}
	return false
}

// Attribute is a typed, named key for item values.
//
// Shadowable attributes take part in synchronization: their server value is
// remembered in the base slot when a local edit starts, and a competing server
// value lands in the conflict slot when a merge cannot resolve it.
type Attribute struct {
	ID         AttrID
	Kind       Kind
	Shadowable bool
}

func (a Attribute) String() string {
	return string(a.ID)
}

// Accepts reports whether v may be stored under this attribute.
// Null is accepted by every attribute.
func (a Attribute) Accepts(v Value) bool {
	if v == nil {
		return false
	}
	return v.Kind() == KindNull || v.Kind() == a.Kind
}

// Namespace groups attribute declarations.
type Namespace string

// Attr declares a local (non-shadowable) attribute in the namespace.
func (n Namespace) Attr(name string, kind Kind) Attribute {
	return Attribute{ID: AttrID(string(n) + ":" + name), Kind: kind}
}

// Shadowable declares a synchronized attribute in the namespace.
func (n Namespace) Shadowable(name string, kind Kind) Attribute {
	a := n.Attr(name, kind)
	a.Shadowable = true
	return a
}

// Registry holds every declared attribute. Attributes are declared once and
// stay stable for the lifetime of the registry.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	attrs map[AttrID]Attribute
}

// NewRegistry creates a registry pre-populated with the system attributes.
func NewRegistry() *Registry {
	r := &Registry{attrs: make(map[AttrID]Attribute)}
	for _, a := range SystemAttributes() {
		r.Declare(a)
	}
	return r
}

// Declare registers an attribute and returns it.
// Declaring the same ID twice with identical kind and shadowability is a no-op.
// Panics on a conflicting redeclaration: that is a programming error.
func (r *Registry) Declare(a Attribute) Attribute {
	if a.ID == "" || a.ID.Namespace() == string(a.ID) {
		panic(fmt.Sprintf("item: attribute ID %q must be namespace:name", a.ID))
	}
	if a.Kind == KindNull {
		panic(fmt.Sprintf("item: attribute %s declared without a kind", a.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.attrs[a.ID]; ok {
		if prev != a {
			panic(fmt.Sprintf("item: attribute %s redeclared as %s (shadowable=%v), was %s (shadowable=%v)",
				a.ID, a.Kind, a.Shadowable, prev.Kind, prev.Shadowable))
		}
		return prev
	}
	r.attrs[a.ID] = a
	return a
}

// Lookup returns the declared attribute for id.
func (r *Registry) Lookup(id AttrID) (Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attrs[id]
	return a, ok
}

// Shadowable returns all shadowable attributes sorted by ID.
func (r *Registry) Shadowable() []Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Attribute
	for _, a := range r.attrs {
		if a.Shadowable {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every declared attribute sorted by ID.
func (r *Registry) All() []Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Attribute, 0, len(r.attrs))
	for _, a := range r.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
