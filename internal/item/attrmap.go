package item

import (
	"fmt"
	"sort"
	"strings"
)

// AttributeMap is an immutable mapping from attribute to value, used to stage
// item creation, edits and server payloads before they reach the store.
// Build one with MapBuilder; the zero value is an empty map.
type AttributeMap struct {
	attrs  map[AttrID]Attribute
	values map[AttrID]Value
}

// Get returns the value staged for attr.
func (m AttributeMap) Get(id AttrID) (Value, bool) {
	v, ok := m.values[id]
	return v, ok
}

// Attribute returns the attribute declaration staged under id.
func (m AttributeMap) Attribute(id AttrID) (Attribute, bool) {
	a, ok := m.attrs[id]
	return a, ok
}

// Len returns the number of staged attributes.
func (m AttributeMap) Len() int {
	return len(m.values)
}

// Attributes returns the staged attributes sorted by ID.
func (m AttributeMap) Attributes() []Attribute {
	out := make([]Attribute, 0, len(m.attrs))
	for _, a := range m.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m AttributeMap) String() string {
	attrs := m.Attributes()
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = fmt.Sprintf("%s=%s", a.ID, Format(m.values[a.ID]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MapBuilder stages values for an AttributeMap.
// A builder is single-use: Build hands ownership to the map.
type MapBuilder struct {
	attrs  map[AttrID]Attribute
	values map[AttrID]Value
	built  bool
}

// NewMapBuilder creates an empty builder.
func NewMapBuilder() *MapBuilder {
	return &MapBuilder{
		attrs:  make(map[AttrID]Attribute),
		values: make(map[AttrID]Value),
	}
}

// Set stages a value. Panics if v does not fit the attribute kind or the
// builder was already built: both are programming errors.
func (b *MapBuilder) Set(a Attribute, v Value) *MapBuilder {
	if b.built {
		panic("item: MapBuilder used after Build")
	}
	if !a.Accepts(v) {
		panic(fmt.Sprintf("item: value %s (%T) does not fit attribute %s of kind %s", Format(v), v, a.ID, a.Kind))
	}
	b.attrs[a.ID] = a
	b.values[a.ID] = Normalize(v)
	return b
}

// Build returns the immutable map.
func (b *MapBuilder) Build() AttributeMap {
	b.built = true
	return AttributeMap{attrs: b.attrs, values: b.values}
}
