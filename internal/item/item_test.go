package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DeclareIdempotent(t *testing.T) {
	r := NewRegistry()
	a := Namespace("bug").Shadowable("summary", KindString)

	r.Declare(a)
	r.Declare(a)

	got, ok := r.Lookup("bug:summary")
	require.True(t, ok)
	assert.Equal(t, a, got)
}

func TestRegistry_ConflictingRedeclarationPanics(t *testing.T) {
	r := NewRegistry()
	r.Declare(Namespace("bug").Shadowable("summary", KindString))

	assert.Panics(t, func() {
		r.Declare(Namespace("bug").Attr("summary", KindString))
	})
	assert.Panics(t, func() {
		r.Declare(Namespace("bug").Shadowable("summary", KindLong))
	})
}

func TestRegistry_HasSystemAttributes(t *testing.T) {
	r := NewRegistry()
	for _, a := range SystemAttributes() {
		got, ok := r.Lookup(a.ID)
		require.True(t, ok, a.ID)
		assert.False(t, got.Shadowable)
	}
	assert.Empty(t, r.Shadowable())
}

func TestAttrID_Namespace(t *testing.T) {
	assert.Equal(t, "sys", TypeAttr.ID.Namespace())
	assert.Equal(t, "bug", AttrID("bug:summary").Namespace())
}

func TestNewLongSet_Normalizes(t *testing.T) {
	s := NewLongSet(3, 1, 3, 2)
	assert.Equal(t, LongSet{1, 2, 3}, s)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))
}

func TestLongSet_UnionMinus(t *testing.T) {
	a := NewLongSet(1, 2, 3)
	b := NewLongSet(3, 4)

	assert.Equal(t, LongSet{1, 2, 3, 4}, a.Union(b))
	assert.Equal(t, LongSet{1, 2}, a.Minus(b))
	assert.Equal(t, LongSet{4}, b.Minus(a))
}

func TestStringSet_UnionMinus(t *testing.T) {
	a := NewStringSet("x", "y")
	b := NewStringSet("y", "z")

	assert.Equal(t, StringSet{"x", "y", "z"}, a.Union(b))
	assert.Equal(t, StringSet{"x"}, a.Minus(b))
}

func TestEqualAndSame(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
		same  bool
	}{
		{"both absent", nil, nil, true, true},
		{"absent vs null", nil, Null{}, false, true},
		{"null vs empty set", Null{}, LongSet{}, false, true},
		{"strings", String("a"), String("a"), true, true},
		{"different strings", String("a"), String("b"), false, false},
		{"int vs long", Int(1), Long(1), false, false},
		{"sets", NewLongSet(2, 1), NewLongSet(1, 2), true, true},
		{"lists keep order", LongList{1, 2}, LongList{2, 1}, false, false},
		{"empty string is a value", String(""), nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, Equal(tt.a, tt.b))
			assert.Equal(t, tt.same, Same(tt.a, tt.b))
		})
	}
}

func TestIndexKeys(t *testing.T) {
	assert.Equal(t, []string{"s:a"}, IndexKeys(String("a")))
	assert.Equal(t, []string{"l:1", "l:2"}, IndexKeys(NewLongSet(2, 1)))
	assert.Equal(t, []string{"b:1"}, IndexKeys(Bool(true)))
	assert.Nil(t, IndexKeys(Null{}))
}

func TestMapBuilder(t *testing.T) {
	ns := Namespace("bug")
	summary := ns.Shadowable("summary", KindString)
	tags := ns.Shadowable("tags", KindStringSet)

	m := NewMapBuilder().
		Set(summary, String("crash")).
		Set(tags, NewStringSet("ui")).
		Build()

	assert.Equal(t, 2, m.Len())
	v, ok := m.Get(summary.ID)
	require.True(t, ok)
	assert.Equal(t, String("crash"), v)

	_, ok = m.Get("bug:missing")
	assert.False(t, ok)

	attrs := m.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, summary.ID, attrs[0].ID)
}

func TestMapBuilder_KindMismatchPanics(t *testing.T) {
	summary := Namespace("bug").Shadowable("summary", KindString)
	assert.Panics(t, func() {
		NewMapBuilder().Set(summary, Long(1))
	})
}

func TestMapBuilder_UseAfterBuildPanics(t *testing.T) {
	summary := Namespace("bug").Shadowable("summary", KindString)
	b := NewMapBuilder()
	b.Build()
	assert.Panics(t, func() {
		b.Set(summary, String("x"))
	})
}
