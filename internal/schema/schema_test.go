package schema

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

const taskSchema = `
attributes: task: {
	title: {kind: "string", shadowable: true}
	tags:  {kind: "stringset", shadowable: true}
	links: {kind: "longset", shadowable: true}
	note:  {kind: "string"}
}
types: task: {
	doc: "a to-do item"
	merge: [
		{strategy: "stringSets", attrs: ["task:tags"]},
		{strategy: "uniteSets", attrs: ["task:links"]},
		{strategy: "copyRemote", attrs: ["task:title"]},
	]
}
types: note: {}
`

func TestParse(t *testing.T) {
	s, err := Parse(taskSchema, "task.cue")
	require.NoError(t, err)

	title, ok := s.Registry.Lookup("task:title")
	require.True(t, ok)
	assert.Equal(t, item.KindString, title.Kind)
	assert.True(t, title.Shadowable)

	note, ok := s.Registry.Lookup("task:note")
	require.True(t, ok)
	assert.False(t, note.Shadowable, "shadowable defaults to false")

	_, ok = s.Registry.Lookup(item.NewAttr.ID)
	assert.True(t, ok, "system attributes are always declared")

	assert.Equal(t, []string{"note", "task"}, s.TypeNames())
	task := s.Types["task"]
	assert.Equal(t, "a to-do item", task.Doc)
	require.Len(t, task.Rules, 3)
	assert.Equal(t, Rule{Strategy: RuleStringSets, Attrs: []item.AttrID{"task:tags"}}, task.Rules[0])
	assert.Empty(t, s.Types["note"].Rules)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad kind", `attributes: a: x: {kind: "float"}`, "kind"},
		{"unknown field", `attributes: a: x: {kind: "string", colour: "red"}`, "colour"},
		{"unknown strategy", `types: t: merge: [{strategy: "magic"}]`, "strategy"},
		{"reserved namespace", `attributes: sys: x: {kind: "string"}`, "reserved"},
		{"undeclared attribute", `types: t: merge: [{strategy: "copyRemote", attrs: ["a:nope"]}]`, "undeclared"},
		{"not shadowable", `
			attributes: a: x: {kind: "string"}
			types: t: merge: [{strategy: "copyRemote", attrs: ["a:x"]}]`, "not shadowable"},
		{"kind mismatch", `
			attributes: a: x: {kind: "string", shadowable: true}
			types: t: merge: [{strategy: "longSets", attrs: ["a:x"]}]`, "longset"},
		{"discardAll with attrs", `
			attributes: a: x: {kind: "string", shadowable: true}
			types: t: merge: [{strategy: "discardAll", attrs: ["a:x"]}]`, "keep"},
		{"syntax", `attributes: {`, "cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, "bad.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "schema.cue")
	require.NoError(t, os.WriteFile(file, []byte(taskSchema), 0o644))

	fromFile, err := Load(file)
	require.NoError(t, err)
	assert.Len(t, fromFile.Types, 2)

	fromDir, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, fromDir.Types, 2)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}

func TestStrategyForItemType(t *testing.T) {
	sch, err := Parse(taskSchema, "task.cue")
	require.NoError(t, err)
	s, err := store.Open(store.MemoryPath,
		store.WithRegistry(sch.Registry),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tags := item.Attribute{ID: "task:tags", Kind: item.KindStringSet, Shadowable: true}
	var task, untyped item.ID
	require.NoError(t, s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
		types := sch.Install(tx)
		task = tx.NextItem()
		tx.Set(task, item.TypeAttr.ID, item.Long(types["task"]))
		tx.Set(task, tags.ID, item.NewStringSet("a", "b"))
		untyped = tx.NextItem()
		return nil
	}))

	snap := s.Snapshot()
	typ, ok := sch.TypeOf(snap, task)
	require.True(t, ok)
	assert.Equal(t, "task", typ.Name)
	_, ok = sch.TypeOf(snap, untyped)
	assert.False(t, ok)
	assert.Equal(t, merge.None, sch.For(snap, untyped))

	require.NoError(t, s.Write(context.Background(), store.Foreground, func(tx *store.Tx) error {
		version.LocalEdit(tx, task, tags.ID, item.NewStringSet("a", "x"))
		return nil
	}))
	require.NoError(t, s.Write(context.Background(), store.Background, func(tx *store.Tx) error {
		server := item.NewMapBuilder().Set(tags, item.NewStringSet("a", "b", "c")).Build()
		_, err := merge.Apply(tx, task, server, sch.For(tx, task))
		return err
	}))

	v, _ := s.Snapshot().Value(task, tags.ID)
	assert.True(t, item.Equal(item.NewStringSet("a", "c", "x"), v))
}
