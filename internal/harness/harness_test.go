package harness

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func download(items ...ServerItem) Step {
	return Step{Download: &DownloadStep{Stage: "full", Items: items}}
}

func task(identity string, values map[string]any) ServerItem {
	return ServerItem{Identity: identity, Type: "task", Values: values}
}

func TestRun_DownloadAndEdit(t *testing.T) {
	scenario := &Scenario{
		Name:         "download_edit",
		Description:  "Download a task and edit it",
		SchemaSource: testSchema,
		Steps: []Step{
			download(task("t-1", map[string]any{"task:title": "Write", "task:owner": "ann"})),
			{Edit: &EditStep{Item: "t-1", Set: map[string]any{"task:title": "Rewrite"}}},
		},
		Assertions: []Assertion{
			{Type: AssertState, Item: "t-1", Expect: "EDITED"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Expect: "Rewrite"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Slot: "base", Expect: "Write"},
			{Type: AssertValue, Item: "t-1", Attr: "task:owner", Expect: "ann"},
			{Type: AssertValue, Item: "t-1", Attr: "task:owner", Slot: "base", Absent: true},
			{Type: AssertQuery, Where: map[string]any{"task:owner": "ann"}, Items: []string{"t-1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "download", result.Trace[0].Step)
	assert.Equal(t, []TraceItem{{Name: "t-1", State: "SYNC", Detail: "server=task:title"}}, result.Trace[0].Items)
	assert.Equal(t, "edit t-1", result.Trace[1].Step)
	assert.Equal(t, []TraceItem{{Name: "t-1", State: "EDITED", Detail: "set=task:title"}}, result.Trace[1].Items)
}

func TestRun_FailingAssertions(t *testing.T) {
	scenario := &Scenario{
		Name:         "failing",
		Description:  "Every assertion is wrong",
		SchemaSource: testSchema,
		Steps: []Step{
			download(task("t-1", map[string]any{"task:title": "Write"})),
		},
		Assertions: []Assertion{
			{Type: AssertState, Item: "t-1", Expect: "EDITED"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Expect: "Other"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Absent: true},
			{Type: AssertConflicts, Item: "t-1", Attrs: []string{"task:title"}},
			{Type: AssertQuery, Where: map[string]any{"task:title": "Write"}, Items: []string{}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected EDITED, got SYNC")
	assert.Contains(t, result.Errors[1], `"Other"`)
	assert.Contains(t, result.Errors[2], "expected no value")
	assert.Contains(t, result.Errors[3], "conflicts")
	assert.Contains(t, result.Errors[4], "[t-1]")
}

func TestRun_ConflictAndResolve(t *testing.T) {
	scenario := &Scenario{
		Name:         "conflict_resolve",
		Description:  "Both sides change the title; the server wins",
		SchemaSource: testSchema,
		Steps: []Step{
			download(task("t-1", map[string]any{"task:title": "a"})),
			{Edit: &EditStep{Item: "t-1", Set: map[string]any{"task:title": "b"}}},
			download(task("t-1", map[string]any{"task:title": "c"})),
			{Edit: &EditStep{Item: "t-1", Set: map[string]any{"task:title": "d"}, Error: "CONFLICTED_ATTRIBUTE"}},
			{Resolve: &ResolveStep{Item: "t-1", AcceptServer: []string{"task:title"}}},
		},
		Assertions: []Assertion{
			{Type: AssertState, Item: "t-1", Expect: "SYNC"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Expect: "c"},
			{Type: AssertConflicts, Item: "t-1"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 5)
	assert.Equal(t, []TraceItem{{Name: "t-1", State: "CONFLICT", Detail: "conflict=task:title"}}, result.Trace[2].Items)
	assert.Equal(t, "CONFLICTED_ATTRIBUTE", result.Trace[3].Error)
	assert.Empty(t, result.Trace[3].Items)
	assert.Equal(t, []TraceItem{{Name: "t-1", State: "SYNC", Detail: "accept_server=task:title"}}, result.Trace[4].Items)
}

func TestRun_ConflictPending(t *testing.T) {
	scenario := &Scenario{
		Name:         "conflict_pending",
		Description:  "A conflict waits for resolution",
		SchemaSource: testSchema,
		Steps: []Step{
			download(task("t-1", map[string]any{"task:title": "a"})),
			{Edit: &EditStep{Item: "t-1", Set: map[string]any{"task:title": "b"}}},
			download(task("t-1", map[string]any{"task:title": "c"})),
		},
		Assertions: []Assertion{
			{Type: AssertState, Item: "t-1", Expect: "CONFLICT"},
			{Type: AssertConflicts, Item: "t-1", Attrs: []string{"task:title"}},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Slot: "conflict", Expect: "c"},
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Slot: "base", Expect: "a"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_CreateAndDeleteLocalItem(t *testing.T) {
	scenario := &Scenario{
		Name:         "create_delete",
		Description:  "A local item deleted before upload disappears",
		SchemaSource: testSchema,
		Steps: []Step{
			{Edit: &EditStep{Create: "draft", Type: "task", Set: map[string]any{"task:title": "Draft"}}},
			{Edit: &EditStep{Item: "draft", Delete: true}},
			{Upload: &UploadStep{}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, []TraceItem{{Name: "draft", State: "NEW", Detail: "set=task:title"}}, result.Trace[0].Items)
	assert.Equal(t, []TraceItem{{Name: "draft", State: "CLEARED", Detail: "deleted"}}, result.Trace[1].Items)
	assert.Empty(t, result.Trace[2].Items)
}

func TestRun_MissingStageIsSkipped(t *testing.T) {
	scenario := &Scenario{
		Name:         "no_stage",
		Description:  "Items without a stage are not merged",
		SchemaSource: testSchema,
		Steps: []Step{
			{Download: &DownloadStep{Items: []ServerItem{task("t-1", map[string]any{"task:title": "a"})}}},
		},
		Assertions: []Assertion{
			{Type: AssertValue, Item: "t-1", Attr: "task:title", Absent: true},
		},
	}

	var buf bytes.Buffer
	result, err := RunWithLogger(scenario, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, []TraceItem{{Name: "t-1", State: "SYNC", Detail: "skipped"}}, result.Trace[0].Items)
	assert.Contains(t, buf.String(), "missing download stage")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr string
	}{
		{
			name:    "unknown item",
			steps:   []Step{{Edit: &EditStep{Item: "ghost", Set: map[string]any{"task:title": "x"}}}},
			wantErr: `unknown item "ghost"`,
		},
		{
			name:    "unknown type",
			steps:   []Step{download(ServerItem{Identity: "t-1", Type: "epic", Values: map[string]any{}})},
			wantErr: `unknown type "epic"`,
		},
		{
			name:    "undeclared attribute",
			steps:   []Step{download(task("t-1", map[string]any{"task:color": "red"}))},
			wantErr: `undeclared attribute "task:color"`,
		},
		{
			name:    "kind mismatch",
			steps:   []Step{download(task("t-1", map[string]any{"task:tags": "red"}))},
			wantErr: "expected list",
		},
		{
			name:    "unknown stage",
			steps:   []Step{{Download: &DownloadStep{Stage: "partial"}}},
			wantErr: `unknown download stage "partial"`,
		},
		{
			name: "unexpected error code",
			steps: []Step{
				download(task("t-1", map[string]any{"task:title": "a"})),
				{Edit: &EditStep{Item: "t-1", Set: map[string]any{"task:title": "b"}, Error: "NOT_EDITABLE"}},
			},
			wantErr: "expected NOT_EDITABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(&Scenario{
				Name:         "errors",
				Description:  tt.name,
				SchemaSource: testSchema,
				Steps:        tt.steps,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_InvalidSchema(t *testing.T) {
	_, err := Run(&Scenario{
		Name:         "bad_schema",
		Description:  "Schema does not compile",
		SchemaSource: `attributes: task: title: {kind: "float"}`,
		Steps:        []Step{{Upload: &UploadStep{}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile schema")
}
