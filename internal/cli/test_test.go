package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: title_edit
description: "A downloaded title is edited locally"
schema_source: |
  attributes: task: title: {kind: "string", shadowable: true}
steps:
  - download:
      stage: full
      items:
        - identity: t-1
          values: {"task:title": "a"}
  - edit:
      item: t-1
      set: {"task:title": "b"}
assertions:
  - type: state
    item: t-1
    expect: EDITED
`

const failingScenario = `
name: wrong_state
description: "Asserts the wrong state"
schema_source: |
  attributes: task: title: {kind: "string", shadowable: true}
steps:
  - download:
      stage: full
      items:
        - identity: t-1
          values: {"task:title": "a"}
assertions:
  - type: state
    item: t-1
    expect: CONFLICT
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", "../harness/testdata/scenarios", "--golden", "../harness/testdata/golden")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ end_to_end")
	assert.Contains(t, out, "✓ sets_and_hierarchy")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_UpdateThenMatch(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"edit.yaml": passingScenario})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "(golden missing)")

	out, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "title_edit.golden"))
	require.NoError(t, err)
	assert.Equal(t, "# title_edit\n"+
		"[1] download\n"+
		"    t-1 SYNC server=task:title\n"+
		"[2] edit t-1\n"+
		"    t-1 EDITED set=task:title\n", string(golden))

	out, err = execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"edit.yaml": passingScenario})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "title_edit.golden"), []byte("# stale\n"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingAssertion(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"edit.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_state")
	assert.Contains(t, out, "expected CONFLICT, got SYNC")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"edit.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "test", dir, "--filter", "ed*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: [unclosed"})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_Errors(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")

	_, err = execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}
