package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTrace(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Step: "download", Items: []TraceItem{
			{Name: "t-1", State: "SYNC", Detail: "server=task:title"},
			{Name: "t-2", State: "SYNC"},
		}},
		{Seq: 2, Step: "edit t-1", Error: "CONFLICTED_ATTRIBUTE"},
	}

	want := "# render\n" +
		"[1] download\n" +
		"    t-1 SYNC server=task:title\n" +
		"    t-2 SYNC\n" +
		"[2] edit t-1 error=CONFLICTED_ATTRIBUTE\n"
	assert.Equal(t, want, string(RenderTrace("render", trace)))
}

func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}
