package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RenderTrace renders a trace as deterministic text:
//
//	# scenario_name
//	[1] download
//	    doc-1 SYNC server=task:title
//	[2] edit doc-1
//	    doc-1 EDITED set=task:title
func RenderTrace(name string, trace []TraceEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, ev := range trace {
		fmt.Fprintf(&b, "[%d] %s", ev.Seq, ev.Step)
		if ev.Error != "" {
			fmt.Fprintf(&b, " error=%s", ev.Error)
		}
		b.WriteByte('\n')
		for _, it := range ev.Items {
			fmt.Fprintf(&b, "    %s %s", it.Name, it.State)
			if it.Detail != "" {
				fmt.Fprintf(&b, " %s", it.Detail)
			}
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario, fails the test on assertion failures
// and compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares the result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, RenderTrace(scenarioName, result.Trace))
}
