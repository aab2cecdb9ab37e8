package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a synchronization scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of the CUE schema, relative to the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// SchemaSource is an inline CUE schema, used when Schema is empty.
	SchemaSource string `yaml:"schema_source,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action of a scenario. Exactly one field is set.
type Step struct {
	Download *DownloadStep `yaml:"download,omitempty"`
	Edit     *EditStep     `yaml:"edit,omitempty"`
	Upload   *UploadStep   `yaml:"upload,omitempty"`
	Resolve  *ResolveStep  `yaml:"resolve,omitempty"`
}

// Kind names the step's action.
func (s Step) Kind() string {
	switch {
	case s.Download != nil:
		return "download"
	case s.Edit != nil:
		return "edit"
	case s.Upload != nil:
		return "upload"
	case s.Resolve != nil:
		return "resolve"
	}
	return ""
}

// DownloadStep delivers server data.
type DownloadStep struct {
	// Stage applies to every item without its own stage.
	Stage string       `yaml:"stage"`
	Items []ServerItem `yaml:"items"`
}

// ServerItem is the server state of one item.
type ServerItem struct {
	Identity string         `yaml:"identity"`
	Type     string         `yaml:"type,omitempty"`
	Master   string         `yaml:"master,omitempty"`
	Stage    string         `yaml:"stage,omitempty"`
	Values   map[string]any `yaml:"values"`
}

// EditStep commits one local edit session on a single item.
type EditStep struct {
	// Item is the edited item; empty when Create is set.
	Item string `yaml:"item,omitempty"`

	// Create names a new local item of Type (owned by Master, if set).
	Create string `yaml:"create,omitempty"`
	Type   string `yaml:"type,omitempty"`
	Master string `yaml:"master,omitempty"`

	Set    map[string]any `yaml:"set,omitempty"`
	Unset  []string       `yaml:"unset,omitempty"`
	Delete bool           `yaml:"delete,omitempty"`

	// Error is the expected contract error code; the step must fail with it.
	Error string `yaml:"error,omitempty"`
}

// UploadStep uploads every pending item. Rejected items fail.
type UploadStep struct {
	Reject []string `yaml:"reject,omitempty"`
}

// ResolveStep resolves conflicts on one item.
type ResolveStep struct {
	Item         string         `yaml:"item"`
	AcceptServer []string       `yaml:"accept_server,omitempty"`
	KeepLocal    []string       `yaml:"keep_local,omitempty"`
	Choose       map[string]any `yaml:"choose,omitempty"`
}

// Assertion validates the final store.
type Assertion struct {
	// Type is one of state, value, conflicts, query.
	Type string `yaml:"type"`

	// Item is the asserted item (state, value, conflicts).
	Item string `yaml:"item,omitempty"`

	// Attr and Slot select the value (value). Slot defaults to trunk.
	Attr string `yaml:"attr,omitempty"`
	Slot string `yaml:"slot,omitempty"`

	// Expect is the expected state name or value.
	Expect any `yaml:"expect,omitempty"`

	// Absent expects no value at all (value).
	Absent bool `yaml:"absent,omitempty"`

	// Attrs are the expected conflicted attributes (conflicts).
	Attrs []string `yaml:"attrs,omitempty"`

	// Where filters items by attribute values; Items are the expected names (query).
	Where map[string]any `yaml:"where,omitempty"`
	Items []string       `yaml:"items,omitempty"`
}

// Assertion type constants.
const (
	AssertState     = "state"
	AssertValue     = "value"
	AssertConflicts = "conflicts"
	AssertQuery     = "query"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected and the schema path is resolved against the
// scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); err != nil {
			return nil, fmt.Errorf("invalid scenario: schema not found: %s", s.Schema)
		}
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" && s.SchemaSource == "" {
		return fmt.Errorf("schema or schema_source is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	set := 0
	for _, present := range []bool{step.Download != nil, step.Edit != nil, step.Upload != nil, step.Resolve != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of download, edit, upload, resolve is required", i)
	}

	switch {
	case step.Download != nil:
		for j, it := range step.Download.Items {
			if it.Identity == "" {
				return fmt.Errorf("steps[%d].download.items[%d]: identity is required", i, j)
			}
		}
	case step.Edit != nil:
		e := step.Edit
		if (e.Item == "") == (e.Create == "") {
			return fmt.Errorf("steps[%d].edit: exactly one of item and create is required", i)
		}
		if e.Create != "" && e.Delete {
			return fmt.Errorf("steps[%d].edit: create and delete cannot be combined", i)
		}
	case step.Resolve != nil:
		if step.Resolve.Item == "" {
			return fmt.Errorf("steps[%d].resolve: item is required", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertState:
		if a.Item == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: state requires item and expect", index)
		}
	case AssertValue:
		if a.Item == "" || a.Attr == "" {
			return fmt.Errorf("assertions[%d]: value requires item and attr", index)
		}
		if a.Absent == (a.Expect != nil) {
			return fmt.Errorf("assertions[%d]: value requires exactly one of expect and absent", index)
		}
		switch a.Slot {
		case "", "trunk", "base", "conflict":
		default:
			return fmt.Errorf("assertions[%d]: unknown slot %q", index, a.Slot)
		}
	case AssertConflicts:
		if a.Item == "" {
			return fmt.Errorf("assertions[%d]: conflicts requires item", index)
		}
	case AssertQuery:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: query requires where", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
