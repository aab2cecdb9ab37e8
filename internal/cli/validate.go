package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/schema"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Schema     string          `json:"schema"`
	Attributes []AttributeInfo `json:"attributes"`
	Types      []TypeInfo      `json:"types"`
}

// AttributeInfo describes a declared attribute.
type AttributeInfo struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Shadowable bool   `json:"shadowable"`
}

// TypeInfo describes a declared type.
type TypeInfo struct {
	Name  string   `json:"name"`
	Doc   string   `json:"doc,omitempty"`
	Rules []string `json:"rules,omitempty"`
}

// SchemaErrorDetails locates a schema error.
type SchemaErrorDetails struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Field  string `json:"field,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema]",
		Short: "Compile and check the CUE schema",
		Long: `Compile the CUE schema (a file or package directory; default: the
configured schema) and list its attributes, types and merge rules.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := opts.loadConfig(cmd)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
		path = cfg.Schema
	}

	if _, err := os.Stat(path); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schema not found: %s", path), nil)
	}
	sch, err := schema.Load(path)
	if err != nil {
		var ce *schema.CompileError
		if errors.As(err, &ce) {
			details := SchemaErrorDetails{Field: ce.Field}
			if ce.Pos.IsValid() {
				details.File = ce.Pos.Filename()
				details.Line = ce.Pos.Line()
				details.Column = ce.Pos.Column()
			}
			return f.Fail(ExitFailure, ErrCodeSchema, err.Error(), details)
		}
		return f.Fail(ExitFailure, ErrCodeSchema, err.Error(), nil)
	}

	result := describeSchema(path, sch)
	return f.Success(result, renderSchema(result))
}

func describeSchema(path string, sch *schema.Schema) ValidationResult {
	result := ValidationResult{Schema: path}
	for _, a := range sch.Registry.All() {
		if a.ID.Namespace() == string(item.Sys) {
			continue
		}
		result.Attributes = append(result.Attributes, AttributeInfo{
			ID:         string(a.ID),
			Kind:       a.Kind.String(),
			Shadowable: a.Shadowable,
		})
	}
	for _, name := range sch.TypeNames() {
		t := sch.Types[name]
		info := TypeInfo{Name: name, Doc: t.Doc}
		for _, r := range t.Rules {
			info.Rules = append(info.Rules, describeRule(r))
		}
		result.Types = append(result.Types, info)
	}
	return result
}

func describeRule(r schema.Rule) string {
	attrs := make([]string, len(r.Attrs))
	for i, a := range r.Attrs {
		attrs[i] = string(a)
	}
	s := r.Strategy + "(" + strings.Join(attrs, ", ") + ")"
	if r.Keep != "" {
		s += " keep " + string(r.Keep)
	}
	return s
}

func renderSchema(r ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s: %d attribute(s), %d type(s)\n", r.Schema, len(r.Attributes), len(r.Types))
	for _, a := range r.Attributes {
		shadow := ""
		if a.Shadowable {
			shadow = " shadowable"
		}
		fmt.Fprintf(&b, "  %s %s%s\n", a.ID, a.Kind, shadow)
	}
	for _, t := range r.Types {
		fmt.Fprintf(&b, "  type %s\n", t.Name)
		for _, rule := range t.Rules {
			fmt.Fprintf(&b, "    %s\n", rule)
		}
	}
	return b.String()
}
