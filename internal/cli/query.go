package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/querysql"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Has []string
	SQL bool
}

// QueryResult is the JSON payload of query.
type QueryResult struct {
	Query string       `json:"query"`
	SQL   string       `json:"sql,omitempty"`
	Items []ItemStatus `json:"items"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [attribute=value...]",
		Short: "Find items by trunk values",
		Long: `Find the live items whose trunk values match every condition.

Values are read as YAML and converted to the attribute's kind, so
lists are written [a, b]. With --sql the query runs against the store
tables instead of the loaded snapshot.

Examples:
  itemsync query task:title=Review
  itemsync query 'task:tags=[a, b]' --has task:notes
  itemsync query task:done=true --sql --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Has, "has", nil, "only items with a non-empty value for these attributes")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "evaluate against the store tables")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command, args []string) error {
	f := opts.formatter(cmd)

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	var terms []predicate.Expr
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid condition %q: expected attribute=value", arg), nil)
		}
		attr, v, err := parseCondition(e.schema.Registry, name, raw)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		terms = append(terms, predicate.Equals(attr, v))
	}
	for _, name := range opts.Has {
		if _, ok := e.schema.Registry.Lookup(item.AttrID(name)); !ok {
			return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("undeclared attribute %q", name), nil)
		}
		terms = append(terms, predicate.HasValue(item.AttrID(name)))
	}
	expr := predicate.And(terms...)

	snap := e.store.Snapshot()
	result := QueryResult{Query: expr.String()}
	var ids []item.ID
	if opts.SQL {
		sql, params, err := querysql.NewSQLCompiler().Compile(expr)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
		f.Verbosef("sql: %s %v", sql, params)
		result.SQL = sql
		if ids, err = e.store.SelectIDs(cmd.Context(), sql, params...); err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
	} else {
		if ids, err = predicate.Evaluate(expr, snap); err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
	}

	result.Items = statusRows(snap, ids)
	return f.Success(result, renderStatus(StatusResult{ICN: snap.ICN(), Items: result.Items}))
}

// parseCondition reads raw as YAML and coerces it into the kind of the
// named attribute.
func parseCondition(reg *item.Registry, name, raw string) (item.AttrID, item.Value, error) {
	a, ok := reg.Lookup(item.AttrID(name))
	if !ok {
		return "", nil, fmt.Errorf("undeclared attribute %q", name)
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return "", nil, fmt.Errorf("%s: %w", name, err)
	}
	if a.Kind == item.KindString {
		if _, isString := decoded.(string); !isString && decoded != nil {
			decoded = raw
		}
	}
	v, err := item.Coerce(a.Kind, decoded)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", name, err)
	}
	return a.ID, v, nil
}
