package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/schema"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	States []string
	Type   string
}

// ItemStatus is one row of status.
type ItemStatus struct {
	ID       int64  `json:"id"`
	Identity string `json:"identity,omitempty"`
	Type     string `json:"type,omitempty"`
	State    string `json:"state"`
	Stage    string `json:"stage"`
}

// StatusResult is the JSON payload of status.
type StatusResult struct {
	ICN   int64        `json:"icn"`
	Items []ItemStatus `json:"items"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List items with their sync state",
		Long: `List the live items of the store with their sync state and
download stage.

Examples:
  itemsync status
  itemsync status --state EDITED --state CONFLICT
  itemsync status --type task --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.States, "state", nil, "only items in these states (SYNC, NEW, EDITED, MODIFIED, CONFLICT)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only items of this type")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var states []version.SyncState
	for _, s := range opts.States {
		st, err := version.ParseState(s)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		states = append(states, st)
	}

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	snap := e.store.Snapshot()
	terms := []predicate.Expr{predicate.Not(predicate.Func("type-item", isTypeItem, item.IdentityAttr.ID))}
	if len(states) > 0 {
		terms = append(terms, version.StateIs(states...))
	}
	if opts.Type != "" {
		typeItem, ok := snap.Find(schema.TypeIdentity(opts.Type))
		if !ok {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("unknown type %q", opts.Type), nil)
		}
		terms = append(terms, predicate.TypeIs(typeItem))
	}

	ids, err := predicate.Evaluate(predicate.And(terms...), snap)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	result := StatusResult{ICN: snap.ICN(), Items: statusRows(snap, ids)}
	return f.Success(result, renderStatus(result))
}

func statusRows(snap *store.Snapshot, ids []item.ID) []ItemStatus {
	rows := make([]ItemStatus, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, ItemStatus{
			ID:       int64(id),
			Identity: identityOf(snap, id),
			Type:     typeName(snap, id),
			State:    version.State(snap, id).String(),
			Stage:    version.StageOf(snap, id).String(),
		})
	}
	return rows
}

func renderStatus(r StatusResult) string {
	if len(r.Items) == 0 {
		return "No items.\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIDENTITY\tTYPE\tSTATE\tSTAGE")
	for _, it := range r.Items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", it.ID, orDash(it.Identity), orDash(it.Type), it.State, it.Stage)
	}
	w.Flush()
	return b.String()
}

func isTypeItem(r store.Reader, id item.ID) bool {
	return strings.HasPrefix(identityOf(r, id), "type:")
}

func identityOf(r store.Reader, id item.ID) string {
	v, ok := r.Value(id, item.IdentityAttr.ID)
	if !ok {
		return ""
	}
	s, _ := v.(item.String)
	return string(s)
}

// typeName reads the type of id through its type item's identity.
func typeName(r store.Reader, id item.ID) string {
	v, ok := r.Value(id, item.TypeAttr.ID)
	if !ok {
		return ""
	}
	typeItem, ok := v.(item.Long)
	if !ok {
		return ""
	}
	name, _ := strings.CutPrefix(identityOf(r, item.ID(typeItem)), "type:")
	return name
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
