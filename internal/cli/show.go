package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// AttributeValues holds one attribute across the three slots. Empty
// strings mean no value in that slot.
type AttributeValues struct {
	Attr     string `json:"attr"`
	Trunk    string `json:"trunk,omitempty"`
	Base     string `json:"base,omitempty"`
	Conflict string `json:"conflict,omitempty"`
}

// ShowResult is the JSON payload of show.
type ShowResult struct {
	ItemStatus
	Slaves     []int64           `json:"slaves,omitempty"`
	Conflicts  []string          `json:"conflicts,omitempty"`
	Attributes []AttributeValues `json:"attributes"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <identity|id>",
		Short: "Show an item's trunk, base and conflict values",
		Long: `Show one item: its state, its dependent items and every attribute
with the local (trunk), last synced (base) and pending server (conflict)
value.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runShow(opts *RootOptions, ref string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	e, err := opts.openEnv(cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	snap := e.store.Snapshot()
	id, ok := findItem(snap, ref)
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("item not found: %s", ref), nil)
	}

	result := ShowResult{
		ItemStatus: ItemStatus{
			ID:       int64(id),
			Identity: identityOf(snap, id),
			Type:     typeName(snap, id),
			State:    version.State(snap, id).String(),
			Stage:    version.StageOf(snap, id).String(),
		},
		Attributes: slotValues(snap, id),
	}
	for _, s := range version.Slaves(snap, id) {
		result.Slaves = append(result.Slaves, int64(s))
	}
	for _, a := range merge.Conflicts(snap, id) {
		result.Conflicts = append(result.Conflicts, string(a))
	}
	return f.Success(result, renderShow(result))
}

// findItem resolves ref as an identity first, then as a numeric id.
func findItem(snap *store.Snapshot, ref string) (item.ID, bool) {
	if id, ok := snap.Find(ref); ok {
		return id, true
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || !snap.Exists(item.ID(n)) {
		return 0, false
	}
	return item.ID(n), true
}

func slotValues(snap *store.Snapshot, id item.ID) []AttributeValues {
	rows := make(map[item.AttrID]*AttributeValues)
	for _, slot := range []store.Slot{store.Trunk, store.Base, store.Conflict} {
		for _, attr := range snap.Attrs(id, slot) {
			row, ok := rows[attr]
			if !ok {
				row = &AttributeValues{Attr: string(attr)}
				rows[attr] = row
			}
			v, _ := snap.ValueAt(id, slot, attr)
			switch slot {
			case store.Trunk:
				row.Trunk = item.Format(v)
			case store.Base:
				row.Base = item.Format(v)
			case store.Conflict:
				row.Conflict = item.Format(v)
			}
		}
	}
	out := make([]AttributeValues, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attr < out[j].Attr })
	return out
}

func renderShow(r ShowResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "item %d", r.ID)
	if r.Identity != "" {
		fmt.Fprintf(&b, " (%s)", r.Identity)
	}
	fmt.Fprintf(&b, " %s, stage %s", r.State, r.Stage)
	if r.Type != "" {
		fmt.Fprintf(&b, ", type %s", r.Type)
	}
	b.WriteByte('\n')
	if len(r.Slaves) > 0 {
		fmt.Fprintf(&b, "slaves: %v\n", r.Slaves)
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(&b, "conflicts: %s\n", strings.Join(r.Conflicts, ", "))
	}

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ATTRIBUTE\tTRUNK\tBASE\tCONFLICT")
	for _, a := range r.Attributes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Attr, orDash(a.Trunk), orDash(a.Base), orDash(a.Conflict))
	}
	w.Flush()
	return b.String()
}
