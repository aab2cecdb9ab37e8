package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/itemsync/internal/drain"
	"github.com/roach88/itemsync/internal/edit"
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/schema"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Harness executes one scenario against its own in-memory store.
type Harness struct {
	store  *store.Store
	schema *schema.Schema
	edits  *edit.Manager
	drain  *drain.Runner
	logger *slog.Logger

	types map[string]item.ID
	names map[string]item.ID
	ids   map[item.ID]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store built from its schema:
//  1. compile the schema and install the item types
//  2. execute the steps in order, recording a trace event per step
//  3. evaluate the assertions against the final store
//
// An error means the scenario could not run; failed assertions are
// reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with the store and drain logging to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	sch, err := loadSchema(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.MemoryPath, store.WithRegistry(sch.Registry), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		schema: sch,
		edits:  edit.NewManager(st),
		drain:  drain.NewRunner(st, drain.WithStrategies(sch)),
		logger: logger,
		names:  make(map[string]item.ID),
		ids:    make(map[item.ID]string),
	}

	ctx := context.Background()
	if err := st.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		h.types = sch.Install(tx)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("install types: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
	}

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadSchema(scenario *Scenario) (*schema.Schema, error) {
	var (
		sch *schema.Schema
		err error
	)
	if scenario.Schema != "" {
		sch, err = schema.Load(scenario.Schema)
	} else {
		sch, err = schema.Parse(scenario.SchemaSource, scenario.Name+".cue")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return sch, nil
}

func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	switch {
	case step.Download != nil:
		return h.download(ctx, step.Download, result)
	case step.Edit != nil:
		return h.edit(ctx, step.Edit, result)
	case step.Upload != nil:
		return h.upload(ctx, step.Upload, result)
	case step.Resolve != nil:
		return h.resolve(ctx, step.Resolve, result)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) name(name string, id item.ID) {
	h.names[name] = id
	h.ids[id] = name
}

func (h *Harness) lookup(name string) (item.ID, error) {
	id, ok := h.names[name]
	if !ok {
		return 0, fmt.Errorf("unknown item %q", name)
	}
	return id, nil
}

func (h *Harness) value(attr string, raw any) (item.Attribute, item.Value, error) {
	a, ok := h.schema.Registry.Lookup(item.AttrID(attr))
	if !ok {
		return a, nil, fmt.Errorf("undeclared attribute %q", attr)
	}
	v, err := item.Coerce(a.Kind, raw)
	if err != nil {
		return a, nil, fmt.Errorf("%s: %w", attr, err)
	}
	return a, v, nil
}

// traceItem describes id as of the current snapshot.
func (h *Harness) traceItem(id item.ID, detail string) TraceItem {
	snap := h.store.Snapshot()
	state := "CLEARED"
	if snap.Exists(id) {
		state = version.State(snap, id).String()
	}
	return TraceItem{Name: h.ids[id], State: state, Detail: detail}
}

func (h *Harness) download(ctx context.Context, step *DownloadStep, result *Result) error {
	stage, err := parseStage(step.Stage)
	if err != nil {
		return err
	}

	var order []item.ID
	report, err := h.drain.Run(ctx, drain.ProcedureFunc(func(_ context.Context, d *drain.Download) error {
		order = order[:0]
		for _, it := range step.Items {
			id := d.Item(it.Identity)
			h.name(it.Identity, id)
			order = append(order, id)

			b := item.NewMapBuilder()
			if it.Type != "" {
				typ, ok := h.types[it.Type]
				if !ok {
					return fmt.Errorf("unknown type %q", it.Type)
				}
				b.Set(item.TypeAttr, item.Long(typ))
			}
			if it.Master != "" {
				master, err := h.lookup(it.Master)
				if err != nil {
					return err
				}
				b.Set(item.MasterAttr, item.Long(master))
			}
			for _, attr := range sortedKeys(it.Values) {
				a, v, err := h.value(attr, it.Values[attr])
				if err != nil {
					return err
				}
				b.Set(a, v)
			}

			itemStage := stage
			if it.Stage != "" {
				if itemStage, err = parseStage(it.Stage); err != nil {
					return err
				}
			}
			d.Set(id, b.Build(), itemStage)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	details := make(map[item.ID]string)
	for _, out := range report.Outcomes {
		details[out.Item] = out.Summary()
	}
	for _, id := range report.Skipped {
		details[id] = "skipped"
	}
	var items []TraceItem
	seen := make(map[item.ID]bool)
	for _, id := range order {
		if !seen[id] {
			seen[id] = true
			items = append(items, h.traceItem(id, details[id]))
		}
	}
	result.addEvent("download", items, "")
	return nil
}

func (h *Harness) edit(ctx context.Context, e *EditStep, result *Result) error {
	var held []item.ID
	if e.Item != "" {
		id, err := h.lookup(e.Item)
		if err != nil {
			return err
		}
		held = append(held, id)
	}
	var typ, master item.ID
	if e.Type != "" {
		var ok bool
		if typ, ok = h.types[e.Type]; !ok {
			return fmt.Errorf("unknown type %q", e.Type)
		}
	}
	if e.Master != "" {
		var err error
		if master, err = h.lookup(e.Master); err != nil {
			return err
		}
		held = append(held, master)
	}

	sess, err := h.edits.Start(held...)
	if err != nil {
		return err
	}

	var target item.ID
	if e.Item != "" {
		target = held[0]
	}
	err = sess.Commit(ctx, func(w *edit.Writer) error {
		switch {
		case e.Create != "" && master != 0:
			target = w.CreateDependent(master, typ)
		case e.Create != "":
			target = w.Create(typ)
		}
		for _, attr := range sortedKeys(e.Set) {
			_, v, err := h.value(attr, e.Set[attr])
			if err != nil {
				return err
			}
			w.Set(target, item.AttrID(attr), v)
		}
		for _, attr := range e.Unset {
			w.Unset(target, item.AttrID(attr))
		}
		if e.Delete {
			w.Delete(target)
		}
		return nil
	})

	name := e.Item
	if e.Create != "" {
		name = e.Create
	}
	if e.Error != "" {
		got := store.ContractCode(err)
		if string(got) != e.Error {
			return fmt.Errorf("edit %s: expected %s, got %v", name, e.Error, err)
		}
		sess.Discard()
		result.addEvent("edit "+name, nil, e.Error)
		return nil
	}
	if err != nil {
		return err
	}
	if e.Create != "" {
		h.name(e.Create, target)
	}

	var parts []string
	if len(e.Set) > 0 {
		parts = append(parts, "set="+strings.Join(sortedKeys(e.Set), ","))
	}
	if len(e.Unset) > 0 {
		parts = append(parts, "unset="+strings.Join(e.Unset, ","))
	}
	if e.Delete {
		parts = append(parts, "deleted")
	}
	result.addEvent("edit "+name, []TraceItem{h.traceItem(target, strings.Join(parts, " "))}, "")
	return nil
}

var errRejected = errors.New("rejected by server")

func (h *Harness) upload(ctx context.Context, step *UploadStep, result *Result) error {
	rejected := make(map[item.ID]bool)
	for _, name := range step.Reject {
		id, err := h.lookup(name)
		if err != nil {
			return err
		}
		rejected[id] = true
	}

	report, err := h.drain.Upload(ctx, drain.SenderFunc(func(_ context.Context, r store.Reader, id item.ID) (item.AttributeMap, error) {
		if rejected[id] {
			return item.AttributeMap{}, errRejected
		}
		return version.Trunk(r, id).Map(), nil
	}))
	if err != nil {
		return err
	}

	var items []TraceItem
	for _, id := range report.Done {
		items = append(items, h.traceItem(id, "done"))
	}
	for id := range report.Failed {
		items = append(items, h.traceItem(id, "failed"))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	result.addEvent("upload", items, "")
	return nil
}

func (h *Harness) resolve(ctx context.Context, step *ResolveStep, result *Result) error {
	id, err := h.lookup(step.Item)
	if err != nil {
		return err
	}
	err = h.store.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		merge.AcceptServer(tx, id, attrIDs(step.AcceptServer)...)
		merge.KeepLocal(tx, id, attrIDs(step.KeepLocal)...)
		for _, attr := range sortedKeys(step.Choose) {
			_, v, err := h.value(attr, step.Choose[attr])
			if err != nil {
				return err
			}
			merge.ResolveConflict(tx, id, item.AttrID(attr), v)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var parts []string
	if len(step.AcceptServer) > 0 {
		parts = append(parts, "accept_server="+strings.Join(step.AcceptServer, ","))
	}
	if len(step.KeepLocal) > 0 {
		parts = append(parts, "keep_local="+strings.Join(step.KeepLocal, ","))
	}
	if len(step.Choose) > 0 {
		parts = append(parts, "choose="+strings.Join(sortedKeys(step.Choose), ","))
	}
	result.addEvent("resolve "+step.Item, []TraceItem{h.traceItem(id, strings.Join(parts, " "))}, "")
	return nil
}

func parseStage(s string) (version.Stage, error) {
	if s == "" {
		return version.NoStage, nil
	}
	return version.ParseStage(s)
}

func attrIDs(names []string) []item.AttrID {
	out := make([]item.AttrID, len(names))
	for i, n := range names {
		out[i] = item.AttrID(n)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
