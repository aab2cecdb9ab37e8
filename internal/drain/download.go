package drain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Procedure fetches server data. Download runs inside the write and must
// only fill d.
type Procedure interface {
	Download(ctx context.Context, d *Download) error
}

// ProcedureFunc adapts a function to Procedure.
type ProcedureFunc func(ctx context.Context, d *Download) error

// Download calls f.
func (f ProcedureFunc) Download(ctx context.Context, d *Download) error { return f(ctx, d) }

// update is the server data gathered for one item.
type update struct {
	values map[item.AttrID]item.Value
	attrs  map[item.AttrID]item.Attribute
	stage  version.Stage
}

func (u *update) payload() item.AttributeMap {
	b := item.NewMapBuilder()
	for id, a := range u.attrs {
		b.Set(a, u.values[id])
	}
	return b.Build()
}

// Download collects server data for one drain.
type Download struct {
	tx      *store.Tx
	updates map[item.ID]*update
	order   []item.ID
}

func newDownload(tx *store.Tx) *Download {
	return &Download{tx: tx, updates: make(map[item.ID]*update)}
}

// Reader reads the store as of this download.
func (d *Download) Reader() store.Reader { return d.tx }

// Item returns the item with the given server identity, creating it on
// first use.
func (d *Download) Item(identity string) item.ID {
	return d.tx.Materialize(identity)
}

// Set records server values for id. Repeated calls accumulate: later values
// win and stages combine to the highest.
func (d *Download) Set(id item.ID, values item.AttributeMap, stage version.Stage) {
	u, ok := d.updates[id]
	if !ok {
		u = &update{
			values: make(map[item.AttrID]item.Value),
			attrs:  make(map[item.AttrID]item.Attribute),
		}
		d.updates[id] = u
		d.order = append(d.order, id)
	}
	for _, a := range values.Attributes() {
		v, _ := values.Get(a.ID)
		u.values[a.ID] = v
		u.attrs[a.ID] = a
	}
	u.stage = version.MergeStages(u.stage, stage)
}

// Report summarizes a download.
type Report struct {
	ICN      int64
	Outcomes []*merge.Outcome
	// Skipped lists items without any download stage. Skipped items that
	// the download itself created are dropped again.
	Skipped []item.ID
}

// Runner runs downloads and uploads against one store.
type Runner struct {
	store      *store.Store
	strategies Strategies
	logger     *slog.Logger
	parallel   int
}

// Option configures a Runner.
type Option func(*Runner)

// WithStrategies sets the per-item merge strategies. Default: merge.None.
func WithStrategies(s Strategies) Option {
	return func(r *Runner) {
		r.strategies = s
	}
}

// WithLogger sets the logger. Default: the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithParallelism bounds concurrent uploads. Default: 4.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// NewRunner creates a Runner for s.
func NewRunner(s *store.Store, opts ...Option) *Runner {
	r := &Runner{store: s, logger: s.Logger(), parallel: 4}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one download: a background write in which proc fills a
// Download and every touched item is merged. Either all merged items commit
// or, on error, none do.
func (r *Runner) Run(ctx context.Context, proc Procedure) (*Report, error) {
	report := &Report{}
	p := r.store.Enqueue(ctx, store.Background, func(tx *store.Tx) error {
		report.Outcomes, report.Skipped = nil, nil

		d := newDownload(tx)
		if err := proc.Download(tx.Context(), d); err != nil {
			return fmt.Errorf("download: %w", err)
		}
		for _, id := range d.order {
			if err := tx.Check(); err != nil {
				return err
			}
			u := d.updates[id]
			if !tx.Exists(id) {
				r.logger.Warn("download for a cleared item ignored", "item", id)
				continue
			}
			if u.stage == version.NoStage && version.StageOf(tx, id) == version.NoStage {
				r.logger.Error("missing download stage, item skipped", "item", id)
				report.Skipped = append(report.Skipped, id)
				// An item made by this download for nothing is not kept.
				tx.Drop(id)
				continue
			}
			out, err := merge.Apply(tx, id, u.payload(), strategyFor(r.strategies, tx, id))
			if err != nil {
				return err
			}
			version.SetStage(tx, id, u.stage)
			report.Outcomes = append(report.Outcomes, out)
		}
		return nil
	})
	<-p.Done()
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("run download: %w", err)
	}

	report.ICN = p.ICN()
	for _, out := range report.Outcomes {
		out.Record(r.store.Metrics())
	}
	r.logger.Info("download merged",
		"icn", report.ICN,
		"items", len(report.Outcomes),
		"skipped", len(report.Skipped),
	)
	return report, nil
}
