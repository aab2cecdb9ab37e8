package drain

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Upload lock states stored in sys:upload.
const (
	UploadNone   item.Int = 0
	UploadLocked item.Int = 1
	UploadDone   item.Int = 2
)

// Sender sends one item to the server and returns the values the server
// accepted. r is the snapshot the item was locked in.
type Sender interface {
	Upload(ctx context.Context, r store.Reader, id item.ID) (item.AttributeMap, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, r store.Reader, id item.ID) (item.AttributeMap, error)

// Upload calls f.
func (f SenderFunc) Upload(ctx context.Context, r store.Reader, id item.ID) (item.AttributeMap, error) {
	return f(ctx, r, id)
}

// UploadReport summarizes an upload.
type UploadReport struct {
	Done   []item.ID
	Failed map[item.ID]error
}

// Pending lists the items with local changes to upload that are not locked.
func Pending(r store.Reader) ([]item.ID, error) {
	ids, err := predicate.Evaluate(version.StateIs(version.New, version.Edited), r)
	if err != nil {
		return nil, fmt.Errorf("pending uploads: %w", err)
	}
	out := make([]item.ID, 0, len(ids))
	for _, id := range ids {
		if uploadState(r, id) != UploadLocked {
			out = append(out, id)
		}
	}
	return out, nil
}

func uploadState(r store.Reader, id item.ID) item.Int {
	v, ok := r.Value(id, item.UploadAttr.ID)
	if !ok {
		return UploadNone
	}
	s, _ := v.(item.Int)
	return s
}

// Lock settles and locks ids for upload. Settling runs the item's strategy
// against its base so edits the strategy discards never leave the store.
// Conflicted items and items left with nothing to upload are not locked. Returns the locked items.
func (r *Runner) Lock(ctx context.Context, ids ...item.ID) ([]item.ID, error) {
	var locked []item.ID
	err := r.store.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		locked = locked[:0]
		for _, id := range ids {
			if !tx.Exists(id) || tx.HasSlot(id, store.Conflict) {
				continue
			}
			if _, err := merge.Settle(tx, id, strategyFor(r.strategies, tx, id)); err != nil {
				return err
			}
			if !version.IsNew(tx, id) && !tx.HasSlot(id, store.Base) {
				continue
			}
			tx.Set(id, item.UploadAttr.ID, UploadLocked)
			locked = append(locked, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lock upload: %w", err)
	}
	return locked, nil
}

// Done records that the server accepted uploaded for id. The item is locked
// first if it was not. A removal is finalized by clearing the item;
// otherwise the item is no longer new and uploaded becomes its base, so only
// edits made since the lock stay pending.
func (r *Runner) Done(ctx context.Context, id item.ID, uploaded item.AttributeMap) error {
	err := r.store.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		if !tx.Exists(id) {
			return nil
		}
		if uploadState(tx, id) != UploadLocked {
			tx.Set(id, item.UploadAttr.ID, UploadLocked)
		}
		if removed, ok := tx.Value(id, item.RemovedAttr.ID); ok && item.Equal(removed, item.Bool(true)) {
			tx.Clear(id)
			return nil
		}

		wasNew := version.IsNew(tx, id)
		tx.Unset(id, item.NewAttr.ID)
		for _, a := range uploaded.Attributes() {
			v, _ := uploaded.Get(a.ID)
			switch {
			case a.ID.Namespace() == string(item.Sys):
				// bookkeeping stays local
			case !a.Shadowable:
				tx.Set(id, a.ID, v)
			case tx.HasSlot(id, store.Base) && !wasNew:
				tx.SetAt(id, store.Base, a.ID, v)
			}
		}
		version.DropBaseIfClean(tx, id)
		tx.Set(id, item.UploadAttr.ID, UploadDone)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upload done %d: %w", id, err)
	}
	return nil
}

// Failed unlocks id so a later upload retries it.
func (r *Runner) Failed(ctx context.Context, id item.ID) error {
	err := r.store.Write(ctx, store.Foreground, func(tx *store.Tx) error {
		if tx.Exists(id) && uploadState(tx, id) == UploadLocked {
			tx.Unset(id, item.UploadAttr.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upload failed %d: %w", id, err)
	}
	return nil
}

// Upload locks every pending item and sends them through sender, at most
// the configured parallelism at a time. A failed send unlocks its item and
// is reported; it does not stop the others. Store errors abort the upload.
func (r *Runner) Upload(ctx context.Context, sender Sender) (*UploadReport, error) {
	pending, err := Pending(r.store.Snapshot())
	if err != nil {
		return nil, err
	}
	locked, err := r.Lock(ctx, pending...)
	if err != nil {
		return nil, err
	}
	snap := r.store.Snapshot()

	results := make([]error, len(locked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, id := range locked {
		i, id := i, id
		g.Go(func() error {
			uploaded, err := sender.Upload(gctx, snap, id)
			if err != nil {
				results[i] = err
				r.logger.Warn("upload failed", "item", id, "error", err)
				return r.Failed(context.WithoutCancel(gctx), id)
			}
			return r.Done(context.WithoutCancel(gctx), id, uploaded)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	report := &UploadReport{Failed: make(map[item.ID]error)}
	for i, id := range locked {
		if results[i] != nil {
			report.Failed[id] = results[i]
			continue
		}
		report.Done = append(report.Done, id)
	}
	r.logger.Info("upload finished", "done", len(report.Done), "failed", len(report.Failed))
	return report, nil
}
