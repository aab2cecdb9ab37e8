package edit

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
	"github.com/roach88/itemsync/internal/version"
)

// Writer is the edit view of a commit. Only items held by the session, or
// created through the Writer, can be changed.
type Writer struct {
	tx      *store.Tx
	session *Session
	created []item.ID
}

// Reader exposes the transaction for reads, including the writer's own
// uncommitted changes.
func (w *Writer) Reader() store.Reader { return w.tx }

// Set writes a user value.
func (w *Writer) Set(id item.ID, attr item.AttrID, v item.Value) {
	w.check(id, attr)
	version.LocalEdit(w.tx, id, attr, v)
}

// Unset removes a user value.
func (w *Writer) Unset(id item.ID, attr item.AttrID) {
	w.check(id, attr)
	version.LocalEdit(w.tx, id, attr, nil)
}

// Create adds a local item of the given type (0 for none). The item is NEW
// until an upload confirms it.
func (w *Writer) Create(typ item.ID) item.ID {
	id := w.tx.NextItem()
	w.tx.Set(id, item.NewAttr.ID, item.Bool(true))
	if typ != 0 {
		w.tx.Set(id, item.TypeAttr.ID, item.Long(typ))
	}
	w.created = append(w.created, id)
	return id
}

// CreateDependent adds a local item owned by master.
func (w *Writer) CreateDependent(master, typ item.ID) item.ID {
	w.check(master, item.MasterAttr.ID)
	id := w.Create(typ)
	w.tx.Set(id, item.MasterAttr.ID, item.Long(master))
	return id
}

// Delete removes id. A NEW item never reached the server and is cleared at
// once; a synced item is marked sys:removed with its base kept until the
// removal is uploaded.
func (w *Writer) Delete(id item.ID) {
	w.check(id, "")
	if version.IsNew(w.tx, id) {
		w.tx.Clear(id)
		return
	}
	version.CaptureBase(w.tx, id)
	w.tx.Set(id, item.RemovedAttr.ID, item.Bool(true))
}

// Created lists the items created so far.
func (w *Writer) Created() []item.ID { return w.created }

func (w *Writer) check(id item.ID, attr item.AttrID) {
	for _, c := range w.created {
		if c == id {
			return
		}
	}
	if !w.session.Holds(id) {
		store.Violate(store.ErrCodeNotEditable, id, attr, "item is not held by session %s", w.session.id)
	}
}
