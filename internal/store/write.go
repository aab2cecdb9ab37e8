package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/itemsync/internal/item"
)

// Keys of the meta table.
const (
	metaLastID = "last_id"
	metaICN    = "icn"
)

// persist flushes the records changed by tx to SQLite in a single SQL
// transaction. Either every row of the commit is written or none is.
//
// Each changed item is rewritten whole: its value rows are deleted and
// re-inserted from the staged record. Values use the canonical encoding.
func (s *Store) persist(ctx context.Context, icn int64, tx *Tx) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	for _, id := range sortedIDs(tx.dirty) {
		if err := writeRecord(ctx, sqlTx, id, tx.dirty[id]); err != nil {
			return fmt.Errorf("persist: item %d: %w", id, err)
		}
	}

	for identity, id := range tx.idents {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO identities (identity, item_id) VALUES (?, ?)
			ON CONFLICT(identity) DO NOTHING
		`, identity, int64(id)); err != nil {
			return fmt.Errorf("persist: identity %q: %w", identity, err)
		}
	}

	if err := writeMeta(ctx, sqlTx, metaLastID, int64(tx.lastID)); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := writeMeta(ctx, sqlTx, metaICN, icn); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("persist: commit: %w", err)
	}
	return nil
}

func writeRecord(ctx context.Context, sqlTx *sql.Tx, id item.ID, r *record) error {
	removed := 0
	if r.removed {
		removed = 1
	}
	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO items (id, removed) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET removed = excluded.removed
	`, int64(id), removed); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM item_values WHERE item_id = ?`, int64(id)); err != nil {
		return fmt.Errorf("delete values: %w", err)
	}

	for slot := Trunk; slot <= Conflict; slot++ {
		for _, attr := range r.attrs(slot) {
			data, err := item.MarshalCanonical(r.slots[slot][attr])
			if err != nil {
				return fmt.Errorf("encode %s[%s]: %w", attr, slot, err)
			}
			if _, err := sqlTx.ExecContext(ctx, `
				INSERT INTO item_values (item_id, attribute, slot, value)
				VALUES (?, ?, ?, ?)
			`, int64(id), string(attr), int(slot), string(data)); err != nil {
				return fmt.Errorf("insert %s[%s]: %w", attr, slot, err)
			}
		}
	}
	return nil
}

func writeMeta(ctx context.Context, sqlTx *sql.Tx, key string, value int64) error {
	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value); err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
