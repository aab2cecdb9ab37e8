package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/itemsync/internal/item"
)

// load rebuilds the snapshot from the SQLite tables.
func load(ctx context.Context, db *sql.DB, reg *item.Registry) (*Snapshot, error) {
	records, err := loadItems(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := loadValues(ctx, db, records); err != nil {
		return nil, err
	}
	idents, err := loadIdentities(ctx, db)
	if err != nil {
		return nil, err
	}

	lastID, err := readMeta(ctx, db, metaLastID)
	if err != nil {
		return nil, err
	}
	icn, err := readMeta(ctx, db, metaICN)
	if err != nil {
		return nil, err
	}

	return emptySnapshot(reg).apply(icn, records, idents, item.ID(lastID)), nil
}

func loadItems(ctx context.Context, db *sql.DB) (map[item.ID]*record, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, removed FROM items ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	records := make(map[item.ID]*record)
	for rows.Next() {
		var id int64
		var removed int
		if err := rows.Scan(&id, &removed); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		r := newRecord()
		r.removed = removed != 0
		records[item.ID(id)] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return records, nil
}

func loadValues(ctx context.Context, db *sql.DB, records map[item.ID]*record) error {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id, attribute, slot, value
		FROM item_values
		ORDER BY item_id ASC, slot ASC, attribute COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			attr  string
			slot  int
			value string
		)
		if err := rows.Scan(&id, &attr, &slot, &value); err != nil {
			return fmt.Errorf("scan value: %w", err)
		}
		if slot < int(Trunk) || slot > int(Conflict) {
			return fmt.Errorf("item %d attribute %s: invalid slot %d", id, attr, slot)
		}
		r, ok := records[item.ID(id)]
		if !ok {
			return fmt.Errorf("value for unknown item %d", id)
		}
		v, err := item.UnmarshalCanonical([]byte(value))
		if err != nil {
			return fmt.Errorf("item %d attribute %s: %w", id, attr, err)
		}
		if r.slots[slot] == nil {
			r.slots[slot] = make(map[item.AttrID]item.Value)
		}
		r.slots[slot][item.AttrID(attr)] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate values: %w", err)
	}
	return nil
}

func loadIdentities(ctx context.Context, db *sql.DB) (map[string]item.ID, error) {
	rows, err := db.QueryContext(ctx, `SELECT identity, item_id FROM identities`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	idents := make(map[string]item.ID)
	for rows.Next() {
		var identity string
		var id int64
		if err := rows.Scan(&identity, &id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		idents[identity] = item.ID(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return idents, nil
}

func readMeta(ctx context.Context, db *sql.DB, key string) (int64, error) {
	var value int64
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// SelectIDs runs a read-only query against the persisted tables and returns
// the item ids in the first column of every row. The tables hold exactly the
// state of the current snapshot: commits are persisted before they are
// published.
func (s *Store) SelectIDs(ctx context.Context, query string, args ...any) ([]item.ID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer rows.Close()

	var ids []item.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("select ids: scan: %w", err)
		}
		ids = append(ids, item.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	return ids, nil
}
