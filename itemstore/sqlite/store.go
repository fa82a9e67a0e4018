// Package sqlite provides a SQLite-backed implementation of
// itemstore.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/itemstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	thread_id TEXT NOT NULL DEFAULT '',
	item_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	component_type TEXT NOT NULL DEFAULT '',
	content BLOB NOT NULL,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_conversation ON items (conversation_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_upsert_key ON items (conversation_id, item_id)
	WHERE item_id <> '';
`

// Store implements itemstore.Store over a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("itemstore/sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("itemstore/sqlite: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements itemstore.Store.
func (s *Store) Append(ctx context.Context, item *itemstore.Item) error {
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (conversation_id, thread_id, item_id, kind, component_type, content, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ConversationID, item.ThreadID, item.ItemID, item.Kind, item.ComponentType, []byte(item.Content), item.Timestamp,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = strconv.FormatInt(id, 10)
	return nil
}

// Upsert implements itemstore.Store.
func (s *Store) Upsert(ctx context.Context, item *itemstore.Item) error {
	if item.ItemID == "" {
		return fmt.Errorf("itemstore/sqlite: item_id is required for upsert")
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT seq FROM items WHERE conversation_id = ? AND item_id = ?`,
		item.ConversationID, item.ItemID,
	).Scan(&existingSeq)

	switch err {
	case sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items (conversation_id, thread_id, item_id, kind, component_type, content, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ConversationID, item.ThreadID, item.ItemID, item.Kind, item.ComponentType, []byte(item.Content), item.Timestamp,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = strconv.FormatInt(id, 10)
	case nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET content = ?, timestamp = ?, kind = ?, component_type = ? WHERE seq = ?`,
			[]byte(item.Content), item.Timestamp, item.Kind, item.ComponentType, existingSeq,
		); err != nil {
			return err
		}
		item.ID = strconv.FormatInt(existingSeq, 10)
	default:
		return err
	}

	return tx.Commit()
}

// List implements itemstore.Store.
func (s *Store) List(ctx context.Context, conversationID ident.ConversationID, cursor string, limit int) (itemstore.Page, error) {
	if limit <= 0 {
		return itemstore.Page{}, fmt.Errorf("itemstore/sqlite: limit must be > 0")
	}

	var after int64
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return itemstore.Page{}, fmt.Errorf("itemstore/sqlite: invalid cursor %q: %w", cursor, err)
		}
		after = v
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, conversation_id, thread_id, item_id, kind, component_type, content, timestamp
		 FROM items WHERE conversation_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		conversationID, after, limit+1,
	)
	if err != nil {
		return itemstore.Page{}, err
	}
	defer rows.Close()

	var items []itemstore.Item
	for rows.Next() {
		var it itemstore.Item
		var seq int64
		var content []byte
		if err := rows.Scan(&seq, &it.ConversationID, &it.ThreadID, &it.ItemID, &it.Kind, &it.ComponentType, &content, &it.Timestamp); err != nil {
			return itemstore.Page{}, err
		}
		it.ID = strconv.FormatInt(seq, 10)
		it.Content = content
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return itemstore.Page{}, err
	}

	var next string
	if len(items) > limit {
		next = items[limit-1].ID
		items = items[:limit]
	}
	return itemstore.Page{Items: items, NextCursor: next}, nil
}

// FindByComponentType implements itemstore.Store.
func (s *Store) FindByComponentType(ctx context.Context, conversationID ident.ConversationID, componentType string) ([]itemstore.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, conversation_id, thread_id, item_id, kind, component_type, content, timestamp
		 FROM items WHERE conversation_id = ? AND component_type = ? ORDER BY seq ASC`,
		conversationID, componentType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []itemstore.Item
	for rows.Next() {
		var it itemstore.Item
		var seq int64
		var content []byte
		if err := rows.Scan(&seq, &it.ConversationID, &it.ThreadID, &it.ItemID, &it.Kind, &it.ComponentType, &content, &it.Timestamp); err != nil {
			return nil, err
		}
		it.ID = strconv.FormatInt(seq, 10)
		it.Content = content
		items = append(items, it)
	}
	return items, rows.Err()
}
