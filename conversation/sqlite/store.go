// Package sqlite provides a SQLite-backed implementation of
// conversation.Store for deployments that need conversation state to
// survive a process restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stockbuddy/orchestrator/conversation"
	"github.com/stockbuddy/orchestrator/ident"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Store implements conversation.Store over a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("conversation/sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation/sqlite: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create implements conversation.Store.
func (s *Store) Create(ctx context.Context, c conversation.Conversation) error {
	if c.Status == "" {
		c.Status = conversation.StatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, agent_name, title, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.AgentName, c.Title, c.Status, c.CreatedAt,
	)
	if isUniqueConstraintErr(err) {
		return conversation.ErrAlreadyExists
	}
	return err
}

// Load implements conversation.Store.
func (s *Store) Load(ctx context.Context, id ident.ConversationID) (conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_name, title, status, created_at FROM conversations WHERE id = ?`, id,
	)
	var c conversation.Conversation
	var createdAt time.Time
	if err := row.Scan(&c.ID, &c.UserID, &c.AgentName, &c.Title, &c.Status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return conversation.Conversation{}, conversation.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	c.CreatedAt = createdAt
	return c, nil
}

// SetStatus implements conversation.Store.
func (s *Store) SetStatus(ctx context.Context, id ident.ConversationID, status conversation.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetTitleOnce implements conversation.Store.
func (s *Store) SetTitleOnce(ctx context.Context, id ident.ConversationID, title string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM conversations WHERE id = ?`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return "", conversation.ErrNotFound
		}
		return "", err
	}

	if current == "" && title != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id); err != nil {
			return "", err
		}
		current = title
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return current, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
