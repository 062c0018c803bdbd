package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

const draftsSchemaSQL = `
CREATE TABLE IF NOT EXISTS drafts (
	key      TEXT PRIMARY KEY,
	payload  BLOB NOT NULL,
	revision TEXT NOT NULL DEFAULT '',
	saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite stores drafts in a single table.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(draftsSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (*models.Draft, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var (
		d       = models.Draft{Key: key}
		payload []byte
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload, revision, saved_at FROM drafts WHERE key = ?`, key,
	).Scan(&payload, &d.Revision, &d.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: draft %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	d.Payload = payload
	return &d, nil
}

func (s *SQLite) Set(ctx context.Context, d models.Draft) error {
	if err := ValidateKey(d.Key); err != nil {
		return err
	}
	savedAt := d.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO drafts (key, payload, revision, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload  = excluded.payload,
			revision = excluded.revision,
			saved_at = excluded.saved_at
	`, d.Key, []byte(d.Payload), d.Revision, savedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", d.Key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]models.DraftMetadata, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, revision, length(payload), saved_at FROM drafts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	out := []models.DraftMetadata{}
	for rows.Next() {
		var m models.DraftMetadata
		if err := rows.Scan(&m.Key, &m.Revision, &m.Size, &m.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
