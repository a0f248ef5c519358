package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists history in a SQLite table ordered by ULID.
type SQLiteStore struct {
	mu    sync.RWMutex
	db    *sql.DB
	limit int
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string, limit int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history: sqlite path is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(5000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, limit: limit}
	const schema = `
	CREATE TABLE IF NOT EXISTS scan_history (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		formats TEXT NOT NULL DEFAULT '',
		scanned_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Add(ctx context.Context, e Entry) (Entry, error) {
	e, err := prepare(e)
	if err != nil {
		return e, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return e, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_history (id, text, formats, scanned_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Text, joinFormats(e.Formats), e.ScannedAt.UnixMilli(),
	); err != nil {
		return e, fmt.Errorf("history: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM scan_history WHERE id NOT IN (
			SELECT id FROM scan_history ORDER BY id DESC LIMIT ?
		)`, s.limit,
	); err != nil {
		return e, fmt.Errorf("history: trim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return e, fmt.Errorf("history: commit: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, formats, scanned_at FROM scan_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			formats string
			millis  int64
		)
		if err := rows.Scan(&e.ID, &e.Text, &formats, &millis); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		e.Formats = splitFormats(formats)
		e.ScannedAt = time.UnixMilli(millis)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scan_history`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
