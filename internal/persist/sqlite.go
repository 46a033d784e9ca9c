package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dialogd/internal/common/fsutil"
)

// SQLiteSink keeps named snapshots in a SQLite database.
type SQLiteSink struct {
	db   *sql.DB
	name string
}

// NewSQLiteSink opens (and initializes) the database at path.
func NewSQLiteSink(path, name string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("persist: sqlite sink needs a path")
	}
	if name == "" {
		name = DefaultName
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(filepath.Clean(p)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persist: ensure sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", p))
	if err != nil {
		return nil, fmt.Errorf("persist: open sqlite: %w", err)
	}
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db, name: name}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			saved_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("persist: create snapshots table: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		s.name, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("persist: save snapshot %q: %w", s.name, err)
	}
	return nil
}

func (s *SQLiteSink) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load snapshot %q: %w", s.name, err)
	}
	return data, nil
}

// SavedAt reports when the snapshot was last saved.
func (s *SQLiteSink) SavedAt(ctx context.Context) (time.Time, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshots WHERE name = ?`, s.name).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("persist: snapshot time %q: %w", s.name, err)
	}
	return time.Unix(ts, 0), nil
}

func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
