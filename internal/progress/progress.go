// Package progress persists which submissions were fully exported, so an
// interrupted crawl can resume without re-hydrating finished posts. The
// checkpoint is owned by the output side of a run: the in-memory dedup
// registry stays authoritative within a run, the checkpoint only seeds
// skips across runs.
package progress

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the checkpoint interface consumed by the crawler.
type Store interface {
	IsDone(id string) (bool, error)
	MarkDone(id string) error
	Close() error
}

// SQLiteStore implements Store on a single-table sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the checkpoint database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS done (
			id TEXT PRIMARY KEY,
			completed_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to initialize checkpoint db: %w", err)
	}
	return nil
}

// IsDone reports whether id was exported by a previous (or this) run.
func (s *SQLiteStore) IsDone(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM done WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return true, nil
}

// MarkDone records id. Idempotent.
func (s *SQLiteStore) MarkDone(id string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO done (id, completed_at) VALUES (?, ?)`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark checkpoint: %w", err)
	}
	return nil
}

// Count returns how many submissions are checkpointed.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM done`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
