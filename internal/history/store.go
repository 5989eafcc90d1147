package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tickwork/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);
`

// Store is a SQLite-backed Recorder. Record is fire-and-forget: write
// failures are logged, never surfaced to the dispatcher.
type Store struct {
	db  *sql.DB
	log logx.Logger
	max int

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open opens (or creates) the run log at path, keeping at most max rows.
func Open(path string, max int, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}

	if max <= 0 {
		max = 10000
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{db: db, log: log, max: max, pruneEvery: 500}, nil
}

func (s *Store) Record(item Item) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.Exec(
		`INSERT INTO run_history (job_id, name, started_at, duration_ms, error) VALUES (?, ?, ?, ?, ?)`,
		item.JobID.String(), item.Name, item.Started.UnixMilli(), item.Duration.Milliseconds(), item.Error,
	)
	if err != nil {
		s.log.Warn("run history write failed", logx.Err(err), logx.String("job", item.Name))
		return
	}
	if s.opCount.Add(1)%s.pruneEvery == 0 {
		s.prune()
	}
}

func (s *Store) prune() {
	_, err := s.db.Exec(
		`DELETE FROM run_history WHERE id NOT IN (SELECT id FROM run_history ORDER BY id DESC LIMIT ?)`,
		s.max,
	)
	if err != nil {
		s.log.Warn("run history prune failed", logx.Err(err))
	}
}

// Recent returns up to n items, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Item, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, name, started_at, duration_ms, error FROM run_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			rawID   string
			item    Item
			started int64
			durMS   int64
		)
		if err := rows.Scan(&rawID, &item.Name, &started, &durMS, &item.Error); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("corrupt job id %q: %w", rawID, err)
		}
		item.JobID = id
		item.Started = time.UnixMilli(started)
		item.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
