// Package store is the persistence adapter: a single embedded SQLite
// database holding session rows and application settings. It mirrors the
// schema and upsert idiom of the original implementation's db.py, and
// follows the sibling uvm-api subproject's precedent of reaching for
// database/sql plus github.com/mattn/go-sqlite3 rather than a JSON
// state file.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	cwd TEXT NOT NULL,
	shell TEXT NOT NULL,
	pid INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_activity_at INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	rows INTEGER NOT NULL,
	scrollback TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SessionRow is the persisted shape of a Session: every field of the core
// entity except the live pty_handle, pump_task, and subscribers.
type SessionRow struct {
	ID             string
	Cwd            string
	Shell          string
	Pid            int
	Status         string
	CreatedAt      int64
	LastActivityAt int64
	Cols           uint16
	Rows           uint16
	Scrollback     string
}

// Store is the concurrency-safe persistence adapter. Every operation is
// serialized behind mu, matching the "process-wide mutex at the adapter
// level" discipline spec.md §4.2 requires; the db.py original took the
// same approach with a threading.Lock around every statement.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if needed) the parent directory and database file at path,
// applies the schema, and returns a ready Store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSession writes row, inserting or replacing all fields except
// created_at, which is immutable once a row exists — mirroring db.py's
// upsert_session, whose ON CONFLICT clause never touches created_at.
func (s *Store) UpsertSession(row SessionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, cwd, shell, pid, status, created_at, last_activity_at, cols, rows, scrollback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cwd = excluded.cwd,
			shell = excluded.shell,
			pid = excluded.pid,
			status = excluded.status,
			last_activity_at = excluded.last_activity_at,
			cols = excluded.cols,
			rows = excluded.rows,
			scrollback = excluded.scrollback
	`, row.ID, row.Cwd, row.Shell, row.Pid, row.Status, row.CreatedAt, row.LastActivityAt, row.Cols, row.Rows, row.Scrollback)
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", row.ID, err)
	}
	return nil
}

// ListSessions returns every persisted row, newest created_at first.
func (s *Store) ListSessions() ([]SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, cwd, shell, pid, status, created_at, last_activity_at, cols, rows, scrollback FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.Cwd, &r.Shell, &r.Pid, &r.Status, &r.CreatedAt, &r.LastActivityAt, &r.Cols, &r.Rows, &r.Scrollback); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession fetches one row by id. ok is false if no such row exists.
func (s *Store) GetSession(id string) (row SessionRow, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.db.QueryRow(`SELECT id, cwd, shell, pid, status, created_at, last_activity_at, cols, rows, scrollback FROM sessions WHERE id = ?`, id)
	var out SessionRow
	if err := r.Scan(&out.ID, &out.Cwd, &out.Shell, &out.Pid, &out.Status, &out.CreatedAt, &out.LastActivityAt, &out.Cols, &out.Rows, &out.Scrollback); err != nil {
		if err == sql.ErrNoRows {
			return SessionRow{}, false, nil
		}
		return SessionRow{}, false, fmt.Errorf("store: get session %s: %w", id, err)
	}
	return out, true, nil
}

// MarkRunningStale rewrites every row persisted as "running" to "stale".
// Called once at startup, before the session manager's RestartRecovery
// repopulates the live map from ListSessions — grounded on the original's mark_db_sessions_stale_on_start.
func (s *Store) MarkRunningStale() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE sessions SET status = 'stale' WHERE status = 'running'`)
	if err != nil {
		return fmt.Errorf("store: mark running sessions stale: %w", err)
	}
	return nil
}

// SetSetting stores value (JSON-encoded) under key, matching db.py's
// set_setting upsert.
func (s *Store) SetSetting(key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode setting %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(encoded), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings returns every stored setting, JSON-decoded into raw
// interface{} values, keyed by name.
func (s *Store) GetAllSettings() (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("store: get all settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]interface{})
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("store: scan setting row: %w", err)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("store: ignoring unparsable setting")
			continue
		}
		out[key] = v
	}
	return out, rows.Err()
}
