// Package manifest persists per-file indexing state so that unchanged
// files are never re-embedded across restarts.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Entry is the persisted record for one source file.
type Entry struct {
	Path          string
	Size          int64
	ModTimeUnix   int64
	Fingerprint   string
	State         string
	LastError     string
	Retryable     bool
	LastIndexedAt time.Time
}

// Manifest is a SQLite-backed table of file entries.
type Manifest struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// New opens (or creates) a manifest database at path. An empty path
// creates an in-memory manifest for testing.
func New(path string) (*Manifest, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open manifest database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	m := &Manifest{db: db}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize manifest schema: %w", err)
	}

	return m, nil
}

func (m *Manifest) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path            TEXT PRIMARY KEY,
		size            INTEGER NOT NULL,
		mtime           INTEGER NOT NULL,
		fingerprint     TEXT NOT NULL,
		state           TEXT NOT NULL,
		last_error      TEXT NOT NULL DEFAULT '',
		retryable       INTEGER NOT NULL DEFAULT 0,
		last_indexed_at INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Upsert inserts or replaces the entry for e.Path.
func (m *Manifest) Upsert(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("manifest is closed")
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO files (path, size, mtime, fingerprint, state, last_error, retryable, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			fingerprint = excluded.fingerprint,
			state = excluded.state,
			last_error = excluded.last_error,
			retryable = excluded.retryable,
			last_indexed_at = excluded.last_indexed_at`,
		e.Path, e.Size, e.ModTimeUnix, e.Fingerprint, e.State, e.LastError,
		e.Retryable, e.LastIndexedAt.Unix())
	if err != nil {
		return qerrors.New(qerrors.ErrCodeStoreWrite, "upsert manifest entry", err)
	}
	return nil
}

// Get returns the entry for path. Unknown paths return a NotFound error.
func (m *Manifest) Get(ctx context.Context, path string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Entry{}, fmt.Errorf("manifest is closed")
	}

	row := m.db.QueryRowContext(ctx, `
		SELECT path, size, mtime, fingerprint, state, last_error, retryable, last_indexed_at
		FROM files WHERE path = ?`, path)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, qerrors.NotFoundError(fmt.Sprintf("manifest entry not found: %s", path))
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get manifest entry: %w", err)
	}
	return e, nil
}

// All returns every entry ordered by path.
func (m *Manifest) All(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("manifest is closed")
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT path, size, mtime, fingerprint, state, last_error, retryable, last_indexed_at
		FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest entries: %w", err)
	}
	return entries, nil
}

// Delete removes the entry for path. Unknown paths are a no-op.
func (m *Manifest) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("manifest is closed")
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return qerrors.New(qerrors.ErrCodeStoreWrite, "delete manifest entry", err)
	}
	return nil
}

// SetState updates the state and last error for an existing entry.
func (m *Manifest) SetState(ctx context.Context, path, state, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("manifest is closed")
	}

	res, err := m.db.ExecContext(ctx,
		`UPDATE files SET state = ?, last_error = ? WHERE path = ?`,
		state, reason, path)
	if err != nil {
		return qerrors.New(qerrors.ErrCodeStoreWrite, "set manifest state", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set manifest state: %w", err)
	}
	if affected == 0 {
		return qerrors.NotFoundError(fmt.Sprintf("manifest entry not found: %s", path))
	}
	return nil
}

// Close closes the underlying database.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var e Entry
	var lastIndexed int64
	if err := scan(&e.Path, &e.Size, &e.ModTimeUnix, &e.Fingerprint,
		&e.State, &e.LastError, &e.Retryable, &lastIndexed); err != nil {
		return Entry{}, err
	}
	if lastIndexed > 0 {
		e.LastIndexedAt = time.Unix(lastIndexed, 0).UTC()
	}
	return e, nil
}
