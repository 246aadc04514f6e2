// Package highlight stores user-captured text snippets. Highlights are
// append-only: the indexer never writes to this table, and entries are
// only removed by explicit delete requests.
package highlight

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Embedder is the subset of the embedding provider the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Highlight is one captured snippet.
type Highlight struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SourceLabel string    `json:"source_label,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Note        string    `json:"note,omitempty"`
	Priority    bool      `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	Vector      []float32 `json:"-"`
}

// Store is a SQLite-backed highlight store.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	embedder Embedder
	closed   bool
}

// New opens (or creates) a highlight store at path. An empty path
// creates an in-memory store for testing. The embedder is used to embed
// highlight text at capture time.
func New(path string, embedder Embedder) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open highlight database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

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

	s := &Store{db: db, embedder: embedder}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize highlight schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS highlights (
		id           TEXT PRIMARY KEY,
		text         TEXT NOT NULL,
		source_label TEXT NOT NULL DEFAULT '',
		tags         TEXT NOT NULL DEFAULT '[]',
		note         TEXT NOT NULL DEFAULT '',
		priority     INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL,
		vector       BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save captures a highlight. The text is embedded once at capture time
// and the vector stored alongside the row in a single insert.
func (s *Store) Save(ctx context.Context, text, sourceLabel string, tags []string, note string, priority bool) (Highlight, error) {
	if strings.TrimSpace(text) == "" {
		return Highlight{}, qerrors.New(qerrors.ErrCodeInvalidInput,
			"highlight text must not be empty", nil)
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Highlight{}, fmt.Errorf("embed highlight: %w", err)
	}

	h := Highlight{
		ID:          uuid.NewString(),
		Text:        text,
		SourceLabel: sourceLabel,
		Tags:        tags,
		Note:        note,
		Priority:    priority,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Vector:      vector,
	}

	tagsJSON, err := json.Marshal(h.Tags)
	if err != nil {
		return Highlight{}, fmt.Errorf("marshal tags: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Highlight{}, fmt.Errorf("highlight store is closed")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO highlights (id, text, source_label, tags, note, priority, created_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Text, h.SourceLabel, string(tagsJSON), h.Note, h.Priority,
		h.CreatedAt.Unix(), encodeVector(h.Vector))
	if err != nil {
		return Highlight{}, qerrors.New(qerrors.ErrCodeStoreWrite, "insert highlight", err)
	}

	return h, nil
}

// List returns all highlights, newest first.
func (s *Store) List(ctx context.Context) ([]Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("highlight store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source_label, tags, note, priority, created_at, vector
		FROM highlights ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()

	var highlights []Highlight
	for rows.Next() {
		var h Highlight
		var tagsJSON string
		var createdAt int64
		var blob []byte
		if err := rows.Scan(&h.ID, &h.Text, &h.SourceLabel, &tagsJSON,
			&h.Note, &h.Priority, &createdAt, &blob); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &h.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		h.CreatedAt = time.Unix(createdAt, 0).UTC()
		h.Vector = decodeVector(blob)
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate highlights: %w", err)
	}
	return highlights, nil
}

// Get returns a single highlight by ID.
func (s *Store) Get(ctx context.Context, id string) (Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Highlight{}, fmt.Errorf("highlight store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, source_label, tags, note, priority, created_at, vector
		FROM highlights WHERE id = ?`, id)

	var h Highlight
	var tagsJSON string
	var createdAt int64
	var blob []byte
	err := row.Scan(&h.ID, &h.Text, &h.SourceLabel, &tagsJSON,
		&h.Note, &h.Priority, &createdAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Highlight{}, qerrors.NotFoundError(fmt.Sprintf("highlight not found: %s", id))
	}
	if err != nil {
		return Highlight{}, fmt.Errorf("get highlight: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &h.Tags); err != nil {
		return Highlight{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	h.Vector = decodeVector(blob)
	return h, nil
}

// Delete removes a highlight by ID. Unknown IDs surface NotFound so
// callers can distinguish a bad ID from a successful delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("highlight store is closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id)
	if err != nil {
		return qerrors.New(qerrors.ErrCodeStoreWrite, "delete highlight", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	if affected == 0 {
		return qerrors.NotFoundError(fmt.Sprintf("highlight not found: %s", id))
	}
	return nil
}

// Count returns the number of stored highlights.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("highlight store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM highlights`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count highlights: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// encodeVector packs a float32 slice into a little-endian byte blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian byte blob into a float32 slice.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
