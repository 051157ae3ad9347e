// Package store provides the SQLite-backed document registry and query log.
// The registry keeps the raw text of every ingested document so it can be
// listed and re-indexed; the query log records each routed query.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/raga-go/internal/apperr"
)

// Document is a registered source document.
type Document struct {
	// ID is the document identifier (its source name).
	ID string
	// Content is the raw text as submitted.
	Content string
	// ChunkCount is the number of chunks indexed for the document.
	ChunkCount int
	// IngestedAt is when the document was last ingested.
	IngestedAt time.Time
}

// QueryRecord is one entry of the query log.
type QueryRecord struct {
	ID         int64
	Query      string
	Tool       string
	Rationale  string
	Status     string
	Kind       string
	DurationMS int64
	CreatedAt  time.Time
}

// Query log statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DocumentRegistry persists ingested documents. Implementations must be safe
// for concurrent use.
type DocumentRegistry interface {
	// Put inserts or replaces a document.
	Put(ctx context.Context, doc Document) error
	// Get returns a document or a not-found error.
	Get(ctx context.Context, id string) (Document, error)
	// List returns every document ordered by id.
	List(ctx context.Context) ([]Document, error)
	// Delete removes a document or returns a not-found error.
	Delete(ctx context.Context, id string) error
}

// QueryLog persists query outcomes.
type QueryLog interface {
	// Append records one query.
	Append(ctx context.Context, rec QueryRecord) error
	// Recent returns the most recent n records, oldest first.
	Recent(ctx context.Context, n int) ([]QueryRecord, error)
}

// SQLiteStore implements DocumentRegistry and QueryLog on a local SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ DocumentRegistry = (*SQLiteStore)(nil)
	_ QueryLog         = (*SQLiteStore)(nil)
)

// DefaultDBPath resolves to ~/.raga/raga.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".raga")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "raga.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: a single writer avoids SQLITE_BUSY, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    content      TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    query        TEXT    NOT NULL,
    tool         TEXT    NOT NULL,
    rationale    TEXT    NOT NULL,
    status       TEXT    NOT NULL CHECK(status IN ('completed','failed')),
    kind         TEXT    NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Put inserts or replaces a document.
func (s *SQLiteStore) Put(ctx context.Context, doc Document) error {
	const q = `
INSERT INTO documents (id, content, chunk_count, ingested_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content,
    chunk_count = excluded.chunk_count, ingested_at = excluded.ingested_at`
	at := doc.IngestedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q, doc.ID, doc.Content, doc.ChunkCount, at.Unix()); err != nil {
		return fmt.Errorf("store: put %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the document with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	const q = `SELECT id, content, chunk_count, ingested_at FROM documents WHERE id = ?`
	var (
		d  Document
		ts int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Content, &d.ChunkCount, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, apperr.Newf(apperr.KindNotFound, "document %q not found", id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	d.IngestedAt = time.Unix(ts, 0)
	return d, nil
}

// List returns every document ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]Document, error) {
	const q = `SELECT id, content, chunk_count, ingested_at FROM documents ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.Content, &d.ChunkCount, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		d.IngestedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return docs, nil
}

// Delete removes the document with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "document %q not found", id)
	}
	return nil
}

// Append records one query outcome.
func (s *SQLiteStore) Append(ctx context.Context, rec QueryRecord) error {
	const q = `
INSERT INTO queries (query, tool, rationale, status, kind, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	at := rec.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q,
		rec.Query, rec.Tool, rec.Rationale, rec.Status, rec.Kind, rec.DurationMS, at.Unix(),
	); err != nil {
		return fmt.Errorf("store: append query: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]QueryRecord, error) {
	const q = `
SELECT id, query, tool, rationale, status, kind, duration_ms, created_at FROM (
    SELECT * FROM queries ORDER BY created_at DESC, id DESC LIMIT ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []QueryRecord
	for rows.Next() {
		var r QueryRecord
		var ts int64
		if err := rows.Scan(&r.ID, &r.Query, &r.Tool, &r.Rationale, &r.Status, &r.Kind, &r.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
