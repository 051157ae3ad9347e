package rag

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	// Register the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PgvectorConfig holds connection parameters for a PostgreSQL database with
// the pgvector extension.
type PgvectorConfig struct {
	// DSN is the lib/pq connection string.
	DSN string

	// Table is the index name. Hyphens are mapped to underscores.
	Table string
}

// PgvectorIndex implements Index and Replacer over a pgvector table. The <=>
// operator is cosine distance, so similarity is 1 - distance.
type PgvectorIndex struct {
	db    *sql.DB
	table string
}

// NewPgvectorIndex opens the database. The table is created by EnsureCollection.
func NewPgvectorIndex(cfg PgvectorConfig) (*PgvectorIndex, error) {
	table := strings.ReplaceAll(strings.ToLower(cfg.Table), "-", "_")
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: DSN is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to open database: %w", err)
	}
	return &PgvectorIndex{db: db, table: table}, nil
}

// EnsureCollection creates the extension, table and document index.
func (p *PgvectorIndex) EnsureCollection(ctx context.Context, dimension int) error {
	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			document_id  TEXT NOT NULL,
			ordinal      INTEGER NOT NULL,
			text         TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset   INTEGER NOT NULL,
			embedding    vector(%d) NOT NULL
		)`, p.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, p.table, p.table),
	}
	for _, stmt := range ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: failed to prepare table %q: %w", p.table, err)
		}
	}
	return nil
}

// Upsert writes points in one transaction.
func (p *PgvectorIndex) Upsert(ctx context.Context, points []Point) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		return p.insert(ctx, tx, points)
	})
}

// ReplaceDocument deletes and re-inserts a document's points in one
// transaction, so readers see either the old or the new set.
func (p *PgvectorIndex) ReplaceDocument(ctx context.Context, documentID string, points []Point) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("pgvector: delete of document %q failed: %w", documentID, err)
		}
		return p.insert(ctx, tx, points)
	})
}

// DeleteDocument removes a document's rows.
func (p *PgvectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("pgvector: delete of document %q failed: %w", documentID, err)
	}
	return nil
}

// Search orders rows by cosine distance to vector.
func (p *PgvectorIndex) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	query := `SELECT document_id, ordinal, text, start_offset, end_offset, 1 - (embedding <=> $1) AS score
		FROM ` + p.table + `
		ORDER BY embedding <=> $1
		LIMIT $2`
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r     Result
			score float64
		)
		if err := rows.Scan(&r.DocumentID, &r.Ordinal, &r.Text, &r.Start, &r.End, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan failed: %w", err)
		}
		r.Score = NormalizeScore(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	SortResults(results)
	return results, nil
}

// Sample returns random rows.
func (p *PgvectorIndex) Sample(ctx context.Context, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT document_id, ordinal, text, start_offset, end_offset FROM `+p.table+` ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("pgvector: sample failed: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.DocumentID, &c.Ordinal, &c.Text, &c.Start, &c.End); err != nil {
			return nil, fmt.Errorf("pgvector: scan failed: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Ping checks the database connection.
func (p *PgvectorIndex) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgvector: ping failed: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (p *PgvectorIndex) Close() error {
	return p.db.Close()
}

func (p *PgvectorIndex) insert(ctx context.Context, tx *sql.Tx, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+p.table+`
		(id, document_id, ordinal, text, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			ordinal = EXCLUDED.ordinal,
			text = EXCLUDED.text,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			embedding = EXCLUDED.embedding`)
	if err != nil {
		return fmt.Errorf("pgvector: prepare insert failed: %w", err)
	}
	defer stmt.Close()

	for _, pt := range points {
		c := pt.Chunk
		if _, err := stmt.ExecContext(ctx, pt.ID, c.DocumentID, c.Ordinal, c.Text, c.Start, c.End,
			pgvector.NewVector(pt.Vector)); err != nil {
			return fmt.Errorf("pgvector: insert of point %s failed: %w", pt.ID, err)
		}
	}
	return nil
}

func (p *PgvectorIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin failed: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit failed: %w", err)
	}
	return nil
}
