// Package docstore persists document metadata and chunks in SQLite so the
// in-memory index can be rebuilt after a restart.
package docstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"askmydocs/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	chunk_count INTEGER NOT NULL,
	summary     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	embedding   BLOB NOT NULL,
	PRIMARY KEY (document_id, ordinal)
);
`

// timeLayout is a fixed-width RFC 3339 form (nanoseconds always printed) so
// the stored text compares lexicographically in chronological order, which
// ORDER BY created_at relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed registry of documents and their chunks.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SaveDocument writes the document and all its chunks in one transaction.
func (s *Store) SaveDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, created_at, chunk_count, summary) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.CreatedAt.UTC().Format(timeLayout), doc.ChunkCount, doc.Summary)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (document_id, ordinal, text, source, page, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.DocumentID, ch.Ordinal, ch.Text, ch.SourceLabel, ch.Page, encodeVector(ch.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.Ordinal, err)
		}
	}
	return tx.Commit()
}

// ListDocuments returns all documents, most recently created first.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, created_at, chunk_count, summary FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var created string
		if err := rows.Scan(&doc.ID, &doc.Filename, &created, &doc.ChunkCount, &doc.Summary); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocument returns one document or domain.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, created_at, chunk_count, summary FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Filename, &created, &doc.ChunkCount, &doc.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return &doc, nil
}

// DeleteDocument removes the document and, via the foreign key cascade, all
// its chunks. Returns false when the id did not exist.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadChunks returns a document's chunks, embeddings included, by ordinal.
func (s *Store) LoadChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, ordinal, text, source, page, embedding FROM chunks WHERE document_id = ? ORDER BY ordinal`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		var blob []byte
		if err := rows.Scan(&ch.DocumentID, &ch.Ordinal, &ch.Text, &ch.SourceLabel, &ch.Page, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		ch.Embedding = decodeVector(blob)
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// Vectors are stored as little-endian float32 blobs, 4 bytes per component.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
