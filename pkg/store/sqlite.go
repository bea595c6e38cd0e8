package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/xhad/askgov/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	doc_type TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	embedding BLOB NOT NULL
)`

// SQLiteBackend stores one row per document. Mutations are applied
// incrementally inside a transaction.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets reads proceed while a write is committing
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (s *SQLiteBackend) Path() string {
	return s.path
}

func (s *SQLiteBackend) Load(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, doc_type, keywords, embedding FROM documents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var (
			doc      models.Document
			docType  string
			keywords string
			blob     []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &docType, &keywords, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		doc.Metadata.Type = models.DocType(docType)
		if keywords != "" && keywords != "null" {
			if err := sonic.ConfigStd.UnmarshalFromString(keywords, &doc.Metadata.Keywords); err != nil {
				return nil, fmt.Errorf("decoding keywords of %s: %w", doc.ID, err)
			}
		}
		if doc.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding of %s: %w", doc.ID, err)
		}

		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (s *SQLiteBackend) Persist(ctx context.Context, _ []models.Document, m Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	switch m.Op {
	case OpAppend:
		keywords, err := sonic.ConfigStd.MarshalToString(keywordsOrEmpty(m.Doc.Metadata.Keywords))
		if err != nil {
			return fmt.Errorf("encoding keywords: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (id, content, doc_type, keywords, embedding) VALUES (?, ?, ?, ?, ?)`,
			m.Doc.ID, m.Doc.Content, string(m.Doc.Metadata.Type), keywords, encodeEmbedding(m.Doc.Embedding))
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
	case OpRemove:
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, m.ID); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
	default:
		return fmt.Errorf("unsupported mutation %d", m.Op)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding length %d", len(data))
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats, nil
}

func keywordsOrEmpty(keywords []string) []string {
	if keywords == nil {
		return []string{}
	}
	return keywords
}
