package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/askgov/internal/models"
)

type PostgresConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PostgresBackend stores documents in a pgvector table. Insertion order is
// kept by a serial column.
type PostgresBackend struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewPostgresBackend(ctx context.Context, config PostgresConfig) (*PostgresBackend, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1024 // bge-large-zh-v1.5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pb := &PostgresBackend{
		config: config,
		pool:   pool,
	}

	if err := pb.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pb, nil
}

func (pb *PostgresBackend) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := pb.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	// Create documents table if it doesn't exist
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			content TEXT NOT NULL,
			doc_type TEXT NOT NULL DEFAULT '',
			keywords JSONB NOT NULL DEFAULT '[]',
			embedding vector(%d) NOT NULL
		)`, pb.config.TableName, pb.config.VectorDim)

	_, err = pb.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

func (pb *PostgresBackend) Load(ctx context.Context) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, content, doc_type, keywords, embedding
		FROM %s
		ORDER BY seq`,
		pb.config.TableName)

	rows, err := pb.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var (
			doc       models.Document
			docType   string
			keywords  []byte
			embedding pgvector.Vector
		)
		err := rows.Scan(
			&doc.ID,
			&doc.Content,
			&docType,
			&keywords,
			&embedding,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.Metadata.Type = models.DocType(docType)
		if len(keywords) > 0 {
			if err := sonic.ConfigStd.Unmarshal(keywords, &doc.Metadata.Keywords); err != nil {
				return nil, fmt.Errorf("failed to decode keywords of %s: %w", doc.ID, err)
			}
		}
		doc.Embedding = embedding.Slice()

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return docs, nil
}

func (pb *PostgresBackend) Persist(ctx context.Context, _ []models.Document, m Mutation) error {
	// Begin transaction
	tx, err := pb.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch m.Op {
	case OpAppend:
		keywords, err := sonic.ConfigStd.Marshal(keywordsOrEmpty(m.Doc.Metadata.Keywords))
		if err != nil {
			return fmt.Errorf("failed to encode keywords: %w", err)
		}

		stmt := fmt.Sprintf(`
			INSERT INTO %s (id, content, doc_type, keywords, embedding)
			VALUES ($1, $2, $3, $4::jsonb, $5)`,
			pb.config.TableName)

		_, err = tx.Exec(ctx, stmt,
			m.Doc.ID,
			m.Doc.Content,
			string(m.Doc.Metadata.Type),
			string(keywords),
			pgvector.NewVector(m.Doc.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	case OpRemove:
		stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pb.config.TableName)
		if _, err := tx.Exec(ctx, stmt, m.ID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	default:
		return fmt.Errorf("unsupported mutation %d", m.Op)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Reset drops every row of the table.
func (pb *PostgresBackend) Reset(ctx context.Context) error {
	_, err := pb.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", pb.config.TableName))
	if err != nil {
		return fmt.Errorf("failed to truncate table: %w", err)
	}
	return nil
}

func (pb *PostgresBackend) Close() error {
	if pb.pool != nil {
		pb.pool.Close()
	}
	return nil
}
