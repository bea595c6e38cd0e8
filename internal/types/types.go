package types

import (
	"context"

	"github.com/xhad/askgov/internal/models"
)

// Core interfaces
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type DocumentStore interface {
	Load(ctx context.Context) ([]models.Document, error)
	Append(ctx context.Context, doc models.Document) error
	Remove(ctx context.Context, id string) error
}

type Generator interface {
	Generate(ctx context.Context, question string, knowledge []string) (string, error)
}
