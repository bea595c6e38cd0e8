package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/askgov/internal/types"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Model     string
	BaseURL   string        // Ollama server URL
	Timeout   time.Duration // per call, zero means no deadline beyond ctx
	Dimension int           // expected vector length, zero accepts any
}

// Embedder turns text into a fixed-length vector using an Ollama model.
// It does not cache and does not retry.
type Embedder struct {
	config EmbedderConfig
	llm    *ollama.LLM
}

var _ types.Embedder = (*Embedder)(nil)

// NewEmbedderWithConfig creates an Embedder with the given configuration.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "quentinz/bge-large-zh-v1.5:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Dimension < 0 {
		return nil, fmt.Errorf("dimension cannot be negative")
	}

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		llm:    emb,
	}, nil
}

func (e *Embedder) Model() string {
	return e.config.Model
}

// Embed requests the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch requests one embedding per text, in order. The service is
// called once per text.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, &types.EmbeddingServiceError{Op: "embed", Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &types.EmbeddingServiceError{
			Op:  "embed",
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
	}

	for i, vec := range vectors {
		if err := e.checkVector(vec); err != nil {
			return nil, &types.EmbeddingServiceError{
				Op:  "embed",
				Err: fmt.Errorf("embedding %d: %w", i, err),
			}
		}
	}

	return vectors, nil
}

func (e *Embedder) checkVector(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	if e.config.Dimension > 0 && len(vec) != e.config.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", types.ErrDimensionMismatch, e.config.Dimension, len(vec))
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains non-finite values")
		}
	}
	return nil
}
