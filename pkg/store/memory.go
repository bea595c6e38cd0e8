package store

import (
	"context"
	"sync"

	"github.com/xhad/askgov/internal/models"
)

// MemoryBackend keeps the last persisted snapshot in process memory.
type MemoryBackend struct {
	mu   sync.Mutex
	docs []models.Document
}

func NewMemoryBackend(seed ...models.Document) *MemoryBackend {
	return &MemoryBackend{docs: append([]models.Document(nil), seed...)}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Document{}, m.docs...), nil
}

func (m *MemoryBackend) Persist(ctx context.Context, snapshot []models.Document, _ Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append([]models.Document{}, snapshot...)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
