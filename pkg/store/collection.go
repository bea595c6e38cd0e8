package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/logger"
)

// Collection is the in-memory view of one durable document collection.
//
// The collection is loaded from its Backend on first use. Every mutation
// runs load-modify-persist under the write lock and only replaces the
// in-memory state once the backend reports success, so a failed write
// leaves the collection exactly as it was. Reads share the read lock and
// never observe a half-applied mutation.
type Collection struct {
	backend Backend

	mu     sync.RWMutex
	loaded bool
	docs   []models.Document
}

var _ types.DocumentStore = (*Collection)(nil)

func NewCollection(backend Backend) *Collection {
	return &Collection{backend: backend}
}

// Load returns the documents in insertion order. The returned slice is a
// copy and may be modified by the caller; the documents themselves are
// shared and must be treated as read-only.
func (c *Collection) Load(ctx context.Context) ([]models.Document, error) {
	c.mu.RLock()
	if c.loaded {
		docs := c.snapshot()
		c.mu.RUnlock()
		return docs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return c.snapshot(), nil
}

func (c *Collection) Len(ctx context.Context) (int, error) {
	docs, err := c.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Append adds doc to the end of the collection and persists it.
func (c *Collection) Append(ctx context.Context, doc models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("append: document id is required")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("append: document %s has no embedding", doc.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	for _, existing := range c.docs {
		if existing.ID == doc.ID {
			return fmt.Errorf("append %s: %w", doc.ID, types.ErrDuplicateID)
		}
	}
	if len(c.docs) > 0 && len(c.docs[0].Embedding) != len(doc.Embedding) {
		return fmt.Errorf("append %s: %w: collection has %d dimensions, document has %d",
			doc.ID, types.ErrDimensionMismatch, len(c.docs[0].Embedding), len(doc.Embedding))
	}

	doc.Embedding = append([]float32(nil), doc.Embedding...)
	doc.Metadata.Keywords = append([]string(nil), doc.Metadata.Keywords...)

	next := make([]models.Document, len(c.docs), len(c.docs)+1)
	copy(next, c.docs)
	next = append(next, doc)

	if err := c.persist(ctx, next, Mutation{Op: OpAppend, Doc: doc}); err != nil {
		return err
	}

	c.docs = next
	logger.Debug("appended document %s (%d total)", doc.ID, len(next))
	return nil
}

// Remove deletes the document with the given id. Removing an id that is
// not present is not an error and does not touch the backend.
func (c *Collection) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	idx := -1
	for i, doc := range c.docs {
		if doc.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	next := make([]models.Document, 0, len(c.docs)-1)
	next = append(next, c.docs[:idx]...)
	next = append(next, c.docs[idx+1:]...)

	if err := c.persist(ctx, next, Mutation{Op: OpRemove, ID: id}); err != nil {
		return err
	}

	c.docs = next
	logger.Debug("removed document %s (%d total)", id, len(next))
	return nil
}

func (c *Collection) Close() error {
	return c.backend.Close()
}

// ensureLoaded must be called with the write lock held.
func (c *Collection) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	docs, err := c.backend.Load(ctx)
	if err != nil {
		return &types.StorageError{Op: "load", Err: err}
	}
	if docs == nil {
		docs = []models.Document{}
	}

	c.docs = docs
	c.loaded = true
	logger.Debug("loaded %d documents", len(docs))
	return nil
}

func (c *Collection) persist(ctx context.Context, next []models.Document, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return &types.StorageError{Op: m.Op.String(), Err: err}
	}
	if err := c.backend.Persist(ctx, next, m); err != nil {
		return &types.StorageError{Op: m.Op.String(), Err: err}
	}
	return nil
}

// snapshot must be called with a lock held.
func (c *Collection) snapshot() []models.Document {
	docs := make([]models.Document, len(c.docs))
	copy(docs, c.docs)
	return docs
}
