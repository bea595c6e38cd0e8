package store

import (
	"context"

	"github.com/xhad/askgov/internal/models"
)

type Op int

const (
	OpAppend Op = iota + 1
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAppend:
		return "append"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Mutation describes the single change that produced a snapshot.
// Backends that store the whole collection at once can ignore it.
type Mutation struct {
	Op  Op
	Doc models.Document // OpAppend
	ID  string          // OpRemove
}

// Backend is the durable half of a Collection. Load returns an empty slice
// when nothing has been stored yet. Persist must either make the snapshot
// durable or leave the previous state intact.
type Backend interface {
	Load(ctx context.Context) ([]models.Document, error)
	Persist(ctx context.Context, snapshot []models.Document, m Mutation) error
	Close() error
}
