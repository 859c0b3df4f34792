// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (see sqlite).
package repository

import (
	"context"
	"time"

	"github.com/sakif/js-playground/internal/model"
)

type ListOptions struct {
	Limit    int
	Offset   int
	Language string // optional filter; "" means every language
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
}

// RunRepository stores execution history.
type RunRepository interface {
	Record(ctx context.Context, run *model.Run) error
	Stats(ctx context.Context, since time.Time) (*model.RunStats, error)
}
