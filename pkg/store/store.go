package store

import (
	"context"
	"errors"

	"jstagram/pkg/domain"
)

// ErrNotFound is returned by Remove when no record has the requested id.
var ErrNotFound = errors.New("picture not found")

// Query selects and orders a page of pictures.
type Query struct {
	// Title restricts results to titles containing it (case-sensitive).
	Title string
	Order domain.SortOrder
}

// Catalog persists picture records. Implementations must issue ids atomically
// and make Remove of a single id succeed for exactly one caller.
type Catalog interface {
	Query(ctx context.Context, q Query) ([]domain.Picture, error)
	Insert(ctx context.Context, title, filename string) (domain.Picture, error)
	Remove(ctx context.Context, id int64) (domain.Picture, error)
}
