package app

import (
	"errors"
	"fmt"

	"jstagram/pkg/store"
)

// ErrNotFound reports a delete of an id that is not in the catalog.
var ErrNotFound = store.ErrNotFound

// ErrNoAssetURLs is returned by AssetURL when the asset store cannot issue
// direct links.
var ErrNoAssetURLs = errors.New("asset store does not issue direct links")

// AssetMoveError reports that an upload could not be moved into the asset
// store. The catalog is unchanged.
type AssetMoveError struct {
	Source string
	Err    error
}

func (e *AssetMoveError) Error() string {
	return fmt.Sprintf("move incoming file %s: %v", e.Source, e.Err)
}

func (e *AssetMoveError) Unwrap() error { return e.Err }

// AssetDeleteError reports that a picture's record was removed but its asset
// could not be. The record is not restored.
type AssetDeleteError struct {
	ID   int64
	Path string
	Err  error
}

func (e *AssetDeleteError) Error() string {
	return fmt.Sprintf("delete asset %s of picture %d: %v", e.Path, e.ID, e.Err)
}

func (e *AssetDeleteError) Unwrap() error { return e.Err }
