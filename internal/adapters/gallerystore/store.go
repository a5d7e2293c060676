// Package gallerystore persists the gallery between runs.
package gallerystore

import (
	"context"
	"errors"

	"github.com/okian/presence/internal/domain/model"
)

// ErrCorrupt is returned when the stored gallery cannot be parsed at all.
var ErrCorrupt = errors.New("gallery store is corrupt")

// Store loads the startup gallery and saves exported snapshots.
type Store interface {
	// Load returns the persisted entries in insertion order. Entries that
	// cannot be decoded individually are dropped and counted in skipped.
	Load(ctx context.Context) (entries []model.GalleryEntry, skipped int, err error)
	// Save replaces the persisted gallery with entries.
	Save(ctx context.Context, entries []model.GalleryEntry) error
}
