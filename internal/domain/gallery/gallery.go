// Package gallery holds the enrolled identities used as match candidates.
//
// Writers (enrollment) are serialized by a mutex; readers (the pipeline)
// load an immutable Snapshot without locking.
package gallery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/pkg/logger"
	"github.com/okian/presence/pkg/metrics"
)

// Snapshot is a read-only view of the gallery at some version.
// Entries must not be modified or appended to.
type Snapshot struct {
	Version uint64
	Entries []model.GalleryEntry
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Gallery is an append-only set of (identity, embedding) entries.
type Gallery struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
	dim  int
	log  logger.Logger
}

// New creates an empty gallery.
func New(opts ...Option) *Gallery {
	g := &Gallery{}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.Get().Named("gallery")
	}
	g.snap.Store(&Snapshot{})
	return g
}

// Add appends an entry. The embedding is copied.
func (g *Gallery) Add(identity model.Identity, emb model.Embedding) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkLocked(identity, emb); err != nil {
		return err
	}
	g.appendLocked(model.GalleryEntry{Identity: identity, Embedding: emb.Clone()})
	return nil
}

// Seed loads persisted entries, skipping and logging malformed ones.
// It returns how many entries were loaded and how many were skipped.
func (g *Gallery) Seed(ctx context.Context, entries []model.GalleryEntry) (loaded, skipped int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range entries {
		e := entries[i]
		if err := g.checkLocked(e.Identity, e.Embedding); err != nil {
			skipped++
			g.log.Warn(ctx, "skipping gallery entry",
				logger.Int("index", i),
				logger.String("identity", e.Identity.ID),
				logger.Error(err))
			continue
		}
		g.appendLocked(model.GalleryEntry{Identity: e.Identity, Embedding: e.Embedding.Clone()})
		loaded++
	}
	return loaded, skipped
}

// Snapshot returns the current read-only view.
func (g *Gallery) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Export returns a deep copy of every entry in insertion order.
func (g *Gallery) Export() []model.GalleryEntry {
	s := g.snap.Load()
	out := make([]model.GalleryEntry, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = model.GalleryEntry{Identity: e.Identity, Embedding: e.Embedding.Clone()}
	}
	return out
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	return len(g.snap.Load().Entries)
}

// Dimension returns the enforced embedding length, 0 while undecided.
func (g *Gallery) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *Gallery) checkLocked(identity model.Identity, emb model.Embedding) error {
	if !identity.Valid() {
		return ErrInvalidIdentity
	}
	if len(emb) == 0 || (g.dim > 0 && len(emb) != g.dim) {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidEmbeddingDimension, len(emb), g.dim)
	}
	if !emb.Finite() {
		return ErrInvalidEmbedding
	}
	return nil
}

// appendLocked publishes a new snapshot. Readers holding an older snapshot
// never index past their own length, so sharing the backing array is safe.
func (g *Gallery) appendLocked(e model.GalleryEntry) {
	if g.dim == 0 {
		g.dim = len(e.Embedding)
	}
	old := g.snap.Load()
	next := &Snapshot{
		Version: old.Version + 1,
		Entries: append(old.Entries, e),
	}
	g.snap.Store(next)
	metrics.UpdateGallerySize(len(next.Entries))
}
