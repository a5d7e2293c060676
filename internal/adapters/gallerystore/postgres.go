package gallerystore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/okian/presence/internal/adapters/postgres"
	"github.com/okian/presence/internal/domain/model"
)

const (
	selectGallerySQL = `SELECT identity_id, display_name, embedding FROM gallery_entries ORDER BY seq`
	deleteGallerySQL = `DELETE FROM gallery_entries`
	insertGallerySQL = `INSERT INTO gallery_entries (identity_id, display_name, embedding) VALUES ($1, $2, $3)`
)

// Postgres keeps gallery entries as pgvector rows ordered by insertion.
type Postgres struct {
	db postgres.DB
}

// NewPostgres creates a store over db.
func NewPostgres(db postgres.DB) *Postgres {
	return &Postgres{db: db}
}

// Load implements Store.
func (p *Postgres) Load(ctx context.Context) ([]model.GalleryEntry, int, error) {
	rows, err := p.db.Query(ctx, selectGallerySQL)
	if err != nil {
		return nil, 0, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var (
		out     []model.GalleryEntry
		skipped int
	)
	for rows.Next() {
		var (
			e   model.GalleryEntry
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.Identity.ID, &e.Identity.DisplayName, &vec); err != nil {
			skipped++
			continue
		}
		e.Embedding = model.Embedding(vec.Slice())
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate gallery: %w", err)
	}
	return out, skipped, nil
}

// Save implements Store. The table is rewritten in one transaction.
func (p *Postgres) Save(ctx context.Context, entries []model.GalleryEntry) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin gallery save: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, deleteGallerySQL); err != nil {
		return fmt.Errorf("clear gallery: %w", err)
	}
	for i := range entries {
		e := entries[i]
		if _, err := tx.Exec(ctx, insertGallerySQL, e.Identity.ID, e.Identity.Name(), pgvector.NewVector(e.Embedding)); err != nil {
			return fmt.Errorf("insert gallery entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit gallery save: %w", err)
	}
	committed = true
	return nil
}
