package gallerystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/okian/presence/internal/domain/model"
)

type document struct {
	Entries []yaml.Node `yaml:"entries"`
}

type saved struct {
	Entries []model.GalleryEntry `yaml:"entries"`
}

// File keeps the gallery in one YAML document.
type File struct {
	path string
}

// NewFile creates a store for path. The file need not exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Load implements Store. A missing file is an empty gallery.
func (f *File) Load(_ context.Context) ([]model.GalleryEntry, int, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read gallery: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}

	entries := make([]model.GalleryEntry, 0, len(doc.Entries))
	skipped := 0
	for i := range doc.Entries {
		var e model.GalleryEntry
		if err := doc.Entries[i].Decode(&e); err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// Save implements Store. The file is replaced atomically.
func (f *File) Save(_ context.Context, entries []model.GalleryEntry) error {
	if entries == nil {
		entries = []model.GalleryEntry{}
	}
	raw, err := yaml.Marshal(saved{Entries: entries})
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create gallery dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".gallery-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp gallery: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace gallery: %w", err)
	}
	return nil
}
