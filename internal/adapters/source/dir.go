package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/okian/presence/internal/domain/model"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Dir replays the images of a directory in name order.
type Dir struct {
	mu     sync.Mutex
	files  []string
	pos    int
	seq    uint64
	closed bool
	s      settings
}

// OpenDir lists path. A missing or unreadable directory, or one without
// image files, is an error.
func OpenDir(path string, opts ...Option) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("open frame dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("open frame dir %s: %w", path, ErrNoImages)
	}
	sort.Strings(files)
	return &Dir{files: files, s: newSettings(opts)}, nil
}

// DirOpener adapts OpenDir to an Opener.
func DirOpener(path string, opts ...Option) Opener {
	return func(context.Context) (Source, error) {
		return OpenDir(path, opts...)
	}
}

// Len returns the number of image files found.
func (d *Dir) Len() int { return len(d.files) }

// Next implements Source.
func (d *Dir) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return model.Frame{}, ErrSourceClosed
	}
	if d.pos >= len(d.files) {
		if !d.s.loop || len(d.files) == 0 {
			return model.Frame{}, ErrSourceClosed
		}
		d.pos = 0
	}
	name := d.files[d.pos]
	d.pos++

	f, err := os.Open(name)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: decode %s: %v", ErrNoFrame, filepath.Base(name), err)
	}
	d.seq++
	return model.Frame{Seq: d.seq, CapturedAt: d.s.clock(), Image: img}, nil
}

// Close implements Source.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
