// Package source provides frame sources for the capture pipeline.
//
// Next returns ErrNoFrame (wrapped) for transient failures the caller should
// retry, and ErrSourceClosed once no further frames can ever be produced.
package source

import (
	"context"
	"errors"
	"image"
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"
	"os"
	"time"

	_ "golang.org/x/image/bmp" // decoder registration

	"github.com/okian/presence/internal/domain/model"
)

// Sentinel errors returned by sources.
var (
	ErrNoFrame      = errors.New("no frame available")
	ErrSourceClosed = errors.New("frame source closed")
	ErrNoImages     = errors.New("no image files")
)

// Source supplies sequential frames. It is used by a single goroutine.
type Source interface {
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}

// Opener acquires a Source. Failure is fatal to starting capture.
type Opener func(ctx context.Context) (Source, error)

type settings struct {
	loop  bool
	clock func() time.Time
}

// Option applies a configuration option to a source.
type Option func(*settings)

// WithLoop restarts a directory source from its first file when exhausted.
func WithLoop(loop bool) Option {
	return func(s *settings) { s.loop = loop }
}

// WithClock sets the clock used to stamp frames.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{clock: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Decode reads a jpeg, png or bmp image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// ReadImage decodes a jpeg, png or bmp file.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
