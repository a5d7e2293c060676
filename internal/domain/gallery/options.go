package gallery

import "github.com/okian/presence/pkg/logger"

// Option applies a configuration option to the Gallery.
type Option func(*Gallery)

// WithDimension fixes the embedding length every entry must have.
// A value <= 0 lets the first added entry decide.
func WithDimension(dim int) Option {
	return func(g *Gallery) {
		if dim > 0 {
			g.dim = dim
		}
	}
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l logger.Logger) Option {
	return func(g *Gallery) {
		if l != nil {
			g.log = l
		}
	}
}
