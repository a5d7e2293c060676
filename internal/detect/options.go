package detect

import "github.com/okian/presence/pkg/logger"

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithReduction downsamples frames by factor before detection. Values <= 1 disable it.
func WithReduction(factor float64) Option {
	return func(d *Detector) {
		if factor >= 1 {
			d.reduction = factor
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}
