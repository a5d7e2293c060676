package pipeline

import (
	"time"

	"github.com/okian/presence/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithClock sets the clock used when a frame carries no capture time.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithFrameTimeout bounds each frame pull.
func WithFrameTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.frameTimeout = d
		}
	}
}

// WithRetryDelay sets the pause after a failed frame pull.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.retryDelay = d
		}
	}
}

// WithLedgerTimeout bounds each attendance write.
func WithLedgerTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.ledgerTimeout = d
		}
	}
}

// WithAnnotation turns frame rendering on or off.
func WithAnnotation(on bool) Option {
	return func(l *Loop) { l.annotate = on }
}

// WithLogger sets the loop logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}
