package service

import (
	"time"

	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock used for enrollment archive names.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIndex sets the nearest-neighbour index used by the matcher.
func WithIndex(idx matching.Index) Option {
	return func(s *Service) {
		if idx != nil {
			s.index = idx
		}
	}
}

// WithAnnotation toggles rendering of annotated frames.
func WithAnnotation(on bool) Option {
	return func(s *Service) {
		s.annotate = on
	}
}
