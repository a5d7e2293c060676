// Package service ties the recognition core to its adapters and exposes
// the operations the CLI and the HTTP API need: start and stop capture,
// enrollment, attendance reports and cooldown overrides.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/presence/internal/adapters/gallerystore"
	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/adapters/mq/queue"
	"github.com/okian/presence/internal/adapters/source"
	"github.com/okian/presence/internal/config"
	"github.com/okian/presence/internal/detect"
	"github.com/okian/presence/internal/domain/cooldown"
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/internal/pipeline"
	"github.com/okian/presence/pkg/logger"
	"github.com/okian/presence/pkg/metrics"
)

// Deps are the adapters a Service runs on.
type Deps struct {
	Opener    source.Opener
	Extractor detect.Extractor
	Ledger    ledger.Ledger
	Store     gallerystore.Store
}

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Capturing       bool    `json:"capturing"`
	GallerySize     int     `json:"gallery_size"`
	Identities      int     `json:"identities"`
	CooldownEntries int     `json:"cooldown_entries"`
	QueueLength     int     `json:"queue_length"`
	QueueDropped    uint64  `json:"queue_dropped"`
	Frames          uint64  `json:"frames"`
	FrameErrors     uint64  `json:"frame_errors"`
	Faces           uint64  `json:"faces"`
	Triggered       uint64  `json:"triggered"`
	Suppressed      uint64  `json:"suppressed"`
	LedgerErrors    uint64  `json:"ledger_errors"`
	Tolerance       float64 `json:"tolerance"`
	CooldownWindow  string  `json:"cooldown_window"`
}

// Service owns the gallery, the cooldown tracker and at most one running
// capture loop.
type Service struct {
	mu sync.Mutex

	// enrollMu orders gallery appends with the saves that persist them.
	enrollMu sync.Mutex

	cfg      config.Config
	opener   source.Opener
	ledger   ledger.Ledger
	store    gallerystore.Store
	gallery  *gallery.Gallery
	detector *detect.Detector
	matcher  *matching.Matcher
	tracker  *cooldown.Tracker
	out      *queue.InMemoryQueue[pipeline.Message]

	index    matching.Index
	annotate bool
	clock    func() time.Time
	logger   logger.Logger

	loop   *pipeline.Loop
	cancel context.CancelFunc
	totals pipeline.Counters
}

// New builds a Service and seeds the gallery from the store. Corrupt
// gallery data is logged and skipped; it never aborts startup.
func New(ctx context.Context, cfg config.Config, deps Deps, opts ...Option) (*Service, error) {
	if deps.Opener == nil || deps.Extractor == nil || deps.Ledger == nil || deps.Store == nil {
		return nil, errors.New("service: opener, extractor, ledger and store are required")
	}

	s := &Service{
		cfg:      cfg,
		opener:   deps.Opener,
		ledger:   deps.Ledger,
		store:    deps.Store,
		tracker:  cooldown.New(cfg.Recognition.CooldownWindow),
		out:      queue.NewInMemoryQueue[pipeline.Message](queue.WithCapacity(cfg.Pipeline.OutputBuffer)),
		annotate: true,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.index == nil {
		s.index = matching.LinearIndex{}
	}

	s.gallery = gallery.New(
		gallery.WithDimension(cfg.Recognition.EmbeddingDim),
		gallery.WithLogger(s.logger.Named("gallery")),
	)
	s.detector = detect.New(deps.Extractor,
		detect.WithReduction(cfg.Recognition.FrameReduction),
		detect.WithLogger(s.logger.Named("detect")),
	)
	s.matcher = matching.New(cfg.Recognition.Tolerance, matching.WithIndex(s.index))

	if err := s.loadGallery(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) loadGallery(ctx context.Context) error {
	entries, corrupt, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, gallerystore.ErrCorrupt):
		s.logger.Warn(ctx, "gallery store is unreadable, starting with an empty gallery", logger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("load gallery: %w", err)
	}

	loaded, skipped := s.gallery.Seed(ctx, entries)
	s.logger.Info(ctx, "gallery loaded",
		logger.Int("entries", loaded),
		logger.Int("skipped", skipped+corrupt),
		logger.Int("dimension", s.gallery.Dimension()))
	return nil
}

// Start opens the frame source and launches the capture loop. The loop
// keeps running after ctx is done; use Stop to end it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()
	if s.loop != nil {
		return ErrAlreadyCapturing
	}

	src, err := s.opener(ctx)
	if err != nil {
		s.logger.Error(ctx, "cannot open frame source", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	loop := pipeline.New(src, pipeline.Deps{
		Detector: s.detector,
		Matcher:  s.matcher,
		Gallery:  s.gallery,
		Tracker:  s.tracker,
		Ledger:   s.ledger,
		Out:      s.out,
	},
		pipeline.WithFrameTimeout(s.cfg.Camera.FrameTimeout),
		pipeline.WithRetryDelay(s.cfg.Camera.RetryDelay),
		pipeline.WithAnnotation(s.annotate),
		pipeline.WithLogger(s.logger.Named("pipeline")),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.loop, s.cancel = loop, cancel
	go loop.Run(runCtx)

	metrics.UpdateCapturing(true)
	s.logger.Info(ctx, "capture started",
		logger.String("camera", s.cfg.Camera.Kind),
		logger.Float64("tolerance", s.cfg.Recognition.Tolerance),
		logger.Duration("cooldown", s.cfg.Recognition.CooldownWindow))
	return nil
}

// Stop ends capture. The in-flight frame is allowed to finish for up to
// the configured stop timeout; after that the loop is cancelled.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reapLocked() || s.loop == nil {
		return ErrNotCapturing
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.StopTimeout)
	err := s.loop.Shutdown(sctx)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "capture loop did not stop in time, cancelling", logger.Duration("timeout", s.cfg.Pipeline.StopTimeout))
		s.cancel()
		select {
		case <-s.loop.Done():
		case <-ctx.Done():
			return fmt.Errorf("stop capture: %w", ctx.Err())
		}
	}
	s.finishLocked()

	s.out.Enqueue(ctx, pipeline.DisplayCleared{})
	s.logger.Info(ctx, "capture stopped")
	return nil
}

// Capturing reports whether a capture loop is running.
func (s *Service) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	return s.loop != nil
}

// CapturedFrame returns the last frame the running capture loop read.
func (s *Service) CapturedFrame() (model.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if s.loop == nil {
		return model.Frame{}, false
	}
	return s.loop.LastFrame()
}

// reapLocked clears a loop that ended on its own. It reports whether it did.
func (s *Service) reapLocked() bool {
	if s.loop == nil {
		return false
	}
	select {
	case <-s.loop.Done():
		s.finishLocked()
		return true
	default:
		return false
	}
}

func (s *Service) finishLocked() {
	s.cancel()
	c := s.loop.Counters()
	s.totals.Frames += c.Frames
	s.totals.FrameErrors += c.FrameErrors
	s.totals.Faces += c.Faces
	s.totals.Triggered += c.Triggered
	s.totals.Suppressed += c.Suppressed
	s.totals.LedgerError += c.LedgerError
	s.loop, s.cancel = nil, nil
	metrics.UpdateCapturing(false)
}

// Messages is the receive side of the one-directional UI queue.
func (s *Service) Messages() <-chan pipeline.Message {
	return s.out.Dequeue()
}

// Report returns attendance for date (YYYY-MM-DD), or all of it when date is nil.
func (s *Service) Report(ctx context.Context, date *string) ([]model.AttendanceRecord, error) {
	if date != nil && !model.ValidDate(*date) {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidDate, *date)
	}
	recs, err := s.ledger.Query(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	return recs, nil
}

// ResetCooldown asks the capture loop to forget id, or every identity when
// id is empty. It returns false when the request could not be queued.
func (s *Service) ResetCooldown(ctx context.Context, id string) bool {
	var ok bool
	if id == "" {
		ok = s.tracker.ResetAll()
	} else {
		ok = s.tracker.Reset(id)
	}
	if !ok {
		s.logger.Warn(ctx, "cooldown reset dropped, command queue full", logger.String("identity", id))
	}
	return ok
}

// Gallery exposes the live gallery.
func (s *Service) Gallery() *gallery.Gallery { return s.gallery }

// Stats returns the service statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()

	c := s.totals
	if s.loop != nil {
		cur := s.loop.Counters()
		c.Frames += cur.Frames
		c.FrameErrors += cur.FrameErrors
		c.Faces += cur.Faces
		c.Triggered += cur.Triggered
		c.Suppressed += cur.Suppressed
		c.LedgerError += cur.LedgerError
	}

	snap := s.gallery.Snapshot()
	ids := make(map[string]struct{}, snap.Len())
	for _, e := range snap.Entries {
		ids[e.Identity.ID] = struct{}{}
	}

	qlen := s.out.Len()
	metrics.UpdateOutputQueueSize(qlen)

	return Stats{
		Capturing:       s.loop != nil,
		GallerySize:     snap.Len(),
		Identities:      len(ids),
		CooldownEntries: s.tracker.Len(),
		QueueLength:     qlen,
		QueueDropped:    s.out.Dropped(),
		Frames:          c.Frames,
		FrameErrors:     c.FrameErrors,
		Faces:           c.Faces,
		Triggered:       c.Triggered,
		Suppressed:      c.Suppressed,
		LedgerErrors:    c.LedgerError,
		Tolerance:       s.matcher.Tolerance(),
		CooldownWindow:  s.tracker.Window().String(),
	}
}

// Close stops capture if running and releases the UI queue.
func (s *Service) Close(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotCapturing) {
		return err
	}
	return s.out.Close()
}
