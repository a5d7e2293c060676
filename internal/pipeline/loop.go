// Package pipeline runs the capture loop: pull a frame, detect faces, match
// them against the gallery, apply the cooldown, write attendance and publish
// the result to the consumer.
//
// A Loop owns its frame source and the cooldown tracker's state for the
// lifetime of Run. Everything it hands out is an immutable Message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/adapters/source"
	"github.com/okian/presence/internal/annotate"
	"github.com/okian/presence/internal/domain/cooldown"
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/pkg/logger"
	"github.com/okian/presence/pkg/metrics"
)

// Default loop configuration constants.
const (
	defaultFrameTimeout  = 2 * time.Second
	defaultRetryDelay    = 100 * time.Millisecond
	defaultLedgerTimeout = 5 * time.Second
)

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, frame model.Frame) ([]model.Face, error)
}

// Matcher decides which identity a query belongs to.
type Matcher interface {
	Match(query model.Embedding, snap *gallery.Snapshot) matching.Result
}

// Snapshotter exposes the current gallery view.
type Snapshotter interface {
	Snapshot() *gallery.Snapshot
}

// Publisher delivers messages without blocking.
type Publisher interface {
	Enqueue(ctx context.Context, msg Message) bool
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Detector Detector
	Matcher  Matcher
	Gallery  Snapshotter
	Tracker  *cooldown.Tracker
	Ledger   ledger.Ledger
	Out      Publisher
}

// Counters is a point-in-time copy of loop statistics.
type Counters struct {
	Frames      uint64
	FrameErrors uint64
	Faces       uint64
	Triggered   uint64
	Suppressed  uint64
	LedgerError uint64
}

// Loop is one capture run over a single source.
type Loop struct {
	src  source.Source
	deps Deps

	clock         func() time.Time
	frameTimeout  time.Duration
	retryDelay    time.Duration
	ledgerTimeout time.Duration
	annotate      bool
	logger        logger.Logger

	frames, frameErrors, faces  atomic.Uint64
	triggered, suppressed, lerr atomic.Uint64
	last                        atomic.Pointer[model.Frame]

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a loop over src. Run must be called exactly once.
func New(src source.Source, deps Deps, opts ...Option) *Loop {
	l := &Loop{
		src:           src,
		deps:          deps,
		clock:         time.Now,
		frameTimeout:  defaultFrameTimeout,
		retryDelay:    defaultRetryDelay,
		ledgerTimeout: defaultLedgerTimeout,
		annotate:      true,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("pipeline")
	}
	return l
}

// Run processes frames until Shutdown, ctx cancellation or the source
// closing for good. The source is always closed before Run returns.
func (l *Loop) Run(ctx context.Context) {
	reason := ReasonStopped
	defer func() {
		if r := recover(); r != nil {
			reason = ReasonPanic
			l.logger.Error(ctx, "capture loop panicked", logger.Any("panic", r))
		}
		if err := l.src.Close(); err != nil {
			l.logger.Warn(ctx, "closing frame source failed", logger.Error(err))
		}
		l.publish(context.WithoutCancel(ctx), CaptureStopped{Reason: reason})
		l.logger.Info(ctx, "capture loop stopped", logger.String("reason", reason))
		close(l.done)
	}()

	l.logger.Info(ctx, "capture loop started")
	for {
		select {
		case <-ctx.Done():
			reason = ReasonCancelled
			return
		case <-l.shutdown:
			return
		default:
		}

		if n := l.deps.Tracker.Drain(); n > 0 {
			l.logger.Debug(ctx, "applied cooldown resets", logger.Int("count", n))
		}

		frame, err := l.next(ctx)
		if err != nil {
			if errors.Is(err, source.ErrSourceClosed) {
				reason = ReasonSourceClosed
				return
			}
			if ctx.Err() != nil {
				continue
			}
			l.frameError(ctx, 0, ErrReasonRead, err)
			l.pause(ctx)
			continue
		}
		l.Process(ctx, frame)
	}
}

// Shutdown asks Run to exit after the in-flight frame and waits for it.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// LastFrame returns the most recent frame read from the source.
func (l *Loop) LastFrame() (model.Frame, bool) {
	f := l.last.Load()
	if f == nil {
		return model.Frame{}, false
	}
	return *f, true
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Counters returns the loop statistics.
func (l *Loop) Counters() Counters {
	return Counters{
		Frames:      l.frames.Load(),
		FrameErrors: l.frameErrors.Load(),
		Faces:       l.faces.Load(),
		Triggered:   l.triggered.Load(),
		Suppressed:  l.suppressed.Load(),
		LedgerError: l.lerr.Load(),
	}
}

func (l *Loop) next(ctx context.Context) (model.Frame, error) {
	fctx, cancel := context.WithTimeout(ctx, l.frameTimeout)
	defer cancel()
	return l.src.Next(fctx)
}

// pause waits retryDelay unless the loop is being stopped.
func (l *Loop) pause(ctx context.Context) {
	if l.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(l.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-l.shutdown:
	}
}

// Process runs one frame through detection, matching, cooldown and the
// ledger, then publishes the outcome. Per-frame failures are absorbed.
func (l *Loop) Process(ctx context.Context, frame model.Frame) {
	start := time.Now()
	if frame.Image != nil {
		l.last.Store(&frame)
	}

	faces, err := l.deps.Detector.Detect(ctx, frame)
	if err != nil {
		l.frameError(ctx, frame.Seq, ErrReasonDetect, err)
		return
	}
	l.faces.Add(uint64(len(faces)))

	now := frame.CapturedAt
	if now.IsZero() {
		now = l.clock()
	}

	snap := l.deps.Gallery.Snapshot()
	dets := make([]model.Detection, len(faces))
	var recognized []string
	seen := make(map[string]bool, len(faces))

	for i := range faces {
		res := l.deps.Matcher.Match(faces[i].Embedding, snap)
		dets[i] = model.Detection{
			Box:       faces[i].Box,
			Embedding: faces[i].Embedding,
			Identity:  res.Identity,
			Distance:  res.Distance,
		}
		metrics.RecordMatch(res.Accepted)
		if !res.Accepted {
			continue
		}

		id := *res.Identity
		if !seen[id.ID] {
			seen[id.ID] = true
			recognized = append(recognized, id.Name())
		}

		switch l.deps.Tracker.Observe(id.ID, now) {
		case cooldown.Trigger:
			l.triggered.Add(1)
			metrics.RecordAttendanceTriggered()
			l.mark(ctx, id, now)
		case cooldown.Suppress:
			l.suppressed.Add(1)
			metrics.RecordAttendanceSuppressed()
		}
	}

	msg := FrameReady{
		Seq:        frame.Seq,
		At:         now,
		Recognized: recognized,
		Faces:      len(faces),
		Detections: dets,
	}
	if l.annotate {
		msg.Annotated = annotate.Render(frame.Image, dets)
	}
	l.publish(ctx, msg)

	l.frames.Add(1)
	metrics.RecordFrameProcessed()
	metrics.RecordFrameLatency(float64(time.Since(start).Milliseconds()))
}

// mark issues the ledger write for a trigger. Failures are logged and
// counted; the cooldown entry stays updated so a failing ledger is not
// hammered on every frame.
func (l *Loop) mark(ctx context.Context, id model.Identity, now time.Time) {
	ev := model.NewAttendanceEvent(id, now)

	lctx, cancel := context.WithTimeout(ctx, l.ledgerTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := l.deps.Ledger.RecordPresent(lctx, ev)
	metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		l.lerr.Add(1)
		metrics.RecordLedgerError()
		l.logger.Error(ctx, "attendance write failed",
			logger.String("identity", id.ID),
			logger.String("event_id", ev.ID),
			logger.Error(err))
		l.publish(ctx, FrameError{Reason: ErrReasonLedger, Err: err})
		return
	}

	metrics.RecordLedgerWrite(string(outcome))
	if outcome == ledger.OutcomeRecorded {
		l.logger.Info(ctx, "attendance marked",
			logger.String("identity", id.ID),
			logger.String("name", id.Name()),
			logger.String("date", ev.Date()),
			logger.String("time", ev.Time()))
	} else {
		l.logger.Debug(ctx, "attendance already recorded today", logger.String("identity", id.ID))
	}

	l.publish(ctx, AttendanceMarked{
		EventID:     ev.ID,
		IdentityID:  ev.IdentityID,
		DisplayName: ev.DisplayName,
		At:          ev.At,
		Outcome:     outcome,
	})
}

func (l *Loop) frameError(ctx context.Context, seq uint64, reason string, err error) {
	l.frameErrors.Add(1)
	metrics.RecordFrameError(reason)
	l.logger.Warn(ctx, "frame skipped",
		logger.Uint64("seq", seq),
		logger.String("reason", reason),
		logger.Error(err))
	l.publish(ctx, FrameError{Seq: seq, Reason: reason, Err: err})
}

func (l *Loop) publish(ctx context.Context, msg Message) {
	if l.deps.Out == nil {
		return
	}
	if !l.deps.Out.Enqueue(ctx, msg) {
		l.logger.Debug(ctx, "output closed, message dropped", logger.String("type", fmt.Sprintf("%T", msg)))
	}
}
