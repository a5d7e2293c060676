package pipeline_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/adapters/mq/queue"
	"github.com/okian/presence/internal/adapters/source"
	"github.com/okian/presence/internal/annotate"
	"github.com/okian/presence/internal/domain/cooldown"
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/internal/pipeline"
	"github.com/okian/presence/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 9, 2, 9, 0, 0, 0, time.Local)

// scriptedSource replays results in order, then reports closed.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []step
	pos     int
	closed  atomic.Bool
	blockAt int
	block   chan struct{}
}

type step struct {
	frame model.Frame
	err   error
}

func (s *scriptedSource) Next(ctx context.Context) (model.Frame, error) {
	s.mu.Lock()
	pos := s.pos
	s.pos++
	s.mu.Unlock()

	if s.block != nil && pos >= s.blockAt {
		select {
		case <-s.block:
		case <-ctx.Done():
			return model.Frame{}, source.ErrNoFrame
		}
	}
	if s.closed.Load() {
		return model.Frame{}, source.ErrSourceClosed
	}
	if pos >= len(s.steps) {
		return model.Frame{}, source.ErrSourceClosed
	}
	return s.steps[pos].frame, s.steps[pos].err
}

func (s *scriptedSource) Close() error {
	s.closed.Store(true)
	return nil
}

// faceDetector returns the faces scripted per frame sequence number.
type faceDetector struct {
	faces map[uint64][]model.Face
	err   map[uint64]error
}

func (d *faceDetector) Detect(_ context.Context, f model.Frame) ([]model.Face, error) {
	if err := d.err[f.Seq]; err != nil {
		return nil, err
	}
	return d.faces[f.Seq], nil
}

type failingLedger struct {
	calls atomic.Int32
}

func (l *failingLedger) RecordPresent(context.Context, model.AttendanceEvent) (ledger.Outcome, error) {
	l.calls.Add(1)
	return "", errors.New("ledger offline")
}

func (l *failingLedger) Query(context.Context, *string) ([]model.AttendanceRecord, error) {
	return nil, nil
}

func frameAt(seq uint64, offset time.Duration) model.Frame {
	return model.Frame{Seq: seq, CapturedAt: t0.Add(offset), Image: image.NewRGBA(image.Rect(0, 0, 120, 60))}
}

func face(x int, emb ...float32) model.Face {
	return model.Face{Box: image.Rect(x, 10, x+30, 50), Embedding: emb}
}

type harness struct {
	gallery *gallery.Gallery
	tracker *cooldown.Tracker
	ledger  ledger.Ledger
	out     *queue.InMemoryQueue[pipeline.Message]
}

func newHarness() *harness {
	g := gallery.New(gallery.WithDimension(2), gallery.WithLogger(logger.Nop()))
	_ = g.Add(model.Identity{ID: "S1", DisplayName: "Ada"}, model.Embedding{0, 0})
	_ = g.Add(model.Identity{ID: "S2", DisplayName: "Bob"}, model.Embedding{10, 10})
	return &harness{
		gallery: g,
		tracker: cooldown.New(5 * time.Second),
		ledger:  ledger.NewMemory(),
		out:     queue.NewInMemoryQueue[pipeline.Message](queue.WithCapacity(256)),
	}
}

func (h *harness) loop(src source.Source, det pipeline.Detector, opts ...pipeline.Option) *pipeline.Loop {
	opts = append([]pipeline.Option{pipeline.WithLogger(logger.Nop()), pipeline.WithRetryDelay(0)}, opts...)
	return pipeline.New(src, pipeline.Deps{
		Detector: det,
		Matcher:  matching.New(0.6),
		Gallery:  h.gallery,
		Tracker:  h.tracker,
		Ledger:   h.ledger,
		Out:      h.out,
	}, opts...)
}

func (h *harness) drain() []pipeline.Message {
	var out []pipeline.Message
	for {
		select {
		case m := <-h.out.Dequeue():
			out = append(out, m)
		default:
			return out
		}
	}
}

func marks(msgs []pipeline.Message) []pipeline.AttendanceMarked {
	var out []pipeline.AttendanceMarked
	for _, m := range msgs {
		if a, ok := m.(pipeline.AttendanceMarked); ok {
			out = append(out, a)
		}
	}
	return out
}

func frames(msgs []pipeline.Message) []pipeline.FrameReady {
	var out []pipeline.FrameReady
	for _, m := range msgs {
		if f, ok := m.(pipeline.FrameReady); ok {
			out = append(out, f)
		}
	}
	return out
}

func TestLoopCooldownScenario(t *testing.T) {
	Convey("Given S1 seen at 0s, 2s and 6s with a 5s cooldown", t, func() {
		h := newHarness()
		src := &scriptedSource{steps: []step{
			{frame: frameAt(1, 0)},
			{frame: frameAt(2, 2*time.Second)},
			{frame: frameAt(3, 6*time.Second)},
		}}
		det := &faceDetector{faces: map[uint64][]model.Face{
			1: {face(10, 0.1, 0)},
			2: {face(10, 0.05, 0.05)},
			3: {face(10, 0, 0.1)},
		}}

		Convey("When the loop runs to the end of the source", func() {
			l := h.loop(src, det)
			l.Run(context.Background())
			msgs := h.drain()

			Convey("Then attendance triggers at 0s and 6s only", func() {
				m := marks(msgs)
				So(len(m), ShouldEqual, 2)
				So(m[0].IdentityID, ShouldEqual, "S1")
				So(m[0].At, ShouldEqual, t0)
				So(m[0].Outcome, ShouldEqual, ledger.OutcomeRecorded)
				So(m[1].At, ShouldEqual, t0.Add(6*time.Second))
				So(m[1].Outcome, ShouldEqual, ledger.OutcomeAlreadyRecorded)
			})

			Convey("And every frame still lists S1 as recognized", func() {
				f := frames(msgs)
				So(len(f), ShouldEqual, 3)
				for _, fr := range f {
					So(fr.Recognized, ShouldResemble, []string{"Ada"})
				}
			})

			Convey("And the run ends because the source closed", func() {
				last := msgs[len(msgs)-1]
				So(last, ShouldResemble, pipeline.CaptureStopped{Reason: pipeline.ReasonSourceClosed})
				So(src.closed.Load(), ShouldBeTrue)
				So(l.Counters().Triggered, ShouldEqual, 2)
				So(l.Counters().Suppressed, ShouldEqual, 1)
			})

			Convey("And the ledger holds one record for the day", func() {
				recs, err := h.ledger.Query(context.Background(), nil)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
			})
		})
	})
}

func TestLoopMixedFaces(t *testing.T) {
	Convey("Given a frame with two known faces and one unknown", t, func() {
		h := newHarness()
		src := &scriptedSource{steps: []step{{frame: frameAt(1, 0)}}}
		det := &faceDetector{faces: map[uint64][]model.Face{
			1: {face(0, 0, 0.1), face(40, 10, 10), face(80, 5, 5)},
		}}

		Convey("When it is processed", func() {
			h.loop(src, det).Run(context.Background())
			msgs := h.drain()

			Convey("Then exactly two attendance events are issued", func() {
				So(len(marks(msgs)), ShouldEqual, 2)
			})

			Convey("And the annotation has two green boxes and one red", func() {
				fr := frames(msgs)[0]
				So(fr.Faces, ShouldEqual, 3)
				known := 0
				for _, d := range fr.Detections {
					if d.Known() {
						known++
					}
				}
				So(known, ShouldEqual, 2)
				img := fr.Annotated.(*image.RGBA)
				So(img.RGBAAt(0, 30), ShouldResemble, annotate.KnownColor)
				So(img.RGBAAt(40, 30), ShouldResemble, annotate.KnownColor)
				So(img.RGBAAt(80, 30), ShouldResemble, annotate.UnknownColor)
			})

			Convey("And the unknown face is not tracked", func() {
				So(h.tracker.Len(), ShouldEqual, 2)
			})
		})
	})
}

func TestLoopErrors(t *testing.T) {
	Convey("Given a source with a dropped frame and a detector failure", t, func() {
		h := newHarness()
		src := &scriptedSource{steps: []step{
			{err: source.ErrNoFrame},
			{frame: frameAt(2, 0)},
			{frame: frameAt(3, time.Second)},
		}}
		det := &faceDetector{
			faces: map[uint64][]model.Face{3: {face(0, 0, 0)}},
			err:   map[uint64]error{2: errors.New("extractor timeout")},
		}

		Convey("When the loop runs", func() {
			l := h.loop(src, det)
			l.Run(context.Background())
			msgs := h.drain()

			Convey("Then both failures are reported and the loop keeps going", func() {
				var reasons []string
				for _, m := range msgs {
					if fe, ok := m.(pipeline.FrameError); ok {
						reasons = append(reasons, fe.Reason)
					}
				}
				So(reasons, ShouldResemble, []string{pipeline.ErrReasonRead, pipeline.ErrReasonDetect})
				So(len(marks(msgs)), ShouldEqual, 1)
				So(l.Counters().FrameErrors, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a ledger that always fails", t, func() {
		h := newHarness()
		fl := &failingLedger{}
		h.ledger = fl
		src := &scriptedSource{steps: []step{
			{frame: frameAt(1, 0)},
			{frame: frameAt(2, time.Second)},
		}}
		det := &faceDetector{faces: map[uint64][]model.Face{
			1: {face(0, 0, 0)},
			2: {face(0, 0, 0)},
		}}

		Convey("When S1 is seen twice inside the window", func() {
			l := h.loop(src, det)
			l.Run(context.Background())

			Convey("Then only one write is attempted", func() {
				So(fl.calls.Load(), ShouldEqual, 1)
				So(l.Counters().LedgerError, ShouldEqual, 1)
				So(h.tracker.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestLoopStop(t *testing.T) {
	Convey("Given a loop blocked waiting for frames", t, func() {
		h := newHarness()
		src := &scriptedSource{
			steps:   []step{{frame: frameAt(1, 0)}},
			blockAt: 1,
			block:   make(chan struct{}),
		}
		det := &faceDetector{faces: map[uint64][]model.Face{}}
		l := h.loop(src, det, pipeline.WithFrameTimeout(20*time.Millisecond))
		go l.Run(context.Background())

		Convey("When shutdown is requested", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := l.Shutdown(ctx)

			Convey("Then it exits promptly and releases the source", func() {
				So(err, ShouldBeNil)
				So(src.closed.Load(), ShouldBeTrue)
				msgs := h.drain()
				So(msgs[len(msgs)-1], ShouldResemble, pipeline.CaptureStopped{Reason: pipeline.ReasonStopped})
			})

			Convey("And a second shutdown is harmless", func() {
				So(l.Shutdown(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given a running loop", t, func() {
		h := newHarness()
		src := &scriptedSource{blockAt: 0, block: make(chan struct{})}
		l := h.loop(src, &faceDetector{}, pipeline.WithFrameTimeout(time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		go l.Run(ctx)

		Convey("When its context is cancelled", func() {
			cancel()
			<-l.Done()

			Convey("Then it reports cancellation", func() {
				So(src.closed.Load(), ShouldBeTrue)
				msgs := h.drain()
				So(msgs[len(msgs)-1], ShouldResemble, pipeline.CaptureStopped{Reason: pipeline.ReasonCancelled})
			})
		})
	})
}

func TestLoopCooldownReset(t *testing.T) {
	Convey("Given S1 already triggered", t, func() {
		h := newHarness()
		h.tracker.Observe("S1", t0)
		src := &scriptedSource{steps: []step{{frame: frameAt(1, time.Second)}}}
		det := &faceDetector{faces: map[uint64][]model.Face{1: {face(0, 0, 0)}}}

		Convey("When a reset is queued before the loop runs", func() {
			So(h.tracker.Reset("S1"), ShouldBeTrue)
			h.loop(src, det).Run(context.Background())

			Convey("Then the next sighting triggers again", func() {
				So(len(marks(h.drain())), ShouldEqual, 1)
			})
		})

		Convey("When no reset is queued", func() {
			h.loop(src, det).Run(context.Background())

			Convey("Then the sighting is suppressed", func() {
				So(len(marks(h.drain())), ShouldEqual, 0)
			})
		})
	})
}
