package pipeline

import (
	"image"
	"time"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/domain/model"
)

// Stop reasons carried by CaptureStopped.
const (
	ReasonStopped      = "stopped"
	ReasonSourceClosed = "source_closed"
	ReasonCancelled    = "cancelled"
	ReasonPanic        = "panic"
)

// Frame error reasons carried by FrameError.
const (
	ErrReasonRead   = "read"
	ErrReasonDetect = "detect"
	ErrReasonLedger = "ledger"
)

// Message is an immutable value sent from the loop to its consumer.
type Message interface {
	message()
}

// FrameReady carries one processed frame.
type FrameReady struct {
	Seq        uint64
	At         time.Time
	Annotated  image.Image
	Recognized []string
	Faces      int
	Detections []model.Detection
}

// AttendanceMarked reports a ledger write issued for a trigger.
type AttendanceMarked struct {
	EventID     string
	IdentityID  string
	DisplayName string
	At          time.Time
	Outcome     ledger.Outcome
}

// FrameError reports a per-frame failure that the loop absorbed.
type FrameError struct {
	Seq    uint64
	Reason string
	Err    error
}

// CaptureStopped is the last message of a run.
type CaptureStopped struct {
	Reason string
}

// DisplayCleared tells the consumer to drop its current frame.
type DisplayCleared struct{}

func (FrameReady) message()       {}
func (AttendanceMarked) message() {}
func (FrameError) message()       {}
func (CaptureStopped) message()   {}
func (DisplayCleared) message()   {}
