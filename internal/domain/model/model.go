// Package model contains domain models passed between layers.
package model

import (
	"image"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ledger formatting of attendance dates and times.
const (
	DateLayout    = "2006-01-02"
	TimeLayout    = "15:04:05"
	StatusPresent = "present"
)

// Identity is an enrolled person. Immutable once created.
type Identity struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Valid reports whether the identity has a non-blank id.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.ID) != ""
}

// Name returns the display name, falling back to the id.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.ID
}

// Embedding is a fixed-length face descriptor produced by the extractor.
type Embedding []float32

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Finite reports whether every component is a finite number.
func (e Embedding) Finite() bool {
	for _, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// GalleryEntry pairs an identity with one of its enrolled embeddings.
type GalleryEntry struct {
	Identity  Identity  `json:"identity" yaml:"identity"`
	Embedding Embedding `json:"embedding" yaml:"embedding,flow"`
}

// Face is a detected face in original frame coordinates.
type Face struct {
	Box       image.Rectangle
	Embedding Embedding
}

// Detection is a face after matching. Identity is nil for unknown faces.
type Detection struct {
	Box       image.Rectangle
	Embedding Embedding
	Identity  *Identity
	Distance  float64
}

// Known reports whether the detection matched an enrolled identity.
func (d Detection) Known() bool { return d.Identity != nil }

// Frame is one image pulled from a frame source. Never mutated after capture.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      image.Image
}

// AttendanceEvent is handed to the ledger when a recognition triggers.
type AttendanceEvent struct {
	ID          string
	IdentityID  string
	DisplayName string
	At          time.Time
	Status      string
}

// NewAttendanceEvent builds a "present" event for identity at the given instant.
func NewAttendanceEvent(identity Identity, at time.Time) AttendanceEvent {
	return AttendanceEvent{
		ID:          uuid.NewString(),
		IdentityID:  identity.ID,
		DisplayName: identity.Name(),
		At:          at,
		Status:      StatusPresent,
	}
}

// Date is the ledger day key of the event in local time.
func (e AttendanceEvent) Date() string { return e.At.Local().Format(DateLayout) }

// Time is the ledger time-of-day of the event in local time.
func (e AttendanceEvent) Time() string { return e.At.Local().Format(TimeLayout) }

// AttendanceRecord is one stored ledger row.
type AttendanceRecord struct {
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
