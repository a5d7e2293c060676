// Package cooldown rate-limits attendance writes per identity.
//
// The per-identity state is owned by a single goroutine (the pipeline loop):
// Observe, Drain and LastTrigger must only be called from it. Reset and
// ResetAll are safe from any goroutine; they enqueue commands that the owner
// applies on its next Drain.
package cooldown

import (
	"sync/atomic"
	"time"

	"github.com/okian/presence/pkg/metrics"
)

const defaultCommandBuffer = 64

// Decision is the outcome of observing a recognized identity.
type Decision int

const (
	// Suppress means the identity triggered within the window.
	Suppress Decision = iota
	// Trigger means an attendance write should be issued.
	Trigger
)

func (d Decision) String() string {
	if d == Trigger {
		return "trigger"
	}
	return "suppress"
}

type command struct {
	id  string
	all bool
}

// Tracker records the last trigger time per identity.
type Tracker struct {
	window     time.Duration
	last       map[string]time.Time
	size       atomic.Int64
	cmds       chan command
	bufferSize int
}

// New creates a Tracker with the given cooldown window.
func New(window time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		window:     window,
		last:       make(map[string]time.Time),
		bufferSize: defaultCommandBuffer,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.cmds = make(chan command, t.bufferSize)
	return t
}

// Window returns the configured cooldown window.
func (t *Tracker) Window() time.Duration { return t.window }

// Observe decides whether a sighting of id at now triggers a write.
// A gap strictly greater than the window triggers; Trigger records now.
func (t *Tracker) Observe(id string, now time.Time) Decision {
	if id == "" {
		return Suppress
	}
	last, ok := t.last[id]
	if ok && now.Sub(last) <= t.window {
		return Suppress
	}
	t.last[id] = now
	if !ok {
		n := t.size.Add(1)
		metrics.UpdateCooldownEntries(int(n))
	}
	return Trigger
}

// LastTrigger returns when id last triggered.
func (t *Tracker) LastTrigger(id string) (time.Time, bool) {
	ts, ok := t.last[id]
	return ts, ok
}

// Reset asks the owner to forget id. It returns false when the command
// buffer is full and the request was dropped.
func (t *Tracker) Reset(id string) bool {
	return t.enqueue(command{id: id})
}

// ResetAll asks the owner to forget every identity.
func (t *Tracker) ResetAll() bool {
	return t.enqueue(command{all: true})
}

func (t *Tracker) enqueue(c command) bool {
	select {
	case t.cmds <- c:
		return true
	default:
		return false
	}
}

// Drain applies pending reset commands and returns how many were applied.
func (t *Tracker) Drain() int {
	applied := 0
	for {
		select {
		case c := <-t.cmds:
			if c.all {
				clear(t.last)
			} else {
				delete(t.last, c.id)
			}
			applied++
		default:
			if applied > 0 {
				t.size.Store(int64(len(t.last)))
				metrics.UpdateCooldownEntries(len(t.last))
			}
			return applied
		}
	}
}

// Len returns the number of tracked identities. Safe from any goroutine.
func (t *Tracker) Len() int {
	return int(t.size.Load())
}
