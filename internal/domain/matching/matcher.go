// Package matching turns a query embedding into an identity decision.
package matching

import (
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/model"
)

// Result is the outcome of matching one query.
// Identity is set only when the best distance is within tolerance.
type Result struct {
	Identity *model.Identity
	Distance float64
	Accepted bool
}

// Matcher picks the nearest gallery entry and applies the tolerance.
type Matcher struct {
	tolerance float64
	index     Index
}

// New creates a Matcher. Distances <= tolerance are accepted.
func New(tolerance float64, opts ...Option) *Matcher {
	m := &Matcher{tolerance: tolerance, index: LinearIndex{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tolerance returns the acceptance threshold.
func (m *Matcher) Tolerance() float64 { return m.tolerance }

// Match compares query against the snapshot. An empty snapshot yields an
// unaccepted result at +Inf. When an approximate index rejects the query the
// snapshot is scanned exactly before the face is reported unknown.
func (m *Matcher) Match(query model.Embedding, snap *gallery.Snapshot) Result {
	idx, dist := m.index.Nearest(query, snap)
	if idx < 0 || dist > m.tolerance {
		if _, exact := m.index.(LinearIndex); !exact {
			idx, dist = LinearIndex{}.Nearest(query, snap)
		}
	}
	if idx < 0 || dist > m.tolerance {
		return Result{Distance: dist}
	}
	id := snap.Entries[idx].Identity
	return Result{Identity: &id, Distance: dist, Accepted: true}
}
