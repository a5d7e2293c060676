package matching

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/model"
)

// Index finds the gallery entry nearest to a query.
// It returns the entry position in the snapshot, or -1 with +Inf when none qualifies.
type Index interface {
	Nearest(query model.Embedding, snap *gallery.Snapshot) (int, float64)
}

// LinearIndex scans every entry. Ties go to the earliest entry.
type LinearIndex struct{}

// Nearest implements Index.
func (LinearIndex) Nearest(query model.Embedding, snap *gallery.Snapshot) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	if snap == nil {
		return best, bestDist
	}
	for i := range snap.Entries {
		d := Distance(query, snap.Entries[i].Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Graph parameters for HNSWIndex.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 100
)

// HNSWIndex narrows the search with an approximate graph, then re-ranks the
// candidates exactly. The tie rule matches LinearIndex only among the
// candidates; an equally near entry the graph did not return is not seen.
// Matcher falls back to a linear scan whenever the approximate result is
// rejected, so an entry within tolerance is never missed.
type HNSWIndex struct {
	mu         sync.Mutex
	candidates int
	graph      *hnsw.Graph[int]
	dims       int
	indexed    int
	version    uint64
}

// NewHNSWIndex creates an index that re-ranks the given number of candidates.
func NewHNSWIndex(candidates int) *HNSWIndex {
	if candidates < 1 {
		candidates = 1
	}
	return &HNSWIndex{candidates: candidates}
}

// Nearest implements Index.
func (h *HNSWIndex) Nearest(query model.Embedding, snap *gallery.Snapshot) (int, float64) {
	if snap.Len() <= h.candidates {
		return LinearIndex{}.Nearest(query, snap)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.syncLocked(snap)
	if h.graph == nil || len(query) != h.dims {
		return -1, math.Inf(1)
	}

	nodes := h.graph.Search([]float32(query), h.candidates)
	keys := make([]int, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}
	sort.Ints(keys)

	best, bestDist := -1, math.Inf(1)
	for _, k := range keys {
		d := Distance(query, snap.Entries[k].Embedding)
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best, bestDist
}

// Size returns how many entries the graph holds.
func (h *HNSWIndex) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.indexed
}

// syncLocked brings the graph up to the snapshot version. The gallery is
// append-only, so a newer snapshot only needs its tail added.
func (h *HNSWIndex) syncLocked(snap *gallery.Snapshot) {
	if h.graph != nil && snap.Version == h.version {
		return
	}
	if h.graph == nil || snap.Len() < h.indexed {
		h.graph = hnsw.NewGraph[int]()
		h.graph.M = hnswMaxNeighbors
		h.graph.Ml = 1.0 / float64(hnswMaxNeighbors)
		h.graph.EfSearch = max(hnswEfSearch, h.candidates)
		h.graph.Distance = hnsw.EuclideanDistance
		h.dims = len(snap.Entries[0].Embedding)
		h.indexed = 0
	}
	for i := h.indexed; i < len(snap.Entries); i++ {
		if len(snap.Entries[i].Embedding) != h.dims {
			continue
		}
		h.graph.Add(hnsw.MakeNode(i, []float32(snap.Entries[i].Embedding)))
	}
	h.indexed = len(snap.Entries)
	h.version = snap.Version
}
