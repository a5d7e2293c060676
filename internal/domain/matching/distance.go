package matching

import (
	"math"

	"github.com/okian/presence/internal/domain/model"
)

// Distance is the Euclidean distance between two embeddings.
// Embeddings of different or zero length are infinitely far apart.
func Distance(a, b model.Embedding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
