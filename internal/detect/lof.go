package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/openathletics/stridewatch/internal/features"
)

// LOF flags points whose local density is low relative to their neighbors.
type LOF struct {
	Neighbors     int // cap; effective k is min(Neighbors, n-1)
	Contamination float64
}

// NewLOF returns a local outlier factor detector with the given neighbor cap.
func NewLOF(neighbors int, contamination float64) *LOF {
	if neighbors <= 0 {
		neighbors = 20
	}
	return &LOF{Neighbors: neighbors, Contamination: contamination}
}

func (l *LOF) Name() string { return "lof" }

// lofEpsilon guards the flag threshold so batches of identical points,
// where every factor degenerates to one, never flag.
const lofEpsilon = 1e-9

// FitPredict computes local outlier factors and flags rows strictly above
// the contamination quantile.
func (l *LOF) FitPredict(m *features.Matrix) ([]bool, error) {
	_, flags, err := l.FitScore(m)
	return flags, err
}

// FitScore returns the continuous outlier factor per row alongside the
// flags. A factor near 1 means the row sits at its neighbors' density;
// larger factors mean sparser surroundings.
func (l *LOF) FitScore(m *features.Matrix) ([]float64, []bool, error) {
	n := m.Rows()
	if n < 2 {
		return nil, nil, fmt.Errorf("lof: need at least 2 rows, got %d", n)
	}

	k := l.Neighbors
	if k > n-1 {
		k = n - 1
	}

	// Pairwise distances and k-nearest neighbor lists.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(m.Data[i], m.Data[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	neighbors := make([][]int, n)
	kDist := make([]float64, n)
	for i := 0; i < n; i++ {
		order := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				order = append(order, j)
			}
		}
		sort.Slice(order, func(a, b int) bool {
			return dist[i][order[a]] < dist[i][order[b]]
		})
		neighbors[i] = order[:k]
		kDist[i] = dist[i][order[k-1]]
	}

	// Local reachability density.
	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, j := range neighbors[i] {
			sum += math.Max(kDist[j], dist[i][j])
		}
		avg := sum / float64(k)
		if avg == 0 {
			lrd[i] = math.Inf(1)
		} else {
			lrd[i] = 1 / avg
		}
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, j := range neighbors[i] {
			ratio := lrd[j] / lrd[i]
			if math.IsNaN(ratio) { // both densities infinite
				ratio = 1
			}
			sum += ratio
		}
		scores[i] = sum / float64(k)
	}

	threshold := quantile(scores, 1-l.Contamination)
	flags := make([]bool, n)
	for i, s := range scores {
		flags[i] = s > threshold+lofEpsilon
	}
	return scores, flags, nil
}
