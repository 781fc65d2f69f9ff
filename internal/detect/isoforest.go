package detect

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/openathletics/stridewatch/internal/features"
)

// IsolationForest isolates anomalies by random recursive partitioning.
// Anomalous points need fewer splits to isolate, so shorter average path
// lengths map to higher anomaly scores.
type IsolationForest struct {
	Trees         int
	SubsampleSize int
	Contamination float64
	Seed          int64
}

// NewIsolationForest returns a forest with the given tree count and seed.
func NewIsolationForest(trees int, contamination float64, seed int64) *IsolationForest {
	if trees <= 0 {
		trees = 100
	}
	return &IsolationForest{
		Trees:         trees,
		SubsampleSize: 256,
		Contamination: contamination,
		Seed:          seed,
	}
}

func (f *IsolationForest) Name() string { return "isolation_forest" }

type isoNode struct {
	left, right *isoNode
	splitDim    int
	splitVal    float64
	size        int // leaf sample count
}

// FitPredict fits the forest on m and flags rows whose anomaly score sits
// strictly above the contamination quantile.
func (f *IsolationForest) FitPredict(m *features.Matrix) ([]bool, error) {
	n := m.Rows()
	if n == 0 {
		return nil, fmt.Errorf("isolation forest: empty matrix")
	}

	rng := rand.New(rand.NewSource(f.Seed))
	psi := f.SubsampleSize
	if psi > n {
		psi = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi) + 1)))

	trees := make([]*isoNode, f.Trees)
	for t := 0; t < f.Trees; t++ {
		sample := make([][]float64, psi)
		for i := range sample {
			sample[i] = m.Data[rng.Intn(n)]
		}
		trees[t] = buildIsoTree(sample, 0, heightLimit, rng)
	}

	norm := avgPathLength(psi)
	scores := make([]float64, n)
	for i, vec := range m.Data {
		var sum float64
		for _, tree := range trees {
			sum += pathLength(tree, vec, 0)
		}
		avg := sum / float64(f.Trees)
		scores[i] = math.Pow(2, -avg/norm)
	}

	threshold := quantile(scores, 1-f.Contamination)
	flags := make([]bool, n)
	for i, s := range scores {
		flags[i] = s > threshold
	}
	return flags, nil
}

func buildIsoTree(sample [][]float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(sample) <= 1 {
		return &isoNode{size: len(sample)}
	}

	dims := len(sample[0])
	// Pick a dimension with spread; give up after a few tries so constant
	// data still terminates in a leaf.
	for attempt := 0; attempt < dims; attempt++ {
		dim := rng.Intn(dims)
		lo, hi := sample[0][dim], sample[0][dim]
		for _, v := range sample {
			if v[dim] < lo {
				lo = v[dim]
			}
			if v[dim] > hi {
				hi = v[dim]
			}
		}
		if hi <= lo {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)

		var left, right [][]float64
		for _, v := range sample {
			if v[dim] < split {
				left = append(left, v)
			} else {
				right = append(right, v)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			splitDim: dim,
			splitVal: split,
			left:     buildIsoTree(left, depth+1, limit, rng),
			right:    buildIsoTree(right, depth+1, limit, rng),
		}
	}
	return &isoNode{size: len(sample)}
}

func pathLength(node *isoNode, vec []float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if vec[node.splitDim] < node.splitVal {
		return pathLength(node.left, vec, depth+1)
	}
	return pathLength(node.right, vec, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}
