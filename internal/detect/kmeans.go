package detect

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/openathletics/stridewatch/internal/features"
)

// KMeansDistance clusters the batch and flags points unusually far from
// their assigned centroid.
type KMeansDistance struct {
	MaxClusters int
	Restarts    int
	Seed        int64

	// DistanceQuantile is the percentile of centroid distances used as the
	// flag threshold.
	DistanceQuantile float64
}

// NewKMeansDistance returns a distance-to-centroid detector.
func NewKMeansDistance(maxClusters int, seed int64) *KMeansDistance {
	if maxClusters <= 0 {
		maxClusters = 4
	}
	return &KMeansDistance{
		MaxClusters:      maxClusters,
		Restarts:         10,
		Seed:             seed,
		DistanceQuantile: 0.95,
	}
}

func (d *KMeansDistance) Name() string { return "kmeans" }

// clusterCount picks k for a batch of n rows: 2 for tiny batches, otherwise
// up to MaxClusters but never more than half the batch, and always below n.
func (d *KMeansDistance) clusterCount(n int) int {
	k := 2
	if n > 3 {
		k = n / 2
		if k > d.MaxClusters {
			k = d.MaxClusters
		}
	}
	if k > n-1 {
		k = n - 1
	}
	if k < 1 {
		k = 1
	}
	return k
}

// FitPredict clusters m and flags rows strictly beyond the distance
// quantile of their centroid distances.
func (d *KMeansDistance) FitPredict(m *features.Matrix) ([]bool, error) {
	n := m.Rows()
	if n == 0 {
		return nil, fmt.Errorf("kmeans: empty matrix")
	}

	k := d.clusterCount(n)
	rng := rand.New(rand.NewSource(d.Seed))

	var bestCentroids [][]float64
	bestInertia := math.Inf(1)
	for r := 0; r < d.Restarts; r++ {
		centroids, inertia := lloyd(m.Data, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestCentroids = centroids
		}
	}

	dists := make([]float64, n)
	for i, vec := range m.Data {
		dists[i] = nearestDistance(vec, bestCentroids)
	}

	threshold := quantile(dists, d.DistanceQuantile)
	flags := make([]bool, n)
	for i, dd := range dists {
		flags[i] = dd > threshold
	}
	return flags, nil
}

// lloyd runs one k-means pass with random initial centroids and returns the
// final centroids and total inertia.
func lloyd(data [][]float64, k int, rng *rand.Rand) ([][]float64, float64) {
	n := len(data)
	dims := len(data[0])

	centroids := make([][]float64, k)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float64(nil), data[perm[i%n]]...)
	}

	assign := make([]int, n)
	for iter := 0; iter < 100; iter++ {
		changed := false
		for i, vec := range data {
			best, bestDist := 0, math.Inf(1)
			for c, cent := range centroids {
				if dd := euclidean(vec, cent); dd < bestDist {
					best, bestDist = c, dd
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, vec := range data {
			c := assign[i]
			counts[c]++
			for j, v := range vec {
				sums[c][j] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Re-seed empty clusters from a random point.
				centroids[c] = append([]float64(nil), data[rng.Intn(n)]...)
				continue
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	var inertia float64
	for _, vec := range data {
		dd := nearestDistance(vec, centroids)
		inertia += dd * dd
	}
	return centroids, inertia
}

func nearestDistance(vec []float64, centroids [][]float64) float64 {
	best := math.Inf(1)
	for _, cent := range centroids {
		if d := euclidean(vec, cent); d < best {
			best = d
		}
	}
	return best
}
