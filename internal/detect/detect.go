// Package detect implements the unsupervised anomaly detectors used by the
// batch analysis pipeline. All detectors fit on the batch itself and share a
// common interface so the ensemble can treat them uniformly.
package detect

import (
	"math"
	"sort"

	"github.com/openathletics/stridewatch/internal/features"
)

// Detector fits on a feature matrix and flags anomalous rows.
type Detector interface {
	Name() string
	FitPredict(m *features.Matrix) ([]bool, error)
}

// EffectiveContamination adjusts the configured anomaly fraction for small
// batches, where a fixed fraction would flag zero rows.
func EffectiveContamination(n int, configured float64, smallBatch int) float64 {
	if n <= 0 {
		return configured
	}
	if n < smallBatch {
		return math.Max(1.0/float64(n), configured)
	}
	return configured
}

// quantile returns the q-th quantile of xs using linear interpolation
// between order statistics. xs is not modified.
func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// euclidean returns the distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
