// Package classify assigns fraud categories to records flagged by the
// anomaly ensemble. Rules form an ordered decision list: the first matching
// rule wins and later rules only see still-unclassified records.
package classify

import (
	"math"

	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
)

// Classification thresholds.
const (
	// vehicleSpeedKmh is a sustained pace no runner holds.
	vehicleSpeedKmh = 12.0

	// deviationCutoff is the baseline deviation beyond which speed or
	// stride metrics count as abnormal for a user.
	deviationCutoff = 2.0

	// strideKm is an implausible distance per step, in kilometers.
	strideKm = 0.001

	// lowHeartRate paired with high step counts suggests a device not
	// worn while steps accumulate.
	lowHeartRate = 60.0
	highSteps    = 10000.0

	// corrCutoff is the minimum plausible steps-to-distance correlation
	// across a batch.
	corrCutoff = 0.5
)

// Assign returns a fraud category per row; unflagged rows get an empty
// string. The steps-to-distance correlation rule is evaluated over the
// whole batch, not per user.
func Assign(rows []*features.Row, flagged []bool) []string {
	batchCorr := batchStepsDistanceCorr(rows)

	categories := make([]string, len(rows))
	for i, r := range rows {
		if !flagged[i] {
			continue
		}
		categories[i] = classifyOne(r, batchCorr)
	}
	return categories
}

func classifyOne(r *features.Row, batchCorr float64) string {
	switch {
	case r.Speed > vehicleSpeedKmh:
		return domain.FraudVehicleUse

	case r.HasBaseline && r.SpeedDev > deviationCutoff && r.DistPerStepDev > deviationCutoff:
		return domain.FraudRouteShortcut

	case r.DistPerStep > strideKm && (!r.HasBaseline || r.DistPerStepDev > deviationCutoff):
		return domain.FraudStepMisreporting

	case r.HasHR && r.HeartRate < lowHeartRate && r.Steps > highSteps:
		return domain.FraudAbnormalHeartRate

	case !math.IsNaN(batchCorr) && batchCorr < corrCutoff:
		return domain.FraudAbnormalCorr

	default:
		return domain.FraudAnomalousPattern
	}
}

func batchStepsDistanceCorr(rows []*features.Row) float64 {
	steps := make([]float64, len(rows))
	dist := make([]float64, len(rows))
	for i, r := range rows {
		steps[i] = r.Steps
		dist[i] = r.Distance
	}
	return features.Pearson(steps, dist)
}
