package classify

import (
	"testing"

	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
)

func row(steps, dist, speed, distPerStep float64) *features.Row {
	return &features.Row{
		Activity:    &domain.Activity{UserID: "user-001"},
		Steps:       steps,
		Distance:    dist,
		Speed:       speed,
		DistPerStep: distPerStep,
	}
}

// correlatedFiller returns unflagged rows whose steps and distance rise
// together, keeping the batch correlation rule quiet.
func correlatedFiller() []*features.Row {
	return []*features.Row{
		row(8000, 6.0, 6.0, 0.00075),
		row(9000, 7.0, 6.5, 0.00078),
		row(10000, 8.0, 7.0, 0.0008),
		row(11000, 9.0, 7.5, 0.00082),
	}
}

func TestAssign(t *testing.T) {
	t.Run("UnflaggedRowsGetNoCategory", func(t *testing.T) {
		rows := correlatedFiller()
		flagged := make([]bool, len(rows))

		categories := Assign(rows, flagged)
		for i, cat := range categories {
			if cat != "" {
				t.Errorf("row %d: expected empty category, got %s", i, cat)
			}
		}
	})

	t.Run("VehicleSpeed", func(t *testing.T) {
		rows := append(correlatedFiller(), row(5000, 15.0, 15.0, 0.003))
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudVehicleUse {
			t.Errorf("expected %s, got %s", domain.FraudVehicleUse, categories[4])
		}
	})

	t.Run("RouteShortcut", func(t *testing.T) {
		// Baseline-relative rule: speed and stride both far above the
		// user's own history, at a pace still below vehicle speed.
		r := row(6000, 7.0, 11.0, 0.0009)
		r.HasBaseline = true
		r.SpeedDev = 3.0
		r.DistPerStepDev = 2.5

		rows := append(correlatedFiller(), r)
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudRouteShortcut {
			t.Errorf("expected %s, got %s", domain.FraudRouteShortcut, categories[4])
		}
	})

	t.Run("StepMisreportingWithoutBaseline", func(t *testing.T) {
		rows := append(correlatedFiller(), row(3000, 6.0, 7.0, 0.002))
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudStepMisreporting {
			t.Errorf("expected %s, got %s", domain.FraudStepMisreporting, categories[4])
		}
	})

	t.Run("StrideWithinOwnBaselineFallsThrough", func(t *testing.T) {
		// A long stride that matches the user's own history is not step
		// misreporting. Nothing else matches, so the fallback applies.
		r := row(3000, 6.0, 7.0, 0.002)
		r.HasBaseline = true
		r.DistPerStepDev = 0.5

		rows := append(correlatedFiller(), r)
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudAnomalousPattern {
			t.Errorf("expected %s, got %s", domain.FraudAnomalousPattern, categories[4])
		}
	})

	t.Run("AbnormalHeartRate", func(t *testing.T) {
		r := row(12000, 9.0, 7.0, 0.00075)
		r.HasHR = true
		r.HeartRate = 50

		rows := append(correlatedFiller(), r)
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudAbnormalHeartRate {
			t.Errorf("expected %s, got %s", domain.FraudAbnormalHeartRate, categories[4])
		}
	})

	t.Run("BatchCorrelationBreakdown", func(t *testing.T) {
		// Steps and distance move in opposite directions across the batch,
		// so the flagged row with no stronger signal lands on correlation.
		rows := []*features.Row{
			row(8000, 9.0, 6.0, 0.001125),
			row(9000, 8.0, 6.5, 0.00089),
			row(10000, 7.0, 7.0, 0.0007),
			row(11000, 6.0, 7.5, 0.00055),
		}
		flagged := []bool{false, false, true, false}

		categories := Assign(rows, flagged)
		if categories[2] != domain.FraudAbnormalCorr {
			t.Errorf("expected %s, got %s", domain.FraudAbnormalCorr, categories[2])
		}
	})

	t.Run("DefaultAnomalousPattern", func(t *testing.T) {
		rows := append(correlatedFiller(), row(9500, 7.5, 6.8, 0.00079))
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudAnomalousPattern {
			t.Errorf("expected %s, got %s", domain.FraudAnomalousPattern, categories[4])
		}
	})

	t.Run("FirstMatchWins", func(t *testing.T) {
		// Vehicle speed takes priority even when the stride rule would also
		// match.
		rows := append(correlatedFiller(), row(3000, 14.0, 14.0, 0.0047))
		flagged := []bool{false, false, false, false, true}

		categories := Assign(rows, flagged)
		if categories[4] != domain.FraudVehicleUse {
			t.Errorf("expected %s, got %s", domain.FraudVehicleUse, categories[4])
		}
	})
}
