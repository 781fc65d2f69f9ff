package validate

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
)

func testConfig() domain.ValidationConfig {
	return domain.ValidationConfig{
		RejectThreshold:        70,
		ReviewThreshold:        40,
		DeviationSigma:         3,
		Contamination:          0.1,
		MinHistoryForDetectors: 5,
		HistoryLimit:           100,
	}
}

func rec(steps, dist, minutes float64) *domain.Activity {
	return &domain.Activity{
		ID:            "act-001",
		UserID:        "user-001",
		TotalSteps:    steps,
		TotalDistance: dist,
		TimeTaken:     minutes,
		Timestamp:     time.Now().UTC(),
	}
}

func TestGate(t *testing.T) {
	v := New(testConfig())

	tests := []struct {
		name string
		act  *domain.Activity
	}{
		{"NegativeSteps", rec(-100, 5, 60)},
		{"NegativeDistance", rec(5000, -2, 60)},
		{"ZeroDuration", rec(5000, 4, 0)},
		{"ImpossibleStride", rec(1000, 2.5, 60)}, // 2.5m per step
		{"VehicleGateSpeed", &domain.Activity{
			ID: "act-001", UserID: "user-001",
			TotalSteps: 5000, TotalDistance: 30, TimeTaken: 60, AvgSpeed: 30,
			Timestamp: time.Now().UTC(),
		}},
		{"HeartRateTooHigh", &domain.Activity{
			ID: "act-001", UserID: "user-001",
			TotalSteps: 5000, TotalDistance: 4, TimeTaken: 60, AvgHeartRate: 250,
			Timestamp: time.Now().UTC(),
		}},
		{"HeartRateTooLow", &domain.Activity{
			ID: "act-001", UserID: "user-001",
			TotalSteps: 5000, TotalDistance: 4, TimeTaken: 60, AvgHeartRate: 30,
			Timestamp: time.Now().UTC(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.act, nil)

			if result.ApprovalStatus != domain.StatusRejected {
				t.Errorf("expected REJECTED, got %s", result.ApprovalStatus)
			}
			if result.FraudRisk != 100 {
				t.Errorf("expected risk 100, got %.1f", result.FraudRisk)
			}
			if result.FraudType != domain.FraudInvalidData {
				t.Errorf("expected %s, got %s", domain.FraudInvalidData, result.FraudType)
			}
		})
	}
}

func TestAbsoluteChecks(t *testing.T) {
	v := New(testConfig())

	t.Run("CleanRecordApproved", func(t *testing.T) {
		result := v.Validate(rec(9000, 6.5, 70), nil)

		if result.ApprovalStatus != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s", result.ApprovalStatus)
		}
		if result.FraudRisk != 0 {
			t.Errorf("expected risk 0, got %.1f", result.FraudRisk)
		}
		if result.FraudType != domain.FraudNone {
			t.Errorf("expected %s, got %s", domain.FraudNone, result.FraudType)
		}
		if result.ReviewNote != "Activity record passed all validation checks" {
			t.Errorf("unexpected note: %q", result.ReviewNote)
		}
	})

	t.Run("HighSpeedVehicle", func(t *testing.T) {
		// 22 km/h sits between the gate (25) and the high threshold (20).
		result := v.Validate(rec(15000, 22, 60), nil)

		if result.FraudRisk != 90 {
			t.Errorf("expected risk 90, got %.1f", result.FraudRisk)
		}
		if result.FraudType != domain.FraudVehicleUse {
			t.Errorf("expected %s, got %s", domain.FraudVehicleUse, result.FraudType)
		}
		if result.ApprovalStatus != domain.StatusRejected {
			t.Errorf("expected REJECTED, got %s", result.ApprovalStatus)
		}
	})

	t.Run("ElevatedSpeed", func(t *testing.T) {
		// 17 km/h: elite but implausible for a tracked walk/run.
		result := v.Validate(rec(15000, 17, 60), nil)

		if result.FraudRisk != 70 {
			t.Errorf("expected risk 70, got %.1f", result.FraudRisk)
		}
		if result.ApprovalStatus != domain.StatusRejected {
			t.Errorf("risk at the reject threshold must reject, got %s", result.ApprovalStatus)
		}
	})

	t.Run("LongStride", func(t *testing.T) {
		// 1.6m per step over a slow hour.
		result := v.Validate(rec(5000, 8, 120), nil)

		if result.FraudRisk != 80 {
			t.Errorf("expected risk 80, got %.1f", result.FraudRisk)
		}
		if result.FraudType != domain.FraudStepMisreporting {
			t.Errorf("expected %s, got %s", domain.FraudStepMisreporting, result.FraudType)
		}
	})

	t.Run("ElevatedStridePending", func(t *testing.T) {
		// 1.2m per step scores 60, between review (40) and reject (70).
		result := v.Validate(rec(5000, 6, 120), nil)

		if result.FraudRisk != 60 {
			t.Errorf("expected risk 60, got %.1f", result.FraudRisk)
		}
		if result.ApprovalStatus != domain.StatusPending {
			t.Errorf("expected PENDING, got %s", result.ApprovalStatus)
		}
	})

	t.Run("ImpossibleCadence", func(t *testing.T) {
		// 300 steps per minute at an otherwise plausible pace.
		result := v.Validate(rec(18000, 10, 60), nil)

		if result.FraudRisk != 75 {
			t.Errorf("expected risk 75, got %.1f", result.FraudRisk)
		}
		if result.FraudType != domain.FraudStepMisreporting {
			t.Errorf("expected %s, got %s", domain.FraudStepMisreporting, result.FraudType)
		}
	})

	t.Run("RestingHeartRateHighSteps", func(t *testing.T) {
		act := rec(12000, 8, 100)
		act.AvgHeartRate = 55

		result := v.Validate(act, nil)

		if result.FraudRisk != 85 {
			t.Errorf("expected risk 85, got %.1f", result.FraudRisk)
		}
		if result.FraudType != domain.FraudAbnormalHeartRate {
			t.Errorf("expected %s, got %s", domain.FraudAbnormalHeartRate, result.FraudType)
		}
	})

	t.Run("MultipleFindingsJoinNotes", func(t *testing.T) {
		// Elevated stride plus resting heart rate: risk is the max finding,
		// not a sum, and both notes appear.
		act := rec(12000, 14.0, 120)
		act.AvgHeartRate = 55

		result := v.Validate(act, nil)

		if result.FraudRisk != 85 {
			t.Errorf("expected max finding risk 85, got %.1f", result.FraudRisk)
		}
		if !strings.Contains(result.ReviewNote, "; ") {
			t.Errorf("expected joined notes, got %q", result.ReviewNote)
		}
	})

}

// steadyHistory returns n identical prior activities at 9000 steps over
// 7.2 km in an hour.
func steadyHistory(n int) []*domain.Activity {
	history := make([]*domain.Activity, n)
	for i := range history {
		history[i] = &domain.Activity{
			ID:            fmt.Sprintf("h%d", i),
			UserID:        "user-001",
			TotalSteps:    9000,
			TotalDistance: 7.2,
			TimeTaken:     60,
			Timestamp:     time.Now().UTC().Add(-time.Duration(n-i) * 24 * time.Hour),
		}
	}
	return history
}

func TestHistoryChecks(t *testing.T) {
	v := New(testConfig())

	t.Run("WithinBaselineApproved", func(t *testing.T) {
		history := []*domain.Activity{
			{ID: "h1", UserID: "user-001", TotalSteps: 8000, TotalDistance: 6.4, TimeTaken: 60, Timestamp: time.Now().UTC().Add(-72 * time.Hour)},
			{ID: "h2", UserID: "user-001", TotalSteps: 9000, TotalDistance: 7.2, TimeTaken: 60, Timestamp: time.Now().UTC().Add(-48 * time.Hour)},
			{ID: "h3", UserID: "user-001", TotalSteps: 10000, TotalDistance: 8.0, TimeTaken: 60, Timestamp: time.Now().UTC().Add(-24 * time.Hour)},
		}
		result := v.Validate(rec(9000, 7.2, 60), history)

		if result.ApprovalStatus != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s (note: %s)", result.ApprovalStatus, result.ReviewNote)
		}
		if result.FraudRisk != 0 {
			t.Errorf("expected risk 0, got %.1f", result.FraudRisk)
		}
	})

	t.Run("StepCountFarFromBaseline", func(t *testing.T) {
		// The baseline spans the history plus the new record. Against 12
		// steady records the 20000-step entry sits 3.3 sigma out; distance
		// and duration scale with it so stride and speed stay on baseline.
		result := v.Validate(rec(20000, 16.0, 400.0/3), steadyHistory(12))

		if result.FraudRisk != 75 {
			t.Errorf("expected risk 75, got %.1f (note: %s)", result.FraudRisk, result.ReviewNote)
		}
		if result.FraudType != domain.FraudStepMisreporting {
			t.Errorf("expected %s, got %s", domain.FraudStepMisreporting, result.FraudType)
		}
		if result.ApprovalStatus != domain.StatusRejected {
			t.Errorf("expected REJECTED, got %s", result.ApprovalStatus)
		}
	})

	t.Run("SpeedFarFromBaseline", func(t *testing.T) {
		// Same steps and stride as every prior run, finished in half the
		// time. 14.4 km/h clears the gate but sits 3.3 sigma above the
		// user's 7.2 km/h routine.
		result := v.Validate(rec(9000, 7.2, 30), steadyHistory(12))

		if result.FraudRisk != 80 {
			t.Errorf("expected risk 80, got %.1f (note: %s)", result.FraudRisk, result.ReviewNote)
		}
		if result.FraudType != domain.FraudVehicleUse {
			t.Errorf("expected %s, got %s", domain.FraudVehicleUse, result.FraudType)
		}
		if result.ApprovalStatus != domain.StatusRejected {
			t.Errorf("expected REJECTED, got %s", result.ApprovalStatus)
		}
	})

	t.Run("OutlierAbsorbedByShortHistory", func(t *testing.T) {
		// With only two prior records the new record is part of its own
		// baseline, so a jump from 5000 to 9000 steps stays within 1.2
		// sigma of the combined set and passes.
		history := []*domain.Activity{
			{ID: "h1", UserID: "user-001", TotalSteps: 5000, TotalDistance: 4.0, TimeTaken: 55, Timestamp: time.Now().UTC().Add(-48 * time.Hour)},
			{ID: "h2", UserID: "user-001", TotalSteps: 5100, TotalDistance: 4.1, TimeTaken: 56, Timestamp: time.Now().UTC().Add(-24 * time.Hour)},
		}
		result := v.Validate(rec(9000, 7.2, 75), history)

		if result.ApprovalStatus != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s (note: %s)", result.ApprovalStatus, result.ReviewNote)
		}
		if result.FraudRisk != 0 {
			t.Errorf("expected risk 0, got %.1f", result.FraudRisk)
		}
	})

	t.Run("SinglePriorRecordScreensAgainstBaseline", func(t *testing.T) {
		// A 266 steps/min record would fail the absolute cadence check,
		// but one matching prior record routes it to the baseline path
		// where it is consistent with the user's history.
		prior := &domain.Activity{
			ID: "h1", UserID: "user-001",
			TotalSteps: 16000, TotalDistance: 18, TimeTaken: 60,
			Timestamp: time.Now().UTC().Add(-24 * time.Hour),
		}
		result := v.Validate(rec(16000, 18, 60), []*domain.Activity{prior})

		if result.ApprovalStatus != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s (note: %s)", result.ApprovalStatus, result.ReviewNote)
		}
		if result.FraudRisk != 0 {
			t.Errorf("expected risk 0, got %.1f", result.FraudRisk)
		}
	})
}
