package features

import (
	"math"
	"testing"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
)

func act(userID string, steps, dist, minutes, hr float64, ts time.Time) *domain.Activity {
	return &domain.Activity{
		ID:            userID + "-" + ts.Format("20060102T1504"),
		UserID:        userID,
		TotalSteps:    steps,
		TotalDistance: dist,
		TimeTaken:     minutes,
		AvgHeartRate:  hr,
		Timestamp:     ts,
	}
}

func TestNormalize(t *testing.T) {
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	saturday := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)

	t.Run("DerivedFields", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{act("user-001", 10000, 8.0, 80, 135, monday)})
		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}
		r := rows[0]

		if got := r.Speed; math.Abs(got-6.0) > 1e-9 {
			t.Errorf("expected derived speed 6.0, got %.4f", got)
		}
		if got := r.DistPerStep; math.Abs(got-0.0008) > 1e-9 {
			t.Errorf("expected dist per step 0.0008, got %.6f", got)
		}
		if !r.HasHR {
			t.Error("expected HasHR for record with heart rate")
		}
		if math.Abs(r.HRPerStep-0.0135) > 1e-9 {
			t.Errorf("expected HR per step 0.0135, got %.6f", r.HRPerStep)
		}
		if math.Abs(r.HRSpeedRatio-22.5) > 1e-9 {
			t.Errorf("expected HR speed ratio 22.5, got %.4f", r.HRSpeedRatio)
		}
	})

	t.Run("MissingHeartRateStaysNaN", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{act("user-001", 8000, 6.0, 60, 0, monday)})
		r := rows[0]

		if r.HasHR {
			t.Error("zero heart rate must not count as a reading")
		}
		// Absence must stay distinguishable from a true zero.
		if !math.IsNaN(r.HRPerStep) || !math.IsNaN(r.HRSpeedRatio) {
			t.Errorf("expected NaN heart rate derivatives, got %.4f / %.4f", r.HRPerStep, r.HRSpeedRatio)
		}
	})

	t.Run("DayOfWeek", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 0, monday),
			act("user-001", 8000, 6.0, 60, 0, saturday),
		})

		if rows[0].DayOfWeek != 0 {
			t.Errorf("expected Monday index 0, got %.0f", rows[0].DayOfWeek)
		}
		if rows[0].Weekend != 0 {
			t.Error("Monday must not be flagged as weekend")
		}
		if rows[1].DayOfWeek != 5 {
			t.Errorf("expected Saturday index 5, got %.0f", rows[1].DayOfWeek)
		}
		if rows[1].Weekend != 1 {
			t.Error("Saturday must be flagged as weekend")
		}
	})

	t.Run("DeviationsUnsetWithoutBaseline", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{act("user-001", 8000, 6.0, 60, 0, monday)})
		r := rows[0]

		if r.HasBaseline {
			t.Error("fresh row must not carry a baseline")
		}
		if !math.IsNaN(r.StepDev) || !math.IsNaN(r.SpeedDev) {
			t.Error("expected NaN deviations before baseline attachment")
		}
	})
}

func TestStats(t *testing.T) {
	t.Run("SampleStdDev", func(t *testing.T) {
		// Sample (n-1) standard deviation of {2,4,4,4,5,5,7,9} is sqrt(32/7).
		xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
		want := math.Sqrt(32.0 / 7.0)
		if got := stdDev(xs); math.Abs(got-want) > 1e-9 {
			t.Errorf("stdDev = %.6f, want %.6f", got, want)
		}
	})

	t.Run("StdDevNeedsTwoSamples", func(t *testing.T) {
		if got := stdDev([]float64{5}); !math.IsNaN(got) {
			t.Errorf("expected NaN for single sample, got %.4f", got)
		}
	})

	t.Run("DeviationZeroSpread", func(t *testing.T) {
		// Epsilon in the denominator keeps zero-spread baselines finite.
		got := Deviation(10, 10, 0)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("expected finite deviation, got %v", got)
		}
		if got != 0 {
			t.Errorf("expected 0 for on-mean value, got %.4f", got)
		}
	})

	t.Run("PearsonPerfectCorrelation", func(t *testing.T) {
		xs := []float64{1, 2, 3, 4, 5}
		ys := []float64{2, 4, 6, 8, 10}
		if got := Pearson(xs, ys); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("expected correlation 1.0, got %.6f", got)
		}

		neg := []float64{10, 8, 6, 4, 2}
		if got := Pearson(xs, neg); math.Abs(got+1.0) > 1e-9 {
			t.Errorf("expected correlation -1.0, got %.6f", got)
		}
	})

	t.Run("PearsonZeroVariance", func(t *testing.T) {
		xs := []float64{1, 2, 3}
		flat := []float64{5, 5, 5}
		if got := Pearson(xs, flat); !math.IsNaN(got) {
			t.Errorf("expected NaN for zero-variance series, got %.4f", got)
		}
	})
}

func TestBuildBaselines(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("SkipsSingleRecordUsers", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{act("user-solo", 8000, 6.0, 60, 0, base)})
		baselines := BuildBaselines(rows)

		if _, ok := baselines["user-solo"]; ok {
			t.Error("single-record user must not get a baseline")
		}
		if rows[0].HasBaseline {
			t.Error("row must not be marked as having a baseline")
		}
	})

	t.Run("AttachesDeviations", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 130, base),
			act("user-001", 9000, 7.0, 65, 135, base.AddDate(0, 0, 1)),
			act("user-001", 10000, 8.0, 70, 140, base.AddDate(0, 0, 2)),
		})
		baselines := BuildBaselines(rows)

		b, ok := baselines["user-001"]
		if !ok {
			t.Fatal("expected baseline for user-001")
		}
		if b.Count != 3 {
			t.Errorf("expected count 3, got %d", b.Count)
		}
		if math.Abs(b.MeanSteps-9000) > 1e-9 {
			t.Errorf("expected mean steps 9000, got %.1f", b.MeanSteps)
		}
		if math.Abs(b.StdSteps-1000) > 1e-6 {
			t.Errorf("expected sample std 1000, got %.4f", b.StdSteps)
		}
		if !b.HasHR {
			t.Error("expected heart rate stats with 3 readings")
		}

		for _, r := range rows {
			if !r.HasBaseline {
				t.Fatal("expected all rows to carry a baseline")
			}
		}
		// Middle row sits on the mean.
		if math.Abs(rows[1].StepDev) > 1e-3 {
			t.Errorf("expected near-zero step deviation, got %.4f", rows[1].StepDev)
		}
		if rows[2].StepDev <= 0 {
			t.Errorf("expected positive deviation for above-mean row, got %.4f", rows[2].StepDev)
		}
	})

	t.Run("CorrelationsNeedFiveRecords", func(t *testing.T) {
		fourRows := Normalize([]*domain.Activity{
			act("user-002", 8000, 6.0, 60, 0, base),
			act("user-002", 9000, 7.0, 65, 0, base.AddDate(0, 0, 1)),
			act("user-002", 10000, 8.0, 70, 0, base.AddDate(0, 0, 2)),
			act("user-002", 11000, 9.0, 75, 0, base.AddDate(0, 0, 3)),
		})
		b := BuildBaselines(fourRows)["user-002"]
		if b == nil {
			t.Fatal("expected baseline for 4 records")
		}
		if b.HasCorr {
			t.Error("correlations require at least 5 records")
		}

		fiveRows := Normalize([]*domain.Activity{
			act("user-003", 8000, 6.0, 60, 0, base),
			act("user-003", 9000, 7.0, 65, 0, base.AddDate(0, 0, 1)),
			act("user-003", 10000, 8.0, 70, 0, base.AddDate(0, 0, 2)),
			act("user-003", 11000, 9.0, 75, 0, base.AddDate(0, 0, 3)),
			act("user-003", 12000, 10.0, 80, 0, base.AddDate(0, 0, 4)),
		})
		b = BuildBaselines(fiveRows)["user-003"]
		if b == nil || !b.HasCorr {
			t.Fatal("expected correlations with 5 records")
		}
		// Steps and distance rise in lockstep.
		if math.Abs(b.CorrStepsDistance-1.0) > 1e-6 {
			t.Errorf("expected steps-distance correlation 1.0, got %.6f", b.CorrStepsDistance)
		}
	})

	t.Run("HeartRateDeviationRequiresBothSides", func(t *testing.T) {
		// The user baseline has no HR stats, so rows with a reading still
		// get NaN HR deviation.
		rows := Normalize([]*domain.Activity{
			act("user-004", 8000, 6.0, 60, 0, base),
			act("user-004", 9000, 7.0, 65, 130, base.AddDate(0, 0, 1)),
		})
		BuildBaselines(rows)

		if !math.IsNaN(rows[1].HRDev) {
			t.Errorf("expected NaN HR deviation without HR baseline, got %.4f", rows[1].HRDev)
		}
	})
}

func TestAssemble(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("EmptyBatch", func(t *testing.T) {
		if _, err := Assemble(nil); err != ErrNoFeatures {
			t.Errorf("expected ErrNoFeatures, got %v", err)
		}
	})

	t.Run("DropsAllNaNColumns", func(t *testing.T) {
		// No heart rate anywhere in the batch: HR columns must be dropped
		// rather than imputed to zero.
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 0, base),
			act("user-001", 9000, 7.0, 65, 0, base.AddDate(0, 0, 1)),
		})
		m, err := Assemble(rows)
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}

		for _, col := range m.Columns {
			if col == ColHRPerStep || col == ColHRSpeedRatio || col == ColHRDev {
				t.Errorf("heart rate column %s should be dropped from HR-free batch", col)
			}
		}
	})

	t.Run("KeepsPartiallyPresentColumns", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 130, base),
			act("user-001", 9000, 7.0, 65, 0, base.AddDate(0, 0, 1)),
		})
		m, err := Assemble(rows)
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}

		found := false
		for _, col := range m.Columns {
			if col == ColHRPerStep {
				found = true
			}
		}
		if !found {
			t.Error("column with at least one finite value must be kept")
		}
		// Missing values fill with zero and standardization keeps everything finite.
		for i, vec := range m.Data {
			for j, v := range vec {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("non-finite value at [%d][%d]", i, j)
				}
			}
		}
	})

	t.Run("Standardization", func(t *testing.T) {
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 0, base),
			act("user-001", 10000, 8.0, 70, 0, base.AddDate(0, 0, 1)),
			act("user-001", 12000, 10.0, 80, 0, base.AddDate(0, 0, 2)),
		})
		m, err := Assemble(rows)
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}

		// Every column ends up with zero mean.
		for j := range m.Columns {
			var sum float64
			for i := range m.Data {
				sum += m.Data[i][j]
			}
			if math.Abs(sum/float64(m.Rows())) > 1e-9 {
				t.Errorf("column %s mean not zero after standardization", m.Columns[j])
			}
		}
	})

	t.Run("ConstantColumnCollapsesToZero", func(t *testing.T) {
		// Identical rows have zero spread in every column. Division falls
		// back to one so values collapse to zero instead of NaN.
		rows := Normalize([]*domain.Activity{
			act("user-001", 8000, 6.0, 60, 0, base),
			act("user-001", 8000, 6.0, 60, 0, base),
		})
		m, err := Assemble(rows)
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}
		for i, vec := range m.Data {
			for j, v := range vec {
				if v != 0 {
					t.Errorf("expected 0 at [%d][%d], got %.4f", i, j, v)
				}
			}
		}
	})
}
