// Package features normalizes raw activity records into the derived
// feature rows consumed by the anomaly detectors and the classifier.
package features

import (
	"math"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
)

// Row is a single normalized activity record. Derived heart rate fields are
// NaN when the record carries no heart rate reading; they are never imputed
// to zero so that absence stays distinguishable from a true zero.
type Row struct {
	Activity *domain.Activity
	Index    int

	Steps       float64
	Distance    float64
	TimeTaken   float64
	Speed       float64 // km/h
	DistPerStep float64 // km per step

	VeryActiveMinutes  float64
	VeryActiveDistance float64

	HeartRate    float64
	HRPerStep    float64
	HRSpeedRatio float64
	HasHR        bool

	DayOfWeek float64 // 0=Monday .. 6=Sunday
	Weekend   float64 // 1 on Saturday/Sunday

	// Baseline deviations, attached by AttachDeviations. NaN until then
	// and for users without a baseline.
	StepDev        float64
	DistDev        float64
	SpeedDev       float64
	DistPerStepDev float64
	HRDev          float64
	HasBaseline    bool
}

// Normalize converts raw activities into feature rows.
func Normalize(records []*domain.Activity) []*Row {
	rows := make([]*Row, 0, len(records))
	for i, act := range records {
		rows = append(rows, normalizeOne(act, i))
	}
	return rows
}

func normalizeOne(act *domain.Activity, idx int) *Row {
	r := &Row{
		Activity:           act,
		Index:              idx,
		Steps:              act.TotalSteps,
		Distance:           act.TotalDistance,
		TimeTaken:          act.TimeTaken,
		VeryActiveMinutes:  act.VeryActiveMinutes,
		VeryActiveDistance: act.VeryActiveDistance,
		Speed:              act.Speed(),
		StepDev:            math.NaN(),
		DistDev:            math.NaN(),
		SpeedDev:           math.NaN(),
		DistPerStepDev:     math.NaN(),
		HRDev:              math.NaN(),
	}

	if act.TotalSteps > 0 {
		r.DistPerStep = act.TotalDistance / act.TotalSteps
	}

	r.HRPerStep = math.NaN()
	r.HRSpeedRatio = math.NaN()
	if act.HasHeartRate() {
		r.HasHR = true
		r.HeartRate = act.AvgHeartRate
		if act.TotalSteps > 0 {
			r.HRPerStep = act.AvgHeartRate / act.TotalSteps
		}
		if r.Speed > 0 {
			r.HRSpeedRatio = act.AvgHeartRate / r.Speed
		}
	}

	r.DayOfWeek = float64(mondayIndexed(act.Timestamp.Weekday()))
	if act.Timestamp.Weekday() == time.Saturday || act.Timestamp.Weekday() == time.Sunday {
		r.Weekend = 1
	}

	return r
}

func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}
