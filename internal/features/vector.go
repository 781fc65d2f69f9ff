package features

import (
	"errors"
	"math"
)

// ErrNoFeatures indicates that a batch produced no usable feature columns.
// Callers treat it as a zero-fraud outcome, not a failure.
var ErrNoFeatures = errors.New("no usable feature columns in batch")

// Feature column names, in assembly priority order.
const (
	ColTotalSteps         = "TotalSteps"
	ColTotalDistance      = "TotalDistance"
	ColVeryActiveDistance = "VeryActiveDistance"
	ColVeryActiveMinutes  = "VeryActiveMinutes"
	ColAvgSpeed           = "AvgSpeed"
	ColDistancePerStep    = "DistancePerStep"
	ColHRPerStep          = "HeartRatePerStep"
	ColHRSpeedRatio       = "HeartRateSpeedRatio"
	ColWeekend            = "Weekend"
	ColDayOfWeek          = "DayOfWeek"
	ColStepDev            = "StepDeviation"
	ColDistDev            = "DistanceDeviation"
	ColSpeedDev           = "SpeedDeviation"
	ColDistPerStepDev     = "DistPerStepDeviation"
	ColHRDev              = "HeartRateDeviation"
)

// Matrix is a standardized feature matrix ready for the detectors.
type Matrix struct {
	Columns []string
	Data    [][]float64 // Data[i] is the feature vector for row i
}

// Rows returns the number of samples.
func (m *Matrix) Rows() int { return len(m.Data) }

// Dims returns the number of feature columns.
func (m *Matrix) Dims() int { return len(m.Columns) }

type columnSpec struct {
	name  string
	value func(*Row) float64
}

func allColumns() []columnSpec {
	return []columnSpec{
		{ColTotalSteps, func(r *Row) float64 { return r.Steps }},
		{ColTotalDistance, func(r *Row) float64 { return r.Distance }},
		{ColVeryActiveDistance, func(r *Row) float64 { return r.VeryActiveDistance }},
		{ColVeryActiveMinutes, func(r *Row) float64 { return r.VeryActiveMinutes }},
		{ColAvgSpeed, func(r *Row) float64 { return r.Speed }},
		{ColDistancePerStep, func(r *Row) float64 { return r.DistPerStep }},
		{ColHRPerStep, func(r *Row) float64 { return r.HRPerStep }},
		{ColHRSpeedRatio, func(r *Row) float64 { return r.HRSpeedRatio }},
		{ColWeekend, func(r *Row) float64 { return r.Weekend }},
		{ColDayOfWeek, func(r *Row) float64 { return r.DayOfWeek }},
		{ColStepDev, func(r *Row) float64 { return r.StepDev }},
		{ColDistDev, func(r *Row) float64 { return r.DistDev }},
		{ColSpeedDev, func(r *Row) float64 { return r.SpeedDev }},
		{ColDistPerStepDev, func(r *Row) float64 { return r.DistPerStepDev }},
		{ColHRDev, func(r *Row) float64 { return r.HRDev }},
	}
}

// Assemble selects feature columns, fills missing values with zero, and
// standardizes each column to zero mean and unit variance. A column enters
// the matrix only when at least one row carries a finite value for it; heart
// rate columns are therefore dropped entirely from batches with no heart
// rate data instead of being imputed.
func Assemble(rows []*Row) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, ErrNoFeatures
	}

	var selected []columnSpec
	for _, spec := range allColumns() {
		carried := false
		for _, r := range rows {
			if !math.IsNaN(spec.value(r)) {
				carried = true
				break
			}
		}
		if carried {
			selected = append(selected, spec)
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoFeatures
	}

	m := &Matrix{
		Columns: make([]string, len(selected)),
		Data:    make([][]float64, len(rows)),
	}
	for j, spec := range selected {
		m.Columns[j] = spec.name
	}
	for i, r := range rows {
		vec := make([]float64, len(selected))
		for j, spec := range selected {
			v := spec.value(r)
			if math.IsNaN(v) {
				v = 0
			}
			vec[j] = v
		}
		m.Data[i] = vec
	}

	standardize(m)
	return m, nil
}

// standardize rescales each column to zero mean and unit variance in place.
// Constant columns divide by one so they collapse to zero instead of NaN.
func standardize(m *Matrix) {
	n := len(m.Data)
	for j := 0; j < len(m.Columns); j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += m.Data[i][j]
		}
		mu := sum / float64(n)

		var ss float64
		for i := 0; i < n; i++ {
			d := m.Data[i][j] - mu
			ss += d * d
		}
		sigma := math.Sqrt(ss / float64(n))
		if sigma == 0 {
			sigma = 1
		}

		for i := 0; i < n; i++ {
			m.Data[i][j] = (m.Data[i][j] - mu) / sigma
		}
	}
}
