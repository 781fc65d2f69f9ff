package features

import "math"

// Baseline holds per-user historical statistics. Heart rate statistics are
// computed over the valid-reading subset only and are present only when at
// least two such readings exist.
type Baseline struct {
	UserID string
	Count  int

	MeanSteps, StdSteps             float64
	MeanDistance, StdDistance       float64
	MeanSpeed, StdSpeed             float64
	MeanDistPerStep, StdDistPerStep float64

	HasHR          bool
	HRCount        int
	MeanHR, StdHR  float64

	// Pearson correlations, computed when the user has at least five
	// records. NaN when undefined (zero variance on either side).
	HasCorr           bool
	CorrStepsDistance float64
	CorrStepsSpeed    float64
	CorrStepsTime     float64

	// Steps vs heart rate, over valid pairs only.
	HasHRCorr   bool
	CorrStepsHR float64
}

// minBaselineRecords is the record count below which no baseline is built.
const minBaselineRecords = 2

// minCorrRecords is the record count required for correlation statistics.
const minCorrRecords = 5

// BuildBaselines computes per-user baselines from normalized rows and
// attaches deviation values to every row whose user has one.
func BuildBaselines(rows []*Row) map[string]*Baseline {
	byUser := make(map[string][]*Row)
	for _, r := range rows {
		byUser[r.Activity.UserID] = append(byUser[r.Activity.UserID], r)
	}

	baselines := make(map[string]*Baseline, len(byUser))
	for userID, userRows := range byUser {
		b := buildOne(userID, userRows)
		if b == nil {
			continue
		}
		baselines[userID] = b
		for _, r := range userRows {
			attachDeviations(r, b)
		}
	}
	return baselines
}

// BaselineFrom computes a baseline over rows belonging to a single user,
// without attaching deviations. Returns nil for fewer than two rows.
func BaselineFrom(userID string, rows []*Row) *Baseline {
	return buildOne(userID, rows)
}

func buildOne(userID string, userRows []*Row) *Baseline {
	if len(userRows) < minBaselineRecords {
		return nil
	}

	steps := make([]float64, len(userRows))
	dist := make([]float64, len(userRows))
	speed := make([]float64, len(userRows))
	dps := make([]float64, len(userRows))
	times := make([]float64, len(userRows))
	var hr, hrSteps []float64

	for i, r := range userRows {
		steps[i] = r.Steps
		dist[i] = r.Distance
		speed[i] = r.Speed
		dps[i] = r.DistPerStep
		times[i] = r.TimeTaken
		if r.HasHR {
			hr = append(hr, r.HeartRate)
			hrSteps = append(hrSteps, r.Steps)
		}
	}

	b := &Baseline{
		UserID:          userID,
		Count:           len(userRows),
		MeanSteps:       mean(steps),
		StdSteps:        stdDev(steps),
		MeanDistance:    mean(dist),
		StdDistance:     stdDev(dist),
		MeanSpeed:       mean(speed),
		StdSpeed:        stdDev(speed),
		MeanDistPerStep: mean(dps),
		StdDistPerStep:  stdDev(dps),
	}

	if len(hr) >= 2 {
		b.HasHR = true
		b.HRCount = len(hr)
		b.MeanHR = mean(hr)
		b.StdHR = stdDev(hr)
	}

	if len(userRows) >= minCorrRecords {
		b.HasCorr = true
		b.CorrStepsDistance = Pearson(steps, dist)
		b.CorrStepsSpeed = Pearson(steps, speed)
		b.CorrStepsTime = Pearson(steps, times)
		if len(hr) >= 2 {
			b.HasHRCorr = true
			b.CorrStepsHR = Pearson(hrSteps, hr)
		}
	}

	return b
}

func attachDeviations(r *Row, b *Baseline) {
	r.HasBaseline = true
	r.StepDev = Deviation(r.Steps, b.MeanSteps, b.StdSteps)
	r.DistDev = Deviation(r.Distance, b.MeanDistance, b.StdDistance)
	r.SpeedDev = Deviation(r.Speed, b.MeanSpeed, b.StdSpeed)
	r.DistPerStepDev = Deviation(r.DistPerStep, b.MeanDistPerStep, b.StdDistPerStep)
	if r.HasHR && b.HasHR {
		r.HRDev = Deviation(r.HeartRate, b.MeanHR, b.StdHR)
	} else {
		r.HRDev = math.NaN()
	}
}
