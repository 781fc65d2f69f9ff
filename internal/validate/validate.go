// Package validate implements online validation of individual activity
// records. A record passes through three stages: a hard plausibility gate,
// threshold checks (absolute for new users, baseline-relative for users
// with history), and a terminal mapping from risk to approval status.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/openathletics/stridewatch/internal/detect"
	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
)

// Hard gate limits. A record violating any of these is physically
// implausible and rejected outright.
const (
	maxStrideMeters = 2.0
	maxSpeedKmh     = 25.0
	minHeartRate    = 40.0
	maxHeartRate    = 220.0
)

// Absolute thresholds for users without history.
const (
	speedHighKmh     = 20.0 // risk 90
	speedElevatedKmh = 15.0 // risk 70
	strideHighM      = 1.5  // risk 80
	strideElevatedM  = 1.0  // risk 60
	maxStepsPerMin   = 250.0
	lowHeartRate     = 60.0
	highSteps        = 10000.0
)

// corrCutoff is the minimum plausible steps-to-distance correlation in a
// user's history.
const corrCutoff = 0.5

// Risks raised by online anomaly detectors.
const (
	isoForestRisk = 70.0
	lofRisk       = 65.0
)

// Validator screens single activity records.
type Validator struct {
	cfg    domain.ValidationConfig
	logger *slog.Logger
}

// New creates a validator with the given settings.
func New(cfg domain.ValidationConfig) *Validator {
	return &Validator{
		cfg:    cfg,
		logger: slog.With("component", "validator"),
	}
}

// finding is one matched validation rule. Overall risk is the maximum
// finding risk, never a sum.
type finding struct {
	risk     float64
	category string
	note     string
}

// Validate screens rec against the user's prior activities. history may be
// empty; with no prior records only absolute checks apply.
func (v *Validator) Validate(rec *domain.Activity, history []*domain.Activity) *domain.ValidationResult {
	if fs := v.gate(rec); len(fs) > 0 {
		return v.finish(rec, 100, domain.FraudInvalidData, fs)
	}

	var fs []finding
	if len(history) == 0 {
		fs = v.absoluteChecks(rec)
	} else {
		fs = v.historyChecks(rec, history)
	}

	var (
		risk     float64
		category string
	)
	for _, f := range fs {
		if f.risk > risk {
			risk = f.risk
			category = f.category
		}
	}
	if risk > 0 && category == "" {
		category = domain.FraudAnomalousPattern
	}
	return v.finish(rec, risk, category, fs)
}

// gate applies the hard plausibility limits.
func (v *Validator) gate(rec *domain.Activity) []finding {
	var fs []finding
	reject := func(note string) {
		fs = append(fs, finding{risk: 100, category: domain.FraudInvalidData, note: note})
	}

	if rec.TotalSteps < 0 || math.IsNaN(rec.TotalSteps) {
		reject("step count is negative or missing")
	}
	if rec.TotalDistance < 0 || math.IsNaN(rec.TotalDistance) {
		reject("distance is negative or missing")
	}
	if rec.TimeTaken <= 0 || math.IsNaN(rec.TimeTaken) {
		reject("duration must be positive")
	}
	if rec.TotalSteps > 0 {
		if stride := rec.TotalDistance * 1000 / rec.TotalSteps; stride > maxStrideMeters {
			reject(fmt.Sprintf("stride of %.2fm per step exceeds human range", stride))
		}
	}
	if speed := rec.Speed(); speed > maxSpeedKmh {
		reject(fmt.Sprintf("average speed %.1f km/h exceeds human range", speed))
	}
	if rec.HasHeartRate() && (rec.AvgHeartRate < minHeartRate || rec.AvgHeartRate > maxHeartRate) {
		reject(fmt.Sprintf("heart rate %.0f bpm outside plausible range", rec.AvgHeartRate))
	}
	return fs
}

// absoluteChecks screens a record with no usable user history.
func (v *Validator) absoluteChecks(rec *domain.Activity) []finding {
	var fs []finding
	speed := rec.Speed()

	switch {
	case speed > speedHighKmh:
		fs = append(fs, finding{90, domain.FraudVehicleUse,
			fmt.Sprintf("speed %.1f km/h suggests vehicle use", speed)})
	case speed > speedElevatedKmh:
		fs = append(fs, finding{70, domain.FraudVehicleUse,
			fmt.Sprintf("speed %.1f km/h is implausibly fast", speed)})
	}

	if rec.TotalSteps > 0 {
		stride := rec.TotalDistance * 1000 / rec.TotalSteps
		switch {
		case stride > strideHighM:
			fs = append(fs, finding{80, domain.FraudStepMisreporting,
				fmt.Sprintf("stride %.2fm per step suggests undercounted steps", stride)})
		case stride > strideElevatedM:
			fs = append(fs, finding{60, domain.FraudStepMisreporting,
				fmt.Sprintf("stride %.2fm per step is unusually long", stride)})
		}
	}

	if rec.TimeTaken > 0 && rec.TotalSteps/rec.TimeTaken > maxStepsPerMin {
		fs = append(fs, finding{75, domain.FraudStepMisreporting,
			fmt.Sprintf("step rate %.0f per minute exceeds plausible cadence", rec.TotalSteps/rec.TimeTaken)})
	}

	if rec.HasHeartRate() && rec.AvgHeartRate < lowHeartRate && rec.TotalSteps > highSteps {
		fs = append(fs, finding{85, domain.FraudAbnormalHeartRate,
			fmt.Sprintf("resting heart rate %.0f bpm with %.0f steps", rec.AvgHeartRate, rec.TotalSteps)})
	}

	return fs
}

// historyChecks screens a record against the user's baseline. The baseline
// is recomputed over the history plus the new record, so a single outlier
// among many records stands out while a record consistent with a short
// history does not.
func (v *Validator) historyChecks(rec *domain.Activity, history []*domain.Activity) []finding {
	var fs []finding

	all := make([]*domain.Activity, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, rec)

	rows := features.Normalize(all)
	baseline := features.BaselineFrom(rec.UserID, rows)
	if baseline == nil {
		return v.absoluteChecks(rec)
	}

	row := rows[len(rows)-1]
	sigma := v.cfg.DeviationSigma

	if dev := features.Deviation(row.Steps, baseline.MeanSteps, baseline.StdSteps); math.Abs(dev) > sigma {
		fs = append(fs, finding{75, domain.FraudStepMisreporting,
			fmt.Sprintf("step count deviates %.1f sigma from baseline", dev)})
	}
	if dev := features.Deviation(row.Speed, baseline.MeanSpeed, baseline.StdSpeed); math.Abs(dev) > sigma {
		fs = append(fs, finding{80, domain.FraudVehicleUse,
			fmt.Sprintf("speed deviates %.1f sigma from baseline", dev)})
	}
	if dev := features.Deviation(row.DistPerStep, baseline.MeanDistPerStep, baseline.StdDistPerStep); math.Abs(dev) > sigma {
		fs = append(fs, finding{85, domain.FraudRouteShortcut,
			fmt.Sprintf("distance per step deviates %.1f sigma from baseline", dev)})
	}
	if row.HasHR && baseline.HasHR {
		if dev := features.Deviation(row.HeartRate, baseline.MeanHR, baseline.StdHR); math.Abs(dev) > sigma {
			fs = append(fs, finding{80, domain.FraudAbnormalHeartRate,
				fmt.Sprintf("heart rate deviates %.1f sigma from baseline", dev)})
		}
	}

	if baseline.HasCorr && !math.IsNaN(baseline.CorrStepsDistance) && baseline.CorrStepsDistance < corrCutoff {
		fs = append(fs, finding{70, domain.FraudAbnormalCorr,
			fmt.Sprintf("steps-to-distance correlation %.2f below expected", baseline.CorrStepsDistance)})
	}

	if len(history)+1 >= v.cfg.MinHistoryForDetectors {
		fs = append(fs, v.detectorChecks(rec, history)...)
	}

	return fs
}

// detectorChecks runs the online anomaly detectors over the user's history
// plus the new record and reports whether the new record is the outlier.
func (v *Validator) detectorChecks(rec *domain.Activity, history []*domain.Activity) []finding {
	all := make([]*domain.Activity, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, rec)

	rows := features.Normalize(all)
	features.BuildBaselines(rows)
	matrix, err := features.Assemble(rows)
	if err != nil {
		return nil
	}
	last := matrix.Rows() - 1

	var fs []finding

	iso := detect.NewIsolationForest(100, v.cfg.Contamination, 42)
	if flags, err := iso.FitPredict(matrix); err == nil && flags[last] {
		fs = append(fs, finding{isoForestRisk, "",
			"record isolated as anomalous against user history"})
	} else if err != nil {
		v.logger.Warn("online isolation forest failed", "error", err)
	}

	lof := detect.NewLOF(20, v.cfg.Contamination)
	if scores, flags, err := lof.FitScore(matrix); err == nil && flags[last] {
		fs = append(fs, finding{lofRisk, "",
			fmt.Sprintf("record density diverges from user history (outlier factor %.2f)", scores[last])})
	} else if err != nil {
		v.logger.Warn("online lof failed", "error", err)
	}

	return fs
}

// finish maps accumulated findings to the terminal validation result.
func (v *Validator) finish(rec *domain.Activity, riskScore float64, category string, fs []finding) *domain.ValidationResult {
	status := domain.StatusApproved
	switch {
	case riskScore >= v.cfg.RejectThreshold:
		status = domain.StatusRejected
	case riskScore >= v.cfg.ReviewThreshold:
		status = domain.StatusPending
	}

	notes := make([]string, 0, len(fs))
	for _, f := range fs {
		notes = append(notes, f.note)
	}
	note := strings.Join(notes, "; ")

	if riskScore == 0 {
		category = domain.FraudNone
		note = "Activity record passed all validation checks"
	}

	return &domain.ValidationResult{
		ActivityID:     rec.ID,
		UserID:         rec.UserID,
		ApprovalStatus: status,
		FraudRisk:      riskScore,
		FraudType:      category,
		ReviewNote:     note,
	}
}
