// Package domain defines the core interfaces and types for StrideWatch.
package domain

import (
	"math"
	"time"
)

// Activity represents a single recorded fitness activity to be screened.
type Activity struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	UserID   string `json:"userId"`

	// Movement metrics
	TotalSteps    float64 `json:"totalSteps"`
	TotalDistance float64 `json:"totalDistance"` // kilometers
	TimeTaken     float64 `json:"timeTaken"`     // minutes
	AvgSpeed      float64 `json:"avgSpeed"`      // km/h; 0 means "derive from distance/time"

	// Heart rate, bpm. Zero or negative means the device reported none.
	AvgHeartRate float64 `json:"avgHeartRate,omitempty"`

	// Intensity breakdown (optional, tracker dependent)
	VeryActiveMinutes  float64 `json:"veryActiveMinutes,omitempty"`
	VeryActiveDistance float64 `json:"veryActiveDistance,omitempty"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// Source device or app (e.g., "fitbit", "garmin", "manual")
	Source string `json:"source,omitempty"`
}

// HasHeartRate reports whether the record carries a usable heart rate reading.
func (a *Activity) HasHeartRate() bool {
	return a.AvgHeartRate > 0 && !math.IsNaN(a.AvgHeartRate)
}

// Speed returns the average speed in km/h, deriving it from distance and
// duration when the tracker did not report one.
func (a *Activity) Speed() float64 {
	if a.AvgSpeed > 0 && !math.IsNaN(a.AvgSpeed) {
		return a.AvgSpeed
	}
	if a.TimeTaken > 0 {
		return a.TotalDistance / (a.TimeTaken / 60.0)
	}
	return 0
}

// ActivityRequest is the API request payload for activity ingestion and
// single-record validation. Field names follow the tracker export format.
type ActivityRequest struct {
	ID                 string  `json:"id,omitempty"`
	UserID             string  `json:"userId"`
	Steps              float64 `json:"steps"`
	Distance           float64 `json:"distance"`
	TimeTaken          float64 `json:"timeTaken"`
	AvgSpeed           float64 `json:"avgSpeed,omitempty"`
	HeartRate          float64 `json:"heartRate,omitempty"`
	VeryActiveMinutes  float64 `json:"veryActiveMinutes,omitempty"`
	VeryActiveDistance float64 `json:"veryActiveDistance,omitempty"`
	Timestamp          string  `json:"timestamp,omitempty"`
	Source             string  `json:"source,omitempty"`
}

// ToActivity converts a request to an Activity domain object.
func (r *ActivityRequest) ToActivity() *Activity {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			ts = parsed
		}
	}
	return &Activity{
		ID:                 r.ID,
		UserID:             r.UserID,
		TotalSteps:         r.Steps,
		TotalDistance:      r.Distance,
		TimeTaken:          r.TimeTaken,
		AvgSpeed:           r.AvgSpeed,
		AvgHeartRate:       r.HeartRate,
		VeryActiveMinutes:  r.VeryActiveMinutes,
		VeryActiveDistance: r.VeryActiveDistance,
		Timestamp:          ts,
		CreatedAt:          now,
		Source:             r.Source,
	}
}

// Fraud categories assigned by the classifier and validator.
const (
	FraudVehicleUse        = "vehicle_use"
	FraudRouteShortcut     = "route_shortcut"
	FraudStepMisreporting  = "step_misreporting"
	FraudAbnormalHeartRate = "abnormal_heart_rate"
	FraudAbnormalCorr      = "abnormal_correlation"
	FraudAnomalousPattern  = "anomalous_pattern"
	FraudInvalidData       = "invalid_data"
	FraudValidationError   = "validation_error"
	FraudNone              = "valid"
)
