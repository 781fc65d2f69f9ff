package domain

import (
	"time"
)

// BatchResult is the complete outcome of a batch fraud analysis.
// Internal failures are reported through the Error field rather than a
// transport-level error, so callers always receive a well-formed result.
type BatchResult struct {
	ID        string    `json:"analysisId,omitempty"`
	TenantID  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt,omitempty"`

	TotalRecords      int                       `json:"totalRecords"`
	TotalFraudRecords int                       `json:"totalFraudRecords"`
	FraudUserIDs      []string                  `json:"fraudUserIds"`
	UserRiskScores    map[string]*UserRiskScore `json:"userRiskScores"`
	FraudRecords      []*FraudRecordDetail      `json:"fraudRecordDetails"`

	Error string `json:"error,omitempty"`
}

// EmptyBatchResult returns a zero-fraud result for the given record count.
func EmptyBatchResult(total int) *BatchResult {
	return &BatchResult{
		TotalRecords:   total,
		FraudUserIDs:   []string{},
		UserRiskScores: map[string]*UserRiskScore{},
		FraudRecords:   []*FraudRecordDetail{},
	}
}

// ErrorBatchResult wraps an internal failure in the standard result shape.
func ErrorBatchResult(msg string) *BatchResult {
	r := EmptyBatchResult(0)
	r.Error = msg
	return r
}

// UserRiskScore summarizes a user's fraud exposure within a batch.
type UserRiskScore struct {
	RiskScore       float64 `json:"risk_score"`
	RiskLevel       string  `json:"risk_level"`
	FraudCount      int     `json:"fraud_count"`
	TotalActivities int     `json:"total_activities"`
	FraudRatio      float64 `json:"fraud_ratio"`
}

// FraudRecordDetail describes one flagged record in a batch result.
type FraudRecordDetail struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"userId"`
	FraudType    string                 `json:"fraudType"`
	RiskScore    float64                `json:"riskScore"`
	ActivityData map[string]interface{} `json:"activityData"`
}

// Risk levels for user risk scores.
const (
	RiskLevelHigh   = "High"
	RiskLevelMedium = "Medium"
	RiskLevelLow    = "Low"
)

// Approval statuses for online validation.
const (
	StatusApproved = "APPROVED"
	StatusPending  = "PENDING"
	StatusRejected = "REJECTED"
)

// ValidationResult is the outcome of validating a single activity record.
type ValidationResult struct {
	ID         string    `json:"validationId,omitempty"`
	TenantID   string    `json:"-"`
	ActivityID string    `json:"activityId,omitempty"`
	UserID     string    `json:"-"`
	CreatedAt  time.Time `json:"-"`

	ApprovalStatus string  `json:"approvalStatus"`
	FraudRisk      float64 `json:"fraudRisk"`
	FraudType      string  `json:"fraudType"`
	ReviewNote     string  `json:"reviewNote"`
}
