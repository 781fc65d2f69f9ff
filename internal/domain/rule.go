package domain

// ScreeningRule is an operator-defined rule evaluated against activity
// records after the built-in validator runs. Rules are additive: a matched
// rule can only raise the validation risk, never lower it.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the activity record; must evaluate to bool.
	Expression string `json:"expression"`

	// Risk assigned when the expression matches, 0-100.
	Risk float64 `json:"risk"`

	// Fraud category attached when the expression matches.
	Category string `json:"category"`

	// Note appended to the review note when the expression matches.
	Note string `json:"note"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`
}

// ScreeningResult is the output of evaluating one screening rule.
type ScreeningResult struct {
	RuleID    string  `json:"ruleId"`
	TenantID  string  `json:"tenantId"`
	Matched   bool    `json:"matched"`
	Risk      float64 `json:"risk"`
	Category  string  `json:"category"`
	Note      string  `json:"note"`
	Err       string  `json:"err,omitempty"`
	ProcessMs int64   `json:"processMs"`
}
