// Package rules provides the CEL-Go based screening rule engine. Screening
// rules run after the built-in validator and can only raise a record's
// risk, never lower it.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/openathletics/stridewatch/internal/domain"
)

// Engine is the CEL-based screening rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	historyGetter HistoryGetter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreeningRule
	Program cel.Program
}

// HistoryGetter loads a user's recent activities for rule evaluation.
type HistoryGetter func(ctx context.Context, tenantID, userID string, limit int) ([]*domain.Activity, error)

// NewEngine creates a new screening rule engine.
func NewEngine(historyGetter HistoryGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with activity record variables
	env, err := cel.NewEnv(
		cel.Variable("activity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("steps", cel.DoubleType),
		cel.Variable("distance", cel.DoubleType),
		cel.Variable("time_taken", cel.DoubleType),
		cel.Variable("avg_speed", cel.DoubleType),
		cel.Variable("heart_rate", cel.DoubleType),
		cel.Variable("has_heart_rate", cel.BoolType),
		cel.Variable("source", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekend", cel.BoolType),
		cel.Variable("history_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		historyGetter: historyGetter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAll evaluates all loaded rules against an activity in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, tenantID string, act *domain.Activity) ([]domain.ScreeningResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	// Get history count if getter is available
	var historyCount int64
	if e.historyGetter != nil {
		if acts, err := e.historyGetter(ctx, tenantID, act.UserID, 0); err == nil {
			historyCount = int64(len(acts))
		}
	}

	activation := map[string]any{
		"activity": map[string]any{
			"id":        act.ID,
			"user_id":   act.UserID,
			"steps":     act.TotalSteps,
			"distance":  act.TotalDistance,
			"source":    act.Source,
			"timestamp": act.Timestamp.Format(time.RFC3339),
		},
		"steps":          act.TotalSteps,
		"distance":       act.TotalDistance,
		"time_taken":     act.TimeTaken,
		"avg_speed":      act.Speed(),
		"heart_rate":     act.AvgHeartRate,
		"has_heart_rate": act.HasHeartRate(),
		"source":         act.Source,
		"hour":           int64(act.Timestamp.Hour()),
		"weekend":        isWeekend(act),
		"history_count":  historyCount,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.ScreeningResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, tenantID)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, tenantID string) domain.ScreeningResult {
	start := time.Now()

	result := domain.ScreeningResult{
		RuleID:   rule.Config.ID,
		TenantID: tenantID,
		Category: rule.Config.Category,
		Note:     rule.Config.Note,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if matched, ok := out.(types.Bool); ok && bool(matched) {
		result.Matched = true
		result.Risk = rule.Config.Risk
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// Apply folds screening results into a validation result. A matched rule
// raises the risk to max(current, rule risk) and appends its note; the
// approval status is then recomputed against the configured thresholds.
func Apply(val *domain.ValidationResult, results []domain.ScreeningResult, cfg domain.ValidationConfig) {
	for _, r := range results {
		if !r.Matched {
			continue
		}
		if r.Risk > val.FraudRisk {
			val.FraudRisk = r.Risk
			if r.Category != "" {
				val.FraudType = r.Category
			}
		}
		if r.Note != "" {
			if val.ReviewNote == "" || val.ReviewNote == "Activity record passed all validation checks" {
				val.ReviewNote = r.Note
			} else {
				val.ReviewNote += "; " + r.Note
			}
		}
	}

	switch {
	case val.FraudRisk >= cfg.RejectThreshold:
		val.ApprovalStatus = domain.StatusRejected
	case val.FraudRisk >= cfg.ReviewThreshold:
		val.ApprovalStatus = domain.StatusPending
	default:
		val.ApprovalStatus = domain.StatusApproved
	}
	if val.FraudRisk > 0 && val.FraudType == domain.FraudNone {
		val.FraudType = domain.FraudAnomalousPattern
	}
}

func isWeekend(act *domain.Activity) bool {
	wd := act.Timestamp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ScreeningRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
