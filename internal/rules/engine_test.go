package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "steps > 100.0",
		Risk:       50,
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestLoadNonBoolRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "non-bool-rule",
		Name:       "Non-Bool Rule",
		Expression: "steps + 1.0",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err == nil {
		t.Error("expected error for non-boolean expression")
	}
}

func TestEvaluateSimpleRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "speed-check",
		Name:       "Speed Check",
		Expression: "avg_speed > 12.0",
		Risk:       90,
		Category:   domain.FraudVehicleUse,
		Note:       "speed above running range",
		Enabled:    true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()

	// Normal speed
	act := &domain.Activity{
		ID:            "act-001",
		UserID:        "user-001",
		TotalSteps:    8000,
		TotalDistance: 6.0,
		TimeTaken:     60,
		AvgSpeed:      6.0,
		Timestamp:     time.Now().UTC(),
	}

	results, err := engine.EvaluateAll(ctx, "tenant-001", act)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Matched {
		t.Error("expected no match for normal speed")
	}

	// Vehicle speed
	act.AvgSpeed = 30.0
	results, _ = engine.EvaluateAll(ctx, "tenant-001", act)

	if !results[0].Matched {
		t.Fatal("expected match for vehicle speed")
	}
	if results[0].Risk != 90 {
		t.Errorf("expected risk 90, got %.1f", results[0].Risk)
	}
	if results[0].Category != domain.FraudVehicleUse {
		t.Errorf("expected category %s, got %s", domain.FraudVehicleUse, results[0].Category)
	}
}

func TestEvaluateSourceRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "manual-entry-check",
		Name:       "Manual Entry Check",
		Expression: `source == "manual" && steps > 20000.0`,
		Risk:       60,
		Category:   domain.FraudStepMisreporting,
		Enabled:    true,
	}

	engine.LoadRule(rule)

	ctx := context.Background()
	act := &domain.Activity{
		ID:         "act-001",
		UserID:     "user-001",
		TotalSteps: 25000,
		Source:     "fitbit",
		Timestamp:  time.Now().UTC(),
	}

	results, _ := engine.EvaluateAll(ctx, "tenant-001", act)
	if results[0].Matched {
		t.Error("expected no match for device-sourced record")
	}

	act.Source = "manual"
	results, _ = engine.EvaluateAll(ctx, "tenant-001", act)
	if !results[0].Matched {
		t.Error("expected match for manual entry with high steps")
	}
}

func TestHistoryCountRule(t *testing.T) {
	// Mock history getter that returns a fixed history
	historyGetter := func(ctx context.Context, tenantID, userID string, limit int) ([]*domain.Activity, error) {
		return make([]*domain.Activity, 15), nil
	}

	engine, _ := NewEngine(historyGetter, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "ingest-rate-001",
		Name:       "Ingest Rate Check",
		Expression: "history_count > 10",
		Risk:       45,
		Enabled:    true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	act := &domain.Activity{
		ID:        "act-001",
		UserID:    "user-001",
		Timestamp: time.Now().UTC(),
	}

	results, _ := engine.EvaluateAll(ctx, "tenant-001", act)

	if !results[0].Matched {
		t.Error("expected match for user with 15 prior activities")
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	// Load multiple rules
	for i := 0; i < 10; i++ {
		rule := &domain.ScreeningRule{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "steps > 0.0",
			Risk:       10,
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	ctx := context.Background()
	act := &domain.Activity{
		ID:         "act-001",
		UserID:     "user-001",
		TotalSteps: 100,
		Timestamp:  time.Now().UTC(),
	}

	results, err := engine.EvaluateAll(ctx, "tenant-001", act)
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	// All should have matched
	for i, r := range results {
		if !r.Matched {
			t.Errorf("rule %d: expected match", i)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(&domain.ScreeningRule{
		ID:         "old-rule",
		Expression: "steps > 0.0",
		Enabled:    true,
	})

	newRules := []*domain.ScreeningRule{
		{ID: "new-rule-1", Expression: "distance > 5.0", Enabled: true},
		{ID: "new-rule-2", Expression: "heart_rate > 180.0", Enabled: true},
		{ID: "disabled-rule", Expression: "weekend", Enabled: false},
	}

	if err := engine.ReloadRules(newRules); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	for _, rule := range engine.GetLoadedRules() {
		if rule.ID == "old-rule" {
			t.Error("old rule should be gone after reload")
		}
		if rule.ID == "disabled-rule" {
			t.Error("disabled rule should not be loaded")
		}
	}
}

func TestRuleResultMetadata(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "meta-test",
		Expression: "steps > 0.0",
		Risk:       55,
		Enabled:    true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	act := &domain.Activity{
		ID:         "act-456",
		UserID:     "user-001",
		TotalSteps: 100,
		Timestamp:  time.Now().UTC(),
	}

	results, _ := engine.EvaluateAll(ctx, "tenant-123", act)

	if results[0].RuleID != "meta-test" {
		t.Errorf("expected RuleID 'meta-test', got '%s'", results[0].RuleID)
	}
	if results[0].TenantID != "tenant-123" {
		t.Errorf("expected TenantID 'tenant-123', got '%s'", results[0].TenantID)
	}
	if results[0].ProcessMs < 0 {
		t.Error("ProcessMs should be non-negative")
	}
}

func TestSampleRulesCompile(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	for _, rule := range SampleRules() {
		if err := engine.ValidateRule(rule); err != nil {
			t.Errorf("sample rule %s failed to compile: %v", rule.ID, err)
		}
	}

	// Sample rules ship disabled and must not load implicitly
	if err := engine.LoadRules(SampleRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected disabled sample rules to stay unloaded, got %d", engine.RulesCount())
	}
}

func TestApply(t *testing.T) {
	cfg := domain.ValidationConfig{
		RejectThreshold: 70,
		ReviewThreshold: 40,
	}

	t.Run("RaisesRiskToMax", func(t *testing.T) {
		val := &domain.ValidationResult{
			ApprovalStatus: domain.StatusApproved,
			FraudRisk:      0,
			FraudType:      domain.FraudNone,
			ReviewNote:     "Activity record passed all validation checks",
		}

		results := []domain.ScreeningResult{
			{Matched: true, Risk: 80, Category: domain.FraudVehicleUse, Note: "speed rule"},
			{Matched: false, Risk: 95},
		}

		Apply(val, results, cfg)

		if val.FraudRisk != 80 {
			t.Errorf("expected risk 80, got %.1f", val.FraudRisk)
		}
		if val.ApprovalStatus != domain.StatusRejected {
			t.Errorf("expected REJECTED, got %s", val.ApprovalStatus)
		}
		if val.FraudType != domain.FraudVehicleUse {
			t.Errorf("expected %s, got %s", domain.FraudVehicleUse, val.FraudType)
		}
		if val.ReviewNote != "speed rule" {
			t.Errorf("expected passing note to be replaced, got %q", val.ReviewNote)
		}
	})

	t.Run("NeverLowersRisk", func(t *testing.T) {
		val := &domain.ValidationResult{
			ApprovalStatus: domain.StatusRejected,
			FraudRisk:      90,
			FraudType:      domain.FraudVehicleUse,
			ReviewNote:     "speed exceeds plausible range",
		}

		results := []domain.ScreeningResult{
			{Matched: true, Risk: 30, Note: "minor rule"},
		}

		Apply(val, results, cfg)

		if val.FraudRisk != 90 {
			t.Errorf("expected risk unchanged at 90, got %.1f", val.FraudRisk)
		}
		if val.ApprovalStatus != domain.StatusRejected {
			t.Errorf("expected REJECTED, got %s", val.ApprovalStatus)
		}
		if val.ReviewNote != "speed exceeds plausible range; minor rule" {
			t.Errorf("expected note appended, got %q", val.ReviewNote)
		}
	})

	t.Run("PendingThreshold", func(t *testing.T) {
		val := &domain.ValidationResult{
			ApprovalStatus: domain.StatusApproved,
			FraudRisk:      0,
			FraudType:      domain.FraudNone,
		}

		results := []domain.ScreeningResult{
			{Matched: true, Risk: 50},
		}

		Apply(val, results, cfg)

		if val.ApprovalStatus != domain.StatusPending {
			t.Errorf("expected PENDING, got %s", val.ApprovalStatus)
		}
		if val.FraudType != domain.FraudAnomalousPattern {
			t.Errorf("expected fallback category, got %s", val.FraudType)
		}
	})
}
