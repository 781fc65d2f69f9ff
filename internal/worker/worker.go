// Package worker provides async validation of recorded activities.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/history"
	"github.com/openathletics/stridewatch/internal/rules"
	"github.com/openathletics/stridewatch/internal/validate"
)

// Worker validates recorded activities asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	validator *validate.Validator
	engine    *rules.Engine
	hist      *history.Service
	valCfg    domain.ValidationConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async validation worker. The rules engine may be
// nil when no screening rules are configured.
func NewWorker(bus domain.EventBus, repo domain.Repository, validator *validate.Validator, engine *rules.Engine, hist *history.Service, valCfg domain.ValidationConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		validator: validator,
		engine:    engine,
		hist:      hist,
		valCfg:    valCfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing recorded activities for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicActivityRecorded, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicActivityRecorded, func(ctx context.Context, msg *domain.Message) error {
		return w.processActivity(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicActivityRecorded,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processActivity(ctx, msg.TenantID, msg)
}

// processActivity validates one recorded activity through the pipeline.
func (w *Worker) processActivity(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var act domain.Activity
	if err := json.Unmarshal(msg.Payload, &act); err != nil {
		slog.Error("failed to parse activity message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if act.TenantID != "" {
		tenantID = act.TenantID
	}

	slog.Debug("validating activity",
		"activity_id", act.ID,
		"user_id", act.UserID,
		"tenant_id", tenantID,
	)

	// 1. Load the user's prior activities, excluding the new record.
	var prior []*domain.Activity
	if w.hist != nil {
		acts, err := w.hist.Recent(ctx, tenantID, act.UserID, w.valCfg.HistoryLimit)
		if err != nil {
			slog.Warn("failed to load user history, validating without it",
				"user_id", act.UserID,
				"error", err,
			)
		} else {
			for _, h := range acts {
				if h.ID != act.ID {
					prior = append(prior, h)
				}
			}
		}
	}

	// 2. Run the built-in validator.
	result := w.validator.Validate(&act, prior)
	result.ID = uuid.New().String()
	result.TenantID = tenantID
	result.CreatedAt = time.Now().UTC()

	// 3. Apply operator screening rules on top.
	if w.engine != nil && w.engine.RulesCount() > 0 {
		screenResults, err := w.engine.EvaluateAll(ctx, tenantID, &act)
		if err != nil {
			slog.Error("screening rules failed",
				"activity_id", act.ID,
				"error", err,
			)
		} else {
			rules.Apply(result, screenResults, w.valCfg)
		}
	}

	// 4. Save validation result.
	if w.repo != nil {
		if err := w.repo.SaveValidation(ctx, tenantID, result); err != nil {
			slog.Error("failed to save validation",
				"activity_id", act.ID,
				"error", err,
			)
		}
	}

	// 5. Publish result, plus an alert for rejected records.
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicActivityValidated, resultPayload); err != nil {
		slog.Error("failed to publish validation result",
			"activity_id", act.ID,
			"error", err,
		)
	}

	if result.ApprovalStatus == domain.StatusRejected {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicActivityAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"activity_id", act.ID,
				"error", err,
			)
		}
	}

	slog.Info("activity validated",
		"activity_id", act.ID,
		"user_id", act.UserID,
		"tenant_id", tenantID,
		"status", result.ApprovalStatus,
		"risk", result.FraudRisk,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
