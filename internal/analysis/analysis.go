// Package analysis orchestrates the batch fraud detection pipeline:
// normalization, baselines, feature assembly, the detector ensemble,
// classification, and risk scoring.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/openathletics/stridewatch/internal/classify"
	"github.com/openathletics/stridewatch/internal/detect"
	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
	"github.com/openathletics/stridewatch/internal/risk"
)

// Service runs batch analyses and persists their results.
type Service struct {
	cfg    domain.DetectionConfig
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	logger *slog.Logger

	// riskTTL bounds how long per-user risk scores stay cached.
	riskTTL time.Duration
}

// New creates an analysis service. Repository, cache, and bus may be nil;
// the pipeline then runs without persistence or notifications.
func New(cfg domain.DetectionConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Service {
	return &Service{
		cfg:     cfg,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		logger:  slog.With("component", "analysis"),
		riskTTL: 15 * time.Minute,
	}
}

// AnalyzeBatch runs the full pipeline over a batch of activity records.
// It never fails: internal errors and panics are folded into an
// error-shaped result so callers always get the standard result format.
func (s *Service) AnalyzeBatch(ctx context.Context, tenantID string, records []*domain.Activity) (result *domain.BatchResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch analysis panicked", "panic", r)
			result = domain.ErrorBatchResult(fmt.Sprintf("analysis failed: %v", r))
		}
	}()

	result = s.analyze(ctx, tenantID, records)

	if result.Error == "" {
		result.ID = uuid.New().String()
		result.TenantID = tenantID
		result.CreatedAt = time.Now().UTC()
		s.persist(ctx, tenantID, result)
	}

	s.logger.Info("batch analysis complete",
		"analysis_id", result.ID,
		"records", result.TotalRecords,
		"fraud_records", result.TotalFraudRecords,
		"flagged_users", len(result.FraudUserIDs),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result
}

func (s *Service) analyze(ctx context.Context, tenantID string, records []*domain.Activity) *domain.BatchResult {
	if len(records) == 0 {
		return domain.EmptyBatchResult(0)
	}

	rows := features.Normalize(records)
	features.BuildBaselines(rows)

	matrix, err := features.Assemble(rows)
	if err != nil {
		if errors.Is(err, features.ErrNoFeatures) {
			// No usable features is a clean zero-fraud outcome.
			return domain.EmptyBatchResult(len(records))
		}
		return domain.ErrorBatchResult(err.Error())
	}

	ensemble := detect.NewEnsemble(s.cfg, matrix.Rows())
	votes := ensemble.Run(matrix)
	if len(votes.Failed) > 0 {
		s.logger.Warn("detectors excluded from batch",
			"failed", len(votes.Failed),
			"succeeded", votes.Succeeded(),
		)
	}

	categories := classify.Assign(rows, votes.Flags)
	scores := risk.ScoreUsers(rows, categories)

	result := domain.EmptyBatchResult(len(records))
	result.UserRiskScores = scores

	for uid, score := range scores {
		if score.FraudCount > 0 {
			result.FraudUserIDs = append(result.FraudUserIDs, uid)
		}
	}
	sort.Strings(result.FraudUserIDs)

	for i, r := range rows {
		if categories[i] == "" {
			continue
		}
		result.TotalFraudRecords++
		detail := &domain.FraudRecordDetail{
			ID:           r.Activity.ID,
			UserID:       r.Activity.UserID,
			FraudType:    categories[i],
			ActivityData: activityData(r, votes, i),
		}
		if us, ok := scores[r.Activity.UserID]; ok {
			detail.RiskScore = us.RiskScore
		}
		result.FraudRecords = append(result.FraudRecords, detail)
	}

	return result
}

// activityData builds the per-record payload attached to fraud details.
func activityData(r *features.Row, votes *detect.EnsembleResult, idx int) map[string]interface{} {
	data := map[string]interface{}{
		"TotalSteps":      r.Steps,
		"TotalDistance":   r.Distance,
		"TimeTaken":       r.TimeTaken,
		"AvgSpeed":        r.Speed,
		"DistancePerStep": r.DistPerStep,
		"Timestamp":       r.Activity.Timestamp.UTC().Format(time.RFC3339),
	}
	for name, flags := range votes.ByDetector {
		data["anomaly_"+name] = flags[idx]
	}
	if r.HasBaseline {
		data["StepDeviation"] = r.StepDev
		data["SpeedDeviation"] = r.SpeedDev
		data["DistPerStepDeviation"] = r.DistPerStepDev
		if !math.IsNaN(r.HRDev) {
			data["HeartRateDeviation"] = r.HRDev
		}
	}
	return data
}

func (s *Service) persist(ctx context.Context, tenantID string, result *domain.BatchResult) {
	if s.repo != nil {
		if err := s.repo.SaveBatchResult(ctx, tenantID, result); err != nil {
			s.logger.Warn("failed to persist batch result",
				"analysis_id", result.ID,
				"error", err,
			)
		}
		for uid, score := range result.UserRiskScores {
			if err := s.repo.SaveUserRisk(ctx, tenantID, uid, score); err != nil {
				s.logger.Warn("failed to persist user risk", "user_id", uid, "error", err)
			}
		}
	}

	if s.cache != nil {
		for uid, score := range result.UserRiskScores {
			if err := s.cache.SetUserRisk(ctx, tenantID, uid, score, s.riskTTL); err != nil {
				s.logger.Warn("failed to cache user risk", "user_id", uid, "error", err)
			}
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(map[string]interface{}{
			"analysisId":        result.ID,
			"totalRecords":      result.TotalRecords,
			"totalFraudRecords": result.TotalFraudRecords,
			"fraudUserIds":      result.FraudUserIDs,
		})
		if err == nil {
			if err := s.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
				s.logger.Warn("failed to publish analysis event", "error", err)
			}
		}
	}
}
