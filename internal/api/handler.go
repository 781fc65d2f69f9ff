package api

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openathletics/stridewatch/internal/analysis"
	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/history"
	"github.com/openathletics/stridewatch/internal/rules"
	"github.com/openathletics/stridewatch/internal/validate"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	analyzer  *analysis.Service
	validator *validate.Validator
	hist      *history.Service
	valCfg    domain.ValidationConfig
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *analysis.Service, validator *validate.Validator, hist *history.Service, valCfg domain.ValidationConfig, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		analyzer:  analyzer,
		validator: validator,
		hist:      hist,
		valCfg:    valCfg,
		version:   version,
	}
}

// GlobalTenantID is used for screening rules that apply to all tenants.
const GlobalTenantID = "*"

// Analyze handles POST /api/v1/analyze requests. The endpoint always
// responds 200 with a batch result; pipeline failures come back in the
// result's error field rather than as an HTTP error.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	records, err := h.parseBatch(r)
	if err != nil {
		writeJSON(w, http.StatusOK, domain.ErrorBatchResult("invalid request body: "+err.Error()))
		return
	}

	result := h.analyzer.AnalyzeBatch(ctx, tenantID, records)
	writeJSON(w, http.StatusOK, result)
}

// parseBatch reads a batch of activity records from the request body,
// accepting JSON arrays or CSV exports.
func (h *Handler) parseBatch(r *http.Request) ([]*domain.Activity, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/csv") {
		return parseCSV(r.Body)
	}

	var reqs []domain.ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		return nil, err
	}

	records := make([]*domain.Activity, 0, len(reqs))
	for i := range reqs {
		records = append(records, reqs[i].ToActivity())
	}
	return records, nil
}

// csvHeader is the expected column order for CSV batch uploads.
var csvHeader = []string{"Id", "UserId", "TotalSteps", "TotalDistance", "TimeTaken", "AvgSpeed", "Timestamp"}

func parseCSV(body io.Reader) ([]*domain.Activity, error) {
	reader := csv.NewReader(body)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Skip a header row if present.
	start := 0
	if strings.EqualFold(rows[0][0], csvHeader[0]) {
		start = 1
	}

	var records []*domain.Activity
	for _, row := range rows[start:] {
		if len(row) < len(csvHeader) {
			continue
		}
		act := &domain.Activity{
			ID:     row[0],
			UserID: row[1],
		}
		act.TotalSteps, _ = strconv.ParseFloat(row[2], 64)
		act.TotalDistance, _ = strconv.ParseFloat(row[3], 64)
		act.TimeTaken, _ = strconv.ParseFloat(row[4], 64)
		act.AvgSpeed, _ = strconv.ParseFloat(row[5], 64)
		if ts, err := time.Parse(time.RFC3339, row[6]); err == nil {
			act.Timestamp = ts
		}
		records = append(records, act)
	}
	return records, nil
}

// Validate handles POST /api/v1/validate requests. A record that cannot be
// parsed is held for manual review rather than rejected or errored.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, &domain.ValidationResult{
			ApprovalStatus: domain.StatusPending,
			FraudRisk:      50,
			FraudType:      domain.FraudValidationError,
			ReviewNote:     "unable to parse activity record, held for manual review",
		})
		return
	}

	act := req.ToActivity()

	var prior []*domain.Activity
	if h.hist != nil && act.UserID != "" {
		if acts, err := h.hist.Recent(ctx, tenantID, act.UserID, h.valCfg.HistoryLimit); err == nil {
			for _, a := range acts {
				if a.ID != act.ID {
					prior = append(prior, a)
				}
			}
		} else {
			slog.Warn("failed to load user history", "user_id", act.UserID, "error", err)
		}
	}

	result := h.validator.Validate(act, prior)

	if h.engine != nil && h.engine.RulesCount() > 0 {
		if screenResults, err := h.engine.EvaluateAll(ctx, tenantID, act); err == nil {
			rules.Apply(result, screenResults, h.valCfg)
		} else {
			slog.Error("screening rules failed", "activity_id", act.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateActivity handles POST /api/v1/activities: persists the record and
// queues it for async validation.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}

	act := req.ToActivity()
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	act.TenantID = tenantID

	if h.repo != nil {
		if err := h.repo.SaveActivity(ctx, tenantID, act); err != nil {
			slog.Error("failed to save activity", "id", act.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save activity",
			})
			return
		}
	}

	if h.hist != nil {
		h.hist.Invalidate(ctx, tenantID, act.UserID)
	}

	if h.bus != nil {
		payload, _ := json.Marshal(act)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicActivityRecorded, payload); err != nil {
			slog.Error("failed to publish activity", "id", act.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, act)
}

// GetActivity retrieves an activity by ID.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	actID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	act, err := h.repo.GetActivity(ctx, tenantID, actID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "activity not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, act)
}

// GetActivityValidation retrieves the stored validation outcome for an activity.
func (h *Handler) GetActivityValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	actID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	val, err := h.repo.GetValidationByActivity(ctx, tenantID, actID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "validation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, val)
}

// UserHistory handles GET /api/v1/users/{userID}/history.
func (h *Handler) UserHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	userID := chi.URLParam(r, "userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	acts, err := h.hist.Recent(ctx, tenantID, userID, limit)
	if err != nil {
		slog.Error("failed to load history", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load user history",
		})
		return
	}
	if acts == nil {
		acts = []*domain.Activity{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":     userID,
		"count":      len(acts),
		"activities": acts,
	})
}

// UserRisk handles GET /api/v1/users/{userID}/risk, serving from cache
// before the repository.
func (h *Handler) UserRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	userID := chi.URLParam(r, "userID")

	if h.cache != nil {
		if score, err := h.cache.GetUserRisk(ctx, tenantID, userID); err == nil && score != nil {
			writeJSON(w, http.StatusOK, score)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	score, err := h.repo.GetUserRisk(ctx, tenantID, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no risk score for user",
		})
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// GetAnalysis retrieves a stored batch analysis result by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetBatchResult(ctx, tenantID, analysisID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded screening rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a screening rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Risk        float64 `json:"risk"`
	Category    string  `json:"category,omitempty"`
	Note        string  `json:"note,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Risk < 0 || req.Risk > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "risk must be between 0 and 100",
		})
		return
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Risk:        req.Risk,
		Category:    req.Category,
		Note:        req.Note,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreeningRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes a screening rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteScreeningRule(ctx, GlobalTenantID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	dbRules, err := h.repo.ListScreeningRules(ctx, GlobalTenantID)
	if err == nil {
		if err := h.engine.ReloadRules(dbRules); err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		}
	}

	slog.Info("screening rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all screening rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreeningRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
