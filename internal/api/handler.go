package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/adaptive"
	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/stats"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	base      *detector.Detector
	det       *adaptive.Detector
	pipeline  *scoring.Pipeline
	policies  *policy.Engine
	stats     *stats.Service
	modelPath string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, base *detector.Detector, det *adaptive.Detector, pipeline *scoring.Pipeline, policies *policy.Engine, statsSvc *stats.Service, modelPath, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		base:      base,
		det:       det,
		pipeline:  pipeline,
		policies:  policies,
		stats:     statsSvc,
		modelPath: modelPath,
		version:   version,
	}
}

// ScoreRequest is the request body for POST /score. Required numeric
// fields are pointers so an absent field is distinguishable from zero.
type ScoreRequest struct {
	ID        string   `json:"id,omitempty"`
	Amount    *float64 `json:"amount"`
	Currency  string   `json:"currency,omitempty"`
	Date      string   `json:"date"` // YYYY-MM-DD
	Time      string   `json:"time"` // HH:MM:SS
	Lat       *float64 `json:"lat"`
	Long      *float64 `json:"long"`
	MerchLat  *float64 `json:"merchLat"`
	MerchLong *float64 `json:"merchLong"`
	Category  string   `json:"category,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	BirthDate string   `json:"birthDate,omitempty"`
	CityPop   float64  `json:"cityPop,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	ScoreID     string  `json:"scoreId"`
	TxID        string  `json:"txId"`
	Status      string  `json:"status"`
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
	Threshold   float64 `json:"threshold"`
	Calibrated  bool    `json:"calibrated"`

	// Alert policy outcome, only meaningful for flagged transactions.
	Suppressed      bool     `json:"suppressed,omitempty"`
	Escalated       bool     `json:"escalated,omitempty"`
	MatchedPolicies []string `json:"matchedPolicies,omitempty"`

	Metadata struct {
		TraceID string `json:"traceId"`
		ScoreMs int64  `json:"scoreMs"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Score handles POST /score requests: synchronous single-transaction
// scoring through the full pipeline.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if !h.base.Trained() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no model loaded",
		})
		return
	}

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.Amount == nil || req.Lat == nil || req.Long == nil || req.MerchLat == nil || req.MerchLong == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount, lat, long, merchLat and merchLong are required",
		})
		return
	}
	if *req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if req.Date == "" || req.Time == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "date and time are required",
		})
		return
	}

	txID := req.ID
	if txID == "" {
		txID = uuid.New().String()
	}

	tx := &domain.Transaction{
		ID:        txID,
		TenantID:  tenantID,
		Amount:    *req.Amount,
		Currency:  req.Currency,
		Date:      req.Date,
		Time:      req.Time,
		Lat:       *req.Lat,
		Long:      *req.Long,
		MerchLat:  *req.MerchLat,
		MerchLong: *req.MerchLong,
		Category:  req.Category,
		Gender:    req.Gender,
		BirthDate: req.BirthDate,
		CityPop:   req.CityPop,
		CreatedAt: time.Now().UTC(),
		Metadata:  req.Metadata,
	}

	outcome, err := h.pipeline.Score(ctx, &scoring.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Tx:        tx,
		StartTime: start,
	})
	if err != nil {
		slog.Error("scoring failed", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scoring failed: " + err.Error(),
		})
		return
	}

	score := outcome.Score
	resp := ScoreResponse{
		ScoreID:         score.ID,
		TxID:            score.TxID,
		Status:          score.Status,
		Probability:     score.Probability,
		Confidence:      score.Confidence,
		Threshold:       score.Threshold,
		Calibrated:      score.Calibrated,
		Suppressed:      outcome.Decision.Suppressed,
		Escalated:       outcome.Decision.Escalated,
		MatchedPolicies: outcome.Decision.Matched,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.ScoreMs = score.Metadata.ScoreMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetScore retrieves a score result by ID. The cache is consulted
// first; a repository hit backfills it.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scoreID := chi.URLParam(r, "id")

	if scoreID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score id is required",
		})
		return
	}

	if h.cache != nil {
		summary, err := h.cache.GetScore(ctx, tenantID, scoreID)
		if err != nil {
			slog.Warn("score cache lookup failed", "id", scoreID, "error", err)
		} else if summary != nil {
			writeJSON(w, http.StatusOK, &domain.ScoreResult{
				ID:          scoreID,
				TenantID:    tenantID,
				TxID:        summary.TxID,
				Status:      summary.Status,
				Probability: summary.Probability,
				Confidence:  summary.Confidence,
				Threshold:   summary.Threshold,
				Timestamp:   summary.Timestamp,
			})
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	score, err := h.repo.GetScore(ctx, tenantID, scoreID)
	if err != nil {
		slog.Error("failed to get score", "id", scoreID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "score not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetScore(ctx, tenantID, scoreID, &domain.ScoreSummary{
			TxID:        score.TxID,
			Status:      score.Status,
			Probability: score.Probability,
			Confidence:  score.Confidence,
			Threshold:   score.Threshold,
			Timestamp:   score.Timestamp,
		}, time.Hour)
	}

	writeJSON(w, http.StatusOK, score)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ModelResponse describes the currently loaded model.
type ModelResponse struct {
	Trained   bool   `json:"trained"`
	ModelPath string `json:"modelPath,omitempty"`

	Summary *detector.TrainingSummary `json:"summary,omitempty"`

	// Live adaptive state
	Threshold  float64 `json:"threshold,omitempty"`
	Calibrated bool    `json:"calibrated"`
}

// GetModel returns information about the loaded model and the live
// adaptive threshold.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	resp := ModelResponse{
		Trained:   h.base.Trained(),
		ModelPath: h.modelPath,
	}

	if resp.Trained {
		if summary, err := h.base.Summary(); err == nil {
			resp.Summary = &summary
		}
	}
	if h.det != nil {
		resp.Threshold = h.det.Threshold()
		resp.Calibrated = h.det.Calibrated()
	}

	writeJSON(w, http.StatusOK, resp)
}

// ReloadModel reloads the model artifact from disk. Enables swapping
// in a freshly trained model without a restart.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	if h.modelPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no model path configured",
		})
		return
	}

	if err := h.base.Load(h.modelPath); err != nil {
		slog.Error("model reload failed", "path", h.modelPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load model: " + err.Error(),
		})
		return
	}

	summary, _ := h.base.Summary()
	slog.Info("model reloaded", "path", h.modelPath, "threshold", summary.Threshold)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "model reloaded",
		"summary": summary,
	})
}

// GetStats returns live detection statistics for the tenant.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stats not available",
		})
		return
	}

	snap, err := h.stats.Snapshot(ctx, tenantID)
	if err != nil {
		slog.Error("failed to build stats snapshot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to collect stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

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

// Ready returns whether the server is ready to score traffic. A server
// without a trained model serves reads but not scoring.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.base.Trained() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready":  "false",
			"reason": "no model loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GlobalTenantID is used for alert policies that apply to all tenants.
const GlobalTenantID = "*"

// ListPolicies returns all alert policies loaded in the engine.
// Policies are loaded from the database at startup and can be reloaded
// via POST /policies/reload.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	loaded := h.policies.Loaded()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// GetPolicy retrieves an alert policy by ID from the loaded engine set.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	for _, p := range h.policies.Loaded() {
		if p.ID == policyID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "policy not found",
	})
}

// CreatePolicyRequest is the request body for creating an alert policy.
type CreatePolicyRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Action      string `json:"action"`
	Enabled     bool   `json:"enabled"`
}

// CreatePolicy creates a new alert policy and saves it to the database.
// Policies are saved globally (tenant_id = "*") so they apply to all
// tenants.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePolicyRequest
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

	policyConfig := &domain.AlertPolicy{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Action:      req.Action,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression and action before persisting
	if err := h.policies.Validate(policyConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid policy: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertPolicy(ctx, GlobalTenantID, policyConfig); err != nil {
			slog.Error("failed to save alert policy", "id", policyConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	if req.Enabled {
		if err := h.policies.Load(policyConfig); err != nil {
			slog.Error("failed to load alert policy", "id", policyConfig.ID, "error", err)
		}
	}

	slog.Info("alert policy created", "id", policyConfig.ID, "name", policyConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"policy": policyConfig,
	})
}

// DeletePolicy deletes an alert policy and reloads the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteAlertPolicy(ctx, GlobalTenantID, policyID); err != nil {
		slog.Error("failed to delete alert policy", "id", policyID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	// Auto-reload the engine after delete
	remaining, err := h.repo.ListAlertPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to reload policies after delete", "error", err)
	} else if err := h.policies.Reload(remaining); err != nil {
		slog.Error("failed to reload policy engine after delete", "error", err)
	}

	slog.Info("alert policy deleted", "id", policyID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policy deleted and engine reloaded",
	})
}

// ReloadPolicies reloads all alert policies from the database into the
// engine. Enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbPolicies, err := h.repo.ListAlertPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.Reload(dbPolicies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("alert policies reloaded from database", "count", len(dbPolicies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(dbPolicies),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
