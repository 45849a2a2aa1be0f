package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/ratelimit"
	"github.com/inkwell/inkwell-api/internal/request"
	"github.com/inkwell/inkwell-api/internal/validation"
)

// RateSource reports the flood guard's current rate.
type RateSource interface {
	Rate() string
}

// AdminHandler serves the administrator endpoints. Routes must sit behind admin.Require.
type AdminHandler struct {
	limiter *ratelimit.Limiter
	health  *HealthChecker
	flood   RateSource
	log     *zap.Logger
}

// NewAdminHandler creates the handler. flood may be nil.
func NewAdminHandler(limiter *ratelimit.Limiter, health *HealthChecker, flood RateSource, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{limiter: limiter, health: health, flood: flood, log: log}
}

// AdminCheckResponse confirms the caller's admin status.
type AdminCheckResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
}

// Check handles GET /api/admin/check.
func (h *AdminHandler) Check(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	profile := request.ProfileFromContext(r)
	if user == nil || profile == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "Authentication required")
		return
	}
	respondJSON(w, http.StatusOK, AdminCheckResponse{UserID: user.ID, Email: user.Email, Role: string(profile.Role)})
}

// MonitoringResponse is the admin diagnostics payload.
type MonitoringResponse struct {
	RateLimits     ratelimit.Stats `json:"rate_limits"`
	FloodGuardRate string          `json:"flood_guard_rate,omitempty"`
	Health         HealthResponse  `json:"health"`
}

// Monitoring handles GET /api/admin/monitoring.
func (h *AdminHandler) Monitoring(w http.ResponseWriter, r *http.Request) {
	stats, err := h.limiter.Stats(r.Context())
	if err != nil {
		h.log.Error("rate_limit_stats_failed", zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "STATS_UNAVAILABLE", "Rate limit statistics are unavailable")
		return
	}

	resp := MonitoringResponse{RateLimits: stats}
	if h.flood != nil {
		resp.FloodGuardRate = h.flood.Rate()
	}
	if h.health != nil {
		resp.Health = h.health.Run(r.Context())
	}
	respondJSON(w, http.StatusOK, resp)
}

// Unblock handles DELETE /api/admin/ratelimit/{tier}/{key}.
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tier, key := vars["tier"], vars["key"]

	if !validation.IsTierName(tier) || key == "" || len(key) > 256 {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_PARAMETERS", "tier and key are required")
		return
	}

	if err := h.limiter.Reset(r.Context(), tier, key); err != nil {
		if errors.Is(err, ratelimit.ErrUnknownTier) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "UNKNOWN_TIER", "Unknown rate limit tier")
			return
		}
		h.log.Error("rate_limit_reset_failed", zap.String("tier", tier), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "RESET_FAILED", "Failed to reset rate limit")
		return
	}

	var adminID string
	if user := request.UserFromContext(r); user != nil {
		adminID = user.ID
	}
	h.log.Info("rate_limit_reset", zap.String("tier", tier), zap.String("admin_id", adminID))
	w.WriteHeader(http.StatusNoContent)
}
