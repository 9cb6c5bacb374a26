// -----------------------------------------------------------------------
// Analytics handler - read surface over rollups and the cache analyzer
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/services/analytics"
	"github.com/ternarybob/atelier/internal/services/cacheplan"
)

// AnalyticsHandler serves the /api/analytics endpoints
type AnalyticsHandler struct {
	trends   *analytics.Trends
	analyzer *cacheplan.Analyzer
	logger   arbor.ILogger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(trends *analytics.Trends, analyzer *cacheplan.Analyzer, logger arbor.ILogger) *AnalyticsHandler {
	return &AnalyticsHandler{trends: trends, analyzer: analyzer, logger: logger}
}

// PerformanceTrends handles GET /api/analytics/performance-trends
// Params: days (1..90, default 7), granularity (hourly|daily, default
// hourly), route (optional filter)
func (h *AnalyticsHandler) PerformanceTrends(w http.ResponseWriter, r *http.Request) {
	days := QueryInt(r, "days", 7)
	if days < 1 || days > 90 {
		WriteError(w, http.StatusUnprocessableEntity, "days must be between 1 and 90")
		return
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "hourly"
	}
	if granularity != "hourly" && granularity != "daily" {
		WriteError(w, http.StatusUnprocessableEntity, "granularity must be hourly or daily")
		return
	}
	route := r.URL.Query().Get("route")

	buckets, err := h.trends.PerformanceTrends(r.Context(), days, granularity, route)
	if err != nil {
		h.logger.Error().Err(err).Msg("Performance trends query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute performance trends")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":        days,
		"granularity": granularity,
		"buckets":     buckets,
	})
}

// PeakHours handles GET /api/analytics/peak-hours
// Params: days (7..90, default 30), route (optional filter), min_requests
// (drop pairs under this window total, default 0)
func (h *AnalyticsHandler) PeakHours(w http.ResponseWriter, r *http.Request) {
	days := QueryInt(r, "days", 30)
	if days < 7 || days > 90 {
		WriteError(w, http.StatusUnprocessableEntity, "days must be between 7 and 90")
		return
	}
	route := r.URL.Query().Get("route")
	minRequests := QueryInt(r, "min_requests", 0)

	hours, err := h.trends.PeakHours(r.Context(), days, route, minRequests)
	if err != nil {
		h.logger.Error().Err(err).Msg("Peak hours query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute peak hours")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"hours": hours,
	})
}

// TopRoutes handles GET /api/analytics/top-routes
// Params: n (1..100, default 10), days (1..90, default 7)
func (h *AnalyticsHandler) TopRoutes(w http.ResponseWriter, r *http.Request) {
	n := QueryInt(r, "n", 10)
	if n < 1 || n > 100 {
		WriteError(w, http.StatusUnprocessableEntity, "n must be between 1 and 100")
		return
	}
	days := QueryInt(r, "days", 7)
	if days < 1 || days > 90 {
		WriteError(w, http.StatusUnprocessableEntity, "days must be between 1 and 90")
		return
	}

	routes, err := h.trends.TopRoutes(r.Context(), days, n)
	if err != nil {
		h.logger.Error().Err(err).Msg("Top routes query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute top routes")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"routes": routes,
	})
}

// GenerationTrends handles GET /api/analytics/generation-trends
// Params: days (1..90, default 7)
func (h *AnalyticsHandler) GenerationTrends(w http.ResponseWriter, r *http.Request) {
	days := QueryInt(r, "days", 7)
	if days < 1 || days > 90 {
		WriteError(w, http.StatusUnprocessableEntity, "days must be between 1 and 90")
		return
	}

	rows, err := h.trends.GenerationTrends(r.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Msg("Generation trends query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute generation trends")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"hours": rows,
	})
}

// CacheCandidates handles GET /api/analytics/cache-candidates
// Params: n (1..100, default 10), days (1..90, default 7),
// system (absolute|relative, default absolute), min_requests, min_latency
func (h *AnalyticsHandler) CacheCandidates(w http.ResponseWriter, r *http.Request) {
	n := QueryInt(r, "n", 10)
	if n < 1 || n > 100 {
		WriteError(w, http.StatusUnprocessableEntity, "n must be between 1 and 100")
		return
	}
	days := QueryInt(r, "days", 7)
	if days < 1 || days > 90 {
		WriteError(w, http.StatusUnprocessableEntity, "days must be between 1 and 90")
		return
	}
	system := r.URL.Query().Get("system")
	if system == "" {
		system = cacheplan.SystemAbsolute
	}
	if system != cacheplan.SystemAbsolute && system != cacheplan.SystemRelative {
		WriteError(w, http.StatusUnprocessableEntity, "system must be absolute or relative")
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), cacheplan.Options{
		TopN:               n,
		LookbackDays:       days,
		System:             system,
		MinRequestsPerHour: QueryFloat(r, "min_requests", 0),
		MinLatencyMs:       QueryFloat(r, "min_latency", 0),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Cache candidate analysis failed")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
