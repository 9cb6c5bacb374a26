package server

import (
	"net/http"
)

// setupRoutes wires the REST and WebSocket surface
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and status
	mux.HandleFunc("GET /health", s.app.StatusHandler.Health)
	mux.HandleFunc("GET /api/status", s.app.StatusHandler.Status)

	// Generation jobs
	mux.HandleFunc("POST /api/jobs", s.app.JobHandler.CreateJob)
	mux.HandleFunc("GET /api/jobs", s.app.JobHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.app.JobHandler.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.app.JobHandler.CancelJob)

	// Analytics reads
	mux.HandleFunc("GET /api/analytics/performance-trends", s.app.AnalyticsHandler.PerformanceTrends)
	mux.HandleFunc("GET /api/analytics/peak-hours", s.app.AnalyticsHandler.PeakHours)
	mux.HandleFunc("GET /api/analytics/top-routes", s.app.AnalyticsHandler.TopRoutes)
	mux.HandleFunc("GET /api/analytics/generation-trends", s.app.AnalyticsHandler.GenerationTrends)
	mux.HandleFunc("GET /api/analytics/cache-candidates", s.app.AnalyticsHandler.CacheCandidates)

	// Progress relay
	mux.HandleFunc("GET /ws/jobs/{id}", s.app.WebSocketHandler.HandleJob)
	mux.HandleFunc("GET /ws/jobs", s.app.WebSocketHandler.HandleJobs)

	return mux
}
