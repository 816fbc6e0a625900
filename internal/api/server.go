// Package api provides the HTTP server for vrrd: controller state and
// statistics snapshots for tooling, plus present/power feeds for simulation.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/panelworks/vrrd/internal/display"
	"github.com/panelworks/vrrd/internal/health"
	"github.com/panelworks/vrrd/internal/stats"
	"github.com/panelworks/vrrd/internal/vrr"
)

// version is the API version string.
const version = "0.1.0"

// Server is the vrrd HTTP API server.
type Server struct {
	controller     *vrr.Controller
	statistic      *stats.Statistic
	calculator     *stats.Calculator
	provider       display.ContextProvider
	checker        *health.Checker
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(controller *vrr.Controller, statistic *stats.Statistic,
	calculator *stats.Calculator, provider display.ContextProvider) *Server {
	return &Server{
		controller: controller,
		statistic:  statistic,
		calculator: calculator,
		provider:   provider,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealthChecker attaches the periodic self-check results to /health.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/state", s.handleState)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/statistics/updated", s.handleUpdatedStatistics)
		r.Get("/refresh-rate", s.handleRefreshRate)
		r.Post("/present", s.handlePresent)
		r.Post("/expected-present", s.handleExpectedPresent)
		r.Post("/power", s.handlePower)
		r.Post("/config/active", s.handleActiveConfig)
		r.Post("/enable", s.handleEnable)
		r.Post("/reset", s.handleReset)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := http.StatusOK
	overall := "ok"
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": s.checker.Statuses(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, display.SortedEntries(s.statistic.GetStatistics()))
}

func (s *Server) handleUpdatedStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, display.SortedEntries(s.statistic.GetUpdatedStatistics()))
}

func (s *Server) handleRefreshRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"refresh_rate": s.calculator.RefreshRate()})
}

type presentRequest struct {
	TimestampNs     int64 `json:"timestamp_ns"`
	FrameIntervalNs int64 `json:"frame_interval_ns"`
}

// handlePresent feeds one present through the full pipeline the compositor
// would drive: descriptor, controller, aggregator, calculator.
func (s *Server) handlePresent(w http.ResponseWriter, r *http.Request) {
	var req presentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.controller.SetExpectedPresentTime(req.TimestampNs, req.FrameIntervalNs)
	s.controller.OnPresent()
	s.statistic.OnPresent(req.TimestampNs, 0)
	s.calculator.OnPresent(req.TimestampNs, 0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExpectedPresent(w http.ResponseWriter, r *http.Request) {
	var req presentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.controller.NotifyExpectedPresent(req.TimestampNs, req.FrameIntervalNs)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type powerRequest struct {
	PowerMode int32 `json:"power_mode"`
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	from := s.provider.PowerMode()
	to := display.PowerMode(req.PowerMode)
	if static, ok := s.provider.(*display.StaticProvider); ok {
		static.SetPowerMode(to)
	}
	s.statistic.OnPowerStateChange(from, to)
	writeJSON(w, http.StatusOK, map[string]string{
		"from": from.String(),
		"to":   to.String(),
	})
}

type activeConfigRequest struct {
	ConfigID    int32 `json:"config_id"`
	TeFrequency int   `json:"te_frequency"`
}

func (s *Server) handleActiveConfig(w http.ResponseWriter, r *http.Request) {
	var req activeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.controller.SetActiveVrrConfiguration(display.ConfigID(req.ConfigID))
	if req.TeFrequency > 0 {
		s.statistic.SetActiveVrrConfiguration(display.ConfigID(req.ConfigID), req.TeFrequency)
	}
	if static, ok := s.provider.(*display.StaticProvider); ok {
		static.SetActiveConfigID(display.ConfigID(req.ConfigID))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.controller.SetEnable(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.controller.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
