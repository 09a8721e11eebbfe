package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/zen-systems/modelgate/pkg/complexity"
	"github.com/zen-systems/modelgate/pkg/dispatch"
	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
	"github.com/zen-systems/modelgate/pkg/tracker"
)

// Server exposes the gateway's RPC surface over HTTP/JSON.
type Server struct {
	dispatcher *dispatch.Dispatcher
	evaluator  *complexity.Evaluator
	registry   *provider.Registry
	tracker    *tracker.Tracker
	collector  *metrics.Collector
	router     *chi.Mux
}

// NewServer creates the API server.
func NewServer(d *dispatch.Dispatcher, e *complexity.Evaluator, reg *provider.Registry, tr *tracker.Tracker, c *metrics.Collector) *Server {
	s := &Server{
		dispatcher: d,
		evaluator:  e,
		registry:   reg,
		tracker:    tr,
		collector:  c,
		router:     chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(120 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.processQuery)
		r.Post("/complexity", s.evaluateComplexity)
		r.Get("/capabilities", s.getCapabilities)
		r.Get("/stats", s.getStats)
		r.Get("/alerts", s.getAlerts)
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processQuery implements the ProcessQuery RPC.
func (s *Server) processQuery(w http.ResponseWriter, r *http.Request) {
	var req schema.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, schema.NewError(schema.CodeInvalidRequest, "malformed request body: %v", err))
		return
	}

	resp, err := s.dispatcher.Process(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// evaluateComplexity implements the EvaluateComplexity RPC.
func (s *Server) evaluateComplexity(w http.ResponseWriter, r *http.Request) {
	var req schema.ComplexityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, schema.NewError(schema.CodeInvalidRequest, "malformed request body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(w, schema.NewError(schema.CodeInvalidRequest, "query is required"))
		return
	}

	result, err := s.evaluator.EvaluateWithFeatures(req.Query, req.Features)
	if err != nil {
		writeError(w, schema.NewError(schema.CodeComplexityEvaluationFailed, "%v", err))
		return
	}

	writeJSON(w, http.StatusOK, schema.ComplexityResponse{
		ComplexityScore:   result.Score,
		ComplexityFactors: result.Factors,
	})
}

// getCapabilities implements the GetModelCapabilities RPC. The top-level
// tag list is the union over online providers.
func (s *Server) getCapabilities(w http.ResponseWriter, r *http.Request) {
	union := make(map[string]struct{})
	var providers []schema.ProviderCapabilities

	for _, d := range s.registry.List() {
		if d.Status != schema.StatusOnline {
			continue
		}
		providers = append(providers, schema.ProviderCapabilities{
			ProviderName: d.Name,
			Capabilities: d.Capabilities,
		})
		for _, tag := range d.Capabilities {
			union[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(union))
	for tag := range union {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	writeJSON(w, http.StatusOK, schema.CapabilitiesResponse{
		Capabilities: tags,
		Providers:    providers,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"windows": s.collector.SnapshotStats(),
		"tracker": s.tracker.Snapshot(),
	})
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": s.collector.CheckHealth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a gateway error onto the HTTP status taxonomy.
func writeError(w http.ResponseWriter, err error) {
	var gerr *schema.GatewayError
	if !errors.As(err, &gerr) {
		gerr = &schema.GatewayError{Code: -1, Message: "internal error"}
	}

	status := http.StatusInternalServerError
	switch gerr.Code {
	case schema.CodeInvalidRequest:
		status = http.StatusBadRequest
	case schema.CodeModelUnavailable:
		status = http.StatusServiceUnavailable
	case schema.CodeCostLimitExceeded:
		status = http.StatusTooManyRequests
	case schema.CodeComplexityEvaluationFailed:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, schema.ErrorResponse{
		Code:      int(gerr.Code),
		ErrorCode: gerr.Code.String(),
		Message:   gerr.Message,
	})
}
