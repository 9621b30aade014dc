package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Router Setup
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	s.registerHealthRoutes(mux)
	s.registerQueryRoutes(mux)
	s.registerTransactionRoutes(mux)
	s.registerPlanCacheRoutes(mux)

	return s.wrapWithMiddleware(mux)
}

func (s *Server) registerHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) registerQueryRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /cypher", s.handleCypher)
}

func (s *Server) registerTransactionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /transaction/begin", s.handleBegin)
	mux.HandleFunc("POST /transaction/commit", s.handleCommit)
	mux.HandleFunc("POST /transaction/rollback", s.handleRollback)
}

func (s *Server) registerPlanCacheRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /plan-cache/stats", s.handlePlanCacheStats)
	mux.HandleFunc("POST /plan-cache/clear", s.handlePlanCacheClear)
	mux.HandleFunc("POST /plan-cache/invalidate", s.handlePlanCacheInvalidate)
	mux.HandleFunc("POST /plan-cache/enabled", s.handlePlanCacheEnabled)
	mux.HandleFunc("GET /plan-cache/entries", s.handlePlanCacheEntries)
}

// wrapWithMiddleware applies, outermost first: recovery, metrics, logging.
func (s *Server) wrapWithMiddleware(h http.Handler) http.Handler {
	h = s.loggingMiddleware(h)
	h = s.metricsMiddleware(h)
	return s.recoveryMiddleware(h)
}
