package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/cypher"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nexus",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// routes bounds the route label cardinality.
var routes = map[string]bool{
	"/cypher":                true,
	"/transaction/begin":     true,
	"/transaction/commit":    true,
	"/transaction/rollback":  true,
	"/plan-cache/stats":      true,
	"/plan-cache/clear":      true,
	"/plan-cache/invalidate": true,
	"/plan-cache/enabled":    true,
	"/plan-cache/entries":    true,
	"/status":                true,
	"/health":                true,
	"/metrics":               true,
}

func routeLabel(r *http.Request) string {
	if routes[r.URL.Path] {
		return r.URL.Path
	}
	return "other"
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// Skip health checks for noise reduction
		if r.URL.Path != "/health" {
			s.logRequest(r, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log := s.log.WithFields(logrus.Fields{"path": r.URL.Path, "panic": err})
				log.Error("handler panic")
				if s.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Debugf("stack trace:\n%s", buf[:n])
				}
				s.writeError(w, http.StatusInternalServerError, "internal server error", cypher.KindInternal)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			route := routeLabel(r)
			httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.status)).Inc()
			httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(wrapped, r)
	})
}
