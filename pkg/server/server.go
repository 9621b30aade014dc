// Package server provides the HTTP API for Nexus.
//
// Endpoints:
//
//	POST /cypher                 run one statement (optional X-Session-ID header)
//	POST /transaction/begin      open a session transaction
//	POST /transaction/commit     commit the session transaction
//	POST /transaction/rollback   discard the session transaction
//	GET  /plan-cache/stats       plan cache statistics
//	POST /plan-cache/clear       drop every cached plan
//	POST /plan-cache/invalidate  drop plans whose text contains a pattern
//	POST /plan-cache/enabled     switch plan caching on or off
//	GET  /plan-cache/entries     cached plans, most recently used first
//	GET  /status                 server and graph statistics
//	GET  /health                 liveness probe
//	GET  /metrics                Prometheus metrics
//
// Example Usage:
//
//	exec := cypher.NewExecutor(engine, cypher.DefaultOptions())
//	sessions := cypher.NewSessionManager(exec, 30*time.Minute)
//
//	srv, err := server.New(exec, sessions, server.DefaultConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
//
// Query request:
//
//	curl -X POST http://localhost:7474/cypher \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "MATCH (n:Person) RETURN n.name", "parameters": {}}'
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/config"
	"github.com/orneryd/nexus/pkg/cypher"
)

// SessionHeader names the session a request runs in.
const SessionHeader = "X-Session-ID"

// Errors
var (
	ErrServerClosed  = errors.New("server closed")
	ErrBadRequest    = errors.New("bad request")
	ErrInternalError = errors.New("internal server error")
)

// Config holds HTTP server configuration options.
type Config struct {
	// Address to bind to (default: "127.0.0.1")
	Address string
	// Port to listen on (default: 7474). Zero picks a free port.
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 10MB)
	MaxRequestSize int64
}

// DefaultConfig returns a localhost-only configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "127.0.0.1",
		Port:           7474,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    2 * time.Minute,
		MaxRequestSize: 10 * 1024 * 1024,
	}
}

// ConfigFrom converts the file/env server section.
func ConfigFrom(cfg config.ServerConfig) *Config {
	return &Config{
		Address:        cfg.Address,
		Port:           cfg.HTTPPort,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
	}
}

// Server serves the query kernel over HTTP.
type Server struct {
	config   *Config
	exec     *cypher.Executor
	sessions *cypher.SessionManager
	log      *logrus.Entry

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	// Metrics
	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a server. It does not listen until Start.
func New(exec *cypher.Executor, sessions *cypher.SessionManager, cfg *Config, logger *logrus.Logger) (*Server, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultConfig().MaxRequestSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		config:   cfg,
		exec:     exec,
		sessions: sessions,
		log:      logger.WithField("component", "server"),
		started:  time.Now(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens and serves in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()

	s.log.WithField("addr", listener.Addr().String()).Info("http server listening")
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns current server runtime statistics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
		Sessions:       s.sessions.Len(),
	}
}

// ServerStats holds server metrics.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
	Sessions       int           `json:"sessions"`
}
