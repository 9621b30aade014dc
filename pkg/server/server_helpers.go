package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/cypher"
)

// =============================================================================
// Helper Functions
// =============================================================================

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// statusFor maps an error kind onto an HTTP status code.
func statusFor(kind cypher.ErrorKind) int {
	switch kind {
	case cypher.KindParse:
		return http.StatusBadRequest
	case cypher.KindUnknownVariable, cypher.KindUnsupportedExpression,
		cypher.KindTypeMismatch, cypher.KindInvalidNumber, cypher.KindConstraint:
		return http.StatusUnprocessableEntity
	case cypher.KindQueryTimeout:
		return http.StatusRequestTimeout
	case cypher.KindTransaction:
		return http.StatusConflict
	case cypher.KindSessionNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  cypher.ErrorKind `json:"kind"`
}

// JSON helpers

// readJSON decodes the request body, keeping integers exact.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, kind cypher.ErrorKind) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// writeKernelError classifies err and writes it with the matching status.
func (s *Server) writeKernelError(w http.ResponseWriter, err error) {
	kind := cypher.Classify(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("kind", kind).Error("request failed")
	}
	s.writeError(w, status, err.Error(), kind)
}

// Logging helpers

func (s *Server) logRequest(r *http.Request, status int, duration time.Duration) {
	s.log.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      status,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}).Info("http request")
}
