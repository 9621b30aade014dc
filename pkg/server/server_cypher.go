package server

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/cache"
	"github.com/orneryd/nexus/pkg/cypher"
	"github.com/orneryd/nexus/pkg/value"
)

// kindBadRequest marks malformed requests that never reached the kernel.
const kindBadRequest cypher.ErrorKind = "BadRequest"

// =============================================================================
// Query Handlers
// =============================================================================

// QueryRequest is the body of POST /cypher.
type QueryRequest struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// QueryResponse is a successful POST /cypher result. Rows hold plain JSON
// values; nodes and relationships appear as maps.
type QueryResponse struct {
	Columns         []string           `json:"columns"`
	Rows            [][]any            `json:"rows"`
	Stats           *cypher.QueryStats `json:"stats,omitempty"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
}

func (s *Server) handleCypher(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), kindBadRequest)
		return
	}

	start := time.Now()
	var (
		res *cypher.ExecuteResult
		err error
	)
	if id := r.Header.Get(SessionHeader); id != "" {
		sess, gerr := s.sessions.Get(id)
		if gerr != nil {
			s.writeKernelError(w, gerr)
			return
		}
		res, err = sess.Execute(r.Context(), req.Query, req.Parameters)
	} else {
		res, err = s.exec.Execute(r.Context(), req.Query, req.Parameters)
	}
	if err != nil {
		s.writeKernelError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Columns:         res.Columns,
		Rows:            rowsToGo(res.Rows),
		Stats:           res.Stats,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	})
}

func rowsToGo(rows [][]value.Value) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = value.ToGo(v)
		}
		out[i] = vals
	}
	return out
}

// =============================================================================
// Transaction Handlers
// =============================================================================

// TransactionResponse is returned by the /transaction endpoints.
type TransactionResponse struct {
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// handleBegin opens a transaction in the header's session, creating a
// session when the header is absent.
func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	var (
		sess *cypher.Session
		err  error
	)
	if id := r.Header.Get(SessionHeader); id != "" {
		sess, err = s.sessions.Get(id)
	} else {
		sess, err = s.sessions.Create()
	}
	if err != nil {
		s.writeKernelError(w, err)
		return
	}
	tx, err := sess.Begin()
	if err != nil {
		s.writeKernelError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TransactionResponse{
		SessionID:     sess.ID,
		TransactionID: tx.ID,
		Status:        tx.Status().String(),
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	s.endTransaction(w, r, func(sess *cypher.Session) error { return sess.Commit(r.Context()) })
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	s.endTransaction(w, r, func(sess *cypher.Session) error { return sess.Rollback() })
}

func (s *Server) endTransaction(w http.ResponseWriter, r *http.Request, end func(*cypher.Session) error) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		s.writeError(w, http.StatusBadRequest, SessionHeader+" header required", kindBadRequest)
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeKernelError(w, err)
		return
	}
	tx := sess.Transaction()
	if tx == nil {
		s.writeKernelError(w, cypher.ErrNoActiveTransaction)
		return
	}
	if err := end(sess); err != nil {
		s.writeKernelError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TransactionResponse{
		SessionID:     sess.ID,
		TransactionID: tx.ID,
		Status:        tx.Status().String(),
	})
}

// =============================================================================
// Plan Cache Handlers
// =============================================================================

func (s *Server) handlePlanCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.exec.PlanCache().Stats())
}

// PlanCacheClearResponse reports how many plans were dropped.
type PlanCacheClearResponse struct {
	Cleared int         `json:"cleared"`
	Stats   cache.Stats `json:"stats"`
}

func (s *Server) handlePlanCacheClear(w http.ResponseWriter, r *http.Request) {
	plans := s.exec.PlanCache()
	n := plans.Len()
	plans.Clear()
	s.log.WithField("plans", n).Info("plan cache cleared")
	s.writeJSON(w, http.StatusOK, PlanCacheClearResponse{Cleared: n, Stats: plans.Stats()})
}

// PlanCacheInvalidateRequest is the body of POST /plan-cache/invalidate.
type PlanCacheInvalidateRequest struct {
	Pattern string `json:"pattern"`
}

// PlanCacheInvalidateResponse reports how many plans matched the pattern.
type PlanCacheInvalidateResponse struct {
	Invalidated int         `json:"invalidated"`
	Stats       cache.Stats `json:"stats"`
}

// handlePlanCacheInvalidate drops plans whose normalized text contains the
// pattern, e.g. a label after a schema change.
func (s *Server) handlePlanCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req PlanCacheInvalidateRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), kindBadRequest)
		return
	}
	if req.Pattern == "" {
		s.writeError(w, http.StatusBadRequest, "pattern is required", kindBadRequest)
		return
	}
	plans := s.exec.PlanCache()
	n := plans.Invalidate(req.Pattern)
	s.log.WithFields(logrus.Fields{"pattern": req.Pattern, "plans": n}).Info("plan cache invalidated")
	s.writeJSON(w, http.StatusOK, PlanCacheInvalidateResponse{Invalidated: n, Stats: plans.Stats()})
}

func (s *Server) handlePlanCacheEntries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.exec.PlanCache().Entries())
}

// PlanCacheEnabledRequest is the body of POST /plan-cache/enabled.
type PlanCacheEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handlePlanCacheEnabled switches caching on or off at runtime. Disabling
// drops every cached plan.
func (s *Server) handlePlanCacheEnabled(w http.ResponseWriter, r *http.Request) {
	var req PlanCacheEnabledRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), kindBadRequest)
		return
	}
	if req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "enabled is required", kindBadRequest)
		return
	}
	plans := s.exec.PlanCache()
	plans.SetEnabled(*req.Enabled)
	s.log.WithField("enabled", *req.Enabled).Info("plan cache toggled")
	s.writeJSON(w, http.StatusOK, plans.Stats())
}
