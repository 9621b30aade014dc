package server

import (
	"net/http"
)

// =============================================================================
// Health & Status Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Server     ServerStats `json:"server"`
	Nodes      int64       `json:"nodes"`
	Edges      int64       `json:"edges"`
	Generation uint64      `json:"generation"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	engine := s.exec.Snapshot().Engine()
	nodes, err := engine.NodeCount()
	if err != nil {
		s.writeKernelError(w, err)
		return
	}
	edges, err := engine.EdgeCount()
	if err != nil {
		s.writeKernelError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Server:     s.Stats(),
		Nodes:      nodes,
		Edges:      edges,
		Generation: engine.Generation(),
	})
}
