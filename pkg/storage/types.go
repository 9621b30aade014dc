// Package storage provides the durable graph store consumed by the query
// kernel.
//
// Two engines implement Engine: MemoryEngine for tests and ephemeral use,
// and BadgerEngine for persistent disk storage. Writes reach an engine only
// through Commit, which applies a ChangeSet atomically and bumps the engine
// generation. Readers that cache engine state (see Snapshot) compare
// generations to detect staleness.
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	id, _ := engine.AllocateNodeID()
//	cs := storage.NewChangeSet()
//	cs.CreatedNodes = append(cs.CreatedNodes, &storage.Node{
//		ID:     id,
//		Labels: []string{"User"},
//		Properties: map[string]value.Value{
//			"name": value.String("Alice"),
//		},
//	})
//	if err := engine.Commit(cs); err != nil {
//		return err
//	}
package storage

import (
	"errors"
	"slices"

	"github.com/orneryd/nexus/pkg/value"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid edge: start or end node not found")
	ErrStorageClosed = errors.New("storage closed")
)

// NodeID identifies a node. Zero is never a valid id.
type NodeID uint64

// EdgeID identifies a relationship. Zero is never a valid id.
type EdgeID uint64

// Node is a labelled property-graph vertex.
type Node struct {
	ID         NodeID
	Labels     []string
	Properties map[string]value.Value
}

// HasLabel reports whether the node carries label.
func (n *Node) HasLabel(label string) bool {
	return slices.Contains(n.Labels, label)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		ID:         n.ID,
		Labels:     slices.Clone(n.Labels),
		Properties: cloneProps(n.Properties),
	}
}

// Edge is a typed, directed relationship between two nodes.
type Edge struct {
	ID         EdgeID
	Type       string
	StartNode  NodeID
	EndNode    NodeID
	Properties map[string]value.Value
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = cloneProps(e.Properties)
	return &c
}

// Other returns the endpoint of e that is not id.
func (e *Edge) Other(id NodeID) NodeID {
	if e.StartNode == id {
		return e.EndNode
	}
	return e.StartNode
}

func cloneProps(in map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(in))
	for k, v := range in {
		if l, ok := v.(value.List); ok {
			v = slices.Clone(l)
		}
		out[k] = v
	}
	return out
}

// Reader is the read side of the store.
//
// ScanByLabel calls fn for every node carrying label, or for every node when
// label is empty. Returning false from fn stops the scan.
type Reader interface {
	GetNode(id NodeID) (*Node, error)
	GetEdge(id EdgeID) (*Edge, error)
	ScanByLabel(label string, fn func(*Node) bool) error
	OutgoingEdges(id NodeID) ([]*Edge, error)
	IncomingEdges(id NodeID) ([]*Edge, error)
}

// Engine is an authoritative graph store.
type Engine interface {
	Reader

	// AllocateNodeID and AllocateEdgeID hand out fresh identifiers. An
	// allocated id that is never committed is simply skipped.
	AllocateNodeID() (NodeID, error)
	AllocateEdgeID() (EdgeID, error)

	// Commit applies cs atomically: either every change lands or none does.
	Commit(cs *ChangeSet) error

	// Generation increases by one on every successful Commit.
	Generation() uint64

	NodeCount() (int64, error)
	EdgeCount() (int64, error)
	Close() error
}
