package storage

import (
	"cmp"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryEngine is an in-memory implementation of Engine.
// It's useful for:
//   - Unit testing (no disk I/O)
//   - Embedding the kernel in tools that do not need durability
//   - Small datasets that fit in RAM
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Indexes for efficient lookups
	nodesByLabel  map[string]map[NodeID]struct{}
	outgoingEdges map[NodeID]map[EdgeID]struct{}
	incomingEdges map[NodeID]map[EdgeID]struct{}

	nextNodeID atomic.Uint64
	nextEdgeID atomic.Uint64
	generation atomic.Uint64

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:         make(map[NodeID]*Node),
		edges:         make(map[EdgeID]*Edge),
		nodesByLabel:  make(map[string]map[NodeID]struct{}),
		outgoingEdges: make(map[NodeID]map[EdgeID]struct{}),
		incomingEdges: make(map[NodeID]map[EdgeID]struct{}),
	}
}

// AllocateNodeID returns a node id that has never been handed out before.
func (m *MemoryEngine) AllocateNodeID() (NodeID, error) {
	if m.isClosed() {
		return 0, ErrStorageClosed
	}
	return NodeID(m.nextNodeID.Add(1)), nil
}

// AllocateEdgeID returns an edge id that has never been handed out before.
func (m *MemoryEngine) AllocateEdgeID() (EdgeID, error) {
	if m.isClosed() {
		return 0, ErrStorageClosed
	}
	return EdgeID(m.nextEdgeID.Add(1)), nil
}

// Generation returns the number of successful commits.
func (m *MemoryEngine) Generation() uint64 {
	return m.generation.Load()
}

func (m *MemoryEngine) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// GetNode retrieves a node by ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return nil, ErrNotFound
	}

	return node.Clone(), nil
}

// GetEdge retrieves an edge by ID.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edge, exists := m.edges[id]
	if !exists {
		return nil, ErrNotFound
	}

	return edge.Clone(), nil
}

// ScanByLabel visits nodes in id order. An empty label visits every node.
func (m *MemoryEngine) ScanByLabel(label string, fn func(*Node) bool) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStorageClosed
	}
	var matched []*Node
	if label == "" {
		matched = make([]*Node, 0, len(m.nodes))
		for _, n := range m.nodes {
			matched = append(matched, n.Clone())
		}
	} else {
		for id := range m.nodesByLabel[label] {
			matched = append(matched, m.nodes[id].Clone())
		}
	}
	m.mu.RUnlock()

	// Callbacks run without the lock held so they may read the engine.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	for _, n := range matched {
		if !fn(n) {
			return nil
		}
	}
	return nil
}

// OutgoingEdges returns edges that start at the given node.
func (m *MemoryEngine) OutgoingEdges(id NodeID) ([]*Edge, error) {
	return m.adjacent(id, m.outgoingEdges)
}

// IncomingEdges returns edges that end at the given node.
func (m *MemoryEngine) IncomingEdges(id NodeID) ([]*Edge, error) {
	return m.adjacent(id, m.incomingEdges)
}

func (m *MemoryEngine) adjacent(id NodeID, index map[NodeID]map[EdgeID]struct{}) ([]*Edge, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := make([]*Edge, 0, len(index[id]))
	for edgeID := range index[id] {
		edges = append(edges, m.edges[edgeID].Clone())
	}
	slices.SortFunc(edges, func(a, b *Edge) int { return cmp.Compare(a.ID, b.ID) })
	return edges, nil
}

// Commit validates cs against the current state and then applies it.
// Nothing is written when validation fails.
func (m *MemoryEngine) Commit(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if err := cs.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	if err := m.check(cs); err != nil {
		return err
	}

	for _, n := range cs.CreatedNodes {
		stored := n.Clone()
		stored.Properties = stripNulls(stored.Properties)
		m.nodes[n.ID] = stored
		m.indexLabels(stored)
	}

	for id, u := range cs.UpdatedNodes {
		node := m.nodes[id]
		m.unindexLabels(node)
		updated := node.Clone()
		u.apply(updated)
		m.nodes[id] = updated
		m.indexLabels(updated)
	}

	for _, e := range cs.CreatedEdges {
		stored := e.Clone()
		stored.Properties = stripNulls(stored.Properties)
		m.edges[e.ID] = stored
		link(m.outgoingEdges, e.StartNode, e.ID)
		link(m.incomingEdges, e.EndNode, e.ID)
	}

	for id, u := range cs.UpdatedEdges {
		updated := m.edges[id].Clone()
		u.apply(updated)
		m.edges[id] = updated
	}

	for _, id := range cs.DeletedEdges {
		m.deleteEdge(id)
	}

	for _, id := range cs.DeletedNodes {
		node, ok := m.nodes[id]
		if !ok {
			continue
		}
		for edgeID := range m.outgoingEdges[id] {
			m.deleteEdge(edgeID)
		}
		for edgeID := range m.incomingEdges[id] {
			m.deleteEdge(edgeID)
		}
		m.unindexLabels(node)
		delete(m.nodes, id)
		delete(m.outgoingEdges, id)
		delete(m.incomingEdges, id)
	}

	m.generation.Add(1)
	return nil
}

// check verifies cs against stored state. Caller holds the write lock.
func (m *MemoryEngine) check(cs *ChangeSet) error {
	created := make(map[NodeID]struct{}, len(cs.CreatedNodes))
	for _, n := range cs.CreatedNodes {
		if _, exists := m.nodes[n.ID]; exists {
			return ErrAlreadyExists
		}
		created[n.ID] = struct{}{}
	}
	for id := range cs.UpdatedNodes {
		if _, exists := m.nodes[id]; !exists {
			return ErrNotFound
		}
	}
	deleted := make(map[NodeID]struct{}, len(cs.DeletedNodes))
	for _, id := range cs.DeletedNodes {
		deleted[id] = struct{}{}
	}
	exists := func(id NodeID) bool {
		if _, gone := deleted[id]; gone {
			return false
		}
		if _, ok := created[id]; ok {
			return true
		}
		_, ok := m.nodes[id]
		return ok
	}
	for _, e := range cs.CreatedEdges {
		if _, dup := m.edges[e.ID]; dup {
			return ErrAlreadyExists
		}
		if !exists(e.StartNode) || !exists(e.EndNode) {
			return ErrInvalidEdge
		}
	}
	for id := range cs.UpdatedEdges {
		if _, ok := m.edges[id]; !ok {
			return ErrNotFound
		}
	}
	return nil
}

func (m *MemoryEngine) indexLabels(n *Node) {
	for _, label := range n.Labels {
		if m.nodesByLabel[label] == nil {
			m.nodesByLabel[label] = make(map[NodeID]struct{})
		}
		m.nodesByLabel[label][n.ID] = struct{}{}
	}
}

func (m *MemoryEngine) unindexLabels(n *Node) {
	for _, label := range n.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], n.ID)
		}
	}
}

func (m *MemoryEngine) deleteEdge(id EdgeID) {
	edge, ok := m.edges[id]
	if !ok {
		return
	}
	if m.outgoingEdges[edge.StartNode] != nil {
		delete(m.outgoingEdges[edge.StartNode], id)
	}
	if m.incomingEdges[edge.EndNode] != nil {
		delete(m.incomingEdges[edge.EndNode], id)
	}
	delete(m.edges, id)
}

func link(index map[NodeID]map[EdgeID]struct{}, node NodeID, edge EdgeID) {
	if index[node] == nil {
		index[node] = make(map[EdgeID]struct{})
	}
	index[node][edge] = struct{}{}
}

// NodeCount returns the number of nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// Close closes the storage engine.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)
