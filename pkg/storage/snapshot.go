package storage

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a generation-stamped caching view over an Engine.
//
// Each read compares the engine generation with the one the cache was
// built for and drops the cache when they differ, so a commit through any
// path is picked up by the next read. Returned nodes and edges are shared
// with the cache and must be treated as read-only.
type Snapshot struct {
	mu         sync.RWMutex
	engine     Engine
	generation uint64

	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	out   map[NodeID][]*Edge
	in    map[NodeID][]*Edge

	refreshes atomic.Uint64
}

// NewSnapshot returns a snapshot bound to engine.
func NewSnapshot(engine Engine) *Snapshot {
	s := &Snapshot{engine: engine}
	s.reset(engine.Generation())
	return s
}

// Engine returns the authoritative engine behind the snapshot.
func (s *Snapshot) Engine() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Generation returns the engine generation the cache reflects.
func (s *Snapshot) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Refreshes counts how many times the cache has been rebuilt.
func (s *Snapshot) Refreshes() uint64 {
	return s.refreshes.Load()
}

// Refresh drops every cached element and restamps the snapshot with the
// engine's current generation.
func (s *Snapshot) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(s.engine.Generation())
}

// Rebind points the snapshot at a different engine and drops the cache.
func (s *Snapshot) Rebind(engine Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
	s.reset(engine.Generation())
}

// reset requires s.mu held for writing.
func (s *Snapshot) reset(gen uint64) {
	s.generation = gen
	s.nodes = make(map[NodeID]*Node)
	s.edges = make(map[EdgeID]*Edge)
	s.out = make(map[NodeID][]*Edge)
	s.in = make(map[NodeID][]*Edge)
	s.refreshes.Add(1)
}

// sync drops the cache when the engine has moved on and returns the
// engine and the generation the cache now reflects.
func (s *Snapshot) sync() (Engine, uint64) {
	s.mu.RLock()
	engine, gen := s.engine, s.generation
	s.mu.RUnlock()

	current := engine.Generation()
	if current == gen {
		return engine, gen
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == engine && s.generation != current {
		s.reset(current)
	}
	return s.engine, s.generation
}

// GetNode returns the node with the given id.
func (s *Snapshot) GetNode(id NodeID) (*Node, error) {
	engine, gen := s.sync()

	s.mu.RLock()
	node, ok := s.nodes[id]
	s.mu.RUnlock()
	if ok {
		return node, nil
	}

	node, err := engine.GetNode(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.generation == gen {
		s.nodes[id] = node
	}
	s.mu.Unlock()
	return node, nil
}

// GetEdge returns the edge with the given id.
func (s *Snapshot) GetEdge(id EdgeID) (*Edge, error) {
	engine, gen := s.sync()

	s.mu.RLock()
	edge, ok := s.edges[id]
	s.mu.RUnlock()
	if ok {
		return edge, nil
	}

	edge, err := engine.GetEdge(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.generation == gen {
		s.edges[id] = edge
	}
	s.mu.Unlock()
	return edge, nil
}

// ScanByLabel scans the engine and caches the visited nodes.
func (s *Snapshot) ScanByLabel(label string, fn func(*Node) bool) error {
	engine, gen := s.sync()
	return engine.ScanByLabel(label, func(n *Node) bool {
		s.mu.Lock()
		if s.generation == gen {
			if cached, ok := s.nodes[n.ID]; ok {
				n = cached
			} else {
				s.nodes[n.ID] = n
			}
		}
		s.mu.Unlock()
		return fn(n)
	})
}

// OutgoingEdges returns edges starting at id.
func (s *Snapshot) OutgoingEdges(id NodeID) ([]*Edge, error) {
	return s.adjacent(id, true)
}

// IncomingEdges returns edges ending at id.
func (s *Snapshot) IncomingEdges(id NodeID) ([]*Edge, error) {
	return s.adjacent(id, false)
}

func (s *Snapshot) adjacent(id NodeID, outgoing bool) ([]*Edge, error) {
	engine, gen := s.sync()

	s.mu.RLock()
	index := s.in
	if outgoing {
		index = s.out
	}
	edges, ok := index[id]
	s.mu.RUnlock()
	if ok {
		return edges, nil
	}

	var err error
	if outgoing {
		edges, err = engine.OutgoingEdges(id)
	} else {
		edges, err = engine.IncomingEdges(id)
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.generation == gen {
		if outgoing {
			s.out[id] = edges
		} else {
			s.in[id] = edges
		}
		for _, e := range edges {
			s.edges[e.ID] = e
		}
	}
	s.mu.Unlock()
	return edges, nil
}

var _ Reader = (*Snapshot)(nil)
