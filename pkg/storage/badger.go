package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/value"
)

// Key prefixes for BadgerDB storage organization
const (
	prefixNode          = byte(0x01) // node:nodeID -> gob(nodeRecord)
	prefixEdge          = byte(0x02) // edge:edgeID -> gob(edgeRecord)
	prefixLabelIndex    = byte(0x03) // label:labelName:0x00:nodeID -> empty
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> empty
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> empty
	prefixMeta          = byte(0x06) // meta:name -> uint64
)

var (
	metaNextNode = []byte{prefixMeta, 'n'}
	metaNextEdge = []byte{prefixMeta, 'e'}
)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure (ids are 8-byte big-endian):
//   - Nodes: 0x01 + nodeID -> gob(Node)
//   - Edges: 0x02 + edgeID -> gob(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + edgeID -> empty
//   - Id high-water marks: 0x06 + 'n' | 'e' -> uint64
//
// Every Commit runs inside a single badger read-write transaction, so a
// failed commit leaves nothing behind.
type BadgerEngine struct {
	db       *badger.DB
	mu       sync.RWMutex
	closed   bool
	inMemory bool

	nextNodeID atomic.Uint64
	nextEdgeID atomic.Uint64
	generation atomic.Uint64

	// Cached counts, maintained by Commit.
	nodeCount atomic.Int64
	edgeCount atomic.Int64

	log *logrus.Entry
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// LowMemory reduces memtable and cache sizes.
	LowMemory bool

	// Logger receives engine log lines. Defaults to the standard logrus logger.
	Logger *logrus.Logger
}

// NewBadgerEngine opens (or creates) a persistent engine in dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory creates an in-memory BadgerEngine for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	} else if dir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(16 << 20).
			WithNumMemtables(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	engine := &BadgerEngine{
		db:       db,
		inMemory: opts.InMemory,
		log:      logger.WithField("component", "storage.badger"),
	}
	if err := engine.loadState(); err != nil {
		db.Close()
		return nil, err
	}

	engine.log.WithFields(logrus.Fields{
		"dir":       dir,
		"in_memory": opts.InMemory,
		"nodes":     engine.nodeCount.Load(),
		"edges":     engine.edgeCount.Load(),
	}).Info("badger engine opened")
	return engine, nil
}

// IsInMemory returns true if the engine is running in memory-only mode.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// loadState reads id high-water marks and recounts nodes and edges.
func (b *BadgerEngine) loadState() error {
	return b.db.View(func(txn *badger.Txn) error {
		for _, m := range []struct {
			key     []byte
			counter *atomic.Uint64
		}{{metaNextNode, &b.nextNodeID}, {metaNextEdge, &b.nextEdgeID}} {
			v, err := getUint64(txn, m.key)
			if err != nil {
				return err
			}
			if v > m.counter.Load() {
				m.counter.Store(v)
			}
		}

		nodes, err := countPrefix(txn, prefixNode)
		if err != nil {
			return err
		}
		edges, err := countPrefix(txn, prefixEdge)
		if err != nil {
			return err
		}
		b.nodeCount.Store(nodes)
		b.edgeCount.Store(edges)
		return nil
	})
}

func (b *BadgerEngine) ensureOpen() error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *BadgerEngine) withView(fn func(txn *badger.Txn) error) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.View(fn)
}

// AllocateNodeID returns a fresh node id. The high-water mark is persisted
// by the Commit that first uses an id at or above it.
func (b *BadgerEngine) AllocateNodeID() (NodeID, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return NodeID(b.nextNodeID.Add(1)), nil
}

// AllocateEdgeID returns a fresh edge id.
func (b *BadgerEngine) AllocateEdgeID() (EdgeID, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return EdgeID(b.nextEdgeID.Add(1)), nil
}

// Generation returns the number of successful commits since open.
func (b *BadgerEngine) Generation() uint64 {
	return b.generation.Load()
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	var node *Node
	err := b.withView(func(txn *badger.Txn) error {
		var err error
		node, err = readNode(txn, id)
		return err
	})
	return node, err
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	var edge *Edge
	err := b.withView(func(txn *badger.Txn) error {
		var err error
		edge, err = readEdge(txn, id)
		return err
	})
	return edge, err
}

// ScanByLabel visits nodes carrying label in id order, or every node when
// label is empty. Matching nodes are collected first so fn runs outside the
// badger transaction.
func (b *BadgerEngine) ScanByLabel(label string, fn func(*Node) bool) error {
	var nodes []*Node
	err := b.withView(func(txn *badger.Txn) error {
		if label == "" {
			return iteratePrefix(txn, []byte{prefixNode}, true, func(item *badger.Item) error {
				var node *Node
				err := item.Value(func(val []byte) error {
					var err error
					node, err = decodeNode(val)
					return err
				})
				if err != nil {
					return err
				}
				nodes = append(nodes, node)
				return nil
			})
		}
		prefix := labelPrefix(label)
		return iteratePrefix(txn, prefix, false, func(item *badger.Item) error {
			id := NodeID(binary.BigEndian.Uint64(item.Key()[len(prefix):]))
			node, err := readNode(txn, id)
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if !fn(n) {
			break
		}
	}
	return nil
}

// OutgoingEdges returns edges that start at the given node.
func (b *BadgerEngine) OutgoingEdges(id NodeID) ([]*Edge, error) {
	return b.adjacent(prefixOutgoingIndex, id)
}

// IncomingEdges returns edges that end at the given node.
func (b *BadgerEngine) IncomingEdges(id NodeID) ([]*Edge, error) {
	return b.adjacent(prefixIncomingIndex, id)
}

func (b *BadgerEngine) adjacent(prefix byte, id NodeID) ([]*Edge, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	var edges []*Edge
	err := b.withView(func(txn *badger.Txn) error {
		p := idKey(prefix, uint64(id))
		return iteratePrefix(txn, p, false, func(item *badger.Item) error {
			edgeID := EdgeID(binary.BigEndian.Uint64(item.Key()[len(p):]))
			edge, err := readEdge(txn, edgeID)
			if err != nil {
				return err
			}
			edges = append(edges, edge)
			return nil
		})
	})
	return edges, err
}

// Commit applies cs inside one badger transaction. A conflict or write
// error discards the whole transaction.
func (b *BadgerEngine) Commit(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if err := cs.validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStorageClosed
	}

	var nodeDelta, edgeDelta int64
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		nodeDelta, edgeDelta, err = applyChangeSet(txn, cs)
		if err != nil {
			return err
		}
		if err := putUint64(txn, metaNextNode, b.nextNodeID.Load()); err != nil {
			return err
		}
		return putUint64(txn, metaNextEdge, b.nextEdgeID.Load())
	})
	if err != nil {
		b.log.WithError(err).WithField("changes", cs.Size()).Warn("commit rejected")
		return err
	}

	b.nodeCount.Add(nodeDelta)
	b.edgeCount.Add(edgeDelta)
	b.generation.Add(1)
	return nil
}

func applyChangeSet(txn *badger.Txn, cs *ChangeSet) (nodeDelta, edgeDelta int64, err error) {
	deleted := make(map[NodeID]struct{}, len(cs.DeletedNodes))
	for _, id := range cs.DeletedNodes {
		deleted[id] = struct{}{}
	}

	for _, n := range cs.CreatedNodes {
		if exists, err := keyExists(txn, nodeKey(n.ID)); err != nil {
			return 0, 0, err
		} else if exists {
			return 0, 0, ErrAlreadyExists
		}
		stored := n.Clone()
		stored.Properties = stripNulls(stored.Properties)
		if err := writeNode(txn, stored, nil); err != nil {
			return 0, 0, err
		}
		nodeDelta++
	}

	for id, u := range cs.UpdatedNodes {
		node, err := readNode(txn, id)
		if err != nil {
			return 0, 0, err
		}
		oldLabels := node.Labels
		u.apply(node)
		if err := writeNode(txn, node, oldLabels); err != nil {
			return 0, 0, err
		}
	}

	for _, e := range cs.CreatedEdges {
		for _, end := range []NodeID{e.StartNode, e.EndNode} {
			if _, gone := deleted[end]; gone {
				return 0, 0, ErrInvalidEdge
			}
			exists, err := keyExists(txn, nodeKey(end))
			if err != nil {
				return 0, 0, err
			}
			if !exists {
				return 0, 0, ErrInvalidEdge
			}
		}
		if exists, err := keyExists(txn, edgeKey(e.ID)); err != nil {
			return 0, 0, err
		} else if exists {
			return 0, 0, ErrAlreadyExists
		}
		stored := e.Clone()
		stored.Properties = stripNulls(stored.Properties)
		if err := writeEdge(txn, stored); err != nil {
			return 0, 0, err
		}
		if err := txn.Set(adjKey(prefixOutgoingIndex, e.StartNode, e.ID), nil); err != nil {
			return 0, 0, err
		}
		if err := txn.Set(adjKey(prefixIncomingIndex, e.EndNode, e.ID), nil); err != nil {
			return 0, 0, err
		}
		edgeDelta++
	}

	for id, u := range cs.UpdatedEdges {
		edge, err := readEdge(txn, id)
		if err != nil {
			return 0, 0, err
		}
		u.apply(edge)
		if err := writeEdge(txn, edge); err != nil {
			return 0, 0, err
		}
	}

	removed := make(map[EdgeID]struct{})
	for _, id := range cs.DeletedEdges {
		ok, err := deleteEdge(txn, id)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			removed[id] = struct{}{}
			edgeDelta--
		}
	}

	for _, id := range cs.DeletedNodes {
		node, err := readNode(txn, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		for _, prefix := range []byte{prefixOutgoingIndex, prefixIncomingIndex} {
			p := idKey(prefix, uint64(id))
			var attached []EdgeID
			err := iteratePrefix(txn, p, false, func(item *badger.Item) error {
				attached = append(attached, EdgeID(binary.BigEndian.Uint64(item.Key()[len(p):])))
				return nil
			})
			if err != nil {
				return 0, 0, err
			}
			for _, edgeID := range attached {
				if _, done := removed[edgeID]; done {
					continue
				}
				ok, err := deleteEdge(txn, edgeID)
				if err != nil {
					return 0, 0, err
				}
				if ok {
					removed[edgeID] = struct{}{}
					edgeDelta--
				}
			}
		}
		for _, label := range node.Labels {
			if err := txn.Delete(labelKey(label, id)); err != nil {
				return 0, 0, err
			}
		}
		if err := txn.Delete(nodeKey(id)); err != nil {
			return 0, 0, err
		}
		nodeDelta--
	}
	return nodeDelta, edgeDelta, nil
}

// writeNode stores node and rewrites its label index entries.
func writeNode(txn *badger.Txn, node *Node, oldLabels []string) error {
	data, err := encodeNode(node)
	if err != nil {
		return err
	}
	for _, label := range oldLabels {
		if err := txn.Delete(labelKey(label, node.ID)); err != nil {
			return err
		}
	}
	for _, label := range node.Labels {
		if err := txn.Set(labelKey(label, node.ID), nil); err != nil {
			return err
		}
	}
	return txn.Set(nodeKey(node.ID), data)
}

func writeEdge(txn *badger.Txn, edge *Edge) error {
	data, err := encodeEdge(edge)
	if err != nil {
		return err
	}
	return txn.Set(edgeKey(edge.ID), data)
}

func deleteEdge(txn *badger.Txn, id EdgeID) (bool, error) {
	edge, err := readEdge(txn, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, key := range [][]byte{
		edgeKey(id),
		adjKey(prefixOutgoingIndex, edge.StartNode, id),
		adjKey(prefixIncomingIndex, edge.EndNode, id),
	} {
		if err := txn.Delete(key); err != nil {
			return false, err
		}
	}
	return true, nil
}

func readNode(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var node *Node
	err = item.Value(func(val []byte) error {
		node, err = decodeNode(val)
		return err
	})
	return node, err
}

func readEdge(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var edge *Edge
	err = item.Value(func(val []byte) error {
		edge, err = decodeEdge(val)
		return err
	})
	return edge, err
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func iteratePrefix(txn *badger.Txn, prefix []byte, values bool, fn func(item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = values
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func countPrefix(txn *badger.Txn, prefix byte) (int64, error) {
	var n int64
	err := iteratePrefix(txn, []byte{prefix}, false, func(*badger.Item) error {
		n++
		return nil
	})
	return n, err
}

func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: corrupt meta key %x", ErrInvalidData, key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func putUint64(txn *badger.Txn, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return txn.Set(key, buf)
}

// Key builders

func idKey(prefix byte, id uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

func nodeKey(id NodeID) []byte { return idKey(prefixNode, uint64(id)) }

func edgeKey(id EdgeID) []byte { return idKey(prefixEdge, uint64(id)) }

func adjKey(prefix byte, node NodeID, edge EdgeID) []byte {
	key := make([]byte, 17)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:9], uint64(node))
	binary.BigEndian.PutUint64(key[9:], uint64(edge))
	return key
}

func labelPrefix(label string) []byte {
	key := make([]byte, 0, len(label)+2)
	key = append(key, prefixLabelIndex)
	key = append(key, label...)
	return append(key, 0x00)
}

func labelKey(label string, id NodeID) []byte {
	key := labelPrefix(label)
	return binary.BigEndian.AppendUint64(key, uint64(id))
}

// Encoding. Values are flattened into a tagged record so gob never sees the
// Value interface.

type encodedValue struct {
	Kind  value.Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	List  []encodedValue
	Point value.Point
}

type nodeRecord struct {
	ID         uint64
	Labels     []string
	Properties map[string]encodedValue
}

type edgeRecord struct {
	ID         uint64
	Type       string
	StartNode  uint64
	EndNode    uint64
	Properties map[string]encodedValue
}

func encodeValue(v value.Value) encodedValue {
	switch t := v.(type) {
	case value.Bool:
		return encodedValue{Kind: value.KindBool, Bool: bool(t)}
	case value.Int:
		return encodedValue{Kind: value.KindInt, Int: int64(t)}
	case value.Float:
		return encodedValue{Kind: value.KindFloat, Float: float64(t)}
	case value.String:
		return encodedValue{Kind: value.KindString, Str: string(t)}
	case value.List:
		l := make([]encodedValue, len(t))
		for i, e := range t {
			l[i] = encodeValue(e)
		}
		return encodedValue{Kind: value.KindList, List: l}
	case value.Point:
		return encodedValue{Kind: value.KindPoint, Point: t}
	}
	return encodedValue{Kind: value.KindNull}
}

func decodeValue(e encodedValue) value.Value {
	switch e.Kind {
	case value.KindBool:
		return value.Bool(e.Bool)
	case value.KindInt:
		return value.Int(e.Int)
	case value.KindFloat:
		return value.Float(e.Float)
	case value.KindString:
		return value.String(e.Str)
	case value.KindList:
		l := make(value.List, len(e.List))
		for i, x := range e.List {
			l[i] = decodeValue(x)
		}
		return l
	case value.KindPoint:
		return e.Point
	}
	return value.Null{}
}

func encodeProps(props map[string]value.Value) map[string]encodedValue {
	out := make(map[string]encodedValue, len(props))
	for k, v := range props {
		out[k] = encodeValue(v)
	}
	return out
}

func decodeProps(props map[string]encodedValue) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	for k, v := range props {
		out[k] = decodeValue(v)
	}
	return out
}

func encodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	rec := nodeRecord{ID: uint64(n.ID), Labels: n.Labels, Properties: encodeProps(n.Properties)}
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode node %d: %w", n.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var rec nodeRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return &Node{ID: NodeID(rec.ID), Labels: rec.Labels, Properties: decodeProps(rec.Properties)}, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	var buf bytes.Buffer
	rec := edgeRecord{
		ID:         uint64(e.ID),
		Type:       e.Type,
		StartNode:  uint64(e.StartNode),
		EndNode:    uint64(e.EndNode),
		Properties: encodeProps(e.Properties),
	}
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode edge %d: %w", e.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var rec edgeRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode edge: %w", err)
	}
	return &Edge{
		ID:         EdgeID(rec.ID),
		Type:       rec.Type,
		StartNode:  NodeID(rec.StartNode),
		EndNode:    NodeID(rec.EndNode),
		Properties: decodeProps(rec.Properties),
	}, nil
}

// NodeCount returns the number of stored nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return b.nodeCount.Load(), nil
}

// EdgeCount returns the number of stored edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return b.edgeCount.Load(), nil
}

// Close closes the underlying database. Further calls return
// ErrStorageClosed.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Verify BadgerEngine implements Engine
var _ Engine = (*BadgerEngine)(nil)
