package cypher

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// PropertyOverlay is the pending delta of one node or relationship. A Null
// property value marks a removed key. When Replaced is set the stored
// properties are discarded and Properties is the complete new map.
type PropertyOverlay struct {
	Properties map[string]value.Value
	Replaced   bool

	addLabels    []string
	removeLabels []string
}

func newOverlay() *PropertyOverlay {
	return &PropertyOverlay{Properties: make(map[string]value.Value)}
}

func (o *PropertyOverlay) lookup(key string) (value.Value, bool) {
	if v, ok := o.Properties[key]; ok {
		return v, true
	}
	if o.Replaced {
		return value.Null{}, true
	}
	return nil, false
}

func (o *PropertyOverlay) replace(props map[string]value.Value) {
	o.Replaced = true
	o.Properties = make(map[string]value.Value, len(props))
	for k, v := range props {
		o.Properties[k] = v
	}
}

func (o *PropertyOverlay) applyProps(base map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(base)+len(o.Properties))
	if !o.Replaced {
		for k, v := range base {
			out[k] = v
		}
	}
	for k, v := range o.Properties {
		if value.IsNull(v) {
			delete(out, k)
		} else {
			out[k] = v
		}
	}
	return out
}

func (o *PropertyOverlay) applyLabels(base []string) []string {
	out := make([]string, 0, len(base)+len(o.addLabels))
	for _, l := range base {
		if !slices.Contains(o.removeLabels, l) {
			out = append(out, l)
		}
	}
	for _, l := range o.addLabels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func (o *PropertyOverlay) addLabel(label string) {
	o.removeLabels = slices.DeleteFunc(o.removeLabels, func(s string) bool { return s == label })
	if !slices.Contains(o.addLabels, label) {
		o.addLabels = append(o.addLabels, label)
	}
}

func (o *PropertyOverlay) removeLabel(label string) {
	o.addLabels = slices.DeleteFunc(o.addLabels, func(s string) bool { return s == label })
	if !slices.Contains(o.removeLabels, label) {
		o.removeLabels = append(o.removeLabels, label)
	}
}

// PropertyView is an immutable copy of one element's effective properties,
// handed to the evaluator so it never aliases the staging maps.
type PropertyView struct {
	props map[string]value.Value
}

func newPropertyView(props map[string]value.Value) PropertyView {
	cp := make(map[string]value.Value, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return PropertyView{props: cp}
}

// Property returns the value of key, or Null when absent.
func (v PropertyView) Property(key string) value.Value {
	if x, ok := v.props[key]; ok {
		return x
	}
	return value.Null{}
}

// Keys returns the property names in sorted order.
func (v PropertyView) Keys() []string {
	keys := make([]string, 0, len(v.props))
	for k := range v.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MutationState holds the writes of one statement that are not yet
// durable. States chain to the previous statement of the same transaction,
// so reads walk newest to oldest and fall back to the snapshot. A state is
// owned by one statement at a time and is not safe for concurrent use.
type MutationState struct {
	parent *MutationState
	store  *storage.Snapshot

	nodes map[storage.NodeID]*PropertyOverlay
	edges map[storage.EdgeID]*PropertyOverlay

	createdNodes   []*storage.Node
	createdNodeIdx map[storage.NodeID]*storage.Node
	createdEdges   []*storage.Edge
	createdEdgeIdx map[storage.EdgeID]*storage.Edge
	createdOut     map[storage.NodeID][]storage.EdgeID
	createdIn      map[storage.NodeID][]storage.EdgeID

	deletedNodes map[storage.NodeID]struct{}
	deletedEdges map[storage.EdgeID]struct{}
	// undetached lists nodes removed by a plain DELETE; Validate checks
	// they have no relationships left.
	undetached []storage.NodeID
}

// NewMutationState returns an empty state reading through store and, when
// parent is non-nil, through the earlier statements of the transaction.
func NewMutationState(store *storage.Snapshot, parent *MutationState) *MutationState {
	return &MutationState{
		parent:         parent,
		store:          store,
		nodes:          make(map[storage.NodeID]*PropertyOverlay),
		edges:          make(map[storage.EdgeID]*PropertyOverlay),
		createdNodeIdx: make(map[storage.NodeID]*storage.Node),
		createdEdgeIdx: make(map[storage.EdgeID]*storage.Edge),
		createdOut:     make(map[storage.NodeID][]storage.EdgeID),
		createdIn:      make(map[storage.NodeID][]storage.EdgeID),
		deletedNodes:   make(map[storage.NodeID]struct{}),
		deletedEdges:   make(map[storage.EdgeID]struct{}),
	}
}

// Parent returns the state of the previous statement, if any.
func (m *MutationState) Parent() *MutationState { return m.parent }

// Empty reports whether this statement staged nothing.
func (m *MutationState) Empty() bool {
	return len(m.nodes) == 0 && len(m.edges) == 0 && len(m.createdNodes) == 0 &&
		len(m.createdEdges) == 0 && len(m.deletedNodes) == 0 && len(m.deletedEdges) == 0
}

func storeErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// EnsureState returns the overlay for node id, creating it on first use.
// Later calls in the same statement return the same overlay.
func (m *MutationState) EnsureState(id storage.NodeID) *PropertyOverlay {
	ov, ok := m.nodes[id]
	if !ok {
		ov = newOverlay()
		m.nodes[id] = ov
	}
	return ov
}

func (m *MutationState) ensureEdgeState(id storage.EdgeID) *PropertyOverlay {
	ov, ok := m.edges[id]
	if !ok {
		ov = newOverlay()
		m.edges[id] = ov
	}
	return ov
}

// liveNode fails unless node id exists in the transaction's view.
func (m *MutationState) liveNode(id storage.NodeID) error {
	_, err := m.Node(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: node %d does not exist or was deleted in this transaction", ErrConstraintViolation, id)
	}
	return err
}

func (m *MutationState) liveEdge(id storage.EdgeID) error {
	_, err := m.Edge(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: relationship %d does not exist or was deleted in this transaction", ErrConstraintViolation, id)
	}
	return err
}

// ReadProperty returns the effective value of key on node id: the newest
// overlay entry if any, else the stored value, else Null.
func (m *MutationState) ReadProperty(id storage.NodeID, key string) (value.Value, error) {
	for s := m; s != nil; s = s.parent {
		if _, gone := s.deletedNodes[id]; gone {
			return value.Null{}, nil
		}
		if ov := s.nodes[id]; ov != nil {
			if v, ok := ov.lookup(key); ok {
				return v, nil
			}
		}
		if n := s.createdNodeIdx[id]; n != nil {
			return propertyOrNull(n.Properties, key), nil
		}
	}
	n, err := m.store.GetNode(id)
	if errors.Is(err, storage.ErrNotFound) {
		return value.Null{}, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return propertyOrNull(n.Properties, key), nil
}

func propertyOrNull(props map[string]value.Value, key string) value.Value {
	if v, ok := props[key]; ok {
		return v
	}
	return value.Null{}
}

func checkStorable(key string, v value.Value) error {
	if !value.Storable(v) {
		return fmt.Errorf("%w: property %q cannot hold a %s", ErrTypeMismatch, key, value.TypeName(v))
	}
	return nil
}

// WriteProperty stages key = v on node id. Writing Null removes the key.
// Storage is untouched until the transaction commits.
func (m *MutationState) WriteProperty(id storage.NodeID, key string, v value.Value) error {
	if err := checkStorable(key, v); err != nil {
		return err
	}
	if err := m.liveNode(id); err != nil {
		return err
	}
	m.EnsureState(id).Properties[key] = v
	return nil
}

// RemoveProperty stages the removal of key from node id.
func (m *MutationState) RemoveProperty(id storage.NodeID, key string) error {
	return m.WriteProperty(id, key, value.Null{})
}

// ReplaceProperties stages a full replacement of node id's properties.
func (m *MutationState) ReplaceProperties(id storage.NodeID, props map[string]value.Value) error {
	for k, v := range props {
		if err := checkStorable(k, v); err != nil {
			return err
		}
	}
	if err := m.liveNode(id); err != nil {
		return err
	}
	m.EnsureState(id).replace(props)
	return nil
}

// WriteEdgeProperty stages key = v on relationship id.
func (m *MutationState) WriteEdgeProperty(id storage.EdgeID, key string, v value.Value) error {
	if err := checkStorable(key, v); err != nil {
		return err
	}
	if err := m.liveEdge(id); err != nil {
		return err
	}
	m.ensureEdgeState(id).Properties[key] = v
	return nil
}

// ReplaceEdgeProperties stages a full replacement of relationship id's
// properties.
func (m *MutationState) ReplaceEdgeProperties(id storage.EdgeID, props map[string]value.Value) error {
	for k, v := range props {
		if err := checkStorable(k, v); err != nil {
			return err
		}
	}
	if err := m.liveEdge(id); err != nil {
		return err
	}
	m.ensureEdgeState(id).replace(props)
	return nil
}

// AddLabel stages label on node id and reports whether the node gained it.
func (m *MutationState) AddLabel(id storage.NodeID, label string) (bool, error) {
	n, err := m.Node(id)
	if err != nil {
		return false, err
	}
	if n.HasLabel(label) {
		return false, nil
	}
	m.EnsureState(id).addLabel(label)
	return true, nil
}

// RemoveLabel stages the removal of label and reports whether the node had
// it.
func (m *MutationState) RemoveLabel(id storage.NodeID, label string) (bool, error) {
	n, err := m.Node(id)
	if err != nil {
		return false, err
	}
	if !n.HasLabel(label) {
		return false, nil
	}
	m.EnsureState(id).removeLabel(label)
	return true, nil
}

// CreateNode stages a new node. The id comes from the storage engine and is
// never reused, even if the transaction rolls back.
func (m *MutationState) CreateNode(labels []string, props map[string]value.Value) (storage.NodeID, error) {
	clean := make(map[string]value.Value, len(props))
	for k, v := range props {
		if value.IsNull(v) {
			continue
		}
		if err := checkStorable(k, v); err != nil {
			return 0, err
		}
		clean[k] = v
	}
	id, err := m.store.Engine().AllocateNodeID()
	if err != nil {
		return 0, storeErr(err)
	}
	var uniq []string
	for _, l := range labels {
		if !slices.Contains(uniq, l) {
			uniq = append(uniq, l)
		}
	}
	n := &storage.Node{ID: id, Labels: uniq, Properties: clean}
	m.createdNodes = append(m.createdNodes, n)
	m.createdNodeIdx[id] = n
	return id, nil
}

// CreateEdge stages a new relationship between two existing nodes.
func (m *MutationState) CreateEdge(typ string, start, end storage.NodeID, props map[string]value.Value) (storage.EdgeID, error) {
	for _, endpoint := range []storage.NodeID{start, end} {
		if _, err := m.Node(endpoint); err != nil {
			return 0, fmt.Errorf("%w: relationship endpoint %d: %w", ErrConstraintViolation, endpoint, err)
		}
	}
	clean := make(map[string]value.Value, len(props))
	for k, v := range props {
		if value.IsNull(v) {
			continue
		}
		if err := checkStorable(k, v); err != nil {
			return 0, err
		}
		clean[k] = v
	}
	id, err := m.store.Engine().AllocateEdgeID()
	if err != nil {
		return 0, storeErr(err)
	}
	e := &storage.Edge{ID: id, Type: typ, StartNode: start, EndNode: end, Properties: clean}
	m.createdEdges = append(m.createdEdges, e)
	m.createdEdgeIdx[id] = e
	m.createdOut[start] = append(m.createdOut[start], id)
	m.createdIn[end] = append(m.createdIn[end], id)
	return id, nil
}

// DeleteNode stages the deletion of node id. With detach, every remaining
// relationship of the node is deleted too and their count is returned.
// Without detach the node must have no relationships left by the end of
// the statement (see Validate). Deleting an already deleted node is a
// no-op reported by deleted == false.
func (m *MutationState) DeleteNode(id storage.NodeID, detach bool) (edges int, deleted bool, err error) {
	if _, err := m.Node(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if detach {
		rels, err := m.Relationships(id, DirBoth)
		if err != nil {
			return 0, false, err
		}
		for _, e := range rels {
			ok, err := m.DeleteEdge(e.ID)
			if err != nil {
				return edges, false, err
			}
			if ok {
				edges++
			}
		}
	}
	if !detach {
		m.undetached = append(m.undetached, id)
	}
	delete(m.nodes, id)
	if _, ok := m.createdNodeIdx[id]; ok {
		delete(m.createdNodeIdx, id)
		m.createdNodes = slices.DeleteFunc(m.createdNodes, func(n *storage.Node) bool { return n.ID == id })
		return edges, true, nil
	}
	m.deletedNodes[id] = struct{}{}
	return edges, true, nil
}

// DeleteEdge stages the deletion of relationship id.
func (m *MutationState) DeleteEdge(id storage.EdgeID) (bool, error) {
	e, err := m.Edge(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	delete(m.edges, id)
	if _, ok := m.createdEdgeIdx[id]; ok {
		delete(m.createdEdgeIdx, id)
		m.createdEdges = slices.DeleteFunc(m.createdEdges, func(x *storage.Edge) bool { return x.ID == id })
		m.createdOut[e.StartNode] = slices.DeleteFunc(m.createdOut[e.StartNode], func(x storage.EdgeID) bool { return x == id })
		m.createdIn[e.EndNode] = slices.DeleteFunc(m.createdIn[e.EndNode], func(x storage.EdgeID) bool { return x == id })
		return true, nil
	}
	m.deletedEdges[id] = struct{}{}
	return true, nil
}

// Node returns the effective node: stored or created state with every
// overlay of the transaction applied. Deleted nodes are ErrNotFound. The
// result must be treated as read-only.
func (m *MutationState) Node(id storage.NodeID) (*storage.Node, error) {
	var overlays []*PropertyOverlay
	var base *storage.Node
	for s := m; s != nil && base == nil; s = s.parent {
		if _, gone := s.deletedNodes[id]; gone {
			return nil, fmt.Errorf("node %d: %w", id, storage.ErrNotFound)
		}
		if ov := s.nodes[id]; ov != nil {
			overlays = append(overlays, ov)
		}
		base = s.createdNodeIdx[id]
	}
	if base == nil {
		var err error
		if base, err = m.store.GetNode(id); err != nil {
			return nil, storeErr(err)
		}
	}
	if len(overlays) == 0 {
		return base, nil
	}
	n := &storage.Node{ID: id, Labels: base.Labels, Properties: base.Properties}
	for i := len(overlays) - 1; i >= 0; i-- {
		n.Properties = overlays[i].applyProps(n.Properties)
		n.Labels = overlays[i].applyLabels(n.Labels)
	}
	return n, nil
}

// Edge returns the effective relationship.
func (m *MutationState) Edge(id storage.EdgeID) (*storage.Edge, error) {
	var overlays []*PropertyOverlay
	var base *storage.Edge
	for s := m; s != nil && base == nil; s = s.parent {
		if _, gone := s.deletedEdges[id]; gone {
			return nil, fmt.Errorf("relationship %d: %w", id, storage.ErrNotFound)
		}
		if ov := s.edges[id]; ov != nil {
			overlays = append(overlays, ov)
		}
		base = s.createdEdgeIdx[id]
	}
	if base == nil {
		var err error
		if base, err = m.store.GetEdge(id); err != nil {
			return nil, storeErr(err)
		}
	}
	if len(overlays) == 0 {
		return base, nil
	}
	e := *base
	for i := len(overlays) - 1; i >= 0; i-- {
		e.Properties = overlays[i].applyProps(e.Properties)
	}
	return &e, nil
}

// View returns an immutable copy of node id's effective properties.
func (m *MutationState) View(id storage.NodeID) (PropertyView, error) {
	n, err := m.Node(id)
	if err != nil {
		return PropertyView{}, err
	}
	return newPropertyView(n.Properties), nil
}

// EdgeView returns an immutable copy of relationship id's effective
// properties.
func (m *MutationState) EdgeView(id storage.EdgeID) (PropertyView, error) {
	e, err := m.Edge(id)
	if err != nil {
		return PropertyView{}, err
	}
	return newPropertyView(e.Properties), nil
}

// ScanByLabel calls fn with every effective node carrying label (every
// node when label is empty) in id order, including nodes created or
// relabelled by the transaction and excluding deleted ones.
func (m *MutationState) ScanByLabel(label string, fn func(*storage.Node) bool) error {
	ids := make(map[storage.NodeID]struct{})
	err := m.store.ScanByLabel(label, func(n *storage.Node) bool {
		ids[n.ID] = struct{}{}
		return true
	})
	if err != nil {
		return storeErr(err)
	}
	for s := m; s != nil; s = s.parent {
		for _, n := range s.createdNodes {
			ids[n.ID] = struct{}{}
		}
		if label == "" {
			continue
		}
		for id, ov := range s.nodes {
			if slices.Contains(ov.addLabels, label) {
				ids[id] = struct{}{}
			}
		}
	}

	sorted := make([]storage.NodeID, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	slices.Sort(sorted)
	for _, id := range sorted {
		n, err := m.Node(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if label != "" && !n.HasLabel(label) {
			continue
		}
		if !fn(n) {
			return nil
		}
	}
	return nil
}

// Relationships returns the effective relationships of node id in the given
// direction, ordered by id. Relationships whose other endpoint was deleted
// are still returned; callers resolving the endpoint see ErrNotFound.
func (m *MutationState) Relationships(id storage.NodeID, dir Direction) ([]*storage.Edge, error) {
	ids := make(map[storage.EdgeID]struct{})
	collect := func(edges []*storage.Edge, err error) error {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return storeErr(err)
		}
		for _, e := range edges {
			ids[e.ID] = struct{}{}
		}
		return nil
	}
	if dir != DirIncoming {
		if err := collect(m.store.OutgoingEdges(id)); err != nil {
			return nil, err
		}
	}
	if dir != DirOutgoing {
		if err := collect(m.store.IncomingEdges(id)); err != nil {
			return nil, err
		}
	}
	for s := m; s != nil; s = s.parent {
		if dir != DirIncoming {
			for _, eid := range s.createdOut[id] {
				ids[eid] = struct{}{}
			}
		}
		if dir != DirOutgoing {
			for _, eid := range s.createdIn[id] {
				ids[eid] = struct{}{}
			}
		}
	}

	sorted := make([]storage.EdgeID, 0, len(ids))
	for eid := range ids {
		sorted = append(sorted, eid)
	}
	slices.Sort(sorted)
	edges := make([]*storage.Edge, 0, len(sorted))
	for _, eid := range sorted {
		e, err := m.Edge(eid)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// Validate checks the end-of-statement constraints: a node removed with a
// plain DELETE must not have relationships left.
func (m *MutationState) Validate() error {
	for _, id := range m.undetached {
		rels, err := m.Relationships(id, DirBoth)
		if err != nil {
			return err
		}
		if len(rels) > 0 {
			return fmt.Errorf("%w: cannot delete node %d because it still has %d relationship(s); use DETACH DELETE",
				ErrConstraintViolation, id, len(rels))
		}
	}
	return nil
}

// chain returns the states from the oldest statement to top.
func chain(top *MutationState) []*MutationState {
	var states []*MutationState
	for s := top; s != nil; s = s.parent {
		states = append(states, s)
	}
	slices.Reverse(states)
	return states
}

// Flatten merges the statement states ending at top, oldest first, into a
// single change set. Elements created and deleted inside the transaction
// cancel out.
func Flatten(top *MutationState) *storage.ChangeSet {
	cs := storage.NewChangeSet()
	createdNodes := make(map[storage.NodeID]*storage.Node)
	createdEdges := make(map[storage.EdgeID]*storage.Edge)
	var nodeOrder []storage.NodeID
	var edgeOrder []storage.EdgeID
	deletedNodes := make(map[storage.NodeID]struct{})
	deletedEdges := make(map[storage.EdgeID]struct{})

	for _, s := range chain(top) {
		for _, n := range s.createdNodes {
			createdNodes[n.ID] = n.Clone()
			nodeOrder = append(nodeOrder, n.ID)
		}
		for _, e := range s.createdEdges {
			createdEdges[e.ID] = e.Clone()
			edgeOrder = append(edgeOrder, e.ID)
		}
		for id, ov := range s.nodes {
			if n, ok := createdNodes[id]; ok {
				n.Properties = ov.applyProps(n.Properties)
				n.Labels = ov.applyLabels(n.Labels)
				continue
			}
			u := cs.UpdatedNodes[id]
			if u == nil {
				u = &storage.NodeUpdate{Properties: make(map[string]value.Value)}
				cs.UpdatedNodes[id] = u
			}
			mergeNodeOverlay(u, ov)
		}
		for id, ov := range s.edges {
			if e, ok := createdEdges[id]; ok {
				e.Properties = ov.applyProps(e.Properties)
				continue
			}
			u := cs.UpdatedEdges[id]
			if u == nil {
				u = &storage.EdgeUpdate{Properties: make(map[string]value.Value)}
				cs.UpdatedEdges[id] = u
			}
			if ov.Replaced {
				u.ReplaceProperties = true
				u.Properties = make(map[string]value.Value, len(ov.Properties))
			}
			for k, v := range ov.Properties {
				u.Properties[k] = v
			}
		}
		for id := range s.deletedEdges {
			if _, ok := createdEdges[id]; ok {
				delete(createdEdges, id)
				continue
			}
			delete(cs.UpdatedEdges, id)
			deletedEdges[id] = struct{}{}
		}
		for id := range s.deletedNodes {
			if _, ok := createdNodes[id]; ok {
				delete(createdNodes, id)
				continue
			}
			delete(cs.UpdatedNodes, id)
			deletedNodes[id] = struct{}{}
		}
	}

	for _, id := range nodeOrder {
		if n, ok := createdNodes[id]; ok {
			cs.CreatedNodes = append(cs.CreatedNodes, n)
		}
	}
	for _, id := range edgeOrder {
		if e, ok := createdEdges[id]; ok {
			cs.CreatedEdges = append(cs.CreatedEdges, e)
		}
	}
	for id := range deletedNodes {
		cs.DeletedNodes = append(cs.DeletedNodes, id)
	}
	for id := range deletedEdges {
		cs.DeletedEdges = append(cs.DeletedEdges, id)
	}
	slices.Sort(cs.DeletedNodes)
	slices.Sort(cs.DeletedEdges)
	return cs
}

func mergeNodeOverlay(u *storage.NodeUpdate, ov *PropertyOverlay) {
	if ov.Replaced {
		u.ReplaceProperties = true
		u.Properties = make(map[string]value.Value, len(ov.Properties))
	}
	for k, v := range ov.Properties {
		u.Properties[k] = v
	}
	for _, l := range ov.addLabels {
		u.RemoveLabels = slices.DeleteFunc(u.RemoveLabels, func(s string) bool { return s == l })
		if !slices.Contains(u.AddLabels, l) {
			u.AddLabels = append(u.AddLabels, l)
		}
	}
	for _, l := range ov.removeLabels {
		u.AddLabels = slices.DeleteFunc(u.AddLabels, func(s string) bool { return s == l })
		if !slices.Contains(u.RemoveLabels, l) {
			u.RemoveLabels = append(u.RemoveLabels, l)
		}
	}
}
