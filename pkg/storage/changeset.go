package storage

import (
	"fmt"
	"slices"

	"github.com/orneryd/nexus/pkg/value"
)

// NodeUpdate is the pending delta for one existing node. A Null property
// value removes the key.
type NodeUpdate struct {
	Properties        map[string]value.Value
	ReplaceProperties bool
	AddLabels         []string
	RemoveLabels      []string
}

// EdgeUpdate is the pending delta for one existing relationship.
type EdgeUpdate struct {
	Properties        map[string]value.Value
	ReplaceProperties bool
}

// ChangeSet is everything one transaction writes. Engines apply it in this
// order: created nodes, node updates, created edges, edge updates, deleted
// edges, deleted nodes. Deleting a node also deletes its remaining edges.
type ChangeSet struct {
	CreatedNodes []*Node
	UpdatedNodes map[NodeID]*NodeUpdate
	DeletedNodes []NodeID
	CreatedEdges []*Edge
	UpdatedEdges map[EdgeID]*EdgeUpdate
	DeletedEdges []EdgeID
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		UpdatedNodes: make(map[NodeID]*NodeUpdate),
		UpdatedEdges: make(map[EdgeID]*EdgeUpdate),
	}
}

// Empty reports whether cs writes nothing.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.CreatedNodes) == 0 && len(cs.UpdatedNodes) == 0 &&
		len(cs.DeletedNodes) == 0 && len(cs.CreatedEdges) == 0 &&
		len(cs.UpdatedEdges) == 0 && len(cs.DeletedEdges) == 0
}

// Size returns the number of individual changes in cs.
func (cs *ChangeSet) Size() int {
	if cs == nil {
		return 0
	}
	return len(cs.CreatedNodes) + len(cs.UpdatedNodes) + len(cs.DeletedNodes) +
		len(cs.CreatedEdges) + len(cs.UpdatedEdges) + len(cs.DeletedEdges)
}

// validate checks the parts of cs that do not depend on stored state.
func (cs *ChangeSet) validate() error {
	for _, n := range cs.CreatedNodes {
		if n == nil {
			return ErrInvalidData
		}
		if n.ID == 0 {
			return ErrInvalidID
		}
		if err := checkProps(n.Properties); err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
	}
	for id, u := range cs.UpdatedNodes {
		if id == 0 || u == nil {
			return ErrInvalidID
		}
		if err := checkProps(u.Properties); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
	}
	for _, e := range cs.CreatedEdges {
		if e == nil || e.Type == "" {
			return ErrInvalidData
		}
		if e.ID == 0 || e.StartNode == 0 || e.EndNode == 0 {
			return ErrInvalidID
		}
		if err := checkProps(e.Properties); err != nil {
			return fmt.Errorf("edge %d: %w", e.ID, err)
		}
	}
	for id, u := range cs.UpdatedEdges {
		if id == 0 || u == nil {
			return ErrInvalidID
		}
		if err := checkProps(u.Properties); err != nil {
			return fmt.Errorf("edge %d: %w", id, err)
		}
	}
	return nil
}

func checkProps(props map[string]value.Value) error {
	for k, v := range props {
		if v == nil {
			continue
		}
		if !value.Storable(v) {
			return fmt.Errorf("%w: property %q cannot hold a %s", ErrInvalidData, k, v.Kind())
		}
	}
	return nil
}

// apply mutates n in place.
func (u *NodeUpdate) apply(n *Node) {
	if u.ReplaceProperties || n.Properties == nil {
		n.Properties = make(map[string]value.Value, len(u.Properties))
	}
	mergeProps(n.Properties, u.Properties)
	for _, l := range u.RemoveLabels {
		n.Labels = slices.DeleteFunc(n.Labels, func(s string) bool { return s == l })
	}
	for _, l := range u.AddLabels {
		if !slices.Contains(n.Labels, l) {
			n.Labels = append(n.Labels, l)
		}
	}
}

func (u *EdgeUpdate) apply(e *Edge) {
	if u.ReplaceProperties || e.Properties == nil {
		e.Properties = make(map[string]value.Value, len(u.Properties))
	}
	mergeProps(e.Properties, u.Properties)
}

func mergeProps(dst, delta map[string]value.Value) {
	for k, v := range delta {
		if value.IsNull(v) {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

// stripNulls drops Null values from a created element's properties.
func stripNulls(props map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	mergeProps(out, props)
	return out
}
