package cypher

import (
	"fmt"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// BindingKind tags what a variable is bound to.
type BindingKind int

const (
	BoundNode BindingKind = iota
	BoundRelationship
	BoundScalar
)

func (k BindingKind) String() string {
	switch k {
	case BoundNode:
		return "node"
	case BoundRelationship:
		return "relationship"
	}
	return "scalar"
}

// Binding is the value of one variable in one row. Node and relationship
// bindings hold a set of element ids: a single id for a plain pattern
// element, the traversed relationships for a variable-length pattern, and
// no id at all when an OPTIONAL MATCH found nothing. Bindings are never
// mutated once created.
type Binding struct {
	Kind   BindingKind
	IDs    []uint64
	Scalar value.Value
	// Path marks the relationship list of a variable-length pattern.
	Path bool
}

// IsNull reports whether the binding carries nothing.
func (b *Binding) IsNull() bool {
	if b.Kind == BoundScalar {
		return value.IsNull(b.Scalar)
	}
	return len(b.IDs) == 0 && !b.Path
}

// NodeIDs returns the bound ids as node ids.
func (b *Binding) NodeIDs() []storage.NodeID {
	ids := make([]storage.NodeID, len(b.IDs))
	for i, id := range b.IDs {
		ids[i] = storage.NodeID(id)
	}
	return ids
}

// EdgeIDs returns the bound ids as relationship ids.
func (b *Binding) EdgeIDs() []storage.EdgeID {
	ids := make([]storage.EdgeID, len(b.IDs))
	for i, id := range b.IDs {
		ids[i] = storage.EdgeID(id)
	}
	return ids
}

// BindingContext maps the variables of one row to their bindings. Each row
// owns its context; pattern expansion clones before binding so rows never
// share a mutable map.
type BindingContext struct {
	vars  map[string]*Binding
	order []string
}

// NewBindingContext returns an empty context.
func NewBindingContext() *BindingContext {
	return &BindingContext{vars: make(map[string]*Binding)}
}

func (c *BindingContext) bind(name string, b *Binding) {
	if _, ok := c.vars[name]; !ok {
		c.order = append(c.order, name)
	}
	c.vars[name] = b
}

// BindNode binds name to the given node ids.
func (c *BindingContext) BindNode(name string, ids ...storage.NodeID) {
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	c.bind(name, &Binding{Kind: BoundNode, IDs: raw})
}

// BindRelationships binds name to the given relationship ids.
func (c *BindingContext) BindRelationships(name string, ids ...storage.EdgeID) {
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	c.bind(name, &Binding{Kind: BoundRelationship, IDs: raw})
}

// BindPath binds name to the relationships traversed by a variable-length
// pattern, in traversal order.
func (c *BindingContext) BindPath(name string, ids ...storage.EdgeID) {
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	c.bind(name, &Binding{Kind: BoundRelationship, IDs: raw, Path: true})
}

// BindScalar binds name to a plain value.
func (c *BindingContext) BindScalar(name string, v value.Value) {
	c.bind(name, &Binding{Kind: BoundScalar, Scalar: v})
}

// Lookup returns the binding of name or an ErrUnknownVariable naming it.
func (c *BindingContext) Lookup(name string) (*Binding, error) {
	if b, ok := c.vars[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
}

// Has reports whether name is bound.
func (c *BindingContext) Has(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// Variables returns the bound names in binding order.
func (c *BindingContext) Variables() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of bound variables.
func (c *BindingContext) Len() int { return len(c.vars) }

// Clone returns an independent copy. Bindings themselves are shared since
// they are immutable.
func (c *BindingContext) Clone() *BindingContext {
	out := &BindingContext{
		vars:  make(map[string]*Binding, len(c.vars)+2),
		order: append(make([]string, 0, len(c.order)+2), c.order...),
	}
	for k, v := range c.vars {
		out.vars[k] = v
	}
	return out
}
