package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

type graphFixture struct {
	engine *storage.MemoryEngine
	snap   *storage.Snapshot
}

func newGraph(t *testing.T) *graphFixture {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	return &graphFixture{engine: engine, snap: storage.NewSnapshot(engine)}
}

func (g *graphFixture) node(t *testing.T, labels []string, props map[string]value.Value) storage.NodeID {
	t.Helper()
	id, err := g.engine.AllocateNodeID()
	require.NoError(t, err)
	cs := storage.NewChangeSet()
	cs.CreatedNodes = append(cs.CreatedNodes, &storage.Node{ID: id, Labels: labels, Properties: props})
	require.NoError(t, g.engine.Commit(cs))
	return id
}

func (g *graphFixture) edge(t *testing.T, typ string, from, to storage.NodeID) storage.EdgeID {
	t.Helper()
	id, err := g.engine.AllocateEdgeID()
	require.NoError(t, err)
	cs := storage.NewChangeSet()
	cs.CreatedEdges = append(cs.CreatedEdges, &storage.Edge{ID: id, Type: typ, StartNode: from, EndNode: to})
	require.NoError(t, g.engine.Commit(cs))
	return id
}

func TestMutationStateReadYourWrites(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, []string{"Item"}, map[string]value.Value{"x": value.Int(5)})

	m := NewMutationState(g.snap, nil)
	v, err := m.ReadProperty(id, "x")
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), v)

	require.NoError(t, m.WriteProperty(id, "x", value.Int(6)))
	v, err = m.ReadProperty(id, "x")
	require.NoError(t, err)
	assert.Equal(t, value.Int(6), v)

	missing, err := m.ReadProperty(id, "nope")
	require.NoError(t, err)
	assert.Equal(t, value.Null{}, missing)

	// Storage is untouched until commit.
	stored, err := g.engine.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), stored.Properties["x"])
}

func TestMutationStateEnsureStateIsStable(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, nil, nil)
	m := NewMutationState(g.snap, nil)
	assert.Same(t, m.EnsureState(id), m.EnsureState(id))
}

func TestMutationStateRejectsMapProperty(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, nil, nil)
	m := NewMutationState(g.snap, nil)
	err := m.WriteProperty(id, "m", value.Map{"a": value.Int(1)})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMutationStateLayersSeeParents(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, []string{"Item"}, map[string]value.Value{"x": value.Int(1)})

	first := NewMutationState(g.snap, nil)
	require.NoError(t, first.WriteProperty(id, "x", value.Int(2)))
	created, err := first.CreateNode([]string{"Item"}, map[string]value.Value{"x": value.Int(10)})
	require.NoError(t, err)

	second := NewMutationState(g.snap, first)
	v, err := second.ReadProperty(id, "x")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), v)

	var seen []storage.NodeID
	require.NoError(t, second.ScanByLabel("Item", func(n *storage.Node) bool {
		seen = append(seen, n.ID)
		return true
	}))
	assert.Equal(t, []storage.NodeID{id, created}, seen)

	_, deleted, err := second.DeleteNode(created, false)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = second.Node(created)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = first.Node(created)
	assert.NoError(t, err, "the parent layer is not affected")
}

func TestMutationStateLabels(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, []string{"A"}, nil)
	m := NewMutationState(g.snap, nil)

	added, err := m.AddLabel(id, "B")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = m.AddLabel(id, "A")
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := m.RemoveLabel(id, "A")
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := m.Node(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, n.Labels)

	var byB []storage.NodeID
	require.NoError(t, m.ScanByLabel("B", func(n *storage.Node) bool {
		byB = append(byB, n.ID)
		return true
	}))
	assert.Equal(t, []storage.NodeID{id}, byB)
}

func TestMutationStateDeleteConstraint(t *testing.T) {
	g := newGraph(t)
	a := g.node(t, nil, nil)
	b := g.node(t, nil, nil)
	g.edge(t, "R", a, b)

	m := NewMutationState(g.snap, nil)
	_, _, err := m.DeleteNode(a, false)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(), ErrConstraintViolation)

	m = NewMutationState(g.snap, nil)
	edges, deleted, err := m.DeleteNode(a, true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 1, edges)
	assert.NoError(t, m.Validate())

	rels, err := m.Relationships(b, DirBoth)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestMutationStateWriteToDeletedNode(t *testing.T) {
	g := newGraph(t)
	id := g.node(t, nil, nil)
	m := NewMutationState(g.snap, nil)
	_, _, err := m.DeleteNode(id, true)
	require.NoError(t, err)
	assert.ErrorIs(t, m.WriteProperty(id, "x", value.Int(1)), ErrConstraintViolation)
}

func TestFlatten(t *testing.T) {
	g := newGraph(t)
	keep := g.node(t, []string{"Item"}, map[string]value.Value{"x": value.Int(1), "y": value.Int(2)})
	gone := g.node(t, []string{"Item"}, nil)

	first := NewMutationState(g.snap, nil)
	require.NoError(t, first.WriteProperty(keep, "x", value.Int(5)))
	require.NoError(t, first.RemoveProperty(keep, "y"))
	tmp, err := first.CreateNode([]string{"Tmp"}, nil)
	require.NoError(t, err)
	fresh, err := first.CreateNode([]string{"New"}, map[string]value.Value{"a": value.Int(1)})
	require.NoError(t, err)

	second := NewMutationState(g.snap, first)
	_, _, err = second.DeleteNode(tmp, false)
	require.NoError(t, err)
	_, _, err = second.DeleteNode(gone, false)
	require.NoError(t, err)
	require.NoError(t, second.WriteProperty(fresh, "b", value.Int(2)))
	_, err = second.CreateEdge("LINKS", keep, fresh, nil)
	require.NoError(t, err)

	cs := Flatten(second)
	require.Len(t, cs.CreatedNodes, 1)
	assert.Equal(t, fresh, cs.CreatedNodes[0].ID)
	assert.Equal(t, map[string]value.Value{"a": value.Int(1), "b": value.Int(2)}, cs.CreatedNodes[0].Properties)
	assert.Equal(t, []storage.NodeID{gone}, cs.DeletedNodes)
	require.Contains(t, cs.UpdatedNodes, keep)
	assert.Equal(t, value.Int(5), cs.UpdatedNodes[keep].Properties["x"])
	assert.Equal(t, value.Null{}, cs.UpdatedNodes[keep].Properties["y"])
	require.Len(t, cs.CreatedEdges, 1)

	require.NoError(t, g.engine.Commit(cs))
	n, err := g.engine.GetNode(keep)
	require.NoError(t, err)
	assert.Equal(t, map[string]value.Value{"x": value.Int(5)}, n.Properties)
	_, err = g.engine.GetNode(gone)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
