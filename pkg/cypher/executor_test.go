package cypher

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nexus/pkg/search"
	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

func newTestExecutor(t *testing.T) (*Executor, *storage.MemoryEngine) {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	opts := DefaultOptions()
	opts.Logger = logger
	return NewExecutor(engine, opts), engine
}

func run(t *testing.T, exec *Executor, query string, params map[string]any) *ExecuteResult {
	t.Helper()
	res, err := exec.Execute(context.Background(), query, params)
	require.NoError(t, err, query)
	return res
}

// column returns one column of the result.
func column(res *ExecuteResult, i int) []value.Value {
	out := make([]value.Value, len(res.Rows))
	for r, row := range res.Rows {
		out[r] = row[i]
	}
	return out
}

func strs(ss ...string) []value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.String(s)
	}
	return out
}

func seedPeople(t *testing.T, exec *Executor) {
	t.Helper()
	run(t, exec, `CREATE (a:Person {name: 'Alice', age: 34})-[:KNOWS {since: 2020}]->(b:Person {name: 'Bob', age: 28}),
		(b)-[:KNOWS {since: 2022}]->(c:Person {name: 'Carol', age: 41})`, nil)
}

func TestExecuteCreateAndReturn(t *testing.T) {
	exec, engine := newTestExecutor(t)
	res := run(t, exec, "CREATE (n:Person {name: $name, age: 30}) RETURN n.name AS name, n.age", map[string]any{"name": "Ada"})
	assert.Equal(t, []string{"name", "n.age"}, res.Columns)
	assert.Equal(t, [][]value.Value{{value.String("Ada"), value.Int(30)}}, res.Rows)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, res.Stats.NodesCreated)
	assert.Equal(t, 2, res.Stats.PropertiesSet)
	assert.Equal(t, 1, res.Stats.LabelsAdded)

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestExecuteReturnNode(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Person {name: 'Ada'})", nil)
	res := run(t, exec, "MATCH (n:Person) RETURN n, labels(n), id(n) = n.id", nil)
	require.Len(t, res.Rows, 1)
	node, ok := res.Rows[0][0].(value.Map)
	require.True(t, ok)
	assert.Equal(t, value.List{value.String("Person")}, node["labels"])
	assert.Equal(t, value.Map{"name": value.String("Ada")}, node["properties"])
	assert.Equal(t, value.List{value.String("Person")}, res.Rows[0][1])
}

func TestExecuteReadYourOwnWrites(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {x: 5})", nil)

	res := run(t, exec, "MATCH (n:Item) SET n.x = n.x + 1 RETURN n.x", nil)
	assert.Equal(t, [][]value.Value{{value.Int(6)}}, res.Rows)

	res = run(t, exec, "MATCH (n:Item) SET n.x = n.x + 1, n.y = n.x * 10 RETURN n.x, n.y", nil)
	assert.Equal(t, [][]value.Value{{value.Int(7), value.Int(70)}}, res.Rows)

	res = run(t, exec, "MATCH (n:Item) RETURN n.x", nil)
	assert.Equal(t, [][]value.Value{{value.Int(7)}}, res.Rows, "committed value is visible to the next statement")
}

func TestExecuteSetEvaluatesPerNode(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {value: 10}), (:Item {value: 20})", nil)
	run(t, exec, "MATCH (n:Item) SET n.doubled = n.value * 2", nil)

	res := run(t, exec, "MATCH (n:Item) RETURN n.value, n.doubled ORDER BY n.value", nil)
	assert.Equal(t, [][]value.Value{
		{value.Int(10), value.Int(20)},
		{value.Int(20), value.Int(40)},
	}, res.Rows)
}

func TestExecuteSetNonTargetVariableIsNull(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:A {x: 1}), (:B {y: 2})", nil)
	res := run(t, exec, "MATCH (a:A), (b:B) SET a.z = b.y + 1 RETURN a.z", nil)
	assert.Equal(t, [][]value.Value{{value.Null{}}}, res.Rows)
}

func TestExecuteSetMapsAndLabels(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {a: 1, b: 2})", nil)

	run(t, exec, "MATCH (n:Item) SET n += {b: 3, c: n.a + 3}, n:Tagged", nil)
	res := run(t, exec, "MATCH (n:Tagged) RETURN n.a, n.b, n.c", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1), value.Int(3), value.Int(4)}}, res.Rows)

	run(t, exec, "MATCH (n:Item) SET n = $props", map[string]any{"props": map[string]any{"only": "this"}})
	res = run(t, exec, "MATCH (n:Item) RETURN keys(n)", nil)
	assert.Equal(t, [][]value.Value{{value.List{value.String("only")}}}, res.Rows)

	_, err := exec.Execute(context.Background(), "MATCH (n:Item) SET n = 5", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestExecuteRemove(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item:Old {a: 1, b: 2})", nil)
	res := run(t, exec, "MATCH (n:Item) REMOVE n.a, n:Old, n.missing RETURN n.a, labels(n)", nil)
	assert.Equal(t, [][]value.Value{{value.Null{}, value.List{value.String("Item")}}}, res.Rows)
	assert.Equal(t, 1, res.Stats.PropertiesSet)
	assert.Equal(t, 1, res.Stats.LabelsRemoved)
}

func TestExecuteRelationships(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	tests := []struct {
		name  string
		query string
		want  [][]value.Value
	}{
		{
			"outgoing",
			"MATCH (a:Person {name: 'Alice'})-[:KNOWS]->(b) RETURN b.name",
			[][]value.Value{strs("Bob")},
		},
		{
			"incoming",
			"MATCH (b:Person)<-[:KNOWS]-(a) RETURN a.name, b.name ORDER BY a.name",
			[][]value.Value{strs("Alice", "Bob"), strs("Bob", "Carol")},
		},
		{
			"undirected",
			"MATCH (:Person {name: 'Bob'})-[:KNOWS]-(x) RETURN x.name ORDER BY x.name",
			[][]value.Value{strs("Alice"), strs("Carol")},
		},
		{
			"relationship properties",
			"MATCH ()-[r:KNOWS]->() WHERE r.since > 2021 RETURN type(r), r.since",
			[][]value.Value{{value.String("KNOWS"), value.Int(2022)}},
		},
		{
			"two hops",
			"MATCH (a:Person {name: 'Alice'})-[:KNOWS]->()-[:KNOWS]->(c) RETURN c.name",
			[][]value.Value{strs("Carol")},
		},
		{
			"variable length",
			"MATCH (a:Person {name: 'Alice'})-[:KNOWS*1..2]->(x) RETURN x.name ORDER BY x.name",
			[][]value.Value{strs("Bob"), strs("Carol")},
		},
		{
			"path length",
			"MATCH (:Person {name: 'Alice'})-[r:KNOWS*2]->(x) RETURN x.name, length(r)",
			[][]value.Value{{value.String("Carol"), value.Int(2)}},
		},
		{
			"bound end node",
			"MATCH (c:Person {name: 'Carol'}) MATCH (a)-[:KNOWS]->(c) RETURN a.name",
			[][]value.Value{strs("Bob")},
		},
		{
			"comma patterns join",
			"MATCH (a:Person {name: 'Alice'}), (c:Person {name: 'Carol'}) RETURN a.name, c.name",
			[][]value.Value{strs("Alice", "Carol")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, exec, tt.query, nil)
			assert.Equal(t, tt.want, res.Rows)
		})
	}
}

func TestExecuteOptionalMatch(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)
	res := run(t, exec, "MATCH (c:Person {name: 'Carol'}) OPTIONAL MATCH (c)-[:KNOWS]->(x) RETURN c.name, x, x.name", nil)
	assert.Equal(t, [][]value.Value{{value.String("Carol"), value.Null{}, value.Null{}}}, res.Rows)
}

func TestExecuteWhere(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)
	res := run(t, exec, "MATCH (p:Person) WHERE p.age >= 30 AND NOT p.name STARTS WITH 'C' RETURN p.name", nil)
	assert.Equal(t, [][]value.Value{strs("Alice")}, res.Rows)

	res = run(t, exec, "MATCH (p:Person) WHERE p.name IN ['Bob', 'Carol'] AND p.email IS NULL RETURN count(*)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(2)}}, res.Rows)
}

func TestExecuteMerge(t *testing.T) {
	exec, _ := newTestExecutor(t)
	query := "MERGE (u:User {id: 1}) ON CREATE SET u.created = true ON MATCH SET u.visits = coalesce(u.visits, 0) + 1 RETURN u.created, u.visits"

	res := run(t, exec, "MERGE (u:User {id: 1}) ON CREATE SET u.created = true ON MATCH SET u.visits = 1 RETURN u.created, u.visits", nil)
	assert.Equal(t, [][]value.Value{{value.Bool(true), value.Null{}}}, res.Rows)
	assert.Equal(t, 1, res.Stats.NodesCreated)

	res = run(t, exec, "MERGE (u:User {id: 1}) ON CREATE SET u.created = false ON MATCH SET u.visits = 1 RETURN u.created, u.visits", nil)
	assert.Equal(t, [][]value.Value{{value.Bool(true), value.Int(1)}}, res.Rows)
	assert.Equal(t, 0, res.Stats.NodesCreated)

	// coalesce is outside the assignment subset.
	_, err := exec.Execute(context.Background(), query, nil)
	assert.ErrorIs(t, err, ErrUnsupportedExpression)

	res = run(t, exec, "MATCH (u:User) RETURN count(u)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
}

func TestExecuteMergeRelationship(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)
	run(t, exec, "MATCH (a:Person {name: 'Alice'}), (c:Person {name: 'Carol'}) MERGE (a)-[:KNOWS]->(c)", nil)
	res := run(t, exec, "MATCH (a:Person {name: 'Alice'}), (c:Person {name: 'Carol'}) MERGE (a)-[r:KNOWS]->(c) RETURN count(r)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
	assert.Equal(t, 0, res.Stats.RelationshipsCreated)
}

func TestExecuteDelete(t *testing.T) {
	exec, engine := newTestExecutor(t)
	seedPeople(t, exec)

	_, err := exec.Execute(context.Background(), "MATCH (b:Person {name: 'Bob'}) DELETE b", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.Equal(t, KindConstraint, Classify(err))
	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "failed statement commits nothing")

	res := run(t, exec, "MATCH (b:Person {name: 'Bob'}) DETACH DELETE b", nil)
	assert.Equal(t, 1, res.Stats.NodesDeleted)
	assert.Equal(t, 2, res.Stats.RelationshipsDeleted)

	res = run(t, exec, "MATCH (p:Person) RETURN p.name ORDER BY p.name", nil)
	assert.Equal(t, [][]value.Value{strs("Alice"), strs("Carol")}, res.Rows)
	edges, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Zero(t, edges)

	res = run(t, exec, "MATCH (p:Person {name: 'Alice'}) DELETE p RETURN p", nil)
	assert.Equal(t, [][]value.Value{{value.Null{}}}, res.Rows)
}

func TestExecuteDeleteRelationship(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)
	res := run(t, exec, "MATCH (:Person {name: 'Alice'})-[r:KNOWS]->() DELETE r", nil)
	assert.Equal(t, 1, res.Stats.RelationshipsDeleted)
	res = run(t, exec, "MATCH ()-[r:KNOWS]->() RETURN count(r)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
}

func TestExecuteAggregation(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, `CREATE (:Emp {name: 'a', dept: 'eng', salary: 100}),
		(:Emp {name: 'b', dept: 'eng', salary: 200}),
		(:Emp {name: 'c', dept: 'ops', salary: 50}),
		(:Emp {name: 'd', dept: 'ops'})`, nil)

	res := run(t, exec, `MATCH (e:Emp) RETURN e.dept AS dept, count(*) AS n, count(e.salary) AS paid,
		sum(e.salary) AS total, avg(e.salary) AS mean, min(e.salary), max(e.salary), collect(e.name) AS names
		ORDER BY dept`, nil)
	assert.Equal(t, []string{"dept", "n", "paid", "total", "mean", "min(e.salary)", "max(e.salary)", "names"}, res.Columns)
	assert.Equal(t, [][]value.Value{
		{value.String("eng"), value.Int(2), value.Int(2), value.Int(300), value.Float(150), value.Int(100), value.Int(200), value.List(strs("a", "b"))},
		{value.String("ops"), value.Int(2), value.Int(1), value.Int(50), value.Float(50), value.Int(50), value.Int(50), value.List(strs("c", "d"))},
	}, res.Rows)

	res = run(t, exec, "MATCH (e:Emp) RETURN count(DISTINCT e.dept)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(2)}}, res.Rows)

	res = run(t, exec, "MATCH (e:Emp) RETURN e.dept, count(*) AS n ORDER BY count(*) DESC, e.dept LIMIT 1", nil)
	assert.Equal(t, [][]value.Value{{value.String("eng"), value.Int(2)}}, res.Rows)

	res = run(t, exec, "MATCH (n:Nobody) RETURN count(*), sum(n.x), collect(n.x)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(0), value.Int(0), value.List{}}}, res.Rows)

	res = run(t, exec, "MATCH (n:Nobody) RETURN n.x, count(*)", nil)
	assert.Empty(t, res.Rows)
}

func TestExecuteOrderSkipLimitDistinct(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:N {v: 3, g: 'x'}), (:N {v: 1, g: 'y'}), (:N {v: 2, g: 'x'}), (:N {g: 'y'})", nil)

	res := run(t, exec, "MATCH (n:N) RETURN n.v ORDER BY n.v", nil)
	assert.Equal(t, []value.Value{value.Int(1), value.Int(2), value.Int(3), value.Null{}}, column(res, 0))

	res = run(t, exec, "MATCH (n:N) RETURN n.v AS v ORDER BY v DESC SKIP 1 LIMIT 2", nil)
	assert.Equal(t, []value.Value{value.Int(3), value.Int(2)}, column(res, 0))

	res = run(t, exec, "MATCH (n:N) RETURN DISTINCT n.g ORDER BY n.g", nil)
	assert.Equal(t, strs("x", "y"), column(res, 0))

	res = run(t, exec, "MATCH (n:N) RETURN n.v LIMIT $limit", map[string]any{"limit": 0})
	assert.Empty(t, res.Rows)

	_, err := exec.Execute(context.Background(), "MATCH (n:N) RETURN n LIMIT -1", nil)
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, err = exec.Execute(context.Background(), "MATCH (n:N) RETURN n LIMIT 'x'", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestExecuteReturnStar(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)
	res := run(t, exec, "MATCH (b:Person {name: 'Bob'})-[r:KNOWS]->(c) RETURN *", nil)
	assert.Equal(t, []string{"b", "c", "r"}, res.Columns)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Rows[0], 3)
	rel := res.Rows[0][2].(value.Map)
	assert.Equal(t, value.String("KNOWS"), rel["type"])
}

func TestExecuteExpressions(t *testing.T) {
	exec, _ := newTestExecutor(t)
	tests := []struct {
		query string
		want  value.Value
	}{
		{"RETURN 7 / 2", value.Float(3.5)},
		{"RETURN 7 % 0", value.Null{}},
		{"RETURN 1 / 0", value.Null{}},
		{"RETURN 'a' + 'b'", value.String("ab")},
		{"RETURN 'a' - 1", value.Null{}},
		{"RETURN -'a'", value.Null{}},
		{"RETURN toUpper('abc')", value.String("ABC")},
		{"RETURN size([1, 2, 3])", value.Int(3)},
		{"RETURN coalesce(null, 2)", value.Int(2)},
		{"RETURN point({x: 3, y: 4}).x", value.Float(3)},
		{"RETURN distance(point({x: 0, y: 0}), point({x: 3, y: 4}))", value.Float(5)},
		{"RETURN $p", value.Int(9)},
		{"RETURN null IS NULL", value.Bool(true)},
		{"RETURN -9223372036854775808", value.Int(-9223372036854775808)},
		{"RETURN -(3)", value.Int(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := run(t, exec, tt.query, map[string]any{"p": 9})
			require.Len(t, res.Rows, 1)
			assert.Equal(t, tt.want, res.Rows[0][0])
		})
	}
}

func TestExecuteErrors(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {x: 1})", nil)

	tests := []struct {
		name  string
		query string
		err   error
		kind  ErrorKind
	}{
		{"syntax", "MATCH (n RETURN n", ErrSyntax, KindParse},
		{"not on integer", "RETURN NOT 1", ErrTypeMismatch, KindTypeMismatch},
		{"unknown variable in return", "MATCH (n:Item) RETURN ghost", ErrUnknownVariable, KindUnknownVariable},
		{"unknown variable in set", "MATCH (n:Item) SET n.x = ghost.y", ErrUnknownVariable, KindUnknownVariable},
		{"unsupported set expression", "MATCH (n:Item) SET n.x = abs(n.x)", ErrUnsupportedExpression, KindUnsupportedExpression},
		{"comparison in set", "MATCH (n:Item) SET n.x = n.x > 1", ErrUnsupportedExpression, KindUnsupportedExpression},
		{"aggregate outside return", "MATCH (n:Item) WHERE count(n) > 1 RETURN n", ErrUnsupportedExpression, KindUnsupportedExpression},
		{"overflow", "RETURN 9223372036854775807 + 1", ErrInvalidNumber, KindInvalidNumber},
		{"negative overflow", "RETURN -9223372036854775808 - 1", ErrInvalidNumber, KindInvalidNumber},
		{"map property", "MATCH (n:Item) SET n.m = $m", ErrTypeMismatch, KindTypeMismatch},
		{"transaction without session", "BEGIN", ErrSessionRequired, KindTransaction},
		{"missing parameter", "RETURN $nope", ErrUnknownVariable, KindUnknownVariable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), tt.query, map[string]any{"m": map[string]any{"a": 1}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.kind, Classify(err))
		})
	}

	res := run(t, exec, "MATCH (n:Item) RETURN n.x", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows, "failed statements leave the graph untouched")
}

func TestExecuteCancelledStatementCommitsNothing(t *testing.T) {
	exec, engine := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {x: 1}), (:Item {x: 2})", nil)
	gen := engine.Generation()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Execute(ctx, "MATCH (n:Item) SET n.x = 100 CREATE (:Other)", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryTimeout)
	assert.Equal(t, KindQueryTimeout, Classify(err))
	assert.Equal(t, gen, engine.Generation())

	res := run(t, exec, "MATCH (n:Item) RETURN n.x ORDER BY n.x", nil)
	assert.Equal(t, []value.Value{value.Int(1), value.Int(2)}, column(res, 0))
}

func TestExecuteStatementTimeout(t *testing.T) {
	engine := storage.NewMemoryEngine()
	defer engine.Close()
	opts := DefaultOptions()
	opts.StatementTimeout = 1
	exec := NewExecutor(engine, opts)

	_, err := exec.Execute(context.Background(), "CREATE (:Item)", nil)
	assert.ErrorIs(t, err, ErrQueryTimeout)
	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExecutePlanCache(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "MATCH (n:Item) RETURN n", nil)
	run(t, exec, "MATCH   (n:Item)\n RETURN n;", nil)

	stats := exec.PlanCache().Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.CachedPlans)

	exec.PlanCache().Clear()
	run(t, exec, "MATCH (n:Item) RETURN n", nil)
	stats = exec.PlanCache().Stats()
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestExecuteParametersShareOnePlan(t *testing.T) {
	exec, _ := newTestExecutor(t)
	for i := range 3 {
		run(t, exec, "CREATE (:Item {x: $x})", map[string]any{"x": i})
	}
	assert.Equal(t, 1, exec.PlanCache().Len())
	res := run(t, exec, "MATCH (n:Item) RETURN sum(n.x)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(3)}}, res.Rows)
}

func TestExecuteVectorSearch(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, `CREATE (:Doc {name: 'east', embedding: [1.0, 0.0]}),
		(:Doc {name: 'north-east', embedding: [0.7, 0.7]}),
		(:Doc {name: 'north', embedding: [0.0, 1.0]}),
		(:Doc {name: 'flat', embedding: [1.0, 0.0, 0.0]})`, nil)

	res := run(t, exec, "CALL vector.knn('Doc', 'embedding', $q, 2) YIELD node, score RETURN node.name, score",
		map[string]any{"q": []any{1.0, 0.1}})
	require.Len(t, res.Rows, 2)
	assert.Equal(t, strs("east", "north-east"), column(res, 0))
	top, ok := value.AsFloat(res.Rows[0][1])
	require.True(t, ok)
	assert.InDelta(t, 0.995, top, 0.01)

	res = run(t, exec, "CALL vector.knn('Doc', 'embedding', [0.0, 1.0], 5) YIELD node AS d WHERE d.name <> 'north' RETURN d.name", nil)
	assert.Equal(t, strs("north-east", "east"), column(res, 0))

	res = run(t, exec, "CALL vector.knn('Doc', 'embedding', [1.0, 0.0]) YIELD node RETURN count(node)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(3)}}, res.Rows, "k defaults when omitted")

	_, err := exec.Execute(context.Background(), "CALL vector.knn('Doc', 'embedding', [1.0], 0) YIELD node RETURN node", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = exec.Execute(context.Background(), "CALL vector.knn('Doc', 'embedding', 'x', 1) YIELD node RETURN node", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestExecuteVectorSearchMetric(t *testing.T) {
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	opts := DefaultOptions()
	opts.VectorMetric = search.Euclidean
	exec := NewExecutor(engine, opts)

	run(t, exec, `CREATE (:P {name: 'near', embedding: [1.0, 1.0]}),
		(:P {name: 'far', embedding: [5.0, 5.0]}),
		(:P {name: 'east', embedding: [4.0, 0.0]})`, nil)

	res := run(t, exec, "CALL vector.knn('P', 'embedding', [4.0, 4.0], 2) YIELD node RETURN node.name", nil)
	assert.Equal(t, strs("far", "east"), column(res, 0))
}

func TestExecutorRebind(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item)", nil)

	other := storage.NewMemoryEngine()
	defer other.Close()
	exec.Rebind(other)
	res := run(t, exec, "MATCH (n:Item) RETURN count(n)", nil)
	assert.Equal(t, [][]value.Value{{value.Int(0)}}, res.Rows)
	assert.Equal(t, 2, exec.PlanCache().Len(), "rebinding keeps compiled plans")
}
