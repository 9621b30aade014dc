package cypher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/orneryd/nexus/pkg/search"
	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// execution carries the per-statement state shared by clause processors.
// It is owned by one goroutine.
type execution struct {
	ctx      context.Context
	state    *MutationState
	params   map[string]value.Value
	knn      search.Index
	defaultK int
	stats    QueryStats
}

// checkpoint is the cooperative cancellation point between candidates and
// rows.
func (x *execution) checkpoint() error {
	err := x.ctx.Err()
	if err == nil {
		if deadline, ok := x.ctx.Deadline(); ok && !time.Now().Before(deadline) {
			err = context.DeadlineExceeded
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	return nil
}

func (x *execution) evaluator(row *BindingContext) *rowEvaluator {
	return &rowEvaluator{row: row, state: x.state, params: x.params}
}

func (x *execution) where(row *BindingContext, pred Expr) (bool, error) {
	if pred == nil {
		return true, nil
	}
	v, err := x.evaluator(row).eval(pred)
	if err != nil {
		return false, err
	}
	return value.Truthy(v), nil
}

// match expands every input row by the clause patterns.
func (x *execution) match(rows []*BindingContext, c *MatchClause) ([]*BindingContext, error) {
	var out []*BindingContext
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		matched := false
		used := make(map[storage.EdgeID]struct{})
		err := x.matchPatterns(row, c.Patterns, 0, used, func(r *BindingContext) error {
			keep, err := x.where(r, c.Where)
			if err != nil || !keep {
				return err
			}
			matched = true
			out = append(out, r)
			return x.checkpoint()
		})
		if err != nil {
			return nil, err
		}
		if !matched && c.Optional {
			out = append(out, bindMissing(row, c.Patterns))
		}
	}
	return out, nil
}

// bindMissing binds every new pattern variable of an unmatched OPTIONAL
// MATCH to an empty set.
func bindMissing(row *BindingContext, patterns []*Pattern) *BindingContext {
	r := row.Clone()
	for _, p := range patterns {
		for _, n := range p.Nodes {
			if n.Variable != "" && !r.Has(n.Variable) {
				r.BindNode(n.Variable)
			}
		}
		for _, rel := range p.Rels {
			if rel.Variable != "" && !r.Has(rel.Variable) {
				r.BindRelationships(rel.Variable)
			}
		}
	}
	return r
}

func (x *execution) matchPatterns(row *BindingContext, patterns []*Pattern, i int, used map[storage.EdgeID]struct{}, emit func(*BindingContext) error) error {
	if i == len(patterns) {
		return emit(row)
	}
	return x.matchPattern(row, patterns[i], used, func(r *BindingContext) error {
		return x.matchPatterns(r, patterns, i+1, used, emit)
	})
}

func (x *execution) matchPattern(row *BindingContext, pat *Pattern, used map[storage.EdgeID]struct{}, emit func(*BindingContext) error) error {
	pat = orient(row, pat)
	start := pat.Nodes[0]
	return x.candidates(row, start, func(n *storage.Node) error {
		r := row
		if start.Variable != "" && !row.Has(start.Variable) {
			r = row.Clone()
			r.BindNode(start.Variable, n.ID)
		}
		return x.expand(r, pat, 0, n.ID, used, emit)
	})
}

func isBound(row *BindingContext, np *NodePattern) bool {
	return np.Variable != "" && row.Has(np.Variable)
}

// orient reverses a pattern whose far end is bound and whose start is not,
// so matching starts from the known node instead of a scan.
func orient(row *BindingContext, pat *Pattern) *Pattern {
	last := pat.Nodes[len(pat.Nodes)-1]
	if len(pat.Rels) == 0 || isBound(row, pat.Nodes[0]) || !isBound(row, last) {
		return pat
	}
	rev := &Pattern{
		Nodes: slices.Clone(pat.Nodes),
		Rels:  make([]*RelPattern, len(pat.Rels)),
	}
	slices.Reverse(rev.Nodes)
	for i, r := range pat.Rels {
		flipped := *r
		switch r.Direction {
		case DirOutgoing:
			flipped.Direction = DirIncoming
		case DirIncoming:
			flipped.Direction = DirOutgoing
		}
		rev.Rels[len(pat.Rels)-1-i] = &flipped
	}
	return rev
}

// candidates calls fn for every node that can start the pattern: the bound
// node when the variable is already bound, otherwise a label scan.
func (x *execution) candidates(row *BindingContext, np *NodePattern, fn func(*storage.Node) error) error {
	if isBound(row, np) {
		b, _ := row.Lookup(np.Variable)
		if b.Kind != BoundNode {
			return fmt.Errorf("%w: %s is a %s, not a node", ErrTypeMismatch, np.Variable, b.Kind)
		}
		for _, id := range b.NodeIDs() {
			n, ok, err := x.resolveNode(row, np, id)
			if err != nil {
				return err
			}
			if ok {
				if err := fn(n); err != nil {
					return err
				}
			}
		}
		return nil
	}

	want, err := x.evaluator(row).patternProperties(np.Properties)
	if err != nil {
		return err
	}
	label := ""
	if len(np.Labels) > 0 {
		label = np.Labels[0]
	}
	var inner error
	err = x.state.ScanByLabel(label, func(n *storage.Node) bool {
		if inner = x.checkpoint(); inner != nil {
			return false
		}
		if !hasLabels(n, np.Labels) || !matchesProperties(n.Properties, want) {
			return true
		}
		inner = fn(n)
		return inner == nil
	})
	if inner != nil {
		return inner
	}
	return err
}

// resolveNode loads node id and checks it against np, including an
// existing binding of its variable.
func (x *execution) resolveNode(row *BindingContext, np *NodePattern, id storage.NodeID) (*storage.Node, bool, error) {
	n, err := x.state.Node(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if isBound(row, np) {
		b, _ := row.Lookup(np.Variable)
		if b.Kind != BoundNode || !slices.Contains(b.IDs, uint64(id)) {
			return nil, false, nil
		}
	}
	if !hasLabels(n, np.Labels) {
		return nil, false, nil
	}
	want, err := x.evaluator(row).patternProperties(np.Properties)
	if err != nil {
		return nil, false, err
	}
	return n, matchesProperties(n.Properties, want), nil
}

func typeMatches(e *storage.Edge, types []string) bool {
	return len(types) == 0 || slices.Contains(types, e.Type)
}

func otherEnd(e *storage.Edge, from storage.NodeID, dir Direction) storage.NodeID {
	switch dir {
	case DirOutgoing:
		return e.EndNode
	case DirIncoming:
		return e.StartNode
	}
	return e.Other(from)
}

// expand follows relationship i of pat from node cur.
func (x *execution) expand(row *BindingContext, pat *Pattern, i int, cur storage.NodeID, used map[storage.EdgeID]struct{}, emit func(*BindingContext) error) error {
	if i == len(pat.Rels) {
		return emit(row)
	}
	rp := pat.Rels[i]
	want, err := x.evaluator(row).patternProperties(rp.Properties)
	if err != nil {
		return err
	}
	if rp.VarLength {
		return x.expandVariable(row, pat, i, cur, used, want, emit)
	}

	next := pat.Nodes[i+1]
	edges, err := x.state.Relationships(cur, rp.Direction)
	if err != nil {
		return err
	}
	var bound *Binding
	if rp.Variable != "" && row.Has(rp.Variable) {
		bound, _ = row.Lookup(rp.Variable)
	}
	for _, e := range edges {
		if _, dup := used[e.ID]; dup {
			continue
		}
		if !typeMatches(e, rp.Types) || !matchesProperties(e.Properties, want) {
			continue
		}
		if bound != nil && (bound.Kind != BoundRelationship || !slices.Contains(bound.IDs, uint64(e.ID))) {
			continue
		}
		other := otherEnd(e, cur, rp.Direction)
		if _, ok, err := x.resolveNode(row, next, other); err != nil {
			return err
		} else if !ok {
			continue
		}
		r := row.Clone()
		if rp.Variable != "" && bound == nil {
			r.BindRelationships(rp.Variable, e.ID)
		}
		if next.Variable != "" && !r.Has(next.Variable) {
			r.BindNode(next.Variable, other)
		}
		used[e.ID] = struct{}{}
		err := x.expand(r, pat, i+1, other, used, emit)
		delete(used, e.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// expandVariable walks a *min..max relationship depth first. Each
// relationship is used at most once per row.
func (x *execution) expandVariable(row *BindingContext, pat *Pattern, i int, cur storage.NodeID, used map[storage.EdgeID]struct{}, want map[string]value.Value, emit func(*BindingContext) error) error {
	rp := pat.Rels[i]
	next := pat.Nodes[i+1]
	if rp.Variable != "" && row.Has(rp.Variable) {
		return fmt.Errorf("%w: variable-length relationship %s is already bound", ErrUnsupportedExpression, rp.Variable)
	}

	var path []storage.EdgeID
	var walk func(node storage.NodeID, depth int) error
	walk = func(node storage.NodeID, depth int) error {
		if err := x.checkpoint(); err != nil {
			return err
		}
		if depth >= rp.MinHops {
			_, ok, err := x.resolveNode(row, next, node)
			if err != nil {
				return err
			}
			if ok {
				r := row.Clone()
				if rp.Variable != "" {
					r.BindPath(rp.Variable, path...)
				}
				if next.Variable != "" && !r.Has(next.Variable) {
					r.BindNode(next.Variable, node)
				}
				if err := x.expand(r, pat, i+1, node, used, emit); err != nil {
					return err
				}
			}
		}
		if depth >= rp.MaxHops {
			return nil
		}
		edges, err := x.state.Relationships(node, rp.Direction)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if _, dup := used[e.ID]; dup {
				continue
			}
			if !typeMatches(e, rp.Types) || !matchesProperties(e.Properties, want) {
				continue
			}
			used[e.ID] = struct{}{}
			path = append(path, e.ID)
			err := walk(otherEnd(e, node, rp.Direction), depth+1)
			path = path[:len(path)-1]
			delete(used, e.ID)
			if err != nil {
				return err
			}
		}
		return nil
	}
	return walk(cur, 0)
}

// vectorSearch runs CALL vector.knn(...) for every input row.
func (x *execution) vectorSearch(rows []*BindingContext, c *VectorSearchClause) ([]*BindingContext, error) {
	if x.knn == nil {
		return nil, fmt.Errorf("%w: vector search is not configured", ErrUnsupportedExpression)
	}
	var out []*BindingContext
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		ev := x.evaluator(row)
		label, err := stringArg(ev, c.Label, "label")
		if err != nil {
			return nil, err
		}
		property, err := stringArg(ev, c.Property, "property")
		if err != nil {
			return nil, err
		}
		vv, err := ev.eval(c.Vector)
		if err != nil {
			return nil, err
		}
		vec, ok := search.Vector(vv)
		if !ok {
			return nil, fmt.Errorf("%w: vector.knn expects a list of numbers, got %s", ErrTypeMismatch, value.TypeName(vv))
		}
		k := x.defaultK
		if c.K != nil {
			if k, err = ev.nonNegativeInt(c.K, "vector.knn k"); err != nil {
				return nil, err
			}
		}

		// The index sees committed state; staged deletions are dropped below.
		hits, err := x.knn.Search(label, vec, k, property)
		if err != nil {
			if errors.Is(err, search.ErrInvalidVector) || errors.Is(err, search.ErrInvalidK) {
				return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
			}
			return nil, storeErr(err)
		}
		for _, hit := range hits {
			if _, err := x.state.Node(hit.NodeID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			r := row.Clone()
			r.BindNode(c.NodeVar, hit.NodeID)
			if c.ScoreVar != "" {
				r.BindScalar(c.ScoreVar, value.Float(hit.Score))
			}
			keep, err := x.where(r, c.Where)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func stringArg(ev *rowEvaluator, expr Expr, name string) (string, error) {
	v, err := ev.eval(expr)
	if err != nil {
		return "", err
	}
	s, ok := v.(value.String)
	if !ok {
		return "", fmt.Errorf("%w: vector.knn %s must be a String, got %s", ErrTypeMismatch, name, value.TypeName(v))
	}
	return string(s), nil
}
