package cypher

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// QueryStats counts the writes of one statement.
type QueryStats struct {
	NodesCreated         int `json:"nodes_created"`
	NodesDeleted         int `json:"nodes_deleted"`
	RelationshipsCreated int `json:"relationships_created"`
	RelationshipsDeleted int `json:"relationships_deleted"`
	PropertiesSet        int `json:"properties_set"`
	LabelsAdded          int `json:"labels_added"`
	LabelsRemoved        int `json:"labels_removed"`
}

// ContainsUpdates reports whether any write happened.
func (s QueryStats) ContainsUpdates() bool {
	return s != QueryStats{}
}

func (s *QueryStats) add(o QueryStats) {
	s.NodesCreated += o.NodesCreated
	s.NodesDeleted += o.NodesDeleted
	s.RelationshipsCreated += o.RelationshipsCreated
	s.RelationshipsDeleted += o.RelationshipsDeleted
	s.PropertiesSet += o.PropertiesSet
	s.LabelsAdded += o.LabelsAdded
	s.LabelsRemoved += o.LabelsRemoved
}

// CREATE

func (x *execution) create(rows []*BindingContext, c *CreateClause) ([]*BindingContext, error) {
	out := make([]*BindingContext, 0, len(rows))
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		r := row.Clone()
		for _, p := range c.Patterns {
			if err := x.createPattern(r, p); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// createPattern creates every unbound node and every relationship of p,
// binding new variables into row.
func (x *execution) createPattern(row *BindingContext, p *Pattern) error {
	ids := make([]storage.NodeID, len(p.Nodes))
	for i, np := range p.Nodes {
		if isBound(row, np) {
			if len(np.Labels) > 0 || np.Properties != nil {
				return fmt.Errorf("%w: variable %s is already declared and cannot be created with labels or properties", ErrSyntax, np.Variable)
			}
			b, _ := row.Lookup(np.Variable)
			if b.Kind != BoundNode || len(b.IDs) != 1 {
				return fmt.Errorf("%w: %s does not refer to a single node", ErrTypeMismatch, np.Variable)
			}
			ids[i] = storage.NodeID(b.IDs[0])
			continue
		}
		props, err := x.evaluator(row).patternProperties(np.Properties)
		if err != nil {
			return err
		}
		id, err := x.state.CreateNode(np.Labels, props)
		if err != nil {
			return err
		}
		x.stats.NodesCreated++
		x.stats.LabelsAdded += len(np.Labels)
		x.stats.PropertiesSet += countNonNull(props)
		if np.Variable != "" {
			row.BindNode(np.Variable, id)
		}
		ids[i] = id
	}

	for i, rp := range p.Rels {
		if len(rp.Types) != 1 {
			return fmt.Errorf("%w: a created relationship needs exactly one type", ErrSyntax)
		}
		if rp.VarLength {
			return fmt.Errorf("%w: variable-length relationships cannot be created", ErrSyntax)
		}
		if rp.Variable != "" && row.Has(rp.Variable) {
			return fmt.Errorf("%w: variable %s is already declared", ErrSyntax, rp.Variable)
		}
		start, end := ids[i], ids[i+1]
		switch rp.Direction {
		case DirIncoming:
			start, end = end, start
		case DirBoth:
			return fmt.Errorf("%w: a created relationship must have a direction", ErrSyntax)
		}
		props, err := x.evaluator(row).patternProperties(rp.Properties)
		if err != nil {
			return err
		}
		eid, err := x.state.CreateEdge(rp.Types[0], start, end, props)
		if err != nil {
			return err
		}
		x.stats.RelationshipsCreated++
		x.stats.PropertiesSet += countNonNull(props)
		if rp.Variable != "" {
			row.BindRelationships(rp.Variable, eid)
		}
	}
	return nil
}

func countNonNull(props map[string]value.Value) int {
	n := 0
	for _, v := range props {
		if !value.IsNull(v) {
			n++
		}
	}
	return n
}

// MERGE

func (x *execution) merge(rows []*BindingContext, c *MergeClause) ([]*BindingContext, error) {
	var out []*BindingContext
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		var found []*BindingContext
		used := make(map[storage.EdgeID]struct{})
		err := x.matchPattern(row, c.Pattern, used, func(r *BindingContext) error {
			found = append(found, r)
			return x.checkpoint()
		})
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			for _, r := range found {
				if err := x.applySetItems(r, c.OnMatch); err != nil {
					return nil, err
				}
			}
			out = append(out, found...)
			continue
		}
		r := row.Clone()
		if err := x.createPattern(r, c.Pattern); err != nil {
			return nil, err
		}
		if err := x.applySetItems(r, c.OnCreate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SET

func (x *execution) set(rows []*BindingContext, c *SetClause) error {
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return err
		}
		if err := x.applySetItems(row, c.Items); err != nil {
			return err
		}
	}
	return nil
}

// applySetItems applies assignments to one row. The right-hand side is
// evaluated once per bound element against that element's current
// effective properties, so earlier writes are visible to later ones.
func (x *execution) applySetItems(row *BindingContext, items []*SetItem) error {
	for _, item := range items {
		b, err := row.Lookup(item.Variable)
		if err != nil {
			return err
		}
		if b.Kind == BoundScalar {
			return fmt.Errorf("%w: cannot SET on %s, it is not a node or relationship", ErrTypeMismatch, item.Variable)
		}
		ids := slices.Clone(b.IDs)
		for _, id := range ids {
			if b.Kind == BoundNode {
				err = x.setNode(row, item, storage.NodeID(id))
			} else {
				err = x.setEdge(row, item, storage.EdgeID(id))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *execution) setNode(row *BindingContext, item *SetItem, id storage.NodeID) error {
	if item.Kind == SetLabels {
		for _, l := range item.Labels {
			added, err := x.state.AddLabel(id, l)
			if err != nil {
				return err
			}
			if added {
				x.stats.LabelsAdded++
			}
		}
		return nil
	}
	view, err := x.state.View(id)
	if err != nil {
		return err
	}
	switch item.Kind {
	case SetProperty:
		v, err := EvaluateAssignment(item.Value, row, item.Variable, view, x.params)
		if err != nil {
			return err
		}
		if err := x.state.WriteProperty(id, item.Key, v); err != nil {
			return err
		}
		x.stats.PropertiesSet++
	case SetMerge:
		entries, err := x.assignmentMap(row, item, view)
		if err != nil {
			return err
		}
		for _, k := range sortedKeys(entries) {
			if err := x.state.WriteProperty(id, k, entries[k]); err != nil {
				return err
			}
			x.stats.PropertiesSet++
		}
	case SetReplace:
		entries, err := x.assignmentMap(row, item, view)
		if err != nil {
			return err
		}
		if err := x.state.ReplaceProperties(id, entries); err != nil {
			return err
		}
		x.stats.PropertiesSet += len(entries) + len(view.Keys())
	}
	return nil
}

func (x *execution) setEdge(row *BindingContext, item *SetItem, id storage.EdgeID) error {
	if item.Kind == SetLabels {
		return fmt.Errorf("%w: relationships have no labels", ErrTypeMismatch)
	}
	view, err := x.state.EdgeView(id)
	if err != nil {
		return err
	}
	switch item.Kind {
	case SetProperty:
		v, err := EvaluateAssignment(item.Value, row, item.Variable, view, x.params)
		if err != nil {
			return err
		}
		if err := x.state.WriteEdgeProperty(id, item.Key, v); err != nil {
			return err
		}
		x.stats.PropertiesSet++
	case SetMerge, SetReplace:
		entries, err := x.assignmentMap(row, item, view)
		if err != nil {
			return err
		}
		if item.Kind == SetReplace {
			if err := x.state.ReplaceEdgeProperties(id, entries); err != nil {
				return err
			}
			x.stats.PropertiesSet += len(entries) + len(view.Keys())
			return nil
		}
		for _, k := range sortedKeys(entries) {
			if err := x.state.WriteEdgeProperty(id, k, entries[k]); err != nil {
				return err
			}
			x.stats.PropertiesSet++
		}
	}
	return nil
}

// assignmentMap evaluates the map of a += or = assignment. Map literal
// values go through the assignment evaluator one key at a time.
func (x *execution) assignmentMap(row *BindingContext, item *SetItem, view PropertyView) (map[string]value.Value, error) {
	if m, ok := item.Value.(*MapLiteral); ok {
		out := make(map[string]value.Value, len(m.Keys))
		for i, k := range m.Keys {
			v, err := EvaluateAssignment(m.Values[i], row, item.Variable, view, x.params)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	v, err := EvaluateAssignment(item.Value, row, item.Variable, view, x.params)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case value.Map:
		return t, nil
	case value.Null:
		return map[string]value.Value{}, nil
	}
	return nil, fmt.Errorf("%w: SET %s expects a Map, got %s", ErrTypeMismatch, item.Variable, value.TypeName(v))
}

func sortedKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// REMOVE

func (x *execution) remove(rows []*BindingContext, c *RemoveClause) error {
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return err
		}
		for _, item := range c.Items {
			b, err := row.Lookup(item.Variable)
			if err != nil {
				return err
			}
			for _, id := range b.IDs {
				if err := x.removeItem(b.Kind, id, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (x *execution) removeItem(kind BindingKind, id uint64, item *RemoveItem) error {
	switch kind {
	case BoundNode:
		nid := storage.NodeID(id)
		for _, l := range item.Labels {
			removed, err := x.state.RemoveLabel(nid, l)
			if err != nil {
				return err
			}
			if removed {
				x.stats.LabelsRemoved++
			}
		}
		if item.Key == "" {
			return nil
		}
		cur, err := x.state.ReadProperty(nid, item.Key)
		if err != nil {
			return err
		}
		if value.IsNull(cur) {
			return nil
		}
		x.stats.PropertiesSet++
		return x.state.RemoveProperty(nid, item.Key)
	case BoundRelationship:
		if len(item.Labels) > 0 {
			return fmt.Errorf("%w: relationships have no labels", ErrTypeMismatch)
		}
		eid := storage.EdgeID(id)
		e, err := x.state.Edge(eid)
		if err != nil {
			return err
		}
		if _, ok := e.Properties[item.Key]; !ok {
			return nil
		}
		x.stats.PropertiesSet++
		return x.state.WriteEdgeProperty(eid, item.Key, value.Null{})
	}
	return fmt.Errorf("%w: cannot REMOVE from %s", ErrTypeMismatch, item.Variable)
}

// DELETE

func (x *execution) delete(rows []*BindingContext, c *DeleteClause) error {
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return err
		}
		for _, target := range c.Targets {
			b, err := row.Lookup(target)
			if err != nil {
				return err
			}
			switch b.Kind {
			case BoundNode:
				for _, id := range b.NodeIDs() {
					edges, deleted, err := x.state.DeleteNode(id, c.Detach)
					if err != nil {
						return err
					}
					x.stats.RelationshipsDeleted += edges
					if deleted {
						x.stats.NodesDeleted++
					}
				}
			case BoundRelationship:
				for _, id := range b.EdgeIDs() {
					deleted, err := x.state.DeleteEdge(id)
					if err != nil {
						return err
					}
					if deleted {
						x.stats.RelationshipsDeleted++
					}
				}
			default:
				if !b.IsNull() {
					return fmt.Errorf("%w: cannot DELETE %s, it is not a node or relationship", ErrTypeMismatch, target)
				}
			}
		}
	}
	return nil
}

// RETURN

// projected is one output row with the context used to evaluate ORDER BY.
type projected struct {
	values []value.Value
	ctx    *BindingContext
	aggs   map[*FunctionCall]value.Value
}

func (x *execution) project(rows []*BindingContext, r *ReturnClause, columns []string) ([][]value.Value, error) {
	items := r.Items
	if r.Star {
		items = make([]*ReturnItem, len(columns))
		for i, c := range columns {
			items[i] = &ReturnItem{Expr: &Variable{Name: c}, Alias: c}
		}
	}

	var aggCalls []*FunctionCall
	for _, it := range items {
		aggCalls = collectAggregates(it.Expr, aggCalls)
	}
	var out []*projected
	var err error
	if len(aggCalls) > 0 {
		for _, s := range r.OrderBy {
			aggCalls = collectAggregates(s.Expr, aggCalls)
		}
		out, err = x.aggregate(rows, items, aggCalls)
	} else {
		out, err = x.projectRows(rows, items)
	}
	if err != nil {
		return nil, err
	}

	if r.Distinct {
		seen := make(map[string]struct{}, len(out))
		kept := out[:0]
		for _, p := range out {
			key := valueKey(value.List(p.values))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, p)
		}
		out = kept
	}

	if len(r.OrderBy) > 0 {
		if err := x.sort(out, items, r.OrderBy); err != nil {
			return nil, err
		}
	}

	ev := x.evaluator(NewBindingContext())
	if r.Skip != nil {
		n, err := ev.nonNegativeInt(r.Skip, "SKIP")
		if err != nil {
			return nil, err
		}
		out = out[min(n, len(out)):]
	}
	if r.Limit != nil {
		n, err := ev.nonNegativeInt(r.Limit, "LIMIT")
		if err != nil {
			return nil, err
		}
		out = out[:min(n, len(out))]
	}

	result := make([][]value.Value, len(out))
	for i, p := range out {
		result[i] = p.values
	}
	return result, nil
}

func (x *execution) projectRows(rows []*BindingContext, items []*ReturnItem) ([]*projected, error) {
	out := make([]*projected, 0, len(rows))
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		ev := x.evaluator(row)
		vals := make([]value.Value, len(items))
		for i, it := range items {
			v, err := ev.eval(it.Expr)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out = append(out, &projected{values: vals, ctx: row})
	}
	return out, nil
}

type group struct {
	first  *BindingContext
	states []*aggregateState
}

// aggregate groups rows on the non-aggregate items and folds every
// aggregate call per group.
func (x *execution) aggregate(rows []*BindingContext, items []*ReturnItem, calls []*FunctionCall) ([]*projected, error) {
	var keyItems []int
	for i, it := range items {
		if !containsAggregate(it.Expr) {
			keyItems = append(keyItems, i)
		}
	}

	groups := make(map[string]*group)
	var order []string
	for _, row := range rows {
		if err := x.checkpoint(); err != nil {
			return nil, err
		}
		ev := x.evaluator(row)
		keyVals := make(value.List, len(keyItems))
		for i, idx := range keyItems {
			v, err := ev.eval(items[idx].Expr)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
		}
		key := valueKey(keyVals)
		g, ok := groups[key]
		if !ok {
			g = &group{first: row}
			for _, fc := range calls {
				s, err := newAggregateState(fc)
				if err != nil {
					return nil, err
				}
				g.states = append(g.states, s)
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, s := range g.states {
			if err := s.feed(ev); err != nil {
				return nil, err
			}
		}
	}

	// Aggregating zero rows without grouping keys still yields one row.
	if len(rows) == 0 && len(keyItems) == 0 {
		g := &group{first: NewBindingContext()}
		for _, fc := range calls {
			s, err := newAggregateState(fc)
			if err != nil {
				return nil, err
			}
			g.states = append(g.states, s)
		}
		groups[""] = g
		order = append(order, "")
	}

	out := make([]*projected, 0, len(order))
	for _, key := range order {
		g := groups[key]
		aggs := make(map[*FunctionCall]value.Value, len(g.states))
		for _, s := range g.states {
			aggs[s.fc] = s.agg.result()
		}
		ev := x.evaluator(g.first)
		ev.aggs = aggs
		vals := make([]value.Value, len(items))
		for i, it := range items {
			v, err := ev.eval(it.Expr)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out = append(out, &projected{values: vals, ctx: g.first, aggs: aggs})
	}
	return out, nil
}

// sort orders rows by the ORDER BY items. Sort expressions see the source
// row plus every projected column under its alias.
func (x *execution) sort(rows []*projected, items []*ReturnItem, by []*SortItem) error {
	keys := make([][]value.Value, len(rows))
	for i, p := range rows {
		ctx := p.ctx.Clone()
		for j, it := range items {
			if _, isVar := it.Expr.(*Variable); isVar && it.Alias == it.Expr.(*Variable).Name {
				continue
			}
			ctx.BindScalar(it.Alias, p.values[j])
		}
		ev := x.evaluator(ctx)
		ev.aggs = p.aggs
		keys[i] = make([]value.Value, len(by))
		for j, s := range by {
			v, err := x.sortKey(ev, s.Expr, items, p)
			if err != nil {
				return err
			}
			keys[i][j] = v
		}
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for j, s := range by {
			c := value.Order(keys[idx[a]][j], keys[idx[b]][j])
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	sorted := make([]*projected, len(rows))
	for i, k := range idx {
		sorted[i] = rows[k]
	}
	copy(rows, sorted)
	return nil
}

// sortKey reuses a projected value when the sort expression is textually a
// RETURN item, which keeps ORDER BY on aggregates and deleted elements
// consistent with the output.
func (x *execution) sortKey(ev *rowEvaluator, expr Expr, items []*ReturnItem, p *projected) (value.Value, error) {
	for j, it := range items {
		if sameExpr(it.Expr, expr) {
			return p.values[j], nil
		}
	}
	return ev.eval(expr)
}

func sameExpr(a, b Expr) bool {
	return a == b || exprString(a) == exprString(b)
}

// exprString renders an expression canonically for structural comparison.
func exprString(e Expr) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

func writeExpr(sb *strings.Builder, e Expr) {
	switch x := e.(type) {
	case *Literal:
		sb.WriteString(valueKey(x.Value))
	case *Parameter:
		sb.WriteString("$" + x.Name)
	case *Variable:
		sb.WriteString(x.Name)
	case *PropertyAccess:
		writeExpr(sb, x.Subject)
		sb.WriteString("." + x.Key)
	case *BinaryOp:
		sb.WriteString("(")
		writeExpr(sb, x.Left)
		sb.WriteString(" " + x.Op.String() + " ")
		writeExpr(sb, x.Right)
		sb.WriteString(")")
	case *UnaryOp:
		fmt.Fprintf(sb, "u%d(", x.Op)
		writeExpr(sb, x.Operand)
		sb.WriteString(")")
	case *FunctionCall:
		sb.WriteString(x.Name + "(")
		if x.Distinct {
			sb.WriteString("DISTINCT ")
		}
		if x.Star {
			sb.WriteString("*")
		}
		for i, a := range x.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, a)
		}
		sb.WriteString(")")
	case *ListLiteral:
		sb.WriteString("[")
		for i, it := range x.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, it)
		}
		sb.WriteString("]")
	case *MapLiteral:
		sb.WriteString("{")
		for i, k := range x.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + ": ")
			writeExpr(sb, x.Values[i])
		}
		sb.WriteString("}")
	case *IsNull:
		writeExpr(sb, x.Operand)
		if x.Negated {
			sb.WriteString(" IS NOT NULL")
		} else {
			sb.WriteString(" IS NULL")
		}
	}
}
