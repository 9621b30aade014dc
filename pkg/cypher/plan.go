package cypher

import (
	"slices"
)

// Plan is the compiled form of one normalized query. Plans are immutable
// and shared read-only by every execution of the same query shape.
type Plan struct {
	// Text is the normalized query the plan was compiled from.
	Text      string
	Statement *Statement
	// Columns lists the RETURN column names; empty for write-only queries
	// and transaction commands.
	Columns    []string
	Writes     bool
	Aggregates bool
	SizeBytes  int64
}

// Rough per-structure costs used for the plan cache memory bound.
const (
	planBaseSize   = 500
	clauseSize     = 200
	expressionSize = 100
)

// Compile parses normalized query text into a Plan. It has the signature
// of cache.CompileFunc so the plan cache can call it directly.
func Compile(normalized string) (*Plan, int64, error) {
	stmt, err := Parse(normalized)
	if err != nil {
		return nil, 0, err
	}
	p := &Plan{Text: normalized, Statement: stmt}
	size := int64(planBaseSize + len(normalized))
	if stmt.Query != nil {
		var bound []string
		for _, c := range stmt.Query.Clauses {
			size += clauseSize + expressionSize*int64(clauseExpressions(c))
			switch cl := c.(type) {
			case *MatchClause:
				bound = patternVariables(bound, cl.Patterns...)
			case *VectorSearchClause:
				bound = appendUnique(bound, cl.NodeVar, cl.ScoreVar)
			case *CreateClause:
				p.Writes = true
				bound = patternVariables(bound, cl.Patterns...)
			case *MergeClause:
				p.Writes = true
				bound = patternVariables(bound, cl.Pattern)
			case *SetClause, *RemoveClause, *DeleteClause:
				p.Writes = true
			case *ReturnClause:
				p.Columns = returnColumns(cl, bound)
				for _, item := range cl.Items {
					if containsAggregate(item.Expr) {
						p.Aggregates = true
					}
				}
			}
		}
	}
	p.SizeBytes = size
	return p, size, nil
}

// returnColumns names the RETURN columns. RETURN * expands to every named
// variable in sorted order.
func returnColumns(r *ReturnClause, bound []string) []string {
	if r.Star {
		cols := slices.Clone(bound)
		slices.Sort(cols)
		return cols
	}
	cols := make([]string, len(r.Items))
	for i, item := range r.Items {
		cols[i] = item.Alias
	}
	return cols
}

func appendUnique(list []string, names ...string) []string {
	for _, n := range names {
		if n != "" && !slices.Contains(list, n) {
			list = append(list, n)
		}
	}
	return list
}

func patternVariables(list []string, patterns ...*Pattern) []string {
	for _, p := range patterns {
		for _, n := range p.Nodes {
			list = appendUnique(list, n.Variable)
		}
		for _, r := range p.Rels {
			list = appendUnique(list, r.Variable)
		}
	}
	return list
}

func clauseExpressions(c Clause) int {
	n := 0
	count := func(exprs ...Expr) {
		for _, e := range exprs {
			n += exprNodes(e)
		}
	}
	countPatterns := func(patterns ...*Pattern) {
		for _, p := range patterns {
			for _, np := range p.Nodes {
				count(np.Properties)
				n++
			}
			for _, rp := range p.Rels {
				count(rp.Properties)
				n++
			}
		}
	}
	countSet := func(items []*SetItem) {
		for _, it := range items {
			count(it.Value)
			n++
		}
	}
	switch cl := c.(type) {
	case *MatchClause:
		countPatterns(cl.Patterns...)
		count(cl.Where)
	case *VectorSearchClause:
		count(cl.Label, cl.Property, cl.Vector, cl.K, cl.Where)
	case *CreateClause:
		countPatterns(cl.Patterns...)
	case *MergeClause:
		countPatterns(cl.Pattern)
		countSet(cl.OnCreate)
		countSet(cl.OnMatch)
	case *SetClause:
		countSet(cl.Items)
	case *RemoveClause:
		n += len(cl.Items)
	case *DeleteClause:
		n += len(cl.Targets)
	case *ReturnClause:
		for _, it := range cl.Items {
			count(it.Expr)
		}
		for _, it := range cl.OrderBy {
			count(it.Expr)
		}
		count(cl.Skip, cl.Limit)
	}
	return n
}

func exprNodes(expr Expr) int {
	switch e := expr.(type) {
	case nil:
		return 0
	case *BinaryOp:
		return 1 + exprNodes(e.Left) + exprNodes(e.Right)
	case *UnaryOp:
		return 1 + exprNodes(e.Operand)
	case *PropertyAccess:
		return 1 + exprNodes(e.Subject)
	case *IsNull:
		return 1 + exprNodes(e.Operand)
	case *FunctionCall:
		n := 1
		for _, a := range e.Args {
			n += exprNodes(a)
		}
		return n
	case *ListLiteral:
		n := 1
		for _, it := range e.Items {
			n += exprNodes(it)
		}
		return n
	case *MapLiteral:
		n := 1
		for _, v := range e.Values {
			n += exprNodes(v)
		}
		return n
	}
	return 1
}
