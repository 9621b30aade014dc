package cypher

import (
	"fmt"
	"math"

	"github.com/orneryd/nexus/pkg/value"
)

var aggregateNames = map[string]bool{
	"count":   true,
	"sum":     true,
	"avg":     true,
	"min":     true,
	"max":     true,
	"collect": true,
}

func isAggregate(fc *FunctionCall) bool { return aggregateNames[fc.Name] }

// collectAggregates appends every aggregate call in expr to out.
func collectAggregates(expr Expr, out []*FunctionCall) []*FunctionCall {
	switch e := expr.(type) {
	case *FunctionCall:
		if isAggregate(e) {
			return append(out, e)
		}
		for _, a := range e.Args {
			out = collectAggregates(a, out)
		}
	case *BinaryOp:
		out = collectAggregates(e.Left, out)
		out = collectAggregates(e.Right, out)
	case *UnaryOp:
		out = collectAggregates(e.Operand, out)
	case *PropertyAccess:
		out = collectAggregates(e.Subject, out)
	case *IsNull:
		out = collectAggregates(e.Operand, out)
	case *ListLiteral:
		for _, item := range e.Items {
			out = collectAggregates(item, out)
		}
	case *MapLiteral:
		for _, v := range e.Values {
			out = collectAggregates(v, out)
		}
	}
	return out
}

func containsAggregate(expr Expr) bool {
	return len(collectAggregates(expr, nil)) > 0
}

// valueKey is a hashable identity for DISTINCT.
func valueKey(v value.Value) string {
	return value.TypeName(v) + ":" + value.List{v}.String()
}

type aggregator interface {
	add(v value.Value) error
	result() value.Value
}

// aggregateState wraps an aggregator with DISTINCT and null filtering.
type aggregateState struct {
	fc   *FunctionCall
	agg  aggregator
	seen map[string]struct{}
}

func newAggregateState(fc *FunctionCall) (*aggregateState, error) {
	if !fc.Star && len(fc.Args) != 1 {
		return nil, fmt.Errorf("%w: %s() takes exactly one argument", ErrSyntax, fc.Name)
	}
	s := &aggregateState{fc: fc}
	if fc.Distinct {
		s.seen = make(map[string]struct{})
	}
	switch fc.Name {
	case "count":
		s.agg = &countAgg{}
	case "sum":
		s.agg = &sumAgg{}
	case "avg":
		s.agg = &avgAgg{}
	case "min":
		s.agg = &extremeAgg{want: -1}
	case "max":
		s.agg = &extremeAgg{want: 1}
	case "collect":
		s.agg = &collectAgg{list: value.List{}}
	default:
		return nil, fmt.Errorf("%w: unknown aggregate %s()", ErrUnsupportedExpression, fc.Name)
	}
	return s, nil
}

// feed evaluates the argument against one row.
func (s *aggregateState) feed(e *rowEvaluator) error {
	if s.fc.Star {
		return s.agg.add(value.Bool(true))
	}
	v, err := e.eval(s.fc.Args[0])
	if err != nil {
		return err
	}
	if value.IsNull(v) {
		return nil
	}
	if s.seen != nil {
		key := valueKey(v)
		if _, dup := s.seen[key]; dup {
			return nil
		}
		s.seen[key] = struct{}{}
	}
	return s.agg.add(v)
}

type countAgg struct{ n int64 }

func (a *countAgg) add(value.Value) error { a.n++; return nil }
func (a *countAgg) result() value.Value   { return value.Int(a.n) }

type sumAgg struct {
	i       int64
	f       float64
	isFloat bool
}

func (a *sumAgg) add(v value.Value) error {
	switch t := v.(type) {
	case value.Int:
		if a.isFloat {
			a.f += float64(t)
			return nil
		}
		s := a.i + int64(t)
		if (t > 0 && s < a.i) || (t < 0 && s > a.i) {
			return fmt.Errorf("%w: sum()", value.ErrIntegerOverflow)
		}
		a.i = s
	case value.Float:
		if !a.isFloat {
			a.isFloat = true
			a.f = float64(a.i)
		}
		a.f += float64(t)
	default:
		return fmt.Errorf("%w: sum() expects numbers, got %s", ErrTypeMismatch, value.TypeName(v))
	}
	return nil
}

func (a *sumAgg) result() value.Value {
	if a.isFloat {
		return value.Float(a.f)
	}
	return value.Int(a.i)
}

type avgAgg struct {
	sum float64
	n   int
}

func (a *avgAgg) add(v value.Value) error {
	f, ok := value.AsFloat(v)
	if !ok {
		return fmt.Errorf("%w: avg() expects numbers, got %s", ErrTypeMismatch, value.TypeName(v))
	}
	a.sum += f
	a.n++
	return nil
}

func (a *avgAgg) result() value.Value {
	if a.n == 0 {
		return value.Null{}
	}
	avg := a.sum / float64(a.n)
	if math.IsInf(avg, 0) || math.IsNaN(avg) {
		return value.Null{}
	}
	return value.Float(avg)
}

// extremeAgg implements min (want -1) and max (want 1).
type extremeAgg struct {
	want int
	best value.Value
}

func (a *extremeAgg) add(v value.Value) error {
	if a.best == nil || value.Order(v, a.best)*a.want > 0 {
		a.best = v
	}
	return nil
}

func (a *extremeAgg) result() value.Value {
	if a.best == nil {
		return value.Null{}
	}
	return a.best
}

type collectAgg struct{ list value.List }

func (a *collectAgg) add(v value.Value) error { a.list = append(a.list, v); return nil }
func (a *collectAgg) result() value.Value   { return a.list }
