package cypher

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// PropertyReader exposes the effective properties of the element being
// assigned to. PropertyView is the implementation handed out by
// MutationState.
type PropertyReader interface {
	Property(key string) value.Value
}

// EvaluateAssignment evaluates the right-hand side of a SET assignment for
// one element bound to target.
//
// Only the arithmetic subset is supported: literals, parameters, lists,
// property access, the five arithmetic operators, unary minus and NOT.
// Property access on target reads props; on any other bound variable it
// yields Null, and on an unbound variable it fails with ErrUnknownVariable.
// Arithmetic type mismatches yield Null, while NOT on a non-Boolean fails
// with ErrTypeMismatch. Everything else fails with ErrUnsupportedExpression.
func EvaluateAssignment(expr Expr, ctx *BindingContext, target string, props PropertyReader, params map[string]value.Value) (value.Value, error) {
	switch e := expr.(type) {
	case *Literal:
		return e.Value, nil

	case *Parameter:
		return parameter(params, e.Name)

	case *ListLiteral:
		out := make(value.List, len(e.Items))
		for i, item := range e.Items {
			v, err := EvaluateAssignment(item, ctx, target, props, params)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *PropertyAccess:
		v, ok := e.Subject.(*Variable)
		if !ok {
			return nil, fmt.Errorf("%w: property access on a computed value in assignment", ErrUnsupportedExpression)
		}
		if v.Name == target {
			return props.Property(e.Key), nil
		}
		if !ctx.Has(v.Name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, v.Name)
		}
		// Other variables are not resolved inside a single-element
		// assignment.
		return value.Null{}, nil

	case *BinaryOp:
		apply, ok := arithmeticOps[e.Op]
		if !ok {
			return nil, fmt.Errorf("%w: operator %s in assignment", ErrUnsupportedExpression, e.Op)
		}
		left, err := EvaluateAssignment(e.Left, ctx, target, props, params)
		if err != nil {
			return nil, err
		}
		right, err := EvaluateAssignment(e.Right, ctx, target, props, params)
		if err != nil {
			return nil, err
		}
		return apply(left, right)

	case *UnaryOp:
		operand, err := EvaluateAssignment(e.Operand, ctx, target, props, params)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case UnaryMinus:
			return value.Negate(operand)
		case UnaryNot:
			return value.Not(operand)
		}
		return value.Null{}, nil
	}
	return nil, fmt.Errorf("%w: %s in assignment", ErrUnsupportedExpression, exprKind(expr))
}

var arithmeticOps = map[BinaryOperator]func(a, b value.Value) (value.Value, error){
	OpAdd:      value.Add,
	OpSubtract: value.Subtract,
	OpMultiply: value.Multiply,
	OpDivide:   value.Divide,
	OpModulo:   value.Modulo,
}

func exprKind(expr Expr) string {
	switch e := expr.(type) {
	case *Variable:
		return "variable " + e.Name
	case *FunctionCall:
		return "function " + e.Name + "()"
	case *MapLiteral:
		return "map literal"
	case *IsNull:
		return "IS NULL"
	}
	return fmt.Sprintf("%T", expr)
}

func parameter(params map[string]value.Value, name string) (value.Value, error) {
	v, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("%w: parameter $%s", ErrUnknownVariable, name)
	}
	if v == nil {
		return value.Null{}, nil
	}
	return v, nil
}

// rowEvaluator evaluates full expressions against one row for WHERE,
// RETURN, ORDER BY and pattern property maps. Element reads go through the
// statement's MutationState, so they observe staged writes.
type rowEvaluator struct {
	row    *BindingContext
	state  *MutationState
	params map[string]value.Value
	// aggs holds the finished aggregate values of the current group.
	aggs map[*FunctionCall]value.Value
}

func (e *rowEvaluator) eval(expr Expr) (value.Value, error) {
	switch x := expr.(type) {
	case *Literal:
		return x.Value, nil

	case *Parameter:
		return parameter(e.params, x.Name)

	case *Variable:
		b, err := e.row.Lookup(x.Name)
		if err != nil {
			return nil, err
		}
		return e.bindingValue(b)

	case *PropertyAccess:
		return e.property(x)

	case *ListLiteral:
		out := make(value.List, len(x.Items))
		for i, item := range x.Items {
			v, err := e.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *MapLiteral:
		out := make(value.Map, len(x.Keys))
		for i, k := range x.Keys {
			v, err := e.eval(x.Values[i])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case *IsNull:
		v, err := e.eval(x.Operand)
		if err != nil {
			return nil, err
		}
		return value.Bool(value.IsNull(v) != x.Negated), nil

	case *UnaryOp:
		v, err := e.eval(x.Operand)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case UnaryMinus:
			return value.Negate(v)
		case UnaryPlus:
			if value.IsNumeric(v) {
				return v, nil
			}
			return value.Null{}, nil
		}
		if value.IsNull(v) {
			return value.Null{}, nil
		}
		return value.Not(v)

	case *BinaryOp:
		left, err := e.eval(x.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(x.Right)
		if err != nil {
			return nil, err
		}
		return binary(x.Op, left, right)

	case *FunctionCall:
		if isAggregate(x) {
			if v, ok := e.aggs[x]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("%w: aggregate %s() is only allowed in RETURN", ErrUnsupportedExpression, x.Name)
		}
		return e.call(x)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedExpression, expr)
}

func (e *rowEvaluator) bindingValue(b *Binding) (value.Value, error) {
	switch {
	case b.Kind == BoundScalar:
		if b.Scalar == nil {
			return value.Null{}, nil
		}
		return b.Scalar, nil
	case len(b.IDs) == 0 && !b.Path:
		return value.Null{}, nil
	case len(b.IDs) == 1 && !b.Path:
		if b.Kind == BoundNode {
			return e.nodeValue(storage.NodeID(b.IDs[0]))
		}
		return e.edgeValue(storage.EdgeID(b.IDs[0]))
	}
	out := make(value.List, 0, len(b.IDs))
	for _, id := range b.IDs {
		var v value.Value
		var err error
		if b.Kind == BoundNode {
			v, err = e.nodeValue(storage.NodeID(id))
		} else {
			v, err = e.edgeValue(storage.EdgeID(id))
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *rowEvaluator) nodeValue(id storage.NodeID) (value.Value, error) {
	n, err := e.state.Node(id)
	if errors.Is(err, storage.ErrNotFound) {
		return value.Null{}, nil
	}
	if err != nil {
		return nil, err
	}
	labels := make(value.List, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = value.String(l)
	}
	return value.Map{
		"id":         value.Int(n.ID),
		"labels":     labels,
		"properties": propsMap(n.Properties),
	}, nil
}

func (e *rowEvaluator) edgeValue(id storage.EdgeID) (value.Value, error) {
	r, err := e.state.Edge(id)
	if errors.Is(err, storage.ErrNotFound) {
		return value.Null{}, nil
	}
	if err != nil {
		return nil, err
	}
	return value.Map{
		"id":         value.Int(r.ID),
		"type":       value.String(r.Type),
		"start":      value.Int(r.StartNode),
		"end":        value.Int(r.EndNode),
		"properties": propsMap(r.Properties),
	}, nil
}

func propsMap(props map[string]value.Value) value.Map {
	m := make(value.Map, len(props))
	for k, v := range props {
		m[k] = v
	}
	return m
}

// element resolves expr to a single bound node or relationship when it is
// a variable bound to exactly one element.
func (e *rowEvaluator) element(expr Expr) (*Binding, bool, error) {
	v, ok := expr.(*Variable)
	if !ok {
		return nil, false, nil
	}
	b, err := e.row.Lookup(v.Name)
	if err != nil {
		return nil, false, err
	}
	if b.Kind == BoundScalar || b.Path || len(b.IDs) != 1 {
		return b, false, nil
	}
	return b, true, nil
}

func (e *rowEvaluator) property(x *PropertyAccess) (value.Value, error) {
	b, single, err := e.element(x.Subject)
	if err != nil {
		return nil, err
	}
	if single {
		if b.Kind == BoundNode {
			v, err := e.state.ReadProperty(storage.NodeID(b.IDs[0]), x.Key)
			if errors.Is(err, storage.ErrNotFound) {
				return value.Null{}, nil
			}
			return v, err
		}
		r, err := e.state.Edge(storage.EdgeID(b.IDs[0]))
		if errors.Is(err, storage.ErrNotFound) {
			return value.Null{}, nil
		}
		if err != nil {
			return nil, err
		}
		return propertyOrNull(r.Properties, x.Key), nil
	}
	if b != nil && b.Kind != BoundScalar {
		return value.Null{}, nil
	}
	subject, err := e.eval(x.Subject)
	if err != nil {
		return nil, err
	}
	return valueProperty(subject, x.Key)
}

func valueProperty(v value.Value, key string) (value.Value, error) {
	switch t := v.(type) {
	case value.Null:
		return value.Null{}, nil
	case value.Map:
		return propertyOrNull(t, key), nil
	case value.Point:
		switch key {
		case "x", "longitude":
			return value.Float(t.X), nil
		case "y", "latitude":
			return value.Float(t.Y), nil
		case "z", "height":
			if t.Has3D {
				return value.Float(t.Z), nil
			}
			return value.Null{}, nil
		case "srid":
			return value.Int(t.SRID), nil
		}
		return value.Null{}, nil
	}
	return nil, fmt.Errorf("%w: cannot read property %q of %s", ErrTypeMismatch, key, value.TypeName(v))
}

func binary(op BinaryOperator, left, right value.Value) (value.Value, error) {
	if apply, ok := arithmeticOps[op]; ok {
		return apply(left, right)
	}
	switch op {
	case OpPower:
		x, okX := value.AsFloat(left)
		y, okY := value.AsFloat(right)
		if !okX || !okY {
			return value.Null{}, nil
		}
		f, err := value.NewFloat(math.Pow(x, y))
		if err != nil {
			return nil, err
		}
		return f, nil
	case OpEqual:
		return value.Equal(left, right), nil
	case OpNotEqual:
		if b, ok := value.Equal(left, right).(value.Bool); ok {
			return !b, nil
		}
		return value.Null{}, nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		c, ok := value.Compare(left, right)
		if !ok {
			return value.Null{}, nil
		}
		switch op {
		case OpLess:
			return value.Bool(c < 0), nil
		case OpLessEqual:
			return value.Bool(c <= 0), nil
		case OpGreater:
			return value.Bool(c > 0), nil
		}
		return value.Bool(c >= 0), nil
	case OpAnd, OpOr, OpXor:
		return logical(op, left, right)
	case OpIn:
		return in(left, right)
	case OpStartsWith, OpEndsWith, OpContains:
		s, okS := left.(value.String)
		sub, okSub := right.(value.String)
		if !okS || !okSub {
			return value.Null{}, nil
		}
		switch op {
		case OpStartsWith:
			return value.Bool(strings.HasPrefix(string(s), string(sub))), nil
		case OpEndsWith:
			return value.Bool(strings.HasSuffix(string(s), string(sub))), nil
		}
		return value.Bool(strings.Contains(string(s), string(sub))), nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupportedExpression, op)
}

// truth reads a three-valued logic operand.
func truth(v value.Value) (b, null bool, err error) {
	switch t := v.(type) {
	case value.Null:
		return false, true, nil
	case value.Bool:
		return bool(t), false, nil
	}
	return false, false, fmt.Errorf("%w: expected Boolean, got %s", ErrTypeMismatch, value.TypeName(v))
}

func logical(op BinaryOperator, left, right value.Value) (value.Value, error) {
	l, lNull, err := truth(left)
	if err != nil {
		return nil, err
	}
	r, rNull, err := truth(right)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpAnd:
		if (!lNull && !l) || (!rNull && !r) {
			return value.Bool(false), nil
		}
		if lNull || rNull {
			return value.Null{}, nil
		}
		return value.Bool(true), nil
	case OpOr:
		if (!lNull && l) || (!rNull && r) {
			return value.Bool(true), nil
		}
		if lNull || rNull {
			return value.Null{}, nil
		}
		return value.Bool(false), nil
	}
	if lNull || rNull {
		return value.Null{}, nil
	}
	return value.Bool(l != r), nil
}

func in(needle, haystack value.Value) (value.Value, error) {
	if value.IsNull(haystack) {
		return value.Null{}, nil
	}
	list, ok := haystack.(value.List)
	if !ok {
		return nil, fmt.Errorf("%w: IN expects a List, got %s", ErrTypeMismatch, value.TypeName(haystack))
	}
	sawNull := false
	for _, item := range list {
		switch r := value.Equal(needle, item).(type) {
		case value.Bool:
			if r {
				return value.Bool(true), nil
			}
		default:
			sawNull = true
		}
	}
	if sawNull {
		return value.Null{}, nil
	}
	return value.Bool(false), nil
}

func (e *rowEvaluator) args(fc *FunctionCall, n int) ([]value.Value, error) {
	if n >= 0 && len(fc.Args) != n {
		return nil, fmt.Errorf("%w: %s() takes %d argument(s), got %d", ErrSyntax, fc.Name, n, len(fc.Args))
	}
	out := make([]value.Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *rowEvaluator) call(fc *FunctionCall) (value.Value, error) {
	switch fc.Name {
	case "id", "labels", "type", "keys", "properties":
		return e.elementFunction(fc)
	case "length":
		if len(fc.Args) == 1 {
			if b, _, err := e.element(fc.Args[0]); err == nil && b != nil && b.Path {
				return value.Int(len(b.IDs)), nil
			}
		}
		return e.size(fc)
	case "size":
		return e.size(fc)
	case "coalesce":
		for _, a := range fc.Args {
			v, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			if !value.IsNull(v) {
				return v, nil
			}
		}
		return value.Null{}, nil
	}

	args, err := e.args(fc, -1)
	if err != nil {
		return nil, err
	}
	fn, ok := scalarFunctions[fc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown function %s()", ErrUnsupportedExpression, fc.Name)
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("%w: %s() takes %d argument(s), got %d", ErrSyntax, fc.Name, fn.arity, len(args))
	}
	for _, a := range args {
		if value.IsNull(a) {
			return value.Null{}, nil
		}
	}
	return fn.apply(args)
}

func (e *rowEvaluator) elementFunction(fc *FunctionCall) (value.Value, error) {
	if len(fc.Args) != 1 {
		return nil, fmt.Errorf("%w: %s() takes 1 argument", ErrSyntax, fc.Name)
	}
	v, err := e.eval(fc.Args[0])
	if err != nil {
		return nil, err
	}
	if value.IsNull(v) {
		return value.Null{}, nil
	}
	m, ok := v.(value.Map)
	if !ok {
		return nil, fmt.Errorf("%w: %s() expects a node or relationship, got %s", ErrTypeMismatch, fc.Name, value.TypeName(v))
	}
	props, _ := m["properties"].(value.Map)
	switch fc.Name {
	case "id":
		return propertyOrNull(m, "id"), nil
	case "labels":
		if l, ok := m["labels"]; ok {
			return l, nil
		}
		return nil, fmt.Errorf("%w: labels() expects a node", ErrTypeMismatch)
	case "type":
		if t, ok := m["type"]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: type() expects a relationship", ErrTypeMismatch)
	case "keys":
		if props == nil {
			props = m
		}
		keys := props.Keys()
		out := make(value.List, len(keys))
		for i, k := range keys {
			out[i] = value.String(k)
		}
		return out, nil
	}
	if props == nil {
		return m, nil
	}
	return props, nil
}

func (e *rowEvaluator) size(fc *FunctionCall) (value.Value, error) {
	args, err := e.args(fc, 1)
	if err != nil {
		return nil, err
	}
	switch t := args[0].(type) {
	case value.Null:
		return value.Null{}, nil
	case value.List:
		return value.Int(len(t)), nil
	case value.String:
		return value.Int(utf8.RuneCountInString(string(t))), nil
	}
	return nil, fmt.Errorf("%w: %s() expects a List or String, got %s", ErrTypeMismatch, fc.Name, value.TypeName(args[0]))
}

type scalarFunction struct {
	arity int
	apply func(args []value.Value) (value.Value, error)
}

var scalarFunctions = map[string]scalarFunction{
	"toupper":   {1, stringFunction(strings.ToUpper)},
	"tolower":   {1, stringFunction(strings.ToLower)},
	"trim":      {1, stringFunction(strings.TrimSpace)},
	"tostring":  {1, toStringFunction},
	"tointeger": {1, toIntegerFunction},
	"tofloat":   {1, toFloatFunction},
	"abs":       {1, absFunction},
	"sqrt":      {1, floatFunction(math.Sqrt)},
	"floor":     {1, floatFunction(math.Floor)},
	"ceil":      {1, floatFunction(math.Ceil)},
	"round":     {1, floatFunction(math.Round)},
	"head":      {1, listEndFunction(true)},
	"last":      {1, listEndFunction(false)},
	"point":     {1, pointFunction},
	"distance":  {2, distanceFunction},
}

func stringFunction(fn func(string) string) func([]value.Value) (value.Value, error) {
	return func(args []value.Value) (value.Value, error) {
		s, ok := args[0].(value.String)
		if !ok {
			return nil, fmt.Errorf("%w: expected String, got %s", ErrTypeMismatch, value.TypeName(args[0]))
		}
		return value.String(fn(string(s))), nil
	}
}

func floatFunction(fn func(float64) float64) func([]value.Value) (value.Value, error) {
	return func(args []value.Value) (value.Value, error) {
		f, ok := value.AsFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("%w: expected a number, got %s", ErrTypeMismatch, value.TypeName(args[0]))
		}
		r, err := value.NewFloat(fn(f))
		if err != nil {
			return value.Null{}, nil
		}
		return r, nil
	}
}

func toStringFunction(args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case value.String:
		return t, nil
	case value.Int, value.Float, value.Bool, value.Point:
		return value.String(t.String()), nil
	}
	return nil, fmt.Errorf("%w: toString() cannot convert %s", ErrTypeMismatch, value.TypeName(args[0]))
}

func toIntegerFunction(args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case value.Int:
		return t, nil
	case value.Float:
		f := math.Trunc(float64(t))
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%w: %v does not fit an Integer", ErrInvalidNumber, float64(t))
		}
		return value.Int(int64(f)), nil
	case value.Bool:
		if t {
			return value.Int(1), nil
		}
		return value.Int(0), nil
	case value.String:
		s := strings.TrimSpace(string(t))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) &&
			f >= math.MinInt64 && f < math.MaxInt64 {
			return value.Int(int64(math.Trunc(f))), nil
		}
		return value.Null{}, nil
	}
	return nil, fmt.Errorf("%w: toInteger() cannot convert %s", ErrTypeMismatch, value.TypeName(args[0]))
}

func toFloatFunction(args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case value.Float:
		return t, nil
	case value.Int:
		return value.Float(t), nil
	case value.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		if err != nil {
			return value.Null{}, nil
		}
		fv, err := value.NewFloat(f)
		if err != nil {
			return value.Null{}, nil
		}
		return fv, nil
	}
	return nil, fmt.Errorf("%w: toFloat() cannot convert %s", ErrTypeMismatch, value.TypeName(args[0]))
}

func absFunction(args []value.Value) (value.Value, error) {
	switch t := args[0].(type) {
	case value.Int:
		if t < 0 {
			return value.Negate(t)
		}
		return t, nil
	case value.Float:
		return value.Float(math.Abs(float64(t))), nil
	}
	return nil, fmt.Errorf("%w: abs() expects a number, got %s", ErrTypeMismatch, value.TypeName(args[0]))
}

func listEndFunction(first bool) func([]value.Value) (value.Value, error) {
	return func(args []value.Value) (value.Value, error) {
		l, ok := args[0].(value.List)
		if !ok {
			return nil, fmt.Errorf("%w: expected List, got %s", ErrTypeMismatch, value.TypeName(args[0]))
		}
		if len(l) == 0 {
			return value.Null{}, nil
		}
		if first {
			return l[0], nil
		}
		return l[len(l)-1], nil
	}
}

func pointFunction(args []value.Value) (value.Value, error) {
	m, ok := args[0].(value.Map)
	if !ok {
		if p, isPoint := args[0].(value.Point); isPoint {
			return p, nil
		}
		return nil, fmt.Errorf("%w: point() expects a Map, got %s", ErrTypeMismatch, value.TypeName(args[0]))
	}
	p, ok := value.PointFromMap(m)
	if !ok {
		return nil, fmt.Errorf("%w: point() needs numeric x/y or longitude/latitude", ErrTypeMismatch)
	}
	return p, nil
}

func distanceFunction(args []value.Value) (value.Value, error) {
	a, okA := args[0].(value.Point)
	b, okB := args[1].(value.Point)
	if !okA || !okB {
		return nil, fmt.Errorf("%w: distance() expects two Points", ErrTypeMismatch)
	}
	d, ok := value.Distance(a, b)
	if !ok {
		return value.Null{}, nil
	}
	return value.Float(d), nil
}

// nonNegativeInt evaluates a SKIP or LIMIT expression.
func (e *rowEvaluator) nonNegativeInt(expr Expr, clause string) (int, error) {
	v, err := e.eval(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(value.Int)
	if !ok {
		return 0, fmt.Errorf("%w: %s expects an Integer, got %s", ErrTypeMismatch, clause, value.TypeName(v))
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidNumber, clause)
	}
	return int(n), nil
}

// patternProperties evaluates the property map of a pattern element.
func (e *rowEvaluator) patternProperties(expr Expr) (map[string]value.Value, error) {
	if expr == nil {
		return nil, nil
	}
	v, err := e.eval(expr)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case value.Map:
		return t, nil
	case value.Null:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: pattern properties must be a Map, got %s", ErrTypeMismatch, value.TypeName(v))
}

// matchesProperties reports whether every wanted property equals the
// element's value.
func matchesProperties(props map[string]value.Value, want map[string]value.Value) bool {
	for k, w := range want {
		if !value.Truthy(value.Equal(propertyOrNull(props, k), w)) {
			return false
		}
	}
	return true
}

func hasLabels(n *storage.Node, labels []string) bool {
	for _, l := range labels {
		if !slices.Contains(n.Labels, l) {
			return false
		}
	}
	return true
}
