package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nexus/pkg/value"
)

type mapReader map[string]value.Value

func (m mapReader) Property(key string) value.Value {
	if v, ok := m[key]; ok {
		return v
	}
	return value.Null{}
}

func lit(v value.Value) Expr { return &Literal{Value: v} }

func prop(v, key string) Expr { return &PropertyAccess{Subject: &Variable{Name: v}, Key: key} }

func bin(op BinaryOperator, l, r Expr) Expr { return &BinaryOp{Op: op, Left: l, Right: r} }

func TestEvaluateAssignment(t *testing.T) {
	ctx := NewBindingContext()
	ctx.BindNode("n", 1)
	ctx.BindNode("m", 2)
	props := mapReader{"x": value.Int(5), "name": value.String("a")}
	params := map[string]value.Value{"k": value.Int(3)}

	tests := []struct {
		name string
		expr Expr
		want value.Value
	}{
		{"literal", lit(value.Int(7)), value.Int(7)},
		{"parameter", &Parameter{Name: "k"}, value.Int(3)},
		{"target property", prop("n", "x"), value.Int(5)},
		{"missing property", prop("n", "nope"), value.Null{}},
		{"arithmetic on target", bin(OpAdd, prop("n", "x"), lit(value.Int(1))), value.Int(6)},
		{"multiply by parameter", bin(OpMultiply, prop("n", "x"), &Parameter{Name: "k"}), value.Int(15)},
		{"non-target variable is null", prop("m", "x"), value.Null{}},
		{"null propagates", bin(OpAdd, prop("m", "x"), lit(value.Int(1))), value.Null{}},
		{"string mismatch is null", bin(OpSubtract, prop("n", "name"), lit(value.Int(1))), value.Null{}},
		{"divide by zero is null", bin(OpDivide, prop("n", "x"), lit(value.Int(0))), value.Null{}},
		{"string concat", bin(OpAdd, prop("n", "name"), lit(value.String("b"))), value.String("ab")},
		{"unary minus", &UnaryOp{Op: UnaryMinus, Operand: prop("n", "x")}, value.Int(-5)},
		{"unary minus on string", &UnaryOp{Op: UnaryMinus, Operand: lit(value.String("s"))}, value.Null{}},
		{"unary plus", &UnaryOp{Op: UnaryPlus, Operand: lit(value.Int(2))}, value.Null{}},
		{"not", &UnaryOp{Op: UnaryNot, Operand: lit(value.Bool(true))}, value.Bool(false)},
		{"list", &ListLiteral{Items: []Expr{prop("n", "x"), lit(value.Int(1))}}, value.List{value.Int(5), value.Int(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateAssignment(tt.expr, ctx, "n", props, params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateAssignmentErrors(t *testing.T) {
	ctx := NewBindingContext()
	ctx.BindNode("n", 1)
	props := mapReader{"x": value.Int(5)}

	tests := []struct {
		name string
		expr Expr
		err  error
	}{
		{"not on integer", &UnaryOp{Op: UnaryNot, Operand: lit(value.Int(1))}, ErrTypeMismatch},
		{"unbound variable", prop("ghost", "x"), ErrUnknownVariable},
		{"missing parameter", &Parameter{Name: "absent"}, ErrUnknownVariable},
		{"comparison operator", bin(OpLess, prop("n", "x"), lit(value.Int(1))), ErrUnsupportedExpression},
		{"function call", &FunctionCall{Name: "abs", Args: []Expr{prop("n", "x")}}, ErrUnsupportedExpression},
		{"bare variable", &Variable{Name: "n"}, ErrUnsupportedExpression},
		{"integer overflow", bin(OpMultiply, lit(value.Int(1<<62)), lit(value.Int(4))), ErrInvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateAssignment(tt.expr, ctx, "n", props, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEvaluateAssignmentEvaluatesBothSides(t *testing.T) {
	ctx := NewBindingContext()
	ctx.BindNode("n", 1)
	// The right side fails even though the left side is already Null.
	expr := bin(OpAdd, lit(value.Null{}), &UnaryOp{Op: UnaryNot, Operand: lit(value.Int(1))})
	_, err := EvaluateAssignment(expr, ctx, "n", mapReader{}, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBinaryOperators(t *testing.T) {
	tests := []struct {
		name        string
		op          BinaryOperator
		left, right value.Value
		want        value.Value
	}{
		{"equal", OpEqual, value.Int(1), value.Float(1), value.Bool(true)},
		{"not equal", OpNotEqual, value.String("a"), value.String("b"), value.Bool(true)},
		{"equal null", OpEqual, value.Null{}, value.Int(1), value.Null{}},
		{"less", OpLess, value.Int(1), value.Int(2), value.Bool(true)},
		{"incomparable", OpLess, value.Int(1), value.String("a"), value.Null{}},
		{"and false wins", OpAnd, value.Null{}, value.Bool(false), value.Bool(false)},
		{"and null", OpAnd, value.Null{}, value.Bool(true), value.Null{}},
		{"or true wins", OpOr, value.Null{}, value.Bool(true), value.Bool(true)},
		{"xor", OpXor, value.Bool(true), value.Bool(false), value.Bool(true)},
		{"in", OpIn, value.Int(2), value.List{value.Int(1), value.Int(2)}, value.Bool(true)},
		{"not in", OpIn, value.Int(3), value.List{value.Int(1)}, value.Bool(false)},
		{"starts with", OpStartsWith, value.String("graph"), value.String("gr"), value.Bool(true)},
		{"ends with", OpEndsWith, value.String("graph"), value.String("ph"), value.Bool(true)},
		{"contains", OpContains, value.String("graph"), value.String("ap"), value.Bool(true)},
		{"power", OpPower, value.Int(2), value.Int(3), value.Float(8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := binary(tt.op, tt.left, tt.right)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := binary(OpAnd, value.Int(1), value.Bool(true))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBindingContext(t *testing.T) {
	ctx := NewBindingContext()
	ctx.BindNode("a", 1, 2)
	ctx.BindScalar("s", value.String("x"))
	ctx.BindPath("p")

	b, err := ctx.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, BoundNode, b.Kind)
	assert.Len(t, b.NodeIDs(), 2)

	p, err := ctx.Lookup("p")
	require.NoError(t, err)
	assert.False(t, p.IsNull(), "an empty path is still a value")

	_, err = ctx.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownVariable)
	assert.Contains(t, err.Error(), "missing")

	clone := ctx.Clone()
	clone.BindNode("b", 3)
	assert.True(t, clone.Has("b"))
	assert.False(t, ctx.Has("b"))
	assert.Equal(t, []string{"a", "s", "p"}, ctx.Variables())
	assert.Equal(t, 3, ctx.Len())
}
