package value

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivide(t *testing.T) {
	t.Run("integers promote to float", func(t *testing.T) {
		pairs := [][2]int64{{7, 2}, {-9, 4}, {0, 5}, {10, -3}, {math.MaxInt64, 7}}
		for _, p := range pairs {
			got, err := Divide(Int(p[0]), Int(p[1]))
			require.NoError(t, err)
			assert.Equal(t, Float(float64(p[0])/float64(p[1])), got, "%d / %d", p[0], p[1])
		}
	})

	t.Run("zero divisor is null", func(t *testing.T) {
		for _, div := range []Value{Int(0), Float(0)} {
			got, err := Divide(Int(42), div)
			require.NoError(t, err)
			assert.Equal(t, Null{}, got)
		}
	})

	t.Run("mixed operands", func(t *testing.T) {
		got, err := Divide(Float(1.5), Int(3))
		require.NoError(t, err)
		assert.Equal(t, Float(0.5), got)
	})
}

func TestArithmeticNullPropagation(t *testing.T) {
	ops := map[string]func(a, b Value) (Value, error){
		"add":      Add,
		"subtract": Subtract,
		"multiply": Multiply,
		"divide":   Divide,
		"modulo":   Modulo,
	}
	nonNumeric := []Value{Null{}, Bool(true), String("x"), List{Int(1)}, Point{X: 1, Y: 2, SRID: SRIDCartesian}}
	others := append([]Value{Int(3), Float(2.5)}, nonNumeric...)

	for name, op := range ops {
		for _, a := range nonNumeric {
			for _, b := range others {
				_, aStr := a.(String)
				_, bStr := b.(String)
				if name == "add" && aStr && bStr {
					continue
				}
				got, err := op(a, b)
				require.NoError(t, err)
				assert.Equal(t, Null{}, got, "%s(%s, %s)", name, TypeName(a), TypeName(b))

				got, err = op(b, a)
				require.NoError(t, err)
				assert.Equal(t, Null{}, got, "%s(%s, %s)", name, TypeName(b), TypeName(a))
			}
		}
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want Value
	}{
		{"ints", Int(2), Int(3), Int(5)},
		{"mixed", Int(2), Float(0.5), Float(2.5)},
		{"floats", Float(1.25), Float(1.25), Float(2.5)},
		{"strings concatenate", String("foo"), String("bar"), String("foobar")},
		{"string plus int", String("a"), Int(1), Null{}},
		{"lists are not concatenated", List{Int(1)}, List{Int(2)}, Null{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntegerOverflow(t *testing.T) {
	_, err := Add(Int(math.MaxInt64), Int(1))
	assert.ErrorIs(t, err, ErrIntegerOverflow)
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = Subtract(Int(math.MinInt64), Int(1))
	assert.ErrorIs(t, err, ErrIntegerOverflow)

	_, err = Multiply(Int(math.MaxInt64/2+1), Int(2))
	assert.ErrorIs(t, err, ErrIntegerOverflow)

	_, err = Multiply(Int(math.MinInt64), Int(-1))
	assert.ErrorIs(t, err, ErrIntegerOverflow)

	_, err = Negate(Int(math.MinInt64))
	assert.ErrorIs(t, err, ErrIntegerOverflow)

	got, err := Multiply(Int(-4), Int(5))
	require.NoError(t, err)
	assert.Equal(t, Int(-20), got)
}

func TestNonFiniteResult(t *testing.T) {
	_, err := Multiply(Float(math.MaxFloat64), Float(2))
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = NewFloat(math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, err = NewFloat(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func TestModulo(t *testing.T) {
	got, err := Modulo(Int(7), Int(3))
	require.NoError(t, err)
	assert.Equal(t, Int(1), got)

	got, err = Modulo(Float(7.5), Float(2))
	require.NoError(t, err)
	assert.Equal(t, Float(1.5), got)

	got, err = Modulo(Int(7), Float(2))
	require.NoError(t, err)
	assert.Equal(t, Float(1), got)

	got, err = Modulo(Int(7), Int(0))
	require.NoError(t, err)
	assert.Equal(t, Null{}, got)

	got, err = Modulo(Float(7), Float(0))
	require.NoError(t, err)
	assert.Equal(t, Null{}, got)
}

func TestUnaryOperators(t *testing.T) {
	t.Run("not requires boolean", func(t *testing.T) {
		got, err := Not(Bool(true))
		require.NoError(t, err)
		assert.Equal(t, Bool(false), got)

		for _, v := range []Value{Int(1), String("true"), Null{}, Float(0)} {
			_, err := Not(v)
			assert.ErrorIs(t, err, ErrTypeMismatch, "NOT %s", TypeName(v))
		}
	})

	t.Run("minus on non-numeric is null", func(t *testing.T) {
		got, err := Negate(String("abc"))
		require.NoError(t, err)
		assert.Equal(t, Null{}, got)

		got, err = Negate(Int(5))
		require.NoError(t, err)
		assert.Equal(t, Int(-5), got)

		got, err = Negate(Float(2.5))
		require.NoError(t, err)
		assert.Equal(t, Float(-2.5), got)
	})
}

func TestEqualAndCompare(t *testing.T) {
	assert.Equal(t, Bool(true), Equal(Int(2), Float(2)))
	assert.Equal(t, Bool(false), Equal(Int(2), String("2")))
	assert.Equal(t, Null{}, Equal(Null{}, Int(1)))
	assert.Equal(t, Null{}, Equal(List{Int(1), Null{}}, List{Int(1), Int(2)}))
	assert.Equal(t, Bool(false), Equal(List{Int(1), Null{}}, List{Int(2), Int(2)}))

	c, ok := Compare(Int(1), Float(1.5))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(Int(1), String("a"))
	assert.False(t, ok)

	assert.Equal(t, -1, Order(Int(1), Null{}), "null sorts last")
	assert.Equal(t, 1, Order(Int(1), String("a")))
	assert.Equal(t, 0, Order(List{Int(1)}, List{Int(1)}))
}

func TestFromGo(t *testing.T) {
	var params map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"i": 3, "f": 2.5, "big": 1e400, "l": [1, "a"], "p": {"x": 1, "y": 2}, "m": {"k": true}}`))
	dec.UseNumber()
	err := dec.Decode(&params)
	require.NoError(t, err)

	v, err := FromGo(params["i"])
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = FromGo(params["f"])
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v)

	_, err = FromGo(params["big"])
	assert.ErrorIs(t, err, ErrInvalidNumber)

	v, err = FromGo(params["l"])
	require.NoError(t, err)
	assert.Equal(t, List{Int(1), String("a")}, v)

	v, err = FromGo(params["p"])
	require.NoError(t, err)
	assert.Equal(t, Point{X: 1, Y: 2, SRID: SRIDCartesian}, v)

	v, err = FromGo(params["m"])
	require.NoError(t, err)
	assert.Equal(t, Map{"k": Bool(true)}, v)
	assert.False(t, Storable(v))

	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "srid": SRIDCartesian}, ToGo(Point{X: 1, Y: 2, SRID: SRIDCartesian}))
}

func TestDistance(t *testing.T) {
	d, ok := Distance(Point{X: 0, Y: 0, SRID: SRIDCartesian}, Point{X: 3, Y: 4, SRID: SRIDCartesian})
	require.True(t, ok)
	assert.InDelta(t, 5.0, d, 1e-9)

	_, ok = Distance(Point{SRID: SRIDCartesian}, Point{SRID: SRIDWGS84})
	assert.False(t, ok)
}
