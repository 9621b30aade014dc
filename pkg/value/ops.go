package value

import (
	"fmt"
	"math"
)

// Add returns a + b.
//
// Int + Int stays Int and fails on overflow. Mixed Int/Float operands are
// promoted to Float. String + String concatenates. Every other pairing,
// including any Null operand, yields Null.
func Add(a, b Value) (Value, error) {
	if x, ok := a.(String); ok {
		if y, ok := b.(String); ok {
			return x + y, nil
		}
		return Null{}, nil
	}
	return arith(a, b, "+",
		func(x, y int64) (int64, bool) {
			s := x + y
			return s, (y > 0 && s < x) || (y < 0 && s > x)
		},
		func(x, y float64) float64 { return x + y })
}

// Subtract returns a - b for numeric operands and Null otherwise.
func Subtract(a, b Value) (Value, error) {
	return arith(a, b, "-",
		func(x, y int64) (int64, bool) {
			d := x - y
			return d, (y > 0 && d > x) || (y < 0 && d < x)
		},
		func(x, y float64) float64 { return x - y })
}

// Multiply returns a * b for numeric operands and Null otherwise.
func Multiply(a, b Value) (Value, error) {
	return arith(a, b, "*",
		func(x, y int64) (int64, bool) {
			if x == 0 || y == 0 {
				return 0, false
			}
			p := x * y
			overflow := p/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64)
			return p, overflow
		},
		func(x, y float64) float64 { return x * y })
}

// Divide promotes both operands to Float and returns a / b. A zero divisor
// yields Null, as does any non-numeric operand.
func Divide(a, b Value) (Value, error) {
	x, ok := toFloat(a)
	if !ok {
		return Null{}, nil
	}
	y, ok := toFloat(b)
	if !ok || y == 0 {
		return Null{}, nil
	}
	return finite(x/y, "/")
}

// Modulo returns the remainder of a / b. Int % Int is Int, any Float
// operand makes the result Float. A zero divisor yields Null.
func Modulo(a, b Value) (Value, error) {
	if x, ok := a.(Int); ok {
		if y, ok := b.(Int); ok {
			if y == 0 {
				return Null{}, nil
			}
			return x % y, nil
		}
	}
	x, ok := toFloat(a)
	if !ok {
		return Null{}, nil
	}
	y, ok := toFloat(b)
	if !ok || y == 0 {
		return Null{}, nil
	}
	return finite(math.Mod(x, y), "%")
}

// Negate returns -v for Int and Float and Null for anything else.
func Negate(v Value) (Value, error) {
	switch t := v.(type) {
	case Int:
		if t == math.MinInt64 {
			return nil, fmt.Errorf("%w: -(%d)", ErrIntegerOverflow, int64(t))
		}
		return -t, nil
	case Float:
		return -t, nil
	}
	return Null{}, nil
}

// Not returns the negation of a Bool. Any other operand, Null included,
// is a type mismatch.
func Not(v Value) (Value, error) {
	if b, ok := v.(Bool); ok {
		return !b, nil
	}
	return nil, fmt.Errorf("%w: NOT expects Boolean, got %s", ErrTypeMismatch, TypeName(v))
}

func arith(a, b Value, op string, ints func(x, y int64) (int64, bool), floats func(x, y float64) float64) (Value, error) {
	if x, ok := a.(Int); ok {
		if y, ok := b.(Int); ok {
			r, overflow := ints(int64(x), int64(y))
			if overflow {
				return nil, fmt.Errorf("%w: %d %s %d", ErrIntegerOverflow, int64(x), op, int64(y))
			}
			return Int(r), nil
		}
	}
	x, ok := toFloat(a)
	if !ok {
		return Null{}, nil
	}
	y, ok := toFloat(b)
	if !ok {
		return Null{}, nil
	}
	return finite(floats(x, y), op)
}

func finite(f float64, op string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: result of %s", ErrNonFinite, op)
	}
	return Float(f), nil
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	}
	return 0, false
}

// AsFloat returns the numeric value of v as a float64.
func AsFloat(v Value) (float64, bool) { return toFloat(v) }
