// Package value defines the dynamically-typed value domain used for node and
// relationship properties, query parameters and expression results.
//
// Value is a closed union. The concrete types are Null, Bool, Int, Float,
// String, List, Point and Map. Map only appears as an expression result
// (map literals, parameter maps, projected nodes); it is never a storable
// property value.
//
// Arithmetic follows null propagation: operand type mismatches produce Null
// rather than an error. The exceptions are integer overflow, non-finite float
// results and NOT on a non-Bool operand, which fail.
package value

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Errors raised by value operations.
var (
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidNumber   = errors.New("invalid number")
	ErrIntegerOverflow = fmt.Errorf("%w: integer overflow", ErrInvalidNumber)
	ErrNonFinite       = fmt.Errorf("%w: non-finite float", ErrInvalidNumber)
)

// Kind tags the concrete type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindPoint
	KindMap
)

var kindNames = [...]string{
	KindNull:   "Null",
	KindBool:   "Boolean",
	KindInt:    "Integer",
	KindFloat:  "Float",
	KindString: "String",
	KindList:   "List",
	KindPoint:  "Point",
	KindMap:    "Map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is implemented only by the types in this package.
type Value interface {
	Kind() Kind
	String() string
	sealed()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit signed integer.
type Int int64

// Float is a finite IEEE-754 double. Use NewFloat to build one from
// untrusted input.
type Float float64

// String is a UTF-8 string.
type String string

// List is an ordered sequence of values.
type List []Value

// Point is a cartesian or geographic point. SRID 7203 is 2D cartesian,
// 9157 is 3D cartesian, 4326 is WGS-84 and 4979 is WGS-84 3D.
type Point struct {
	X, Y, Z float64
	SRID    int
	Has3D   bool
}

// Map is a string-keyed map of values. It is an expression result only.
type Map map[string]Value

// Common SRIDs.
const (
	SRIDCartesian   = 7203
	SRIDCartesian3D = 9157
	SRIDWGS84       = 4326
	SRIDWGS84_3D    = 4979
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (Point) Kind() Kind  { return KindPoint }
func (Map) Kind() Kind    { return KindMap }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Int) sealed()    {}
func (Float) sealed()  {}
func (String) sealed() {}
func (List) sealed()   {}
func (Point) sealed()  {}
func (Map) sealed()    {}

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

func (f Float) String() string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (s String) String() string { return string(s) }

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = quoted(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (p Point) String() string {
	if p.Has3D {
		return fmt.Sprintf("point({srid:%d, x:%g, y:%g, z:%g})", p.SRID, p.X, p.Y, p.Z)
	}
	return fmt.Sprintf("point({srid:%d, x:%g, y:%g})", p.SRID, p.X, p.Y)
}

func (m Map) String() string {
	keys := m.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + quoted(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoted(v Value) string {
	if s, ok := v.(String); ok {
		return strconv.Quote(string(s))
	}
	return v.String()
}

// NewFloat returns f as a Float, failing for NaN and infinities.
func NewFloat(f float64) (Float, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return Float(f), nil
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsNumeric reports whether v is an Int or a Float.
func IsNumeric(v Value) bool {
	switch v.(type) {
	case Int, Float:
		return true
	}
	return false
}

// Storable reports whether v may be written as a property value. Maps and
// lists containing maps or nested lists are rejected.
func Storable(v Value) bool {
	switch t := v.(type) {
	case Map:
		return false
	case List:
		for _, e := range t {
			switch e.(type) {
			case Map, List:
				return false
			}
		}
	}
	return true
}

// TypeName returns the kind name of v, treating nil as Null.
func TypeName(v Value) string {
	if v == nil {
		return KindNull.String()
	}
	return v.Kind().String()
}
