package value

import (
	"cmp"
	"math"
)

// Equal compares a and b with null propagation. The result is Bool, or
// Null when either side is Null or the comparison depends on a Null
// element inside a list or map.
func Equal(a, b Value) Value {
	if IsNull(a) || IsNull(b) {
		return Null{}
	}
	switch x := a.(type) {
	case Int, Float:
		xf, _ := toFloat(x)
		yf, ok := toFloat(b)
		if !ok {
			return Bool(false)
		}
		if xi, ok := x.(Int); ok {
			if yi, ok := b.(Int); ok {
				return Bool(xi == yi)
			}
		}
		return Bool(xf == yf)
	case Bool:
		y, ok := b.(Bool)
		return Bool(ok && x == y)
	case String:
		y, ok := b.(String)
		return Bool(ok && x == y)
	case Point:
		y, ok := b.(Point)
		return Bool(ok && x == y)
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return Bool(false)
		}
		sawNull := false
		for i := range x {
			switch r := Equal(x[i], y[i]).(type) {
			case Null:
				sawNull = true
			case Bool:
				if !r {
					return Bool(false)
				}
			}
		}
		if sawNull {
			return Null{}
		}
		return Bool(true)
	case Map:
		y, ok := b.(Map)
		if !ok || len(x) != len(y) {
			return Bool(false)
		}
		sawNull := false
		for k, xv := range x {
			yv, ok := y[k]
			if !ok {
				return Bool(false)
			}
			switch r := Equal(xv, yv).(type) {
			case Null:
				sawNull = true
			case Bool:
				if !r {
					return Bool(false)
				}
			}
		}
		if sawNull {
			return Null{}
		}
		return Bool(true)
	}
	return Bool(false)
}

// Compare orders two comparable values. ok is false when the pair is not
// comparable (different kinds, Null, lists, maps), in which case a
// comparison operator evaluates to Null.
func Compare(a, b Value) (c int, ok bool) {
	switch x := a.(type) {
	case Int:
		if y, isInt := b.(Int); isInt {
			return cmp.Compare(x, y), true
		}
		if y, isFloat := b.(Float); isFloat {
			return compareFloat(float64(x), float64(y)), true
		}
	case Float:
		if y, num := toFloat(b); num {
			return compareFloat(float64(x), y), true
		}
	case String:
		if y, isStr := b.(String); isStr {
			return cmp.Compare(x, y), true
		}
	case Bool:
		if y, isBool := b.(Bool); isBool {
			return cmp.Compare(boolRank(x), boolRank(y)), true
		}
	case Point:
		if y, isPoint := b.(Point); isPoint && x.SRID == y.SRID {
			if c := cmp.Compare(x.X, y.X); c != 0 {
				return c, true
			}
			if c := cmp.Compare(x.Y, y.Y); c != 0 {
				return c, true
			}
			return cmp.Compare(x.Z, y.Z), true
		}
	}
	return 0, false
}

func compareFloat(x, y float64) int {
	if x < y {
		return -1
	}
	if x > y {
		return 1
	}
	return 0
}

func boolRank(b Bool) int {
	if b {
		return 1
	}
	return 0
}

// orderRank gives the cross-kind ordering used by ORDER BY. Null sorts last.
func orderRank(v Value) int {
	switch v.(type) {
	case Map:
		return 0
	case List:
		return 1
	case Point:
		return 2
	case String:
		return 3
	case Bool:
		return 4
	case Int, Float:
		return 5
	}
	return 6
}

// Order is a total order over all values for sorting and DISTINCT.
func Order(a, b Value) int {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	ra, rb := orderRank(a), orderRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	switch x := a.(type) {
	case List:
		y := b.(List)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Order(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x), len(y))
	case Map:
		y := b.(Map)
		xk, yk := x.Keys(), y.Keys()
		for i := 0; i < len(xk) && i < len(yk); i++ {
			if c := cmp.Compare(xk[i], yk[i]); c != 0 {
				return c
			}
			if c := Order(x[xk[i]], y[yk[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(xk), len(yk))
	case Point:
		return cmp.Compare(x.SRID, b.(Point).SRID)
	}
	return 0
}

// Truthy reports whether v is Bool(true). WHERE keeps only such rows.
func Truthy(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}

// Distance returns the euclidean distance between two points of the same
// SRID, or the haversine distance in metres for WGS-84 points.
func Distance(a, b Point) (float64, bool) {
	if a.SRID != b.SRID {
		return 0, false
	}
	if a.SRID == SRIDWGS84 || a.SRID == SRIDWGS84_3D {
		const earthRadius = 6378140.0
		lat1, lat2 := a.Y*math.Pi/180, b.Y*math.Pi/180
		dLat := lat2 - lat1
		dLon := (b.X - a.X) * math.Pi / 180
		h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
		return 2 * earthRadius * math.Asin(math.Sqrt(h)), true
	}
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz), true
}
