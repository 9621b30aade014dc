package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FromGo converts a decoded JSON or native Go value into a Value.
//
// json.Number becomes Int when it parses as a 64-bit integer and Float
// otherwise. A map with numeric "x" and "y" entries (and optionally "z",
// "srid", "crs") becomes a Point; any other map becomes a Map.
func FromGo(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int8:
		return Int(t), nil
	case int16:
		return Int(t), nil
	case int32:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(t), nil
	case uint16:
		return Int(t), nil
	case uint32:
		return Int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d", ErrIntegerOverflow, t)
		}
		return Int(t), nil
	case float32:
		return NewFloat(float64(t))
	case float64:
		return NewFloat(t)
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, string(t))
		}
		return NewFloat(f)
	case string:
		return String(t), nil
	case []float32:
		out := make(List, len(t))
		for i, f := range t {
			fv, err := NewFloat(float64(f))
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	case []float64:
		out := make(List, len(t))
		for i, f := range t {
			fv, err := NewFloat(f)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	case []string:
		out := make(List, len(t))
		for i, s := range t {
			out[i] = String(s)
		}
		return out, nil
	case []any:
		out := make(List, len(t))
		for i, e := range t {
			ev, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		m := make(Map, len(t))
		for k, e := range t {
			ev, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			m[k] = ev
		}
		if p, ok := PointFromMap(m); ok {
			return p, nil
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unsupported Go type %T", ErrTypeMismatch, v)
}

// PointFromMap builds a Point from a map carrying numeric x/y (or
// longitude/latitude) entries.
func PointFromMap(m Map) (Point, bool) {
	xv, yv := m["x"], m["y"]
	geo := false
	if xv == nil && yv == nil {
		xv, yv = m["longitude"], m["latitude"]
		geo = true
	}
	x, okX := toFloat(xv)
	y, okY := toFloat(yv)
	if !okX || !okY {
		return Point{}, false
	}
	p := Point{X: x, Y: y, SRID: SRIDCartesian}
	if geo {
		p.SRID = SRIDWGS84
	}
	zv := m["z"]
	if zv == nil {
		zv = m["height"]
	}
	if z, ok := toFloat(zv); ok {
		p.Z = z
		p.Has3D = true
		if geo {
			p.SRID = SRIDWGS84_3D
		} else {
			p.SRID = SRIDCartesian3D
		}
	}
	if crs, ok := m["crs"].(String); ok {
		switch crs {
		case "wgs-84":
			p.SRID = SRIDWGS84
		case "wgs-84-3d":
			p.SRID = SRIDWGS84_3D
		case "cartesian-3d":
			p.SRID = SRIDCartesian3D
		case "cartesian":
			p.SRID = SRIDCartesian
		}
	}
	if srid, ok := m["srid"].(Int); ok {
		p.SRID = int(srid)
	}
	return p, true
}

// ToGo converts v into plain Go values suitable for JSON encoding.
func ToGo(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Int:
		return int64(t)
	case Float:
		return float64(t)
	case String:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToGo(e)
		}
		return out
	case Point:
		m := map[string]any{"x": t.X, "y": t.Y, "srid": t.SRID}
		if t.Has3D {
			m["z"] = t.Z
		}
		return m
	case Map:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}

// FromGoMap converts a parameter map.
func FromGoMap(in map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(in))
	for k, v := range in {
		cv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}
