package body

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Decoded numbers come back as int when integral and in range, as int64 or
// uint64 past that, and as float64 otherwise. JSON writes integral floats
// with a fraction so they stay floats on the far side.

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return fromInt64(i)
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u
		}
		f, _ := x.Float64()
		return f
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return fromInt64(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return fromInt64(int64(x))
	case uint:
		return fromUint64(uint64(x))
	case uint64:
		return fromUint64(x)
	case float32:
		return float64(x)
	}
	return v
}

func fromInt64(i int64) any {
	if int64(int(i)) == i {
		return int(i)
	}
	return i
}

func fromUint64(u uint64) any {
	if u <= math.MaxInt64 {
		return fromInt64(int64(u))
	}
	return u
}

// jsonFloats copies v with every float replaced by a json.Number that keeps
// its fraction.
func jsonFloats(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonFloats(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonFloats(e)
		}
		return out
	case float64:
		return floatNumber(x)
	case float32:
		return floatNumber(float64(x))
	}
	return v
}

func floatNumber(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}
