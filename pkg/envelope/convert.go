package envelope

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// toInt64 converts the integer types to int64. Floats only convert when they
// hold an integral value.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

// floatToInt rejects 2^63 and above: float64(math.MaxInt64) rounds up to
// 2^63, which does not fit.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// toFloat64 converts any numeric type to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// scalarString renders a scalar the way the native SDK expects tag values:
// strings as-is, numbers without a trailing ".0", bools as true/false.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	case int64:
		return fmt.Sprintf("%d", s), true
	case float64:
		if i, ok := floatToInt(s); ok {
			return fmt.Sprintf("%d", i), true
		}
		return fmt.Sprintf("%g", s), true
	default:
		return "", false
	}
}

// Normalize converts v into the envelope value set. Native results pass
// through it before they are queued for the script runtime.
func Normalize(v any) any {
	return normalize(v)
}

// normalize converts a Go value into the envelope value set: nil, bool,
// int64, float64, string, []any and *Object. Maps become objects with sorted
// keys. Values outside that set are round-tripped through encoding/json.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case *Object:
		if x == nil {
			return nil
		}
		return x.Clone()
	case json.Number:
		if n, err := numberValue(string(x)); err == nil {
			return n
		}
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case map[string]any:
		return FromMap(x)
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject()
		for _, k := range keys {
			o.Set(k, x[k])
		}
		return o
	case float32:
		return float64(x)
	}
	if i, ok := toInt64(v); ok {
		return i
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	decoded, err := parseValue(data)
	if err != nil {
		return fmt.Sprint(v)
	}
	return decoded
}
