package envelope

import (
	"bytes"
	"fmt"

	"github.com/go-drift/pushbridge/pkg/errors"
)

// Args is a decoded command argument list. Elements belong to the envelope
// value set.
type Args []any

// NewArgs normalizes values into an argument list.
func NewArgs(values ...any) Args {
	a := make(Args, len(values))
	for i, v := range values {
		a[i] = normalize(v)
	}
	return a
}

// Decode parses a JSON array of command arguments. Empty input is an empty
// argument list. Anything else that is not exactly one JSON array fails with
// a *errors.ParseError and no partial result.
func Decode(data []byte) (Args, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Args{}, nil
	}
	v, err := parseValue(data)
	if err != nil {
		return nil, &errors.ParseError{Source: "arguments", Index: -1, Expected: "JSON array", Err: err}
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, &errors.ParseError{Source: "arguments", Index: -1, Expected: "JSON array", Got: v}
	}
	return Args(arr), nil
}

// EncodeArgs writes a as a JSON array. Decode(EncodeArgs(a)) equals a.
func EncodeArgs(a Args) ([]byte, error) {
	var buf bytes.Buffer
	vals := []any(a)
	if vals == nil {
		vals = []any{}
	}
	if err := writeValue(&buf, vals); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Equal reports whether a and b hold equal values in the same order.
func (a Args) Equal(b Args) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// Value returns argument i, or nil when it is missing.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

func (a Args) mismatch(i int, expected string) error {
	if i >= len(a) {
		return &errors.ParseError{Source: "arguments", Index: i, Expected: expected, Err: fmt.Errorf("missing %s argument", expected)}
	}
	return &errors.ParseError{Source: "arguments", Index: i, Expected: expected, Got: a[i]}
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	if s, ok := a.Value(i).(string); ok {
		return s, nil
	}
	return "", a.mismatch(i, "string")
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	if b, ok := a.Value(i).(bool); ok {
		return b, nil
	}
	return false, a.mismatch(i, "bool")
}

// Number returns argument i as a float64. Integers are accepted.
func (a Args) Number(i int) (float64, error) {
	if f, ok := toFloat64(a.Value(i)); ok {
		return f, nil
	}
	return 0, a.mismatch(i, "number")
}

// Int returns argument i as an int64. Floats with an integral value are
// accepted.
func (a Args) Int(i int) (int64, error) {
	if n, ok := toInt64(a.Value(i)); ok {
		return n, nil
	}
	return 0, a.mismatch(i, "integer")
}

// Scalar returns a string, number or bool argument rendered as a string.
func (a Args) Scalar(i int) (string, error) {
	if s, ok := scalarString(a.Value(i)); ok {
		return s, nil
	}
	return "", a.mismatch(i, "scalar")
}

// Object returns argument i as an object.
func (a Args) Object(i int) (*Object, error) {
	if o, ok := a.Value(i).(*Object); ok && o != nil {
		return o, nil
	}
	return nil, a.mismatch(i, "object")
}

// OptionalObject returns argument i as an object, or nil when it is missing
// or null.
func (a Args) OptionalObject(i int) (*Object, error) {
	if a.Value(i) == nil {
		return nil, nil
	}
	return a.Object(i)
}

// StringMap returns argument i as an object of scalar values rendered as
// strings. Nested values are rejected.
func (a Args) StringMap(i int) (map[string]string, error) {
	o, err := a.Object(i)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, o.Len())
	for _, f := range o.fields {
		s, ok := scalarString(f.Value)
		if !ok {
			return nil, &errors.ParseError{
				Source:   "arguments",
				Index:    i,
				Expected: "scalar value for key " + f.Key,
				Got:      f.Value,
			}
		}
		out[f.Key] = s
	}
	return out, nil
}

// Strings collects the string arguments from index from onward. A single
// array argument at from is flattened, so both f("a", "b") and f(["a", "b"])
// are accepted.
func (a Args) Strings(from int) ([]string, error) {
	var rest Args
	if from < len(a) {
		rest = a[from:]
	}
	base := from
	if len(rest) == 1 {
		if arr, ok := rest[0].([]any); ok {
			rest = Args(arr)
		}
	}
	out := make([]string, 0, len(rest))
	for j, v := range rest {
		s, ok := v.(string)
		if !ok {
			return nil, &errors.ParseError{Source: "arguments", Index: base + j, Expected: "string", Got: v}
		}
		out = append(out, s)
	}
	return out, nil
}
