package command

import (
	"fmt"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
)

// ArgKind is the expected shape of one command argument.
type ArgKind int

const (
	// ArgString is a string.
	ArgString ArgKind = iota
	// ArgBool is a bool.
	ArgBool
	// ArgNumber is any number, passed on as float64.
	ArgNumber
	// ArgInt is an integral number, passed on as int64.
	ArgInt
	// ArgScalar is a string, number or bool, passed on as a string.
	ArgScalar
	// ArgObject is an object, passed on as map[string]any.
	ArgObject
	// ArgOptionalObject is an object or null, passed on as map[string]any or nil.
	ArgOptionalObject
	// ArgStringMap is an object of scalars, passed on as map[string]string.
	ArgStringMap
	// ArgStrings consumes the remaining arguments, or a single array, as
	// []string. It must be last.
	ArgStrings
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgBool:
		return "bool"
	case ArgNumber:
		return "number"
	case ArgInt:
		return "integer"
	case ArgScalar:
		return "scalar"
	case ArgObject:
		return "object"
	case ArgOptionalObject:
		return "object?"
	case ArgStringMap:
		return "map<string,string>"
	case ArgStrings:
		return "string..."
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Spec binds a command to a native operation.
type Spec struct {
	// Op is the native operation name.
	Op string
	// Args lists the expected arguments in order.
	Args []ArgKind
	// Rewrite, when set, reshapes the validated arguments for Op.
	Rewrite func(args []any) []any
}

// Validate checks args against s.Args and converts them into the values
// passed to the native SDK. Failures are *errors.ParseError.
func (s Spec) Validate(args envelope.Args) ([]any, error) {
	variadic := len(s.Args) > 0 && s.Args[len(s.Args)-1] == ArgStrings
	if !variadic && args.Len() > len(s.Args) {
		return nil, &errors.ParseError{
			Source:   "arguments",
			Index:    len(s.Args),
			Expected: fmt.Sprintf("at most %d arguments", len(s.Args)),
			Got:      args.Value(len(s.Args)),
		}
	}

	out := make([]any, 0, len(s.Args))
	for i, kind := range s.Args {
		v, err := convert(args, i, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if s.Rewrite != nil {
		out = s.Rewrite(out)
	}
	return out, nil
}

func convert(args envelope.Args, i int, kind ArgKind) (any, error) {
	switch kind {
	case ArgString:
		return args.String(i)
	case ArgBool:
		return args.Bool(i)
	case ArgNumber:
		return args.Number(i)
	case ArgInt:
		return args.Int(i)
	case ArgScalar:
		return args.Scalar(i)
	case ArgObject:
		o, err := args.Object(i)
		if err != nil {
			return nil, err
		}
		return o.Map(), nil
	case ArgOptionalObject:
		o, err := args.OptionalObject(i)
		if err != nil || o == nil {
			return nil, err
		}
		return o.Map(), nil
	case ArgStringMap:
		return args.StringMap(i)
	case ArgStrings:
		return args.Strings(i)
	default:
		return nil, fmt.Errorf("unknown argument kind %v", kind)
	}
}
