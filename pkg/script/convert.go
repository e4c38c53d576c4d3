package script

import (
	"fmt"
	"math"

	"github.com/Shopify/go-lua"

	"github.com/go-drift/pushbridge/pkg/envelope"
)

const (
	// maxDepth bounds table nesting in both directions. Deeper values
	// convert to nil.
	maxDepth = 32
	// maxNodes bounds how many tables and values one conversion visits, so
	// tables shared many times over cannot blow up.
	maxNodes = 10000
	// stackPerLevel is the Lua stack one nesting level needs.
	stackPerLevel = 4
)

// luaToGo converts the value at index into the envelope value set. Functions,
// userdata and threads become nil, and so does a table that contains itself.
func luaToGo(state *lua.State, index int) any {
	c := fromLua{state: state, path: make(map[any]bool)}
	return c.value(state.AbsIndex(index), 0)
}

type fromLua struct {
	state *lua.State
	// path holds the tables being converted, outermost first.
	path  map[any]bool
	nodes int
}

func (c *fromLua) value(index, depth int) any {
	c.nodes++
	if c.nodes > maxNodes {
		return nil
	}
	switch c.state.TypeOf(index) {
	case lua.TypeString:
		value, _ := c.state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := c.state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return c.state.ToBoolean(index)
	case lua.TypeTable:
		if depth >= maxDepth || !c.state.CheckStack(stackPerLevel) {
			return nil
		}
		id := c.state.ToValue(index)
		if c.path[id] {
			return nil
		}
		c.path[id] = true
		defer delete(c.path, id)
		return c.table(index, depth+1)
	default:
		return nil
	}
}

// table returns a sequence as []any and anything else as an object with
// sorted keys. Non-string keys of an object are dropped. The empty table is
// an empty object.
func (c *fromLua) table(index, depth int) any {
	state := c.state
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, c.value(state.Top(), depth))
			state.Pop(1)
		}
		return result
	}

	fields := map[string]any{}
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			fields[key] = c.value(state.Top(), depth)
		}
		state.Pop(1)
	}
	return envelope.FromMap(fields)
}

// tableToArgs converts a Lua sequence at index into command arguments. nil
// or an absent value is no arguments.
func tableToArgs(state *lua.State, index int) (envelope.Args, error) {
	if state.IsNoneOrNil(index) {
		return envelope.Args{}, nil
	}
	if state.TypeOf(index) != lua.TypeTable {
		return nil, fmt.Errorf("arguments must be a table, got %s", lua.TypeNameOf(state, index))
	}
	index = state.AbsIndex(index)
	n := state.RawLength(index)
	args := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		state.RawGetInt(index, i)
		args = append(args, luaToGo(state, -1))
		state.Pop(1)
	}
	return envelope.NewArgs(args...), nil
}

func normalizeNumber(value float64) any {
	if value == math.Trunc(value) && value >= math.MinInt64 && value < math.MaxInt64 {
		return int64(value)
	}
	return value
}

// pushValue pushes an envelope value. Object fields holding nil are absent
// from the resulting table, and values nested deeper than maxDepth are nil.
func pushValue(state *lua.State, v any) {
	pushAt(state, v, 0)
}

func pushAt(state *lua.State, v any, depth int) {
	switch x := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(x)
	case int64:
		state.PushInteger(int(x))
	case float64:
		state.PushNumber(x)
	case string:
		state.PushString(x)
	case []any:
		if depth >= maxDepth || !state.CheckStack(stackPerLevel) {
			state.PushNil()
			return
		}
		state.CreateTable(len(x), 0)
		for i, e := range x {
			pushAt(state, e, depth+1)
			state.RawSetInt(-2, i+1)
		}
	case *envelope.Object:
		if x == nil || depth >= maxDepth || !state.CheckStack(stackPerLevel) {
			state.PushNil()
			return
		}
		state.CreateTable(0, x.Len())
		for _, f := range x.Fields() {
			pushAt(state, f.Value, depth+1)
			state.SetField(-2, f.Key)
		}
	default:
		pushAt(state, envelope.Normalize(v), depth)
	}
}
