package script

import "github.com/Shopify/go-lua"

// refsKey names the registry table that keeps Lua callbacks reachable while
// Go holds their ids.
const refsKey = "pushbridge.refs"

// refs hands out integer ids for Lua values stored in the refs table. Ids
// are never reused. Callers hold Runtime.mu.
type refs struct {
	next int
	live int
}

func (f *refs) init(state *lua.State) {
	state.NewTable()
	state.SetField(lua.RegistryIndex, refsKey)
}

// store keeps the value at index and returns its id.
func (f *refs) store(state *lua.State, index int) int {
	index = state.AbsIndex(index)
	f.next++
	state.Field(lua.RegistryIndex, refsKey)
	state.PushValue(index)
	state.RawSetInt(-2, f.next)
	state.Pop(1)
	f.live++
	return f.next
}

// push pushes the value stored under id, or nil once it is released.
func (f *refs) push(state *lua.State, id int) {
	state.Field(lua.RegistryIndex, refsKey)
	state.RawGetInt(-1, id)
	state.Remove(-2)
}

// release drops the value stored under id.
func (f *refs) release(state *lua.State, id int) {
	state.Field(lua.RegistryIndex, refsKey)
	state.RawGetInt(-1, id)
	held := !state.IsNil(-1)
	state.Pop(1)
	state.PushNil()
	state.RawSetInt(-2, id)
	state.Pop(1)
	if held {
		f.live--
	}
}

// count returns how many values are stored.
func (f *refs) count() int {
	return f.live
}
