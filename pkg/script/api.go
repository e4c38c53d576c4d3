package script

import (
	"log/slog"

	"github.com/Shopify/go-lua"

	"github.com/go-drift/pushbridge/pkg/command"
	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

func (r *Runtime) registerAPI() {
	r.state.NewTable()
	lua.SetFunctions(r.state, []lua.RegistryFunction{
		{Name: "exec", Function: r.exec},
		{Name: "on", Function: r.on},
		{Name: "off", Function: r.off},
		{Name: "prevent_default", Function: r.preventDefault},
		{Name: "proceed", Function: r.proceed},
		{Name: "log", Function: r.logMessage},
	}, 0)

	r.state.NewTable()
	for _, c := range sdk.Categories() {
		r.state.PushString(string(c))
		r.state.SetField(-2, string(c))
	}
	r.state.SetField(-2, "categories")

	r.state.SetGlobal("pushbridge")
}

// exec(name [, args [, fn]]) returns the command's handle.
func (r *Runtime) exec(state *lua.State) int {
	name := lua.CheckString(state, 1)
	args, err := tableToArgs(state, 2)
	if err != nil {
		lua.ArgumentError(state, 2, err.Error())
		return 0
	}
	hasCallback := !state.IsNoneOrNil(3)
	if hasCallback {
		lua.CheckType(state, 3, lua.TypeFunction)
	}
	data, err := envelope.EncodeArgs(args)
	if err != nil {
		lua.ArgumentError(state, 2, err.Error())
		return 0
	}

	h, err := r.b.Exec(r.ctx, command.Command{Name: name, Args: data})
	if err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	if hasCallback {
		r.results[h] = r.refs.store(state, 3)
	}
	state.PushString(string(h))
	return 1
}

// on(category, fn [, key]) returns the listener handle. Without a key the
// same function registered twice for a category keeps its first handle.
func (r *Runtime) on(state *lua.State) int {
	category := sdk.Category(lua.CheckString(state, 1))
	lua.CheckType(state, 2, lua.TypeFunction)
	key := lua.OptString(state, 3, "")

	if key == "" {
		for h, l := range r.listeners {
			if l.category != category {
				continue
			}
			r.refs.push(state, l.ref)
			same := state.RawEqual(-1, 2)
			state.Pop(1)
			if same {
				state.PushString(string(h))
				return 1
			}
		}
	}

	h, err := r.b.AddListener(r.ctx, category, key)
	if err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	if old, ok := r.listeners[h]; ok {
		r.refs.release(state, old.ref)
	}
	r.listeners[h] = listener{category: category, ref: r.refs.store(state, 2)}
	state.PushString(string(h))
	return 1
}

// off(handle) reports whether the listener was registered.
func (r *Runtime) off(state *lua.State) int {
	h := registry.Handle(lua.CheckString(state, 1))
	removed := r.b.RemoveListener(h)
	if l, ok := r.listeners[h]; ok {
		r.refs.release(state, l.ref)
		delete(r.listeners, h)
	}
	state.PushBoolean(removed)
	return 1
}

// prevent_default(id) returns true, or nil and the violation message.
func (r *Runtime) preventDefault(state *lua.State) int {
	id := lua.CheckString(state, 1)
	return pushStatus(state, r.b.PreventDefault(id))
}

// proceed(id [, payload]) returns true, or nil and the violation message.
func (r *Runtime) proceed(state *lua.State) int {
	id := lua.CheckString(state, 1)
	var payload *envelope.Object
	if !state.IsNoneOrNil(2) {
		lua.CheckType(state, 2, lua.TypeTable)
		obj, ok := luaToGo(state, 2).(*envelope.Object)
		if !ok {
			lua.ArgumentError(state, 2, "payload must be a table with string keys")
			return 0
		}
		payload = obj
	}
	return pushStatus(state, r.b.Proceed(id, payload))
}

func pushStatus(state *lua.State, err error) int {
	if err != nil {
		state.PushNil()
		state.PushString(err.Error())
		return 2
	}
	state.PushBoolean(true)
	return 1
}

// log(level, message)
func (r *Runtime) logMessage(state *lua.State) int {
	level := lua.CheckString(state, 1)
	msg := lua.CheckString(state, 2)

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lua.ArgumentError(state, 1, "level must be debug, info, warn or error")
		return 0
	}
	r.log.Log(r.ctx, lvl, msg, slog.String("source", "lua"))
	return 0
}
