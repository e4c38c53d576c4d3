// Package script runs the Lua side of the bridge.
//
// A Runtime owns one Lua state. Lua code is only ever entered from Load,
// LoadString and Pump, never from native SDK goroutines: events and command
// results wait in the bridge outbox until Pump hands them to the Lua
// functions that asked for them.
//
// Scripts talk to the bridge through the global pushbridge table:
//
//	pushbridge.exec(name, args, fn)        -- fn(ok, value_or_error)
//	pushbridge.on(category, fn [, key])    -- returns a handle; fn(event, category)
//	pushbridge.off(handle)                 -- returns true if it was registered
//	pushbridge.prevent_default(id)         -- returns true or nil, message
//	pushbridge.proceed(id [, payload])     -- returns true or nil, message
//	pushbridge.log(level, message)
package script

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/go-drift/pushbridge/pkg/bridge"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

type listener struct {
	category sdk.Category
	ref      int
}

// Runtime is safe for concurrent use; calls into Lua are serialized.
type Runtime struct {
	b   *bridge.Bridge
	log *logger.Logger

	mu        sync.Mutex
	state     *lua.State
	ctx       context.Context
	refs      refs
	results   map[registry.Handle]int
	listeners map[registry.Handle]listener
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used for pushbridge.log and callback errors.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// New creates a Lua state with the standard libraries and the pushbridge
// table bound to b.
func New(b *bridge.Bridge, opts ...Option) *Runtime {
	r := &Runtime{
		b:         b,
		state:     lua.NewState(),
		ctx:       context.Background(),
		results:   make(map[registry.Handle]int),
		listeners: make(map[registry.Handle]listener),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Default().WithComponent("script")
	}
	lua.OpenLibraries(r.state)
	r.refs.init(r.state)
	r.registerAPI()
	return r
}

// Load runs the script at path.
func (r *Runtime) Load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run("script.Load", path, func() error {
		return lua.LoadFile(r.state, path, "")
	})
}

// LoadString runs src as a chunk called name.
func (r *Runtime) LoadString(name, src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run("script.LoadString", name, func() error {
		return lua.LoadBuffer(r.state, src, name, "")
	})
}

// Compile checks that src parses without running it.
func (r *Runtime) Compile(name, src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	top := r.state.Top()
	defer r.state.SetTop(top)
	if err := lua.LoadBuffer(r.state, src, name, ""); err != nil {
		return &errors.BridgeError{Op: "script.Compile", Kind: errors.KindScript, Err: fmt.Errorf("%s: %w", name, err)}
	}
	return nil
}

func (r *Runtime) run(op, name string, load func() error) error {
	top := r.state.Top()
	defer r.state.SetTop(top)
	if err := load(); err != nil {
		return &errors.BridgeError{Op: op, Kind: errors.KindScript, Err: fmt.Errorf("load %s: %w", name, err)}
	}
	if err := r.state.ProtectedCall(0, 0, 0); err != nil {
		return &errors.BridgeError{Op: op, Kind: errors.KindScript, Err: fmt.Errorf("run %s: %w", name, err)}
	}
	return nil
}

// Pump hands every queued message to its Lua function in order and returns
// how many messages were drained. Messages for handles the script no longer
// tracks are dropped.
func (r *Runtime) Pump() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.b.Drain()
	for _, msg := range msgs {
		r.deliver(msg)
	}
	return len(msgs)
}

// Run pumps whenever the bridge signals new messages, until ctx is done.
// Commands issued by the script while Run is active use ctx.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.Pump()
	for {
		select {
		case <-ctx.Done():
			r.Pump()
			return nil
		case <-r.b.Ready():
			r.Pump()
		}
	}
}

// Listeners returns the number of Lua event listeners.
func (r *Runtime) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// PendingCallbacks returns the number of command callbacks still waiting
// for their result.
func (r *Runtime) PendingCallbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Close releases the Lua references. The bridge is left open.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, ref := range r.results {
		r.refs.release(r.state, ref)
		delete(r.results, h)
	}
	for h, l := range r.listeners {
		r.refs.release(r.state, l.ref)
		delete(r.listeners, h)
	}
}

func (r *Runtime) deliver(msg registry.Message) {
	defer errors.Recover("script.deliver")
	defer r.state.SetTop(r.state.Top())

	switch msg.Kind {
	case registry.KindResult:
		ref, ok := r.results[msg.Handle]
		if !ok {
			return
		}
		delete(r.results, msg.Handle)
		defer r.refs.release(r.state, ref)

		r.refs.push(r.state, ref)
		if msg.Result.OK {
			r.state.PushBoolean(true)
			pushValue(r.state, msg.Result.Value)
		} else {
			r.state.PushBoolean(false)
			r.state.CreateTable(0, 3)
			r.state.PushString(msg.Result.Kind)
			r.state.SetField(-2, "kind")
			r.state.PushString(msg.Result.Code)
			r.state.SetField(-2, "code")
			r.state.PushString(msg.Result.Message)
			r.state.SetField(-2, "message")
		}
		r.call(msg, 2)

	case registry.KindEvent:
		l, ok := r.listeners[msg.Handle]
		if !ok {
			return
		}
		r.refs.push(r.state, l.ref)
		pushValue(r.state, msg.Envelope.Fields)
		r.state.PushString(string(msg.Category))
		r.call(msg, 2)
	}
}

// call runs the function below the top nargs values. A Lua error is
// reported and the state is restored.
func (r *Runtime) call(msg registry.Message, nargs int) {
	top := r.state.Top() - nargs - 1
	defer r.state.SetTop(top)
	if err := r.state.ProtectedCall(nargs, 0, 0); err != nil {
		r.log.Warn("script callback failed",
			slog.String("handle", string(msg.Handle)),
			slog.String("category", string(msg.Category)),
			slog.String("error", err.Error()),
		)
		errors.Report(&errors.BridgeError{
			Op:       "script.callback",
			Kind:     errors.KindScript,
			Category: string(msg.Category),
			Handle:   string(msg.Handle),
			Err:      err,
		})
	}
}
