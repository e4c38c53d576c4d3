// Package command dispatches named commands from the script runtime to
// bridge-local handlers or native SDK operations.
//
// Every dispatched command resolves its one-shot result handle exactly once,
// with a success value or a failure code. Native calls run on their own
// goroutine, so Dispatch never blocks on the SDK.
package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Command is one inbound command.
type Command struct {
	Name string
	// Args is a JSON array. Empty means no arguments.
	Args []byte
	// CallbackID is the script's own result handle, if it has one.
	CallbackID string
}

// HandlerFunc runs a command and returns its result value.
type HandlerFunc func(ctx context.Context, args envelope.Args) (any, error)

// Dispatcher routes commands by name. It is safe for concurrent use.
type Dispatcher struct {
	reg     *registry.Registry
	native  sdk.Invoker
	metrics *metrics.Metrics
	log     *logger.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	inflight sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics counts commands on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New returns a Dispatcher with no commands bound.
func New(reg *registry.Registry, native sdk.Invoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		native:   native,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Default().WithComponent("command")
	}
	return d
}

// Handle binds name to fn, replacing any previous binding.
func (d *Dispatcher) Handle(name string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[name] = fn
	d.mu.Unlock()
}

// Forward binds name to the native operation described by spec. Arguments
// are validated against spec before the SDK sees them.
func (d *Dispatcher) Forward(name string, spec Spec) {
	d.Handle(name, func(ctx context.Context, args envelope.Args) (any, error) {
		native, err := spec.Validate(args)
		if err != nil {
			return nil, err
		}
		return d.native.Invoke(ctx, spec.Op, native)
	})
}

// Names returns the bound command names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(name string) HandlerFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[name]
}

// Dispatch allocates the command's result handle and starts it. The handle
// is resolved exactly once, possibly before Dispatch returns. An error is
// returned only when no handle could be allocated, for example because
// cmd.CallbackID is already live.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (registry.Handle, error) {
	h, err := d.reg.Register(registry.Options{
		Mode:    registry.OneShot,
		Command: cmd.Name,
		ID:      cmd.CallbackID,
	})
	if err != nil {
		return "", err
	}

	fn := d.lookup(cmd.Name)
	if fn == nil {
		d.resolve(h, cmd.Name, nil, &errors.BridgeError{
			Op:      "command.Dispatch",
			Kind:    errors.KindUnsupportedCommand,
			Command: cmd.Name,
			Err:     fmt.Errorf("unsupported command %q", cmd.Name),
		})
		return h, nil
	}

	args, err := envelope.Decode(cmd.Args)
	if err != nil {
		d.resolve(h, cmd.Name, nil, err)
		return h, nil
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer errors.RecoverWithCallback("command."+cmd.Name, func(r any) {
			d.resolve(h, cmd.Name, nil, &errors.BridgeError{
				Op:      "command.Dispatch",
				Kind:    errors.KindPanic,
				Command: cmd.Name,
				Err:     fmt.Errorf("panic: %v", r),
			})
		})
		value, err := fn(ctx, args)
		d.resolve(h, cmd.Name, value, err)
	}()
	return h, nil
}

// Wait blocks until every in-flight command has resolved.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) resolve(h registry.Handle, name string, value any, err error) {
	res := toResult(name, value, err)
	outcome := "ok"
	if !res.OK {
		outcome = res.Kind
		d.log.Debug("command failed",
			slog.String("command", name),
			slog.String("handle", string(h)),
			slog.String("kind", res.Kind),
			slog.String("code", res.Code),
			slog.String("error", res.Message),
		)
	}
	d.metrics.Command(name, outcome)
	// A stale handle here means the script unregistered it; Deliver reports it.
	_ = d.reg.Deliver(h, res)
}

// toResult maps a handler outcome onto a command result. Native failures keep
// the SDK's code and message verbatim.
func toResult(name string, value any, err error) registry.Result {
	if err == nil {
		return registry.Success(envelope.Normalize(value))
	}
	kind := errors.KindOf(err)
	switch kind {
	case errors.KindUnsupportedCommand, errors.KindMalformedArguments, errors.KindProtocolViolation,
		errors.KindStaleHandle, errors.KindPanic, errors.KindScript:
		var pe *errors.ParseError
		if stderrors.As(err, &pe) && pe.Source == "arguments" {
			pe.Source = name
		}
		return registry.Result{Kind: kind.Code(), Code: kind.Code(), Message: err.Error()}
	default:
		ne := sdk.AsNativeError(err)
		return registry.Result{
			Kind:    errors.KindNativeOperationFailed.Code(),
			Code:    ne.Code,
			Message: ne.Message,
		}
	}
}
