// Package bridge composes the registry, observer multiplexer, display
// controller and command dispatcher into one event/command bridge.
//
// A Bridge is driven from two sides. The native SDK calls into it from
// arbitrary goroutines; the script runtime sends commands through Exec and
// collects events and results with Drain, typically after Ready fires.
package bridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/go-drift/pushbridge/pkg/command"
	"github.com/go-drift/pushbridge/pkg/display"
	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/observer"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Config tunes a Bridge.
type Config struct {
	Display display.Config
	// Wrapper, when its Type is set, is passed to the native init.
	Wrapper command.Wrapper
}

// Bridge is safe for concurrent use.
type Bridge struct {
	native     sdk.SDK
	reg        *registry.Registry
	mux        *observer.Multiplexer
	display    *display.Controller
	dispatcher *command.Dispatcher
	metrics    *metrics.Metrics
	log        *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMetrics records bridge activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithLogger sets the base logger. Each component logs through a child
// tagged with its name.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// New wires a Bridge on top of native. The standard command table and the
// bridge-local listener and display commands are installed.
func New(native sdk.SDK, cfg Config, opts ...Option) *Bridge {
	b := &Bridge{native: native}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Default()
	}

	b.reg = registry.New(
		registry.WithMetrics(b.metrics),
		registry.WithLogger(b.log.WithComponent("registry")),
	)
	b.mux = observer.New(native, b.reg, observer.WithLogger(b.log.WithComponent("observer")))
	b.display = display.New(b.mux, cfg.Display,
		display.WithMetrics(b.metrics),
		display.WithLogger(b.log.WithComponent("display")),
	)
	b.mux.SetInterceptor(b.display)
	b.dispatcher = command.New(b.reg, native,
		command.WithMetrics(b.metrics),
		command.WithLogger(b.log.WithComponent("command")),
	)
	command.RegisterStandard(b.dispatcher)
	if cfg.Wrapper.Type != "" {
		b.dispatcher.Forward("init", cfg.Wrapper.Init())
	}
	b.registerLocal()

	b.log = b.log.WithComponent("bridge")
	return b
}

// Exec dispatches cmd and returns the handle its result will be delivered
// to. An error means no handle was allocated.
func (b *Bridge) Exec(ctx context.Context, cmd command.Command) (registry.Handle, error) {
	return b.dispatcher.Dispatch(ctx, cmd)
}

// AddListener registers a persistent listener for category. Registering the
// same non-empty key again returns the existing handle.
func (b *Bridge) AddListener(ctx context.Context, category sdk.Category, key string) (registry.Handle, error) {
	h, err := b.mux.Register(ctx, category, key)
	if err != nil {
		return "", err
	}
	b.log.Debug("listener added",
		slog.String("category", string(category)),
		slog.String("handle", string(h)),
	)
	return h, nil
}

// RemoveListener drops a listener. It reports whether h was registered.
func (b *Bridge) RemoveListener(h registry.Handle) bool {
	return b.mux.Unregister(h)
}

// PreventDefault suppresses a notification awaiting a display decision.
func (b *Bridge) PreventDefault(id string) error {
	return b.display.PreventDefault(id)
}

// Proceed displays a notification awaiting a display decision, with modified
// fields when payload is not nil.
func (b *Bridge) Proceed(id string, payload *envelope.Object) error {
	return b.display.Proceed(id, payload)
}

// NotificationState reports where notification id is in its display
// lifecycle.
func (b *Bridge) NotificationState(id string) (display.State, bool) {
	return b.display.State(id)
}

// Drain removes and returns every queued outbound message in order.
func (b *Bridge) Drain() []registry.Message {
	return b.reg.Outbox().Drain()
}

// Ready fires after messages were queued.
func (b *Bridge) Ready() <-chan struct{} {
	return b.reg.Outbox().Ready()
}

// SetWake installs a hook called after each enqueue, for hosts that schedule
// the script runtime themselves.
func (b *Bridge) SetWake(fn func()) {
	b.reg.Outbox().SetWake(fn)
}

// Commands returns the dispatchable command names, sorted.
func (b *Bridge) Commands() []string {
	return b.dispatcher.Names()
}

// Close displays every notification still awaiting a decision, waits for
// in-flight commands and releases the native subscriptions. Later calls
// return the first call's result.
func (b *Bridge) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		var errs []error
		if err := b.display.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := b.waitCommands(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := b.mux.Close(); err != nil {
			errs = append(errs, err)
		}
		b.closeErr = stderrors.Join(errs...)
		b.log.Info("bridge closed", slog.Int("queued", b.reg.Outbox().Len()))
	})
	return b.closeErr
}

func (b *Bridge) waitCommands(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
