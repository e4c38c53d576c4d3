// Package observer multiplexes native SDK observer streams onto script
// listeners.
//
// Each category is subscribed on the native side at most once, lazily on the
// first listener registration, and stays subscribed for the life of the
// Multiplexer. Native events are encoded once and delivered to a snapshot of
// the category's listeners taken when the event arrives.
package observer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = stderrors.New("observer multiplexer closed")

// Interceptor takes over notifications that are waiting for a display
// decision. It is expected to call Fanout itself.
type Interceptor interface {
	Intercept(ev sdk.NotificationReceived)
}

// Multiplexer owns the native subscriptions.
type Multiplexer struct {
	native sdk.Subscriber
	reg    *registry.Registry
	log    *logger.Logger

	mu          sync.Mutex
	subs        map[sdk.Category]sdk.Subscription
	interceptor Interceptor
	closed      bool

	// fanout serializes deliveries per category so queued order matches
	// native arrival order.
	fanout map[sdk.Category]*sync.Mutex
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Multiplexer) { m.log = l }
}

// New returns a Multiplexer delivering through reg.
func New(native sdk.Subscriber, reg *registry.Registry, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		native: native,
		reg:    reg,
		subs:   make(map[sdk.Category]sdk.Subscription),
		fanout: make(map[sdk.Category]*sync.Mutex),
	}
	for _, c := range sdk.Categories() {
		m.fanout[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Default().WithComponent("observer")
	}
	return m
}

// SetInterceptor routes NotificationWillDisplay events to i.
func (m *Multiplexer) SetInterceptor(i Interceptor) {
	m.mu.Lock()
	m.interceptor = i
	m.mu.Unlock()
}

// Register adds a persistent listener for category and subscribes to the
// native stream if this is the category's first listener. A failed native
// subscription is returned and retried by the next Register.
func (m *Multiplexer) Register(ctx context.Context, category sdk.Category, key string) (registry.Handle, error) {
	if !category.Valid() {
		return "", &errors.BridgeError{
			Op:       "observer.Register",
			Kind:     errors.KindMalformedArguments,
			Category: string(category),
			Err:      fmt.Errorf("unknown observer category"),
		}
	}
	if err := m.ensureSubscribed(ctx, category); err != nil {
		return "", err
	}
	return m.reg.Register(registry.Options{
		Mode:     registry.Persistent,
		Category: category,
		Key:      key,
	})
}

func (m *Multiplexer) ensureSubscribed(ctx context.Context, category sdk.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.subs[category]; ok {
		return nil
	}
	sub, err := m.native.Subscribe(ctx, category, m.handler(category))
	if err != nil {
		ne := sdk.AsNativeError(err)
		return &errors.BridgeError{
			Op:       "observer.Subscribe",
			Kind:     errors.KindNativeOperationFailed,
			Category: string(category),
			Err:      ne,
		}
	}
	m.subs[category] = sub
	m.log.Debug("subscribed to native observer", slog.String("category", string(category)))
	return nil
}

// Unregister removes a listener. The native subscription stays.
func (m *Multiplexer) Unregister(h registry.Handle) bool {
	return m.reg.Unregister(h)
}

// ListenerCount returns the number of listeners for category.
func (m *Multiplexer) ListenerCount(category sdk.Category) int {
	return len(m.reg.Handles(category))
}

// Subscribed reports whether the native stream for category is open.
func (m *Multiplexer) Subscribed(category sdk.Category) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[category]
	return ok
}

func (m *Multiplexer) handler(category sdk.Category) sdk.Handler {
	return func(ev sdk.Event) {
		defer errors.Recover("observer.dispatch")
		if ev == nil {
			return
		}
		if nr, ok := ev.(sdk.NotificationReceived); ok {
			m.mu.Lock()
			i := m.interceptor
			m.mu.Unlock()
			if i != nil {
				i.Intercept(nr)
				return
			}
			m.Fanout(category, envelope.Encode(ev))
			if nr.Completion != nil {
				if err := nr.Completion.Resolve(sdk.Directive{Display: true}); err != nil {
					errors.Report(&errors.BridgeError{
						Op:           "observer.dispatch",
						Kind:         errors.KindNativeOperationFailed,
						Category:     string(category),
						Notification: nr.Notification.NotificationID,
						Err:          err,
					})
				}
			}
			return
		}
		env := envelope.Encode(ev)
		if env.Category != category {
			m.log.Warn("native event category mismatch",
				slog.String("category", string(category)),
				slog.String("event_category", string(env.Category)),
			)
			env.Category = category
		}
		m.Fanout(category, env)
	}
}

// Fanout delivers a copy of env to every listener registered for category
// when the call starts. Listeners added during the pass are not included.
// It returns the number of listeners that received the event.
func (m *Multiplexer) Fanout(category sdk.Category, env envelope.Envelope) int {
	mu, ok := m.fanout[category]
	if !ok {
		return 0
	}
	mu.Lock()
	defer mu.Unlock()

	delivered := 0
	for _, h := range m.reg.Handles(category) {
		if err := m.reg.Deliver(h, env.Clone()); err == nil {
			delivered++
		}
	}
	return delivered
}

// Close releases every native subscription. Later registrations fail with
// ErrClosed.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[sdk.Category]sdk.Subscription)
	m.mu.Unlock()

	var errs []error
	for _, c := range sdk.Categories() {
		sub, ok := subs[c]
		if !ok {
			continue
		}
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c, err))
		}
	}
	return stderrors.Join(errs...)
}
