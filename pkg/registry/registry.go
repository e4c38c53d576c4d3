// Package registry binds callback handles to script-side continuations and
// queues deliveries for the script runtime.
//
// A handle is either one-shot (a command result, consumed by its single
// delivery) or persistent (an observer listener that stays until it is
// unregistered). Deliveries are never made directly: they are appended to
// the Outbox and drained on the runtime's own turn.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Handle is an opaque callback registration token.
type Handle string

// Mode is the delivery cardinality of a handle. It never changes after
// registration.
type Mode int

const (
	// OneShot handles accept exactly one delivery.
	OneShot Mode = iota
	// Persistent handles accept deliveries until unregistered.
	Persistent
)

func (m Mode) String() string {
	if m == Persistent {
		return "persistent"
	}
	return "one-shot"
}

// Options describes a registration.
type Options struct {
	Mode Mode
	// Category is required for persistent handles.
	Category sdk.Category
	// Command names the command a one-shot handle answers, for diagnostics.
	Command string
	// ID is a script-supplied handle. It is rejected while already live.
	ID string
	// Key identifies a logical listener. Registering a persistent handle
	// twice with the same category and key returns the first handle.
	Key string
}

type binding struct {
	mode     Mode
	category sdk.Category
	command  string
	key      string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	bindings map[Handle]*binding
	keys     map[sdk.Category]map[string]Handle
	order    map[sdk.Category][]Handle

	outbox  *Outbox
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records deliveries on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New returns an empty registry with its own outbox.
func New(opts ...Option) *Registry {
	r := &Registry{
		bindings: make(map[Handle]*binding),
		keys:     make(map[sdk.Category]map[string]Handle),
		order:    make(map[sdk.Category][]Handle),
		outbox:   NewOutbox(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Default().WithComponent("registry")
	}
	return r
}

// Outbox returns the queue deliveries are appended to.
func (r *Registry) Outbox() *Outbox {
	return r.outbox
}

// Register allocates a handle.
func (r *Registry) Register(opts Options) (Handle, error) {
	if opts.Mode == Persistent && !opts.Category.Valid() {
		return "", &errors.BridgeError{
			Op:       "registry.Register",
			Kind:     errors.KindMalformedArguments,
			Category: string(opts.Category),
			Err:      fmt.Errorf("persistent handle needs a known category"),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.Mode == Persistent && opts.Key != "" {
		if h, ok := r.keys[opts.Category][opts.Key]; ok {
			return h, nil
		}
	}

	h := Handle(opts.ID)
	if h == "" {
		h = Handle(uuid.NewString())
	} else if _, live := r.bindings[h]; live {
		return "", &errors.BridgeError{
			Op:      "registry.Register",
			Kind:    errors.KindMalformedArguments,
			Handle:  string(h),
			Command: opts.Command,
			Err:     fmt.Errorf("handle already registered"),
		}
	}

	r.bindings[h] = &binding{
		mode:     opts.Mode,
		category: opts.Category,
		command:  opts.Command,
		key:      opts.Key,
	}
	if opts.Mode == Persistent {
		if opts.Key != "" {
			if r.keys[opts.Category] == nil {
				r.keys[opts.Category] = make(map[string]Handle)
			}
			r.keys[opts.Category][opts.Key] = h
		}
		r.order[opts.Category] = append(r.order[opts.Category], h)
	}
	r.log.Debug("registered handle",
		slog.String("handle", string(h)),
		slog.String("mode", opts.Mode.String()),
		slog.String("category", string(opts.Category)),
		slog.String("command", opts.Command),
	)
	return h, nil
}

// Deliver queues payload for h. payload is an envelope.Envelope for events or
// a Result for commands. A one-shot handle is removed in the same critical
// section that queues its message. Delivering to an unknown handle is
// reported as StaleHandle and returned, never fatal.
func (r *Registry) Deliver(h Handle, payload any) error {
	msg := Message{Handle: h}
	switch p := payload.(type) {
	case envelope.Envelope:
		msg.Kind = KindEvent
		msg.Category = p.Category
		msg.Envelope = p
	case Result:
		msg.Kind = KindResult
		msg.Result = p
	default:
		return &errors.BridgeError{
			Op:     "registry.Deliver",
			Kind:   errors.KindMalformedArguments,
			Handle: string(h),
			Err:    fmt.Errorf("unsupported payload %T", payload),
		}
	}

	r.mu.Lock()
	b, ok := r.bindings[h]
	if !ok {
		r.mu.Unlock()
		r.metrics.StaleDelivery()
		err := &errors.BridgeError{
			Op:       "registry.Deliver",
			Kind:     errors.KindStaleHandle,
			Category: string(msg.Category),
			Handle:   string(h),
			Err:      fmt.Errorf("handle is not registered"),
		}
		errors.Report(err)
		return err
	}
	if msg.Category == "" {
		msg.Category = b.category
	}
	if b.mode == Persistent {
		msg.KeepAlive = true
	} else {
		r.removeLocked(h, b)
	}
	r.outbox.push(msg)
	r.mu.Unlock()

	r.metrics.Delivered(string(msg.Category), msg.KeepAlive)
	r.outbox.notify()
	return nil
}

// Unregister removes h, reporting whether it was registered.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[h]
	if !ok {
		return false
	}
	r.removeLocked(h, b)
	return true
}

func (r *Registry) removeLocked(h Handle, b *binding) {
	delete(r.bindings, h)
	if b.mode != Persistent {
		return
	}
	if b.key != "" && r.keys[b.category][b.key] == h {
		delete(r.keys[b.category], b.key)
	}
	handles := r.order[b.category]
	for i, other := range handles {
		if other == h {
			r.order[b.category] = append(handles[:i:i], handles[i+1:]...)
			break
		}
	}
}

// Handles returns a snapshot of the persistent handles for category in
// registration order.
func (r *Registry) Handles(category sdk.Category) []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Handle(nil), r.order[category]...)
}

// Mode reports the mode of h and whether it is registered.
func (r *Registry) Mode(h Handle) (Mode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[h]
	if !ok {
		return 0, false
	}
	return b.mode, true
}

// Category returns the category a persistent handle listens to.
func (r *Registry) Category(h Handle) (sdk.Category, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[h]
	if !ok || b.mode != Persistent {
		return "", false
	}
	return b.category, true
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
