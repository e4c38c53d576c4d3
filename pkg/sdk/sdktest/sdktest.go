// Package sdktest provides an in-memory native SDK for tests.
//
// Events are emitted synchronously on the caller's goroutine; invocations and
// completions are recorded so tests can assert on what reached the native
// side.
package sdktest

import (
	"context"
	"sync"

	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Invocation is a recorded native call.
type Invocation struct {
	Op   string
	Args []any
}

// InvokeFunc answers a native call.
type InvokeFunc func(args []any) (any, error)

// SDK is a fake sdk.SDK. The zero value is not usable; call New.
type SDK struct {
	mu          sync.Mutex
	handlers    map[sdk.Category]sdk.Handler
	subscribes  map[sdk.Category]int
	closed      map[sdk.Category]int
	subErrs     map[sdk.Category]error
	answers     map[string]InvokeFunc
	invocations []Invocation
}

// New returns an SDK with no subscriptions.
func New() *SDK {
	return &SDK{
		handlers:   make(map[sdk.Category]sdk.Handler),
		subscribes: make(map[sdk.Category]int),
		closed:     make(map[sdk.Category]int),
		subErrs:    make(map[sdk.Category]error),
		answers:    make(map[string]InvokeFunc),
	}
}

var _ sdk.SDK = (*SDK)(nil)

type subscription struct {
	s        *SDK
	category sdk.Category
	once     sync.Once
}

func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		delete(sub.s.handlers, sub.category)
		sub.s.closed[sub.category]++
		sub.s.mu.Unlock()
	})
	return nil
}

// Subscribe records the subscription. It fails with the error set by
// FailSubscribe, once.
func (s *SDK) Subscribe(ctx context.Context, category sdk.Category, h sdk.Handler) (sdk.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.subErrs[category]; ok {
		delete(s.subErrs, category)
		return nil, err
	}
	s.handlers[category] = h
	s.subscribes[category]++
	return &subscription{s: s, category: category}, nil
}

// FailSubscribe makes the next Subscribe for category return err.
func (s *SDK) FailSubscribe(category sdk.Category, err error) {
	s.mu.Lock()
	s.subErrs[category] = err
	s.mu.Unlock()
}

// Invoke records the call and answers it with the function set by OnInvoke,
// or a nil result.
func (s *SDK) Invoke(ctx context.Context, op string, args []any) (any, error) {
	s.mu.Lock()
	s.invocations = append(s.invocations, Invocation{Op: op, Args: args})
	fn := s.answers[op]
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, nil
	}
	return fn(args)
}

// OnInvoke sets the answer for op.
func (s *SDK) OnInvoke(op string, fn InvokeFunc) {
	s.mu.Lock()
	s.answers[op] = fn
	s.mu.Unlock()
}

// Invocations returns the recorded calls in order.
func (s *SDK) Invocations() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invocation(nil), s.invocations...)
}

// Invoked returns the recorded calls of op.
func (s *SDK) Invoked(op string) []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Invocation
	for _, inv := range s.invocations {
		if inv.Op == op {
			out = append(out, inv)
		}
	}
	return out
}

// SubscribeCount returns how many native subscriptions were opened for
// category.
func (s *SDK) SubscribeCount(category sdk.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[category]
}

// CloseCount returns how many subscriptions for category were closed.
func (s *SDK) CloseCount(category sdk.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[category]
}

// Emit delivers ev to the subscriber of its category. It reports whether
// anyone was subscribed.
func (s *SDK) Emit(ev sdk.Event) bool {
	s.mu.Lock()
	h := s.handlers[ev.Category()]
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(ev)
	return true
}

// Notify emits a foreground notification with a fresh Completion and returns
// the completion.
func (s *SDK) Notify(n sdk.Notification) *Completion {
	c := &Completion{}
	s.Emit(sdk.NotificationReceived{Notification: n, Completion: c})
	return c
}

// Completion records every Resolve call.
type Completion struct {
	// Err is returned from Resolve when set.
	Err error

	mu         sync.Mutex
	directives []sdk.Directive
	done       chan struct{}
}

// Resolve records d.
func (c *Completion) Resolve(d sdk.Directive) error {
	c.mu.Lock()
	c.directives = append(c.directives, d)
	if c.done == nil {
		c.done = make(chan struct{})
	}
	if len(c.directives) == 1 {
		close(c.done)
	}
	c.mu.Unlock()
	return c.Err
}

// Calls returns how many times Resolve ran.
func (c *Completion) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.directives)
}

// Last returns the most recent directive.
func (c *Completion) Last() (sdk.Directive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.directives) == 0 {
		return sdk.Directive{}, false
	}
	return c.directives[len(c.directives)-1], true
}

// Done is closed after the first Resolve.
func (c *Completion) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}
