package registry

import (
	"sync"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// Kind tells event deliveries from command results.
type Kind int

const (
	// KindEvent is an observer event for a persistent handle.
	KindEvent Kind = iota
	// KindResult is a command result for a one-shot handle.
	KindResult
)

func (k Kind) String() string {
	if k == KindResult {
		return "result"
	}
	return "event"
}

// Result is the outcome of a command: a success value or a failure code and
// message.
type Result struct {
	OK    bool
	Value any
	// Kind is the bridge error code of a failure, e.g. "MalformedArguments".
	Kind string
	// Code is the failure code. It equals Kind unless the native SDK
	// reported its own code.
	Code    string
	Message string
}

// Success returns a successful result carrying v.
func Success(v any) Result {
	return Result{OK: true, Value: v}
}

// Failure returns a failed result whose kind and code are both code.
func Failure(code, message string) Result {
	return Result{Kind: code, Code: code, Message: message}
}

// Message is one item queued for the script runtime.
type Message struct {
	// Seq increases by one for every queued message.
	Seq      uint64
	Kind     Kind
	Category sdk.Category
	Handle   Handle
	Envelope envelope.Envelope
	Result   Result
	// KeepAlive is true when the handle stays registered after this message.
	KeepAlive bool
}

// Outbox is the FIFO queue between native goroutines and the script runtime's
// single entry point.
type Outbox struct {
	mu    sync.Mutex
	queue []Message
	seq   uint64
	ready chan struct{}
	wake  func()
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

func (o *Outbox) push(m Message) {
	o.mu.Lock()
	o.seq++
	m.Seq = o.seq
	o.queue = append(o.queue, m)
	o.mu.Unlock()
}

// notify signals Ready and runs the wake hook. It must be called without
// holding registry locks.
func (o *Outbox) notify() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
	o.mu.Lock()
	wake := o.wake
	o.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// Drain removes and returns every queued message in order.
func (o *Outbox) Drain() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	out := o.queue
	o.queue = nil
	return out
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Ready is signalled after messages are queued. Signals coalesce, so a
// receiver should Drain until empty.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// SetWake installs a hook run after each enqueue, for hosts that schedule
// the script runtime themselves. The hook must not block.
func (o *Outbox) SetWake(fn func()) {
	o.mu.Lock()
	o.wake = fn
	o.mu.Unlock()
}
