// Package display holds foreground notifications open while script listeners
// decide whether they are shown.
//
// Each notification id moves through
//
//	Received -> AwaitingScriptDecision -> Suppressed | Displayed -> Resolved
//
// or straight from Received to Displayed when nobody listens. The Controller
// is the only caller of a notification's native completion and calls it
// exactly once per native event.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

// State is the lifecycle position of a pending notification.
type State int

const (
	// Received is a notification the controller has taken but not yet
	// fanned out.
	Received State = iota
	// AwaitingScriptDecision holds the completion open until a directive
	// or the timeout.
	AwaitingScriptDecision
	// Suppressed is the decision not to show the notification.
	Suppressed
	// Displayed is the decision to show the notification.
	Displayed
	// Resolved means the completion has been called.
	Resolved
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case AwaitingScriptDecision:
		return "awaiting_script_decision"
	case Suppressed:
		return "suppressed"
	case Displayed:
		return "displayed"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Cause records what produced a decision.
type Cause string

const (
	// CauseDirective is a preventDefault or proceed from the script.
	CauseDirective Cause = "directive"
	// CauseTimeout is the display timeout firing before any directive.
	CauseTimeout Cause = "timeout"
	// CausePassthrough is a notification nobody listened for, or one that
	// arrived after Close.
	CausePassthrough Cause = "passthrough"
	// CauseShutdown is Close forcing a pending notification to display.
	CauseShutdown Cause = "shutdown"
)

const (
	// DefaultTimeout matches the window the native SDK allows a foreground
	// notification to wait before it must be shown.
	DefaultTimeout = 25 * time.Second
	// DefaultHistory is how many resolved ids are remembered.
	DefaultHistory = 256
)

// Config tunes a Controller.
type Config struct {
	// Timeout bounds AwaitingScriptDecision. Zero means DefaultTimeout.
	Timeout time.Duration
	// History bounds the resolved ids kept to detect late duplicates. Zero
	// means DefaultHistory.
	History int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.History <= 0 {
		c.History = DefaultHistory
	}
	return c
}

// Fanout is the delivery side the controller hands notifications to.
type Fanout interface {
	ListenerCount(category sdk.Category) int
	Fanout(category sdk.Category, env envelope.Envelope) int
}

// Resolution is the recorded outcome for a notification id.
type Resolution struct {
	Decision State
	Cause    Cause
}

type pending struct {
	id          string
	env         envelope.Envelope
	state       State
	decision    Resolution
	directive   sdk.Directive
	completions []sdk.Completion
	timer       *time.Timer
}

// Controller is safe for concurrent use.
type Controller struct {
	out     Fanout
	cfg     Config
	metrics *metrics.Metrics
	log     *logger.Logger

	mu       sync.Mutex
	entries  map[string]*pending
	history  map[string]*pending
	resolved []string
	closed   bool

	timers sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records resolutions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New returns a Controller delivering through out.
func New(out Fanout, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		out:     out,
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*pending),
		history: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Default().WithComponent("display")
	}
	return c
}

// Intercept takes ownership of a foreground notification. With no listeners
// it is displayed at once; otherwise listeners get the envelope and the
// controller waits for a directive or the timeout.
func (c *Controller) Intercept(ev sdk.NotificationReceived) {
	id := ev.Notification.NotificationID
	env := envelope.Encode(ev)

	c.mu.Lock()
	if p, ok := c.entries[id]; ok {
		if ev.Completion != nil {
			p.completions = append(p.completions, ev.Completion)
		}
		c.mu.Unlock()
		c.violation("display.Intercept", id, "duplicate event for a notification awaiting a decision")
		return
	}
	if p, ok := c.history[id]; ok {
		d := p.directive
		c.mu.Unlock()
		c.violation("display.Intercept", id, "duplicate event for a resolved notification")
		c.resolveCompletion(id, ev.Completion, d)
		return
	}
	p := &pending{id: id, env: env, state: Received}
	if ev.Completion != nil {
		p.completions = []sdk.Completion{ev.Completion}
	}
	c.entries[id] = p
	closed := c.closed
	c.updatePendingLocked()
	c.mu.Unlock()

	if closed {
		c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CausePassthrough})
		return
	}
	if id == "" {
		c.log.Warn("notification without id cannot be intercepted")
		c.out.Fanout(sdk.NotificationWillDisplay, env)
		c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CausePassthrough})
		return
	}
	if c.out.ListenerCount(sdk.NotificationWillDisplay) == 0 {
		c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CausePassthrough})
		return
	}
	if c.out.Fanout(sdk.NotificationWillDisplay, env) == 0 {
		c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CausePassthrough})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p.state != Received {
		// Resolved while the fan-out was running.
		return
	}
	p.state = AwaitingScriptDecision
	c.timers.Add(1)
	p.timer = time.AfterFunc(c.cfg.Timeout, func() {
		defer c.timers.Done()
		c.expire(p)
	})
}

// PreventDefault suppresses the notification: its completion is told not to
// display it.
func (c *Controller) PreventDefault(id string) error {
	return c.direct("display.PreventDefault", id, sdk.Directive{Display: false}, Suppressed)
}

// Proceed displays the notification, replacing fields with modified when it
// is not nil.
func (c *Controller) Proceed(id string, modified *envelope.Object) error {
	d := sdk.Directive{Display: true}
	if modified != nil {
		d.Modified = modified.Map()
	}
	return c.direct("display.Proceed", id, d, Displayed)
}

func (c *Controller) direct(op, id string, d sdk.Directive, decision State) error {
	c.mu.Lock()
	p, ok := c.entries[id]
	_, resolved := c.history[id]
	c.mu.Unlock()

	if !ok {
		reason := "unknown notification"
		if resolved {
			reason = "notification already resolved"
		}
		return c.violation(op, id, reason)
	}
	if !c.finish(p, d, Resolution{decision, CauseDirective}) {
		return c.violation(op, id, "notification already resolved")
	}
	return nil
}

func (c *Controller) expire(p *pending) {
	c.mu.Lock()
	awaiting := p.state == AwaitingScriptDecision
	c.mu.Unlock()
	if !awaiting {
		return
	}
	if c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CauseTimeout}) {
		c.log.Info("notification display decision timed out",
			slog.String("notification_id", p.id),
			slog.Duration("timeout", c.cfg.Timeout),
		)
	}
}

// finish moves p to its decision, invokes every completion attached to it and
// marks it Resolved. It returns false when p was already decided.
func (c *Controller) finish(p *pending, d sdk.Directive, r Resolution) bool {
	c.mu.Lock()
	if p.state != Received && p.state != AwaitingScriptDecision {
		c.mu.Unlock()
		return false
	}
	p.state = r.Decision
	p.decision = r
	p.directive = d
	if p.timer != nil && p.timer.Stop() {
		c.timers.Done()
	}
	delete(c.entries, p.id)
	c.remember(p)
	completions := p.completions
	p.completions = nil
	c.updatePendingLocked()
	c.mu.Unlock()

	for _, comp := range completions {
		c.resolveCompletion(p.id, comp, d)
	}

	c.mu.Lock()
	p.state = Resolved
	c.mu.Unlock()

	c.metrics.Resolved(r.Decision.String(), string(r.Cause))
	c.log.Debug("notification resolved",
		slog.String("notification_id", p.id),
		slog.String("decision", r.Decision.String()),
		slog.String("cause", string(r.Cause)),
	)
	return true
}

func (c *Controller) resolveCompletion(id string, comp sdk.Completion, d sdk.Directive) {
	if comp == nil {
		return
	}
	defer errors.Recover("display.resolve")
	if err := comp.Resolve(d); err != nil {
		errors.Report(&errors.BridgeError{
			Op:           "display.resolve",
			Kind:         errors.KindNativeOperationFailed,
			Category:     string(sdk.NotificationWillDisplay),
			Notification: id,
			Err:          err,
		})
	}
}

// remember adds p to the bounded history of decided ids.
func (c *Controller) remember(p *pending) {
	if p.id == "" {
		return
	}
	c.history[p.id] = p
	c.resolved = append(c.resolved, p.id)
	for len(c.resolved) > c.cfg.History {
		delete(c.history, c.resolved[0])
		c.resolved = c.resolved[1:]
	}
}

func (c *Controller) updatePendingLocked() {
	c.metrics.SetPending(len(c.entries))
}

func (c *Controller) violation(op, id, reason string) error {
	c.metrics.ProtocolViolation()
	err := &errors.BridgeError{
		Op:           op,
		Kind:         errors.KindProtocolViolation,
		Category:     string(sdk.NotificationWillDisplay),
		Notification: id,
		Err:          fmt.Errorf("%s", reason),
	}
	errors.Report(err)
	return err
}

// State returns the current state of id.
func (c *Controller) State(id string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[id]; ok {
		return p.state, true
	}
	if p, ok := c.history[id]; ok {
		return p.state, true
	}
	return 0, false
}

// Resolution returns the recorded decision for a resolved id.
func (c *Controller) Resolution(id string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.history[id]
	if !ok {
		return Resolution{}, false
	}
	return p.decision, true
}

// Pending returns the number of notifications awaiting a decision.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops interception and displays every notification still awaiting a
// decision. Notifications that arrive afterwards are displayed immediately.
// It waits for running timers until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	open := make([]*pending, 0, len(c.entries))
	for _, p := range c.entries {
		open = append(open, p)
	}
	c.mu.Unlock()

	for _, p := range open {
		c.finish(p, sdk.Directive{Display: true}, Resolution{Displayed, CauseShutdown})
	}

	done := make(chan struct{})
	go func() {
		c.timers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
