// Package natssdk reaches an out-of-process native SDK host over NATS.
//
// Subjects live under a prefix (default "pushbridge"):
//
//	<prefix>.event.<category>   host to bridge, JSON event payloads
//	<prefix>.invoke.<op>        bridge to host, request/reply
//
// An invoke request carries the JSON argument array; the host replies with
// {"ok":bool,"value":any,"code":string,"message":string}. A
// notificationWillDisplay event carries a reply subject, and the bridge's
// display directive {"display":bool,"notification":{...}} is published to it.
package natssdk

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/sdk"
)

const (
	// DefaultPrefix is the subject prefix used when none is configured.
	DefaultPrefix = "pushbridge"
	// DefaultTimeout bounds an invoke request.
	DefaultTimeout = 5 * time.Second
)

// Conn is the part of *nats.Conn the adapter uses.
type Conn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Publish(subj string, data []byte) error
}

// SDK implements sdk.SDK on a NATS connection.
type SDK struct {
	nc      Conn
	prefix  string
	timeout time.Duration
	log     *logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ sdk.SDK = (*SDK)(nil)

// Option configures an SDK.
type Option func(*SDK)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(s *SDK) { s.prefix = prefix }
}

// WithTimeout bounds each invoke request. Zero means DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *SDK) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *SDK) { s.log = l }
}

// New returns an SDK talking over nc.
func New(nc Conn, opts ...Option) *SDK {
	s := &SDK{nc: nc, prefix: DefaultPrefix, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.log == nil {
		s.log = logger.Default().WithComponent("natssdk")
	}
	return s
}

// EventSubject returns the subject native events of category arrive on.
func (s *SDK) EventSubject(category sdk.Category) string {
	return s.prefix + ".event." + string(category)
}

// InvokeSubject returns the request subject for op.
func (s *SDK) InvokeSubject(op string) string {
	return s.prefix + ".invoke." + op
}

// Subscribe starts delivering events of category to h.
func (s *SDK) Subscribe(ctx context.Context, category sdk.Category, h sdk.Handler) (sdk.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subject := s.EventSubject(category)
	sub, err := s.nc.Subscribe(subject, s.handle(category, h))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	s.log.Debug("subscribed", slog.String("subject", subject))
	return subscription{sub}, nil
}

// handle decodes each message and hands it to h. Malformed payloads are
// reported and dropped. A notification awaiting a display decision gets a
// completion bound to the message's reply subject.
func (s *SDK) handle(category sdk.Category, h sdk.Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Subject, category, msg.Data)
		if err != nil {
			s.log.Warn("dropping malformed event",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()),
			)
			errors.Report(&errors.BridgeError{
				Op:       "natssdk.event",
				Kind:     errors.KindMalformedArguments,
				Category: string(category),
				Err:      err,
			})
			return
		}
		if nr, ok := ev.(sdk.NotificationReceived); ok && msg.Reply != "" {
			nr.Completion = &completion{nc: s.nc, subject: msg.Reply}
			ev = nr
		}
		h(ev)
	}
}

// Invoke sends a request to the host and waits for its reply. An
// unreachable host yields an error wrapping sdk.ErrUnavailable.
func (s *SDK) Invoke(ctx context.Context, op string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s arguments: %w", op, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(reqCtx, s.InvokeSubject(op), data)
	if err != nil {
		if stderrors.Is(err, nats.ErrNoResponders) ||
			stderrors.Is(err, nats.ErrTimeout) ||
			stderrors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %v", sdk.ErrUnavailable, op, err)
		}
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	return decodeReply(op, msg.Data)
}

// Close drains every subscription opened by Subscribe. The connection is
// left open.
func (s *SDK) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil && !gone(err) {
			errs = append(errs, fmt.Errorf("failed to drain %s: %w", sub.Subject, err))
		}
	}
	return stderrors.Join(errs...)
}

type subscription struct {
	sub *nats.Subscription
}

func (s subscription) Close() error {
	if err := s.sub.Unsubscribe(); err != nil && !gone(err) {
		return err
	}
	return nil
}

// gone reports errors meaning the subscription no longer exists.
func gone(err error) bool {
	return stderrors.Is(err, nats.ErrBadSubscription) || stderrors.Is(err, nats.ErrConnectionClosed)
}

// completion publishes a display directive to the host's reply subject. Only
// the first Resolve is sent.
type completion struct {
	nc      Conn
	subject string
	once    sync.Once
}

func (c *completion) Resolve(d sdk.Directive) error {
	var err error = errAlreadyResolved
	c.once.Do(func() {
		var data []byte
		data, err = json.Marshal(directive{Display: d.Display, Notification: d.Modified})
		if err != nil {
			return
		}
		err = c.nc.Publish(c.subject, data)
	})
	return err
}

var errAlreadyResolved = sdk.NewNativeError("AlreadyResolved", "completion already resolved")
