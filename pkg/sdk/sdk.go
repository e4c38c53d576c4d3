package sdk

import (
	"context"
	"errors"
)

// Handler receives native events. It may be called from any goroutine and
// concurrently for different categories.
type Handler func(Event)

// Subscription is an active native observer.
type Subscription interface {
	// Close stops the native observer.
	Close() error
}

// Subscriber creates native observers.
type Subscriber interface {
	// Subscribe starts delivering events of the category to h.
	Subscribe(ctx context.Context, category Category, h Handler) (Subscription, error)
}

// Invoker runs native operations.
type Invoker interface {
	// Invoke calls the named native operation. A failure reported by the SDK
	// itself should be a *NativeError so that its code survives.
	Invoke(ctx context.Context, op string, args []any) (any, error)
}

// SDK is the whole native surface the bridge depends on.
type SDK interface {
	Subscriber
	Invoker
}

// Directive is the display decision handed to a completion action.
type Directive struct {
	// Display is false when the notification must not be shown.
	Display bool
	// Modified optionally replaces notification fields when displaying.
	Modified map[string]any
}

// Completion is the single-use native action that finalizes a notification's
// display decision.
type Completion interface {
	Resolve(d Directive) error
}

// CompletionFunc adapts a function to Completion.
type CompletionFunc func(Directive) error

// Resolve calls f(d).
func (f CompletionFunc) Resolve(d Directive) error {
	return f(d)
}

// NativeError is a failure reported by the native SDK.
type NativeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *NativeError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewNativeError creates a NativeError with the given code and message.
func NewNativeError(code, message string) *NativeError {
	return &NativeError{Code: code, Message: message}
}

// Standard native failure codes used when the SDK reports a plain error.
const (
	CodeUnavailable = "Unavailable"
	CodeInternal    = "NativeError"
)

// ErrUnavailable indicates the native SDK cannot be reached.
var ErrUnavailable = errors.New("native sdk unavailable")

// AsNativeError converts err to a NativeError, preserving an existing code
// and message verbatim.
func AsNativeError(err error) *NativeError {
	if err == nil {
		return nil
	}
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne
	}
	if errors.Is(err, ErrUnavailable) {
		return &NativeError{Code: CodeUnavailable, Message: err.Error()}
	}
	return &NativeError{Code: CodeInternal, Message: err.Error()}
}
