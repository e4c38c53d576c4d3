// Package errors provides structured error handling for the bridge.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindUnsupportedCommand indicates a dispatch for a name with no binding.
	KindUnsupportedCommand
	// KindMalformedArguments indicates command arguments failed to decode or validate.
	KindMalformedArguments
	// KindStaleHandle indicates an operation on an unregistered or already consumed handle.
	KindStaleHandle
	// KindNativeOperationFailed indicates the native SDK reported a failure.
	KindNativeOperationFailed
	// KindProtocolViolation indicates a duplicate notification event or a
	// directive for a notification that is not awaiting one.
	KindProtocolViolation
	// KindScript indicates an error raised inside the script runtime.
	KindScript
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedCommand:
		return "unsupported_command"
	case KindMalformedArguments:
		return "malformed_arguments"
	case KindStaleHandle:
		return "stale_handle"
	case KindNativeOperationFailed:
		return "native_operation_failed"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindScript:
		return "script"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Code returns the wire code carried by failed command results.
func (k ErrorKind) Code() string {
	switch k {
	case KindUnsupportedCommand:
		return "UnsupportedCommand"
	case KindMalformedArguments:
		return "MalformedArguments"
	case KindStaleHandle:
		return "StaleHandle"
	case KindNativeOperationFailed:
		return "NativeOperationFailed"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindScript:
		return "ScriptError"
	case KindPanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

// BridgeError represents a structured error raised by the bridge.
type BridgeError struct {
	// Op is the operation that failed (e.g., "registry.Deliver").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Category is the observer category, if applicable.
	Category string
	// Handle is the callback handle, if applicable.
	Handle string
	// Notification is the notification id, if applicable.
	Notification string
	// Command is the command name, if applicable.
	Command string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *BridgeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]", e.Op, e.Kind)
	if e.Category != "" {
		fmt.Fprintf(&sb, " category=%s", e.Category)
	}
	if e.Handle != "" {
		fmt.Fprintf(&sb, " handle=%s", e.Handle)
	}
	if e.Notification != "" {
		fmt.Fprintf(&sb, " notification=%s", e.Notification)
	}
	if e.Command != "" {
		fmt.Fprintf(&sb, " command=%s", e.Command)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// New returns a BridgeError of the given kind wrapping a formatted message.
func New(op string, kind ErrorKind, format string, args ...any) *BridgeError {
	return &BridgeError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first BridgeError in err's chain.
// Errors without one are KindUnknown.
func KindOf(err error) ErrorKind {
	for err != nil {
		if be, ok := err.(*BridgeError); ok {
			return be.Kind
		}
		if pe, ok := err.(*ParseError); ok && pe != nil {
			return KindMalformedArguments
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

// Is reports whether err carries a BridgeError of the given kind.
func Is(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "observer.deliver").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ParseError represents a failure to decode command arguments or event data.
type ParseError struct {
	// Source names what was being decoded (a command name or a subject).
	Source string
	// Index is the argument position, or -1 when the whole payload is bad.
	Index int
	// Expected is the expected type name.
	Expected string
	// Got is the actual data received.
	Got any
	// Err is an underlying decode error, if any.
	Err error
}

func (e *ParseError) Error() string {
	var where string
	if e.Index >= 0 {
		where = fmt.Sprintf(" argument %d", e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %s%s: %v", e.Source, where, e.Err)
	}
	return fmt.Sprintf("failed to parse %s%s: expected %s, got %T", e.Source, where, e.Expected, e.Got)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives errors reported by the bridge.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *BridgeError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
