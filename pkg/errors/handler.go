package errors

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// DefaultHandler is the global error handler.
	// It defaults to a LogHandler writing through the default logger.
	DefaultHandler ErrorHandler = &LogHandler{}

	handlerMu sync.RWMutex
)

// SetHandler configures the global error handler.
// Pass nil to restore the default LogHandler.
func SetHandler(h ErrorHandler) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	if h == nil {
		DefaultHandler = &LogHandler{}
	} else {
		DefaultHandler = h
	}
}

func getHandler() ErrorHandler {
	handlerMu.RLock()
	defer handlerMu.RUnlock()
	return DefaultHandler
}

// Report sends an error to the global handler.
// If err.Timestamp is zero, it is set to the current time.
func Report(err *BridgeError) {
	if err == nil {
		return
	}
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	if h := getHandler(); h != nil {
		h.HandleError(err)
	}
}

// ReportPanic sends a panic error to the global handler.
func ReportPanic(err *PanicError) {
	if err == nil {
		return
	}
	if h := getHandler(); h != nil {
		h.HandlePanic(err)
	}
}

// Recover reports a panic in progress as a *PanicError for op.
// Usage: defer errors.Recover("observer.deliver")
func Recover(op string) {
	if r := recover(); r != nil {
		ReportPanic(recovered(op, r))
	}
}

// RecoverWithCallback is Recover followed by callback(r), so the caller can
// still settle whatever the panicking code owned (a result handle, a
// completion).
func RecoverWithCallback(op string, callback func(r any)) {
	if r := recover(); r != nil {
		ReportPanic(recovered(op, r))
		if callback != nil {
			callback(r)
		}
	}
}

func recovered(op string, r any) *PanicError {
	return &PanicError{
		Op:         op,
		Value:      r,
		StackTrace: CaptureStack(),
		Timestamp:  time.Now(),
	}
}

// maxFrames bounds a captured stack.
const maxFrames = 16

// internalFrames are left out of captured stacks.
var internalFrames = map[string]bool{
	"errors.Recover":             true,
	"errors.RecoverWithCallback": true,
	"errors.recovered":           true,
	"errors.CaptureStack":        true,
}

// CaptureStack returns the caller's stack, one "pkg.Func file:line" per
// line. Runtime frames and the recovery helpers are skipped, so after a
// panic the first line is the function that panicked.
func CaptureStack() string {
	var pcs [64]uintptr
	n := runtime.Callers(1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	kept := 0
	for kept < maxFrames {
		frame, more := frames.Next()
		name := shortFunc(frame.Function)
		if name != "" && !strings.HasPrefix(name, "runtime.") && !internalFrames[name] {
			sb.WriteString(name)
			sb.WriteString(" ")
			sb.WriteString(frame.File)
			sb.WriteString(":")
			sb.WriteString(strconv.Itoa(frame.Line))
			sb.WriteString("\n")
			kept++
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// shortFunc trims the import path from a function name:
// "github.com/x/pushbridge/pkg/display.(*Controller).expire" becomes
// "display.(*Controller).expire".
func shortFunc(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
