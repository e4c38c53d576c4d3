package errors

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-drift/pushbridge/pkg/logger"
)

func TestBridgeErrorString(t *testing.T) {
	err := &BridgeError{
		Op:   "registry.Deliver",
		Kind: KindStaleHandle,
		Err:  fmt.Errorf("handle not registered"),
	}
	got := err.Error()
	want := "registry.Deliver [stale_handle]: handle not registered"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestBridgeErrorWithContext(t *testing.T) {
	err := &BridgeError{
		Op:           "display.PreventDefault",
		Kind:         KindProtocolViolation,
		Category:     "notificationWillDisplay",
		Notification: "n-1",
		Err:          fmt.Errorf("already resolved"),
	}
	got := err.Error()
	for _, want := range []string{"category=notificationWillDisplay", "notification=n-1", "already resolved"} {
		if !strings.Contains(got, want) {
			t.Errorf("error string %q should contain %q", got, want)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
		code string
	}{
		{KindUnknown, "unknown", "Unknown"},
		{KindUnsupportedCommand, "unsupported_command", "UnsupportedCommand"},
		{KindMalformedArguments, "malformed_arguments", "MalformedArguments"},
		{KindStaleHandle, "stale_handle", "StaleHandle"},
		{KindNativeOperationFailed, "native_operation_failed", "NativeOperationFailed"},
		{KindProtocolViolation, "protocol_violation", "ProtocolViolation"},
		{KindScript, "script", "ScriptError"},
		{KindPanic, "panic", "Panic"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
		if got := tt.kind.Code(); got != tt.code {
			t.Errorf("ErrorKind(%d).Code() = %q, want %q", tt.kind, got, tt.code)
		}
	}
}

func TestKindOf(t *testing.T) {
	base := &BridgeError{Op: "command.Dispatch", Kind: KindUnsupportedCommand}
	wrapped := fmt.Errorf("dispatch: %w", base)
	parse := &ParseError{Source: "sendTags", Index: 0, Expected: "object", Got: "x"}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", fmt.Errorf("boom"), KindUnknown},
		{"direct", base, KindUnsupportedCommand},
		{"wrapped", wrapped, KindUnsupportedCommand},
		{"parse", parse, KindMalformedArguments},
		{"wrapped parse", fmt.Errorf("x: %w", parse), KindMalformedArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
	if !Is(wrapped, KindUnsupportedCommand) {
		t.Error("Is(wrapped, KindUnsupportedCommand) = false")
	}
	if Is(nil, KindUnknown) {
		t.Error("Is(nil, ...) should be false")
	}
}

func TestParseErrorString(t *testing.T) {
	err := &ParseError{Source: "sendTags", Index: 0, Expected: "object", Got: 12.0}
	want := "failed to parse sendTags argument 0: expected object, got float64"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	whole := &ParseError{Source: "args", Index: -1, Err: fmt.Errorf("unexpected EOF")}
	if got := whole.Error(); got != "failed to parse args: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
}

func TestPanicErrorString(t *testing.T) {
	err := &PanicError{Op: "observer.deliver", Value: "test panic", Timestamp: time.Now()}
	if got := err.Error(); got != "panic in observer.deliver: test panic" {
		t.Errorf("PanicError.Error() = %q", got)
	}
	bare := &PanicError{Value: "test panic"}
	if got := bare.Error(); got != "panic: test panic" {
		t.Errorf("PanicError.Error() = %q", got)
	}
}

func TestReportSetsTimestamp(t *testing.T) {
	rec := &Recorder{}
	t.Cleanup(rec.Install())

	Report(&BridgeError{Op: "test.op", Kind: KindStaleHandle})
	Report(nil)

	errs := rec.Errors()
	if len(errs) != 1 {
		t.Fatalf("recorded %d errors, want 1", len(errs))
	}
	if errs[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if rec.Count(KindStaleHandle) != 1 {
		t.Errorf("Count(KindStaleHandle) = %d, want 1", rec.Count(KindStaleHandle))
	}
}

func TestRecover(t *testing.T) {
	rec := &Recorder{}
	t.Cleanup(rec.Install())

	func() {
		defer Recover("test.recover")
		panic("intentional test panic")
	}()

	panics := rec.Panics()
	if len(panics) != 1 {
		t.Fatalf("recorded %d panics, want 1", len(panics))
	}
	if panics[0].Op != "test.recover" || panics[0].Value != "intentional test panic" {
		t.Errorf("unexpected panic record %+v", panics[0])
	}
	if !strings.HasPrefix(panics[0].StackTrace, "errors.TestRecover.func1 ") {
		t.Errorf("stack should start at the panicking function, got:\n%s", panics[0].StackTrace)
	}
}

func TestRecoverWithCallback(t *testing.T) {
	rec := &Recorder{}
	t.Cleanup(rec.Install())

	var got any
	func() {
		defer RecoverWithCallback("test.cb", func(r any) { got = r })
		panic(42)
	}()
	if got != 42 {
		t.Errorf("callback got %v, want 42", got)
	}
}

func TestCaptureStack(t *testing.T) {
	stack := CaptureStack()
	if stack == "" {
		t.Error("expected non-empty stack trace")
	}
	if !strings.HasPrefix(stack, "errors.TestCaptureStack ") {
		t.Errorf("stack should start at the caller, got:\n%s", stack)
	}
	if strings.Contains(stack, "runtime.") || strings.Contains(stack, "errors.CaptureStack ") {
		t.Errorf("stack should skip runtime and helper frames, got:\n%s", stack)
	}
	if lines := strings.Count(stack, "\n"); lines > maxFrames {
		t.Errorf("stack has %d frames, want at most %d", lines, maxFrames)
	}
}

func TestShortFunc(t *testing.T) {
	tests := map[string]string{
		"github.com/go-drift/pushbridge/pkg/display.(*Controller).expire": "display.(*Controller).expire",
		"runtime.gopanic": "runtime.gopanic",
		"main.main":       "main.main",
	}
	for in, want := range tests {
		if got := shortFunc(in); got != want {
			t.Errorf("shortFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetHandlerNil(t *testing.T) {
	prev := getHandler()
	t.Cleanup(func() { SetHandler(prev) })

	SetHandler(nil)
	if _, ok := getHandler().(*LogHandler); !ok {
		t.Errorf("SetHandler(nil) should set LogHandler, got %T", getHandler())
	}
}

func TestLogHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	h := &LogHandler{Logger: logger.New(logger.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})}

	h.HandleError(&BridgeError{Op: "registry.Deliver", Kind: KindStaleHandle, Handle: "h1"})
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), `"handle":"h1"`) {
		t.Errorf("stale handle should log at warn with handle attr, got %s", buf.String())
	}

	buf.Reset()
	h.HandleError(&BridgeError{Op: "command.invoke", Kind: KindNativeOperationFailed, Command: "addTags"})
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), `"command":"addTags"`) {
		t.Errorf("native failure should log at error, got %s", buf.String())
	}

	buf.Reset()
	h.HandlePanic(&PanicError{Op: "x", Value: "boom"})
	if !strings.Contains(buf.String(), "bridge panic") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}
