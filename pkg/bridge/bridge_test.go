package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/pushbridge/pkg/command"
	"github.com/go-drift/pushbridge/pkg/display"
	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/observer"
	"github.com/go-drift/pushbridge/pkg/registry"
	"github.com/go-drift/pushbridge/pkg/sdk"
	"github.com/go-drift/pushbridge/pkg/sdk/sdktest"
)

func newBridge(t *testing.T, cfg Config, opts ...Option) (*Bridge, *sdktest.SDK, *errors.Recorder) {
	t.Helper()
	rec := &errors.Recorder{}
	t.Cleanup(rec.Install())
	native := sdktest.New()
	b := New(native, cfg, append([]Option{WithLogger(logger.Discard())}, opts...)...)
	t.Cleanup(func() { b.Close(context.Background()) })
	return b, native, rec
}

// exec runs a command to completion and returns its result. Queued events
// are returned alongside in order.
func exec(t *testing.T, b *Bridge, name, args string) (registry.Result, []registry.Message) {
	t.Helper()
	h, err := b.Exec(context.Background(), command.Command{Name: name, Args: []byte(args)})
	require.NoError(t, err)
	b.dispatcher.Wait()

	var (
		res    registry.Result
		found  bool
		events []registry.Message
	)
	for _, msg := range b.Drain() {
		if msg.Kind == registry.KindResult && msg.Handle == h {
			res, found = msg.Result, true
			continue
		}
		events = append(events, msg)
	}
	require.True(t, found, "no result for %s", name)
	return res, events
}

func listen(t *testing.T, b *Bridge, category sdk.Category) registry.Handle {
	t.Helper()
	res, _ := exec(t, b, "addEventListener", `["`+string(category)+`"]`)
	require.True(t, res.OK, "%+v", res)
	h, ok := res.Value.(string)
	require.True(t, ok)
	return registry.Handle(h)
}

func pushChange(id string) sdk.PushSubscriptionChange {
	return sdk.PushSubscriptionChange{Current: sdk.PushSubscriptionState{ID: &id, OptedIn: true}}
}

func TestListenerReceivesEventsInOrder(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	h := listen(t, b, sdk.PushSubscriptionChanged)

	require.True(t, native.Emit(pushChange("E1")))
	require.True(t, native.Emit(pushChange("E2")))

	msgs := b.Drain()
	require.Len(t, msgs, 2)
	for i, want := range []string{"E1", "E2"} {
		assert.Equal(t, h, msgs[i].Handle)
		assert.Equal(t, registry.KindEvent, msgs[i].Kind)
		assert.True(t, msgs[i].KeepAlive)
		cur, _ := msgs[i].Envelope.Fields.Get("current")
		assert.Equal(t, want, cur.(*envelope.Object).GetString("id"))
	}
}

func TestListenerKeyIsIdempotent(t *testing.T) {
	b, native, _ := newBridge(t, Config{})

	first, _ := exec(t, b, "addEventListener", `["permissionChanged", "main"]`)
	second, _ := exec(t, b, "addEventListener", `["permissionChanged", "main"]`)
	require.True(t, first.OK)
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, 1, native.SubscribeCount(sdk.PermissionChanged))

	native.Emit(sdk.PermissionChange{Permission: true})
	assert.Len(t, b.Drain(), 1)
}

func TestRemoveEventListener(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	h := listen(t, b, sdk.PermissionChanged)

	res, _ := exec(t, b, "removeEventListener", `["`+string(h)+`"]`)
	assert.Equal(t, registry.Success(true), res)
	res, _ = exec(t, b, "removeEventListener", `["`+string(h)+`"]`)
	assert.Equal(t, registry.Success(false), res)

	native.Emit(sdk.PermissionChange{Permission: true})
	assert.Empty(t, b.Drain())
}

func TestAddEventListenerValidation(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"unknown category", `["notAThing"]`},
		{"missing category", `[]`},
		{"non-string key", `["permissionChanged", 3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, native, _ := newBridge(t, Config{})
			res, _ := exec(t, b, "addEventListener", tt.args)
			assert.False(t, res.OK)
			assert.Equal(t, "MalformedArguments", res.Kind)
			assert.Equal(t, 0, native.SubscribeCount(sdk.PermissionChanged))
		})
	}
}

func TestSubscribeFailureKeepsNativeCode(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	native.FailSubscribe(sdk.PermissionChanged, sdk.NewNativeError("E_NOT_READY", "sdk not initialized"))

	res, _ := exec(t, b, "addEventListener", `["permissionChanged"]`)
	assert.Equal(t, registry.Result{Kind: "NativeOperationFailed", Code: "E_NOT_READY", Message: "sdk not initialized"}, res)

	listen(t, b, sdk.PermissionChanged)
	assert.Equal(t, 1, native.SubscribeCount(sdk.PermissionChanged))
}

func TestPreventDefaultThenProceed(t *testing.T) {
	b, native, rec := newBridge(t, Config{})
	listen(t, b, sdk.NotificationWillDisplay)

	comp := native.Notify(sdk.Notification{NotificationID: "n1", Title: "hi"})
	state, ok := b.NotificationState("n1")
	require.True(t, ok)
	assert.Equal(t, display.AwaitingScriptDecision, state)

	events := b.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, "n1", events[0].Envelope.NotificationID())

	res, _ := exec(t, b, "preventDefault", `["n1"]`)
	assert.True(t, res.OK)
	require.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.False(t, d.Display)

	res, _ = exec(t, b, "proceedWithWillDisplay", `["n1"]`)
	assert.False(t, res.OK)
	assert.Equal(t, "ProtocolViolation", res.Kind)
	assert.Equal(t, 1, comp.Calls())
	assert.Equal(t, 1, rec.Count(errors.KindProtocolViolation))

	state, _ = b.NotificationState("n1")
	assert.Equal(t, display.Resolved, state)
}

func TestProceedWithModifiedPayload(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	listen(t, b, sdk.NotificationWillDisplay)

	comp := native.Notify(sdk.Notification{NotificationID: "n2", Title: "before"})
	res, _ := exec(t, b, "proceedWithWillDisplay", `["n2", {"title": "after", "badge": 2}]`)
	require.True(t, res.OK, "%+v", res)

	d, ok := comp.Last()
	require.True(t, ok)
	assert.True(t, d.Display)
	assert.Equal(t, map[string]any{"title": "after", "badge": int64(2)}, d.Modified)
}

func TestLegacyDisplayCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    string
		display bool
	}{
		{"displayNotification", "displayNotification", `["n"]`, true},
		{"complete and show", "completeNotification", `["n", true]`, true},
		{"complete and hide", "completeNotification", `["n", false]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, native, _ := newBridge(t, Config{})
			listen(t, b, sdk.NotificationWillDisplay)

			comp := native.Notify(sdk.Notification{NotificationID: "n"})
			res, _ := exec(t, b, tt.command, tt.args)
			require.True(t, res.OK, "%+v", res)
			d, ok := comp.Last()
			require.True(t, ok)
			assert.Equal(t, tt.display, d.Display)
			assert.Nil(t, d.Modified)
		})
	}
}

func TestDirectiveForUnknownNotification(t *testing.T) {
	b, _, _ := newBridge(t, Config{})
	res, _ := exec(t, b, "preventDefault", `["nope"]`)
	assert.Equal(t, "ProtocolViolation", res.Kind)
	assert.Contains(t, res.Message, "unknown notification")
}

func TestNotificationWithoutListenersIsDisplayed(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	// Subscribe through another listener, then drop it.
	h := listen(t, b, sdk.NotificationWillDisplay)
	require.True(t, b.RemoveListener(h))

	comp := native.Notify(sdk.Notification{NotificationID: "n3"})
	require.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.True(t, d.Display)
	assert.Empty(t, b.Drain())
}

func TestUnresponsiveListenerTimesOut(t *testing.T) {
	b, native, _ := newBridge(t, Config{Display: display.Config{Timeout: 20 * time.Millisecond}})
	listen(t, b, sdk.NotificationWillDisplay)

	comp := native.Notify(sdk.Notification{NotificationID: "slow"})
	select {
	case <-comp.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("completion was never resolved")
	}
	d, _ := comp.Last()
	assert.True(t, d.Display)
	assert.Equal(t, 1, comp.Calls())
}

func TestSendTagsMalformedLeavesSDKUntouched(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	res, _ := exec(t, b, "sendTags", `[{"level": [1, 2]}]`)
	assert.False(t, res.OK)
	assert.Equal(t, "MalformedArguments", res.Kind)
	assert.Empty(t, native.Invocations())
}

func TestNativeCommandIsForwarded(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	native.OnInvoke("getOnesignalId", func([]any) (any, error) { return "os-1", nil })

	res, _ := exec(t, b, "getOnesignalId", ``)
	assert.Equal(t, registry.Success("os-1"), res)
	assert.Len(t, native.Invoked("getOnesignalId"), 1)
}

func TestCommandsIncludeLocalAndStandard(t *testing.T) {
	b, _, _ := newBridge(t, Config{})
	names := b.Commands()
	for _, name := range []string{"addEventListener", "removeEventListener", "preventDefault",
		"proceedWithWillDisplay", "displayNotification", "completeNotification", "addTags", "sendTags"} {
		assert.Contains(t, names, name)
	}
}

func TestCloseDisplaysPendingNotifications(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	listen(t, b, sdk.NotificationWillDisplay)
	listen(t, b, sdk.PermissionChanged)

	comp := native.Notify(sdk.Notification{NotificationID: "n4"})
	require.Equal(t, 0, comp.Calls())

	require.NoError(t, b.Close(context.Background()))
	require.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.True(t, d.Display)

	assert.Equal(t, 1, native.CloseCount(sdk.NotificationWillDisplay))
	assert.Equal(t, 1, native.CloseCount(sdk.PermissionChanged))

	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 1, native.CloseCount(sdk.PermissionChanged))

	_, err := b.AddListener(context.Background(), sdk.PermissionChanged, "")
	assert.ErrorIs(t, err, observer.ErrClosed)
}

func TestSnapshot(t *testing.T) {
	b, native, _ := newBridge(t, Config{})
	listen(t, b, sdk.NotificationWillDisplay)
	listen(t, b, sdk.NotificationWillDisplay)
	h := listen(t, b, sdk.PermissionChanged)
	b.RemoveListener(h)

	native.Notify(sdk.Notification{NotificationID: "n5"})

	s := b.Snapshot()
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 2, s.Queued)
	assert.Equal(t, 2, s.Handles)
	assert.Equal(t, map[string]int{"notificationWillDisplay": 2}, s.Listeners)
	assert.ElementsMatch(t, []string{"notificationWillDisplay", "permissionChanged"}, s.Subscribed)
}

func TestInitReportsWrapper(t *testing.T) {
	b, native, _ := newBridge(t, Config{Wrapper: command.Wrapper{Type: "cordova", Version: "5.2.0"}})

	res, _ := exec(t, b, "init", `["app-1"]`)
	require.True(t, res.OK, "%+v", res)
	inv := native.Invoked("init")
	require.Len(t, inv, 1)
	assert.Equal(t, []any{"app-1", "cordova", "5.2.0"}, inv[0].Args)
}

func TestInitWithoutWrapper(t *testing.T) {
	b, native, _ := newBridge(t, Config{})

	res, _ := exec(t, b, "init", `["app-1"]`)
	require.True(t, res.OK, "%+v", res)
	inv := native.Invoked("init")
	require.Len(t, inv, 1)
	assert.Equal(t, []any{"app-1"}, inv[0].Args)
}
