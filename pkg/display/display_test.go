package display

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/pushbridge/pkg/envelope"
	"github.com/go-drift/pushbridge/pkg/errors"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/sdk"
	"github.com/go-drift/pushbridge/pkg/sdk/sdktest"
)

// stubFanout pretends to have a fixed number of listeners and records what
// it is asked to deliver.
type stubFanout struct {
	mu        sync.Mutex
	listeners int
	delivered []envelope.Envelope
}

func (s *stubFanout) ListenerCount(sdk.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners
}

func (s *stubFanout) Fanout(_ sdk.Category, env envelope.Envelope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, env)
	return s.listeners
}

func (s *stubFanout) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newController(t *testing.T, listeners int, cfg Config, opts ...Option) (*Controller, *stubFanout, *errors.Recorder) {
	t.Helper()
	rec := &errors.Recorder{}
	t.Cleanup(rec.Install())
	out := &stubFanout{listeners: listeners}
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	c := New(out, cfg, opts...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, out, rec
}

func notify(c *Controller, id string) *sdktest.Completion {
	comp := &sdktest.Completion{}
	c.Intercept(sdk.NotificationReceived{
		Notification: sdk.Notification{NotificationID: id, Title: "t"},
		Completion:   comp,
	})
	return comp
}

func waitDone(t *testing.T, comp *sdktest.Completion) {
	t.Helper()
	select {
	case <-comp.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not resolved")
	}
}

func TestZeroListenersPassThrough(t *testing.T) {
	c, out, _ := newController(t, 0, Config{})
	comp := notify(c, "n1")

	assert.Equal(t, 0, out.count(), "nothing is fanned out")
	assert.Equal(t, 0, c.Pending())
	require.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.True(t, d.Display)
	assert.Nil(t, d.Modified)

	state, ok := c.State("n1")
	require.True(t, ok)
	assert.Equal(t, Resolved, state)
	res, _ := c.Resolution("n1")
	assert.Equal(t, Resolution{Displayed, CausePassthrough}, res)
}

func TestAwaitingScriptDecision(t *testing.T) {
	c, out, _ := newController(t, 1, Config{})
	comp := notify(c, "n1")

	assert.Equal(t, 1, out.count())
	assert.Equal(t, "n1", out.delivered[0].NotificationID())
	state, _ := c.State("n1")
	assert.Equal(t, AwaitingScriptDecision, state)
	assert.Equal(t, 0, comp.Calls())
	assert.Equal(t, 1, c.Pending())
}

func TestPreventDefaultThenProceed(t *testing.T) {
	c, _, rec := newController(t, 1, Config{})
	comp := notify(c, "n1")

	require.NoError(t, c.PreventDefault("n1"))
	state, _ := c.State("n1")
	assert.Equal(t, Resolved, state)
	res, _ := c.Resolution("n1")
	assert.Equal(t, Resolution{Suppressed, CauseDirective}, res)

	err := c.Proceed("n1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProtocolViolation))
	assert.Contains(t, err.Error(), "already resolved")

	assert.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.False(t, d.Display)
	assert.Equal(t, 1, rec.Count(errors.KindProtocolViolation))
}

func TestProceedWithModifiedPayload(t *testing.T) {
	c, _, _ := newController(t, 2, Config{})
	comp := notify(c, "n1")

	modified := envelope.NewObject().Set("title", "rewritten").Set("badge", 3)
	require.NoError(t, c.Proceed("n1", modified))

	d, ok := comp.Last()
	require.True(t, ok)
	assert.True(t, d.Display)
	assert.Equal(t, map[string]any{"title": "rewritten", "badge": int64(3)}, d.Modified)
}

func TestRepeatedDirectivesInvokeCompletionOnce(t *testing.T) {
	c, _, rec := newController(t, 1, Config{})
	comp := notify(c, "n1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = c.PreventDefault("n1")
			} else {
				err = c.Proceed("n1", nil)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, comp.Calls())
	assert.Equal(t, 19, rec.Count(errors.KindProtocolViolation))
}

func TestTimeoutForcesDisplayed(t *testing.T) {
	c, _, _ := newController(t, 1, Config{Timeout: 20 * time.Millisecond})
	comp := notify(c, "n1")

	waitDone(t, comp)
	d, _ := comp.Last()
	assert.True(t, d.Display)
	require.Eventually(t, func() bool {
		s, _ := c.State("n1")
		return s == Resolved
	}, time.Second, 5*time.Millisecond)
	res, _ := c.Resolution("n1")
	assert.Equal(t, Resolution{Displayed, CauseTimeout}, res)

	err := c.PreventDefault("n1")
	assert.True(t, errors.Is(err, errors.KindProtocolViolation))
	assert.Equal(t, 1, comp.Calls())
}

func TestDirectiveBeforeTimeoutStopsTimer(t *testing.T) {
	c, _, _ := newController(t, 1, Config{Timeout: 30 * time.Millisecond})
	comp := notify(c, "n1")
	require.NoError(t, c.PreventDefault("n1"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, comp.Calls())
	res, _ := c.Resolution("n1")
	assert.Equal(t, CauseDirective, res.Cause)
}

func TestUnknownNotification(t *testing.T) {
	c, _, rec := newController(t, 1, Config{})
	err := c.PreventDefault("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProtocolViolation))
	assert.Contains(t, err.Error(), "unknown notification")
	assert.Equal(t, 1, rec.Count(errors.KindProtocolViolation))
}

func TestDuplicateWhilePending(t *testing.T) {
	c, out, rec := newController(t, 1, Config{})
	first := notify(c, "n1")
	second := notify(c, "n1")

	assert.Equal(t, 1, out.count(), "duplicate is not fanned out")
	assert.Equal(t, 1, rec.Count(errors.KindProtocolViolation))
	assert.Equal(t, 0, second.Calls())

	require.NoError(t, c.PreventDefault("n1"))
	for _, comp := range []*sdktest.Completion{first, second} {
		require.Equal(t, 1, comp.Calls())
		d, _ := comp.Last()
		assert.False(t, d.Display)
	}
}

func TestDuplicateAfterResolution(t *testing.T) {
	c, out, rec := newController(t, 1, Config{})
	notify(c, "n1")
	require.NoError(t, c.PreventDefault("n1"))

	late := notify(c, "n1")
	assert.Equal(t, 1, out.count())
	require.Equal(t, 1, late.Calls())
	d, _ := late.Last()
	assert.False(t, d.Display, "the existing resolution stands")
	assert.Equal(t, 1, rec.Count(errors.KindProtocolViolation))
}

func TestCompletionErrorIsReported(t *testing.T) {
	c, _, rec := newController(t, 1, Config{})
	comp := &sdktest.Completion{Err: stderrors.New("activity gone")}
	c.Intercept(sdk.NotificationReceived{
		Notification: sdk.Notification{NotificationID: "n1"},
		Completion:   comp,
	})

	require.NoError(t, c.Proceed("n1", nil))
	assert.Equal(t, 1, rec.Count(errors.KindNativeOperationFailed))
	state, _ := c.State("n1")
	assert.Equal(t, Resolved, state)
}

func TestCloseForcesDisplayed(t *testing.T) {
	c, _, _ := newController(t, 1, Config{})
	a := notify(c, "a")
	b := notify(c, "b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	for id, comp := range map[string]*sdktest.Completion{"a": a, "b": b} {
		require.Equal(t, 1, comp.Calls(), id)
		d, _ := comp.Last()
		assert.True(t, d.Display, id)
		res, _ := c.Resolution(id)
		assert.Equal(t, Resolution{Displayed, CauseShutdown}, res, id)
	}
	assert.Equal(t, 0, c.Pending())

	after := notify(c, "c")
	require.Equal(t, 1, after.Calls())
	res, _ := c.Resolution("c")
	assert.Equal(t, Resolution{Displayed, CausePassthrough}, res)
}

func TestHistoryIsBounded(t *testing.T) {
	c, _, _ := newController(t, 0, Config{History: 2})
	notify(c, "a")
	notify(c, "b")
	notify(c, "c")

	_, ok := c.State("a")
	assert.False(t, ok)
	_, ok = c.State("b")
	assert.True(t, ok)
	_, ok = c.State("c")
	assert.True(t, ok)
}

func TestNotificationWithoutID(t *testing.T) {
	c, out, _ := newController(t, 1, Config{})
	comp := notify(c, "")
	assert.Equal(t, 1, out.count())
	require.Equal(t, 1, comp.Calls())
	d, _ := comp.Last()
	assert.True(t, d.Display)
	assert.Equal(t, 0, c.Pending())
}

func TestResolutionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _, _ := newController(t, 1, Config{}, WithMetrics(metrics.New(reg)))
	notify(c, "a")
	notify(c, "b")
	require.NoError(t, c.PreventDefault("a"))
	_ = c.PreventDefault("a")

	expected := `
# HELP pushbridge_notification_resolutions_total Resolved notifications by decision and cause.
# TYPE pushbridge_notification_resolutions_total counter
pushbridge_notification_resolutions_total{cause="directive",decision="suppressed"} 1
# HELP pushbridge_notifications_pending Notifications awaiting a display decision.
# TYPE pushbridge_notifications_pending gauge
pushbridge_notifications_pending 1
# HELP pushbridge_protocol_violations_total Duplicate notification events and late directives.
# TYPE pushbridge_protocol_violations_total counter
pushbridge_protocol_violations_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"pushbridge_notification_resolutions_total",
		"pushbridge_notifications_pending",
		"pushbridge_protocol_violations_total",
	))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_script_decision", AwaitingScriptDecision.String())
	assert.Equal(t, "State(9)", State(9).String())
}
