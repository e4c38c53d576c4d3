package registry

import (
	"fmt"
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
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *errors.Recorder) {
	t.Helper()
	rec := &errors.Recorder{}
	t.Cleanup(rec.Install())
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(opts...), rec
}

func pushEvent(n int) envelope.Envelope {
	id := fmt.Sprintf("sub-%d", n)
	return envelope.Encode(sdk.PushSubscriptionChange{
		Current: sdk.PushSubscriptionState{ID: &id, OptedIn: true},
	})
}

func TestPersistentDeliveryKeepsHandle(t *testing.T) {
	r, _ := newTestRegistry(t)
	h, err := r.Register(Options{Mode: Persistent, Category: sdk.PushSubscriptionChanged})
	require.NoError(t, err)

	require.NoError(t, r.Deliver(h, pushEvent(1)))
	require.NoError(t, r.Deliver(h, pushEvent(2)))

	msgs := r.Outbox().Drain()
	require.Len(t, msgs, 2)
	for i, m := range msgs {
		assert.Equal(t, h, m.Handle)
		assert.Equal(t, KindEvent, m.Kind)
		assert.Equal(t, sdk.PushSubscriptionChanged, m.Category)
		assert.True(t, m.KeepAlive)
		assert.Equal(t, uint64(i+1), m.Seq)
	}
	first, _ := msgs[0].Envelope.Fields.Get("current")
	assert.Equal(t, "sub-1", first.(*envelope.Object).GetString("id"))
	second, _ := msgs[1].Envelope.Fields.Get("current")
	assert.Equal(t, "sub-2", second.(*envelope.Object).GetString("id"))

	mode, ok := r.Mode(h)
	assert.True(t, ok)
	assert.Equal(t, Persistent, mode)
}

func TestOneShotAcceptsSingleDelivery(t *testing.T) {
	r, rec := newTestRegistry(t, WithMetrics(metrics.New(nil)))
	h, err := r.Register(Options{Mode: OneShot, Command: "getTags"})
	require.NoError(t, err)

	require.NoError(t, r.Deliver(h, Success("first")))
	err = r.Deliver(h, Success("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindStaleHandle))

	msgs := r.Outbox().Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindResult, msgs[0].Kind)
	assert.False(t, msgs[0].KeepAlive)
	assert.Equal(t, "first", msgs[0].Result.Value)

	assert.Equal(t, 1, rec.Count(errors.KindStaleHandle))
	assert.Equal(t, 0, r.Len())
}

func TestDeliverAfterUnregisterIsStale(t *testing.T) {
	r, rec := newTestRegistry(t)
	h, err := r.Register(Options{Mode: Persistent, Category: sdk.PermissionChanged})
	require.NoError(t, err)

	assert.True(t, r.Unregister(h))
	assert.False(t, r.Unregister(h))

	err = r.Deliver(h, envelope.Encode(sdk.PermissionChange{Permission: true}))
	assert.True(t, errors.Is(err, errors.KindStaleHandle))
	assert.Equal(t, 1, rec.Count(errors.KindStaleHandle))
	assert.Empty(t, r.Outbox().Drain())
	assert.Empty(t, r.Handles(sdk.PermissionChanged))
}

func TestPersistentRegistrationIsIdempotentPerKey(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, err := r.Register(Options{Mode: Persistent, Category: sdk.UserStateChanged, Key: "listener-1"})
	require.NoError(t, err)
	b, err := r.Register(Options{Mode: Persistent, Category: sdk.UserStateChanged, Key: "listener-1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := r.Register(Options{Mode: Persistent, Category: sdk.PermissionChanged, Key: "listener-1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	assert.Equal(t, []Handle{a}, r.Handles(sdk.UserStateChanged))

	r.Unregister(a)
	d, err := r.Register(Options{Mode: Persistent, Category: sdk.UserStateChanged, Key: "listener-1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register(Options{Mode: Persistent, Category: "bogus"})
	assert.True(t, errors.Is(err, errors.KindMalformedArguments))

	h, err := r.Register(Options{Mode: OneShot, ID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, Handle("cb-1"), h)

	_, err = r.Register(Options{Mode: OneShot, ID: "cb-1"})
	assert.True(t, errors.Is(err, errors.KindMalformedArguments))

	require.NoError(t, r.Deliver(h, Success(nil)))
	_, err = r.Register(Options{Mode: OneShot, ID: "cb-1"})
	assert.NoError(t, err, "consumed ids may be reused")
}

func TestDeliverRejectsUnknownPayload(t *testing.T) {
	r, _ := newTestRegistry(t)
	h, _ := r.Register(Options{Mode: OneShot})
	err := r.Deliver(h, 42)
	assert.True(t, errors.Is(err, errors.KindMalformedArguments))
	_, ok := r.Mode(h)
	assert.True(t, ok, "handle is not consumed")
}

func TestHandlesSnapshotOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	var want []Handle
	for i := 0; i < 5; i++ {
		h, err := r.Register(Options{Mode: Persistent, Category: sdk.NotificationClicked})
		require.NoError(t, err)
		want = append(want, h)
	}
	snap := r.Handles(sdk.NotificationClicked)
	assert.Equal(t, want, snap)

	r.Unregister(want[2])
	assert.Equal(t, want, snap, "snapshot is not affected by later changes")
	assert.Equal(t, []Handle{want[0], want[1], want[3], want[4]}, r.Handles(sdk.NotificationClicked))
}

func TestOutboxReadyAndWake(t *testing.T) {
	r, _ := newTestRegistry(t)
	var woke int
	var mu sync.Mutex
	r.Outbox().SetWake(func() {
		mu.Lock()
		woke++
		mu.Unlock()
	})
	h, _ := r.Register(Options{Mode: Persistent, Category: sdk.PermissionChanged})
	_ = r.Deliver(h, envelope.Encode(sdk.PermissionChange{}))
	_ = r.Deliver(h, envelope.Encode(sdk.PermissionChange{}))

	select {
	case <-r.Outbox().Ready():
	case <-time.After(time.Second):
		t.Fatal("ready was not signalled")
	}
	assert.Equal(t, 2, r.Outbox().Len())
	assert.Len(t, r.Outbox().Drain(), 2)
	assert.Nil(t, r.Outbox().Drain())

	mu.Lock()
	assert.Equal(t, 2, woke)
	mu.Unlock()
}

func TestConcurrentDeliveryExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, rec := newTestRegistry(t, WithMetrics(metrics.New(reg)))
	const n = 200
	handles := make([]Handle, n)
	for i := range handles {
		handles[i], _ = r.Register(Options{Mode: OneShot})
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, h := range handles {
				_ = r.Deliver(h, Success(nil))
			}
		}()
	}
	wg.Wait()

	msgs := r.Outbox().Drain()
	assert.Len(t, msgs, n)
	seen := make(map[Handle]bool)
	for _, msg := range msgs {
		assert.False(t, seen[msg.Handle], "handle %s delivered twice", msg.Handle)
		seen[msg.Handle] = true
	}
	assert.Equal(t, 3*n, rec.Count(errors.KindStaleHandle))
	expected := fmt.Sprintf(`
# HELP pushbridge_stale_deliveries_total Deliveries dropped because the handle was no longer registered.
# TYPE pushbridge_stale_deliveries_total counter
pushbridge_stale_deliveries_total %d
`, 3*n)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pushbridge_stale_deliveries_total"))
}
