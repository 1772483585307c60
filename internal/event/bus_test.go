package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliveryOrder(t *testing.T) {
	b := New(nil, nil)

	var order []string
	b.SubscribeWithPriority(KindCountdown, 1, func(Event) { order = append(order, "prio1") })
	b.Subscribe(KindCountdown, func(Event) { order = append(order, "plain") })
	b.SubscribeWithPriority(KindCountdown, 10, func(Event) { order = append(order, "prio10") })

	b.Publish(&Countdown{Seconds: 5})
	require.Equal(t, []string{"plain", "prio10", "prio1"}, order)
}

func TestBusHandlerIsolation(t *testing.T) {
	b := New(nil, nil)

	var delivered []int
	b.Subscribe(KindCountdown, func(Event) { delivered = append(delivered, 1) })
	b.Subscribe(KindCountdown, func(Event) { panic("boom") })
	b.Subscribe(KindCountdown, func(Event) { delivered = append(delivered, 3) })

	b.Publish(&Countdown{})

	require.Equal(t, []int{1, 3}, delivered, "panicking handler must not block the rest")
	assert.Equal(t, int64(1), b.Statistics().FailedHandlers)
	assert.Equal(t, int64(2), b.Statistics().Delivered)
}

func TestBusDuplicateRegistration(t *testing.T) {
	b := New(nil, nil)

	count := 0
	h := func(Event) { count++ }
	sub1 := b.Subscribe(KindCountdown, h)
	sub2 := b.Subscribe(KindCountdown, h)

	b.Publish(&Countdown{})
	require.Equal(t, 2, count, "duplicate registration duplicates delivery")

	b.Unsubscribe(sub1)
	b.Publish(&Countdown{})
	require.Equal(t, 3, count)

	b.Unsubscribe(sub2)
	b.Unsubscribe(sub2) // no-op
	b.Publish(&Countdown{})
	require.Equal(t, 3, count)
}

func TestBusFilter(t *testing.T) {
	b := New(nil, nil)

	count := 0
	b.Subscribe(KindCountdown, func(Event) { count++ })
	b.AddFilter(KindCountdown, func(ev Event) bool {
		return ev.(*Countdown).Seconds > 0
	})

	b.Publish(&Countdown{Seconds: 0})
	require.Zero(t, count)
	assert.Equal(t, int64(1), b.Statistics().Dropped)

	b.Publish(&Countdown{Seconds: 3})
	require.Equal(t, 1, count)
}

func TestBusMiddleware(t *testing.T) {
	b := New(nil, nil)

	var got int32
	b.Subscribe(KindCountdown, func(ev Event) { got = ev.(*Countdown).Seconds })
	b.AddMiddleware(KindCountdown, func(ev Event) Event {
		return &Countdown{Seconds: ev.(*Countdown).Seconds + 1}
	})

	b.Publish(&Countdown{Seconds: 9})
	require.Equal(t, int32(10), got)
}

func TestBusMiddlewareKeepsEventOnNil(t *testing.T) {
	b := New(nil, nil)

	var got int32
	b.Subscribe(KindCountdown, func(ev Event) { got = ev.(*Countdown).Seconds })
	b.AddMiddleware(KindCountdown, func(Event) Event { return nil })

	b.Publish(&Countdown{Seconds: 7})
	require.Equal(t, int32(7), got)
}

func TestBusSnapshotDispatch(t *testing.T) {
	b := New(nil, nil)

	var calls []string
	var late *Subscription
	b.Subscribe(KindCountdown, func(Event) {
		calls = append(calls, "first")
		// registering during dispatch must not affect the in-flight publish
		late = b.Subscribe(KindCountdown, func(Event) { calls = append(calls, "late") })
	})

	b.Publish(&Countdown{})
	require.Equal(t, []string{"first"}, calls)

	b.Publish(&Countdown{})
	require.Equal(t, []string{"first", "first", "late"}, calls)
	b.Unsubscribe(late)
}

func TestBusUnsubscribeDuringDispatch(t *testing.T) {
	b := New(nil, nil)

	var calls int
	var second *Subscription
	b.Subscribe(KindCountdown, func(Event) { b.Unsubscribe(second) })
	second = b.Subscribe(KindCountdown, func(Event) { calls++ })

	b.Publish(&Countdown{})
	require.Equal(t, 1, calls, "in-flight dispatch uses the snapshot")

	b.Publish(&Countdown{})
	require.Equal(t, 1, calls)
}

func TestBusNilEvent(t *testing.T) {
	b := New(nil, nil)
	b.Publish(nil) // logged, not panicking
	assert.Zero(t, b.Statistics().Published)
}

func TestBusRawChannelCaseInsensitive(t *testing.T) {
	b := New(nil, nil)

	var got string
	b.SubscribeRaw("CountDown", func(channel string, payload []byte) { got = channel })

	b.ProcessRawMessage([]byte(`{"type":"COUNTDOWN","seconds":3}`))
	require.Equal(t, "countdown", got)
}

func TestBusPublishAsyncFallback(t *testing.T) {
	b := New(nil, nil)

	done := make(chan struct{})
	b.Subscribe(KindCountdown, func(Event) { close(done) })
	b.PublishAsync(&Countdown{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async publish did not fire")
	}
}

func TestBusPublishDelayedFallback(t *testing.T) {
	b := New(nil, nil)

	done := make(chan struct{})
	b.Subscribe(KindCountdown, func(Event) { close(done) })

	start := time.Now()
	b.PublishDelayed(&Countdown{}, 50*time.Millisecond)

	select {
	case <-done:
		require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed publish did not fire")
	}
}

func TestBusShutdown(t *testing.T) {
	b := New(nil, nil)

	count := 0
	b.Subscribe(KindCountdown, func(Event) { count++ })
	b.Shutdown()

	b.Publish(&Countdown{})
	require.Zero(t, count)
	assert.Zero(t, b.Statistics().Subscribers)
}
