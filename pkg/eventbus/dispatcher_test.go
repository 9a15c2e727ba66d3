package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/triggerkit/trigger/pkg/common/logger"
	"github.com/triggerkit/trigger/pkg/eventbus"
	"github.com/triggerkit/trigger/pkg/events"
)

const (
	eventTypeFoo events.EventType = "Foo"
	eventTypeBar events.EventType = "Bar"
)

// testEvent is a minimal payload carrying a marker value.
type testEvent struct {
	events.BaseEvent
	Value string
}

// recordingHandler captures every payload it receives.
type recordingHandler struct {
	mu       sync.Mutex
	received []events.Event
}

func (h *recordingHandler) Handle(_ context.Context, evt events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, evt)
	return nil
}

func (h *recordingHandler) calls() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.received...)
}

// MockMetrics implements eventbus.DispatcherMetrics for testing.
type MockMetrics struct {
	mu               sync.Mutex
	Triggered        int
	HandlersExecuted int
	HandlerErrors    int
	Durations        int
}

func (m *MockMetrics) IncTriggered(context.Context, events.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Triggered++
}

func (m *MockMetrics) IncHandlerExecuted(context.Context, events.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandlersExecuted++
}

func (m *MockMetrics) IncHandlerError(context.Context, events.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandlerErrors++
}

func (m *MockMetrics) ObserveTriggerDuration(context.Context, events.EventType, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Durations++
}

func newTestDispatcher(opts ...eventbus.Option) *eventbus.Dispatcher {
	base := []eventbus.Option{
		eventbus.WithLogger(logger.Noop()),
		eventbus.WithTracer(noop.NewTracerProvider().Tracer("test")),
	}
	return eventbus.New(eventbus.NewRegistry(), append(base, opts...)...)
}

func TestTriggerInvokesHandlerWithExactPayload(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	h := new(recordingHandler)
	d.Subscribe(eventTypeFoo, h)

	payload := &testEvent{Value: "p1"}
	err := d.Trigger(context.Background(), eventTypeFoo, payload)
	require.NoError(t, err)

	calls := h.calls()
	require.Len(t, calls, 1)
	assert.Same(t, payload, calls[0])
	assert.Nil(t, calls[0].Source())
}

func TestTriggerFromStampsSource(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	var seen any
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, evt events.Event) error {
		seen = evt.Source()
		return nil
	})

	payload := &testEvent{Value: "p1"}
	err := d.TriggerFrom(context.Background(), "producer-7", eventTypeFoo, payload)
	require.NoError(t, err)
	assert.Equal(t, "producer-7", seen)
	assert.Equal(t, "producer-7", payload.Source())
}

func TestTriggerInvokesAllHandlersInRegistrationOrder(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	var order []int
	for i := 0; i < 5; i++ {
		d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
			order = append(order, i)
			return nil
		})
	}

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHandlerFailureDoesNotShortCircuit(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	var order []string
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		order = append(order, "failing")
		return errors.New("boom")
	})
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		order = append(order, "last")
		return nil
	})

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{})
	require.Error(t, err)
	assert.Equal(t, []string{"first", "failing", "last"}, order)

	var dispatchErr *events.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, eventTypeFoo, dispatchErr.EventType)
	assert.Len(t, dispatchErr.Failures, 1)
	assert.Contains(t, dispatchErr.Failures[0].Error(), "boom")
}

func TestAggregateContainsOneFailurePerFailingHandler(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	for i := 0; i < 4; i++ {
		failure := fmt.Errorf("handler failure %d", i)
		d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
			return failure
		})
	}
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		return nil
	})

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{})

	var dispatchErr *events.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Len(t, dispatchErr.Failures, 4)
	for i, failure := range dispatchErr.Failures {
		assert.Contains(t, failure.Error(), fmt.Sprintf("handler failure %d", i))
	}
}

func TestTriggerWithZeroRegistrationsReturnsNormally(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	assert.NoError(t, d.Trigger(context.Background(), eventTypeFoo, &testEvent{}))
	assert.NoError(t, d.Announce(context.Background(), eventTypeFoo))
}

func TestAnnounceDeliversNilPayload(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	invoked := false
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, evt events.Event) error {
		invoked = true
		assert.Nil(t, evt)
		return nil
	})

	require.NoError(t, d.Announce(context.Background(), eventTypeFoo))
	assert.True(t, invoked)
}

func TestRegistrationTokenRemovesOnlyItsRegistration(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	keep := new(recordingHandler)
	remove := new(recordingHandler)

	d.Subscribe(eventTypeFoo, keep)
	reg := d.Subscribe(eventTypeFoo, remove)

	reg.Unregister()
	reg.Unregister() // idempotent

	require.NoError(t, d.Trigger(context.Background(), eventTypeFoo, &testEvent{}))
	assert.Len(t, keep.calls(), 1)
	assert.Empty(t, remove.calls())
}

func TestHandlerPanicIsIsolatedAndReported(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		panic("handler exploded")
	})
	after := new(recordingHandler)
	d.Subscribe(eventTypeFoo, after)

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{})
	require.Error(t, err)
	assert.Len(t, after.calls(), 1)

	var panicErr *events.HandlerPanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "handler exploded", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestFactoryProducingNoHandlerIsConfigurationFailure(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	d.SubscribeTransient(eventTypeFoo, nil)
	after := new(recordingHandler)
	d.Subscribe(eventTypeFoo, after)

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{})
	require.ErrorIs(t, err, events.ErrNoHandler)
	assert.Len(t, after.calls(), 1)
}

func TestSingletonThenFailingHandlerScenario(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	a := new(recordingHandler)
	d.Subscribe(eventTypeFoo, a)

	p1 := &testEvent{Value: "p1"}
	require.NoError(t, d.TriggerFrom(context.Background(), "svc", eventTypeFoo, p1))

	calls := a.calls()
	require.Len(t, calls, 1)
	assert.Same(t, p1, calls[0])
	assert.Equal(t, "svc", calls[0].Source())

	d.SubscribeFunc(eventTypeFoo, func(_ context.Context, _ events.Event) error {
		return errors.New("b failed")
	})

	err := d.Trigger(context.Background(), eventTypeFoo, &testEvent{Value: "p2"})

	var dispatchErr *events.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Len(t, dispatchErr.Failures, 1)
	assert.Contains(t, dispatchErr.Failures[0].Error(), "b failed")
	assert.Len(t, a.calls(), 2)
}

func TestTransientFactoryConstructsAndReleasesPerTrigger(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	var mu sync.Mutex
	constructed, released := 0, 0

	d.SubscribeTransient(eventTypeBar,
		func() events.Handler {
			mu.Lock()
			constructed++
			mu.Unlock()
			return events.HandlerFunc(func(context.Context, events.Event) error { return nil })
		},
		events.WithCleanup(func(events.Handler) {
			mu.Lock()
			released++
			mu.Unlock()
		}),
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Trigger(context.Background(), eventTypeBar, &testEvent{}))
	}

	assert.Equal(t, 3, constructed)
	assert.Equal(t, 3, released)
}

func TestTransientReleaseRunsWhenHandlerFails(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()

	released := 0
	d.SubscribeTransient(eventTypeBar,
		func() events.Handler {
			return events.HandlerFunc(func(context.Context, events.Event) error {
				return errors.New("nope")
			})
		},
		events.WithCleanup(func(events.Handler) { released++ }),
	)

	require.Error(t, d.Trigger(context.Background(), eventTypeBar, &testEvent{}))
	assert.Equal(t, 1, released)
}

func TestMetricsAreRecorded(t *testing.T) {
	t.Parallel()

	metrics := new(MockMetrics)
	d := newTestDispatcher(eventbus.WithMetrics(metrics))

	d.SubscribeFunc(eventTypeFoo, func(context.Context, events.Event) error { return nil })
	d.SubscribeFunc(eventTypeFoo, func(context.Context, events.Event) error { return errors.New("fail") })

	_ = d.Trigger(context.Background(), eventTypeFoo, &testEvent{})
	_ = d.Trigger(context.Background(), eventTypeFoo, &testEvent{})

	assert.Equal(t, 2, metrics.Triggered)
	assert.Equal(t, 4, metrics.HandlersExecuted)
	assert.Equal(t, 2, metrics.HandlerErrors)
	assert.Equal(t, 2, metrics.Durations)
}

func TestConcurrentRegisterAndTrigger(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				reg := d.SubscribeFunc(eventTypeFoo, func(context.Context, events.Event) error { return nil })
				reg.Unregister()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, d.Trigger(ctx, eventTypeFoo, &testEvent{}))
			}
		}()
	}
	wg.Wait()

	// After all registrations have been removed, a subsequent trigger must
	// invoke zero handlers.
	invoked := false
	d.SubscribeFunc(eventTypeBar, func(context.Context, events.Event) error {
		invoked = true
		return nil
	})
	d.UnsubscribeAll(eventTypeBar)
	require.NoError(t, d.Trigger(ctx, eventTypeBar, &testEvent{}))
	assert.False(t, invoked)
	assert.Equal(t, 0, d.Registry().GetOrCreateEntry(eventTypeFoo).Len())
}
