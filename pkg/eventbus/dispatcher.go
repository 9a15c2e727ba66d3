// Package eventbus provides an in-process, synchronous publish/subscribe
// dispatcher. Producers trigger typed event payloads and zero or more
// registered handlers execute against them on the caller's goroutine, in
// registration order, with per-handler failure isolation and a single
// aggregate error reported per trigger call.
//
// Registrations and triggers may race: a trigger takes a consistent
// snapshot of the current handler list, but mutations made while a trigger
// is in flight may or may not be reflected in that trigger's invocation
// set. This weak consistency is documented behavior, not a defect.
package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/triggerkit/trigger/pkg/common/logger"
	"github.com/triggerkit/trigger/pkg/events"
)

// Dispatcher resolves the handlers registered for an event type and invokes
// them synchronously against a payload. It never runs handlers concurrently
// within one trigger call and blocks the caller until every handler has
// completed.
type Dispatcher struct {
	registry *Registry

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics DispatcherMetrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger used to report handler failures.
func WithLogger(log *logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = log }
}

// WithTracer sets the tracer used to create a span per trigger call.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithMetrics sets the metrics sink for dispatch instrumentation.
func WithMetrics(metrics DispatcherMetrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// New creates a dispatcher backed by the given registry. A nil registry
// gets a fresh empty one, letting callers construct fully self-contained
// instances. Any number of independently scoped dispatchers may coexist.
func New(registry *Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		registry: registry,
		logger:   logger.Noop(),
		tracer:   noop.NewTracerProvider().Tracer("eventbus"),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "eventbus")
	return d
}

// Registry returns the registry this dispatcher resolves handlers from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Trigger publishes the payload to every handler currently registered for
// the event type, with a nil event source. A nil payload follows the same
// path and is delivered as a marker event.
func (d *Dispatcher) Trigger(ctx context.Context, eventType events.EventType, payload events.Event) error {
	return d.trigger(ctx, nil, eventType, payload)
}

// TriggerFrom is Trigger with an explicit event source. The source is
// stamped onto the payload immediately before dispatch and is visible to
// all handlers of this trigger call.
func (d *Dispatcher) TriggerFrom(ctx context.Context, source any, eventType events.EventType, payload events.Event) error {
	return d.trigger(ctx, source, eventType, payload)
}

// Announce triggers a marker event that carries no payload. Handlers
// receive a nil event and the source-stamping step is skipped.
func (d *Dispatcher) Announce(ctx context.Context, eventType events.EventType) error {
	return d.trigger(ctx, nil, eventType, nil)
}

func (d *Dispatcher) trigger(ctx context.Context, source any, eventType events.EventType, payload events.Event) error {
	ctx, span := d.tracer.Start(
		ctx,
		"eventbus.Dispatcher.Trigger",
		trace.WithAttributes(attribute.String("event_type", string(eventType))),
	)
	defer span.End()

	start := time.Now()
	d.metrics.IncTriggered(ctx, eventType)

	if payload != nil {
		payload.SetSource(source)
	}

	snapshot := d.registry.Snapshot(eventType)
	span.SetAttributes(attribute.Int("handler_count", len(snapshot)))

	var failures []error
	for slot, factory := range snapshot {
		if err := d.invoke(ctx, eventType, factory, payload); err != nil {
			d.metrics.IncHandlerError(ctx, eventType)
			d.logger.Warn(ctx, "event handler failed",
				"event_type", eventType, "slot", slot, "error", err)
			failures = append(failures, fmt.Errorf("handler %d: %w", slot, err))
		}
	}

	d.metrics.ObserveTriggerDuration(ctx, eventType, time.Since(start))

	if len(failures) > 0 {
		dispatchErr := &events.DispatchError{EventType: eventType, Failures: failures}
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch completed with handler failures")
		d.logger.Error(ctx, "event dispatch completed with failures",
			"event_type", eventType, "failed", len(failures), "handlers", len(snapshot))
		return dispatchErr
	}
	return nil
}

// invoke runs a single handler slot: acquire, handle, release. Release is
// guaranteed exactly once per acquired handler, including when the handler
// panics; panics are converted to that slot's failure so the remaining
// subscribers still run.
func (d *Dispatcher) invoke(ctx context.Context, eventType events.EventType, factory events.HandlerFactory, payload events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &events.HandlerPanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	handler := factory.Acquire()
	if handler == nil {
		return events.ErrNoHandler
	}
	defer factory.Release(handler)

	d.metrics.IncHandlerExecuted(ctx, eventType)
	return handler.Handle(ctx, payload)
}
