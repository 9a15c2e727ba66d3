// Package otelmetrics provides an OpenTelemetry-backed implementation of
// the dispatcher's metrics contract.
package otelmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/triggerkit/trigger/pkg/eventbus"
	"github.com/triggerkit/trigger/pkg/events"
)

const namespace = "eventbus"

var _ eventbus.DispatcherMetrics = (*Metrics)(nil)

// Metrics implements eventbus.DispatcherMetrics on top of an OpenTelemetry
// meter. Every instrument is labeled with the event type being dispatched.
type Metrics struct {
	triggers         metric.Int64Counter
	handlersExecuted metric.Int64Counter
	handlerErrors    metric.Int64Counter
	triggerDuration  metric.Float64Histogram
}

// New creates a new Metrics instance from the provided meter provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(Metrics)
	var err error

	if m.triggers, err = meter.Int64Counter(
		"triggers_total",
		metric.WithDescription("Total number of trigger calls"),
	); err != nil {
		return nil, err
	}

	if m.handlersExecuted, err = meter.Int64Counter(
		"handlers_executed_total",
		metric.WithDescription("Total number of handler invocations"),
	); err != nil {
		return nil, err
	}

	if m.handlerErrors, err = meter.Int64Counter(
		"handler_errors_total",
		metric.WithDescription("Total number of failed handler slots"),
	); err != nil {
		return nil, err
	}

	if m.triggerDuration, err = meter.Float64Histogram(
		"trigger_duration_seconds",
		metric.WithDescription("Wall time of full trigger calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// IncTriggered counts a trigger call for the event type.
func (m *Metrics) IncTriggered(ctx context.Context, eventType events.EventType) {
	m.triggers.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// IncHandlerExecuted counts a handler invocation for the event type.
func (m *Metrics) IncHandlerExecuted(ctx context.Context, eventType events.EventType) {
	m.handlersExecuted.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// IncHandlerError counts a failed handler slot for the event type.
func (m *Metrics) IncHandlerError(ctx context.Context, eventType events.EventType) {
	m.handlerErrors.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// ObserveTriggerDuration records the wall time of a full trigger call.
func (m *Metrics) ObserveTriggerDuration(ctx context.Context, eventType events.EventType, d time.Duration) {
	m.triggerDuration.Record(ctx, d.Seconds(), metric.WithAttributes(eventTypeAttr(eventType)))
}

func eventTypeAttr(eventType events.EventType) attribute.KeyValue {
	return attribute.String("event_type", string(eventType))
}
