package eventbus

import (
	"context"
	"time"

	"github.com/triggerkit/trigger/pkg/events"
)

// DispatcherMetrics defines the metric operations needed to monitor event
// dispatch. It enables tracking of trigger volume, handler executions, and
// handler failures without binding the dispatcher to a metrics backend.
type DispatcherMetrics interface {
	// IncTriggered counts a trigger call for the event type.
	IncTriggered(ctx context.Context, eventType events.EventType)

	// IncHandlerExecuted counts a handler invocation for the event type.
	IncHandlerExecuted(ctx context.Context, eventType events.EventType)

	// IncHandlerError counts a failed handler slot for the event type.
	IncHandlerError(ctx context.Context, eventType events.EventType)

	// ObserveTriggerDuration records the wall time of a full trigger call.
	ObserveTriggerDuration(ctx context.Context, eventType events.EventType, d time.Duration)
}

// noopMetrics is the default sink when no metrics backend is configured.
type noopMetrics struct{}

func (noopMetrics) IncTriggered(context.Context, events.EventType)        {}
func (noopMetrics) IncHandlerExecuted(context.Context, events.EventType)  {}
func (noopMetrics) IncHandlerError(context.Context, events.EventType)     {}
func (noopMetrics) ObserveTriggerDuration(context.Context, events.EventType, time.Duration) {
}
