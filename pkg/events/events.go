// Package events defines the contracts shared between event producers and
// event consumers: typed event identifiers, the payload protocol, handlers,
// and the factory strategies that control handler lifetimes. It carries no
// dispatch logic of its own; the dispatcher in pkg/eventbus consumes these
// contracts to route payloads to subscribers.
package events

import "context"

// EventType identifies the category of an event for routing and handling.
// It is the sole key a payload is dispatched by, so values must be stable
// for the lifetime of the process.
type EventType string

// Event is the payload protocol every dispatched value satisfies. Payloads
// are immutable by convention except for a single attribute: the event
// source, which the dispatcher stamps immediately before dispatch so every
// handler of that trigger call can observe the identity of whatever
// triggered the event.
type Event interface {
	// Source returns the identity of the component that triggered this event,
	// or nil when the event was triggered without an explicit source.
	Source() any

	// SetSource records the triggering component. It is called by the
	// dispatcher before handlers run; handlers should treat it as read-only.
	SetSource(src any)
}

// BaseEvent provides the mutable source attribute required by the Event
// protocol. Payload types embed it and add their own event-specific fields.
type BaseEvent struct{ source any }

// Source returns the identity recorded by the dispatcher for this trigger call.
func (e *BaseEvent) Source() any { return e.source }

// SetSource records the triggering component's identity.
func (e *BaseEvent) SetSource(src any) { e.source = src }

// Handler is the unit of subscriber logic executed against one event payload.
// The payload is nil for marker events that carry no data.
type Handler interface {
	// Handle processes a single event payload and returns an error if
	// processing fails. Failures are isolated per handler by the dispatcher;
	// returning an error never prevents other subscribers from running.
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle invokes the function.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error { return f(ctx, evt) }
