package eventbus

import (
	"context"
	"fmt"

	"github.com/triggerkit/trigger/pkg/events"
)

// Subscribe registers a pre-built handler instance for the event type. The
// same instance serves every invocation. The returned token removes exactly
// this registration.
func (d *Dispatcher) Subscribe(eventType events.EventType, h events.Handler) *Registration {
	return d.registry.Register(eventType, events.NewSingletonFactory(h))
}

// SubscribeFunc registers a bare callback for the event type. The callback
// reference is retained so it can later be unregistered with
// UnsubscribeFunc, without having kept the factory or the token.
func (d *Dispatcher) SubscribeFunc(eventType events.EventType, fn events.HandlerFunc) *Registration {
	return d.registry.Register(eventType, events.NewCallbackFactory(fn))
}

// SubscribeTransient registers a constructor that produces a fresh handler
// per invocation; each handler is discarded after its trigger call.
func (d *Dispatcher) SubscribeTransient(eventType events.EventType, construct func() events.Handler, opts ...events.TransientOption) *Registration {
	return d.registry.Register(eventType, events.NewTransientFactory(construct, opts...))
}

// SubscribeFactory registers a custom handler factory.
func (d *Dispatcher) SubscribeFactory(eventType events.EventType, factory events.HandlerFactory) *Registration {
	return d.registry.Register(eventType, factory)
}

// UnsubscribeHandler removes every registration made for the given handler
// instance via Subscribe. Registrations made via other handlers, callbacks,
// or factories are unaffected. Unknown handlers are a silent no-op.
func (d *Dispatcher) UnsubscribeHandler(eventType events.EventType, h events.Handler) {
	d.registry.UnregisterWhere(eventType, func(f events.HandlerFactory) bool {
		sf, ok := f.(*events.SingletonFactory)
		return ok && sf.WrapsHandler(h)
	})
}

// UnsubscribeFunc removes every registration made for the given callback
// reference via SubscribeFunc. Unknown callbacks are a silent no-op.
func (d *Dispatcher) UnsubscribeFunc(eventType events.EventType, fn events.HandlerFunc) {
	d.registry.UnregisterWhere(eventType, func(f events.HandlerFactory) bool {
		sf, ok := f.(*events.SingletonFactory)
		return ok && sf.WrapsFunc(fn)
	})
}

// UnsubscribeFactory removes the first registration of the given factory.
func (d *Dispatcher) UnsubscribeFactory(eventType events.EventType, factory events.HandlerFactory) {
	d.registry.Unregister(eventType, factory)
}

// UnsubscribeAll removes every current registration for the event type. A
// subsequent trigger for that type invokes zero handlers and returns
// normally.
func (d *Dispatcher) UnsubscribeAll(eventType events.EventType) {
	d.registry.UnregisterAll(eventType)
}

// On registers a statically typed callback for the event type. The payload
// type is bound at registration time, so invocation never needs a runtime
// type lookup inside the dispatch loop: a payload that is not a T is
// recorded as that slot's configuration failure and the remaining handlers
// still run.
func On[T events.Event](d *Dispatcher, eventType events.EventType, fn func(ctx context.Context, evt T) error) *Registration {
	adapter := events.HandlerFunc(func(ctx context.Context, evt events.Event) error {
		typed, ok := evt.(T)
		if !ok {
			var want T
			return &events.PayloadTypeError{
				Want: fmt.Sprintf("%T", want),
				Got:  fmt.Sprintf("%T", evt),
			}
		}
		return fn(ctx, typed)
	})
	return d.registry.Register(eventType, events.NewCallbackFactory(adapter))
}
