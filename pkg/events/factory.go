package events

import "reflect"

// HandlerFactory is the strategy object that produces and releases handler
// instances for dispatch. The dispatcher acquires a handler per invocation
// and guarantees a matching Release on every exit path, so factories can
// manage per-invocation state or pooled resources safely.
//
// A factory's identity (not the identity of the handlers it produces) is
// what registration and unregistration track. Implementations should be
// registered as pointers so interface equality is well defined.
type HandlerFactory interface {
	// Acquire returns a handler ready to process one event, or nil when the
	// factory cannot produce one. A nil result is recorded by the dispatcher
	// as a configuration failure for that slot; it does not abort dispatch
	// to the remaining subscribers.
	Acquire() Handler

	// Release returns a handler obtained from Acquire. It is called exactly
	// once per acquired handler, whether or not invocation succeeded.
	Release(h Handler)
}

// SingletonFactory yields the same pre-built handler on every acquisition.
// Release is a no-op since the handler outlives individual invocations.
//
// When the wrapped handler was registered as a bare callback, the factory
// also records the callback's code pointer so a later unregistration by
// that same callback reference can find it without the caller having kept
// the factory or the registration token.
type SingletonFactory struct {
	handler    Handler
	callbackID uintptr
}

// NewSingletonFactory wraps a pre-built handler instance.
func NewSingletonFactory(h Handler) *SingletonFactory {
	return &SingletonFactory{handler: h}
}

// NewCallbackFactory wraps a bare callback, retaining its identity for
// unregister-by-callback support.
func NewCallbackFactory(fn HandlerFunc) *SingletonFactory {
	if fn == nil {
		return &SingletonFactory{}
	}
	return &SingletonFactory{handler: fn, callbackID: reflect.ValueOf(fn).Pointer()}
}

// Acquire returns the wrapped handler. It is nil only when the factory was
// misconfigured with a nil handler or callback.
func (f *SingletonFactory) Acquire() Handler { return f.handler }

// Release is a no-op; the singleton handler is reused across invocations.
func (f *SingletonFactory) Release(Handler) {}

// WrapsHandler reports whether this factory wraps exactly the given handler
// instance. Handlers backed by non-comparable types (such as bare functions)
// never match here; use WrapsFunc for those.
func (f *SingletonFactory) WrapsHandler(h Handler) bool {
	if f.handler == nil || h == nil {
		return false
	}
	if !reflect.TypeOf(f.handler).Comparable() || !reflect.TypeOf(h).Comparable() {
		return false
	}
	return f.handler == h
}

// WrapsFunc reports whether this factory was created from the given callback
// reference. Identity is compared by code pointer, which is stable for
// top-level functions and for repeated references to the same closure value.
func (f *SingletonFactory) WrapsFunc(fn HandlerFunc) bool {
	return fn != nil && f.callbackID != 0 && f.callbackID == reflect.ValueOf(fn).Pointer()
}

// TransientFactory constructs a fresh handler per acquisition and discards
// it on release, enabling per-invocation state and resource cleanup.
type TransientFactory struct {
	construct func() Handler
	cleanup   func(Handler)
}

// TransientOption configures a TransientFactory.
type TransientOption func(*TransientFactory)

// WithCleanup sets a function invoked with each handler when it is released.
func WithCleanup(fn func(Handler)) TransientOption {
	return func(f *TransientFactory) { f.cleanup = fn }
}

// NewTransientFactory creates a factory that calls construct on every
// acquisition. A nil constructor yields a factory whose Acquire always
// returns nil, which the dispatcher reports as a configuration failure.
func NewTransientFactory(construct func() Handler, opts ...TransientOption) *TransientFactory {
	f := &TransientFactory{construct: construct}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Acquire constructs a new handler instance.
func (f *TransientFactory) Acquire() Handler {
	if f.construct == nil {
		return nil
	}
	return f.construct()
}

// Release discards the handler, running the optional cleanup first.
func (f *TransientFactory) Release(h Handler) {
	if f.cleanup != nil && h != nil {
		f.cleanup(h)
	}
}
