package events

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoHandler indicates a registered factory declared a handler for an
// event type but produced none when acquired. It is recorded against the
// failing slot and surfaced through the trigger call's DispatchError.
var ErrNoHandler = errors.New("handler factory produced no handler")

// PayloadTypeError reports a payload that does not satisfy the type a
// handler was registered for. Like ErrNoHandler it is a configuration
// failure: the registration promised a capability the payload cannot meet.
type PayloadTypeError struct {
	// Want is the payload type the handler was registered for.
	Want string
	// Got is the dynamic type of the payload that was triggered.
	Got string
}

func (e *PayloadTypeError) Error() string {
	return fmt.Sprintf("payload type %s does not match handler registered for %s", e.Got, e.Want)
}

// HandlerPanicError wraps a panic recovered from a handler invocation so it
// can be reported as that slot's failure instead of unwinding the caller.
type HandlerPanicError struct {
	// Value is the value the handler panicked with.
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// DispatchError is the single aggregate failure a trigger call reports when
// one or more handlers failed. It carries the event type and the ordered
// per-slot failures so the caller can log or inspect every underlying cause
// from one call site.
type DispatchError struct {
	// EventType identifies the event whose dispatch failed.
	EventType EventType
	// Failures holds one error per failing handler slot, in dispatch order.
	Failures []error
}

func (e *DispatchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dispatching %q: %d handler(s) failed", e.EventType, len(e.Failures))
	for _, err := range e.Failures {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the per-slot failures to errors.Is and errors.As.
func (e *DispatchError) Unwrap() []error { return e.Failures }
