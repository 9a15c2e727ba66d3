package eventbus

import "sync"

var (
	defaultOnce       sync.Once
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher. It is constructed once, on
// first use, with its own registry and no observability backends; callers
// needing logging, tracing, or metrics should construct their own instance
// with New. The default exists purely as a convenience for hosts that want
// a single shared bus without plumbing one through their wiring.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		defaultDispatcher = New(NewRegistry())
	})
	return defaultDispatcher
}
