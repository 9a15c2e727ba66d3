package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/triggerkit/trigger/pkg/events"
)

// Entry is the ordered collection of handler factories bound to one event
// type. Insertion order is preserved and is dispatch order. All mutation
// happens under the entry's own lock, so unrelated event types never
// contend with each other.
type Entry struct {
	mu        sync.Mutex
	factories []events.HandlerFactory
}

// Append adds a factory to the end of the entry's list. Duplicate
// registrations of the same factory coexist and each fires independently.
func (e *Entry) Append(f events.HandlerFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories = append(e.factories, f)
}

// Remove deletes the first occurrence of the given factory, comparing by
// identity. It reports whether a factory was removed; removing a factory
// that is not present is a no-op, never an error.
func (e *Entry) Remove(f events.HandlerFactory) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.factories {
		if existing == f {
			e.factories = append(e.factories[:i], e.factories[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveWhere deletes every factory matching the predicate and returns the
// number removed.
func (e *Entry) RemoveWhere(pred func(events.HandlerFactory) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.factories[:0]
	removed := 0
	for _, f := range e.factories {
		if pred(f) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	// Zero the tail so removed factories are not retained.
	for i := len(kept); i < len(e.factories); i++ {
		e.factories[i] = nil
	}
	e.factories = kept
	return removed
}

// Clear removes every factory from the entry. The entry itself remains a
// valid, stable registration target.
func (e *Entry) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories = nil
}

// Snapshot returns a point-in-time copy of the entry's factory list. The
// copy never reflects later mutations and must not be mutated by the
// caller; the dispatcher iterates it without holding the entry lock.
func (e *Entry) Snapshot() []events.HandlerFactory {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.factories) == 0 {
		return nil
	}
	snapshot := make([]events.HandlerFactory, len(e.factories))
	copy(snapshot, e.factories)
	return snapshot
}

// Len returns the current number of registered factories.
func (e *Entry) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.factories)
}

// Registry owns the mapping from event type to its ordered factory list.
// It is safe for concurrent use: entry lookup and creation are guarded by
// a registry-level lock, while list mutation is serialized per entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[events.EventType]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[events.EventType]*Entry)}
}

// GetOrCreateEntry returns the entry for the given event type, creating an
// empty one if absent. Entries are created lazily on first registration and
// persist, possibly empty, for the life of the registry.
func (r *Registry) GetOrCreateEntry(eventType events.EventType) *Entry {
	r.mu.RLock()
	entry, ok := r.entries[eventType]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.entries[eventType]; ok {
		return entry
	}
	entry = new(Entry)
	r.entries[eventType] = entry
	return entry
}

// Register appends the factory to the event type's entry and returns a
// token that can later remove exactly this (eventType, factory) pair.
func (r *Registry) Register(eventType events.EventType, factory events.HandlerFactory) *Registration {
	r.GetOrCreateEntry(eventType).Append(factory)
	return &Registration{
		id:        uuid.NewString(),
		registry:  r,
		eventType: eventType,
		factory:   factory,
	}
}

// Unregister removes the first occurrence of the factory from the event
// type's entry. Unknown event types and absent factories are silent no-ops.
func (r *Registry) Unregister(eventType events.EventType, factory events.HandlerFactory) {
	if entry := r.lookup(eventType); entry != nil {
		entry.Remove(factory)
	}
}

// UnregisterWhere removes every factory for the event type matching the
// predicate and returns the number removed.
func (r *Registry) UnregisterWhere(eventType events.EventType, pred func(events.HandlerFactory) bool) int {
	entry := r.lookup(eventType)
	if entry == nil {
		return 0
	}
	return entry.RemoveWhere(pred)
}

// UnregisterAll removes every registration for the event type.
func (r *Registry) UnregisterAll(eventType events.EventType) {
	if entry := r.lookup(eventType); entry != nil {
		entry.Clear()
	}
}

// Snapshot returns a point-in-time copy of the event type's factory list
// for dispatch. An absent entry yields an empty snapshot, not an error.
func (r *Registry) Snapshot(eventType events.EventType) []events.HandlerFactory {
	entry := r.lookup(eventType)
	if entry == nil {
		return nil
	}
	return entry.Snapshot()
}

func (r *Registry) lookup(eventType events.EventType) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[eventType]
}

// Registration is the token returned by Register. Its Unregister method
// removes exactly the (eventType, factory) pair it was issued for.
type Registration struct {
	id        string
	registry  *Registry
	eventType events.EventType
	factory   events.HandlerFactory
	done      atomic.Bool
}

// ID returns the unique identifier assigned to this registration.
func (r *Registration) ID() string { return r.id }

// EventType returns the event type this registration was made for.
func (r *Registration) EventType() events.EventType { return r.eventType }

// Unregister removes this registration from the registry. It is
// idempotent: calling it more than once, or after the pair has already
// been removed by other means, is a no-op.
func (r *Registration) Unregister() {
	if r.done.Swap(true) {
		return
	}
	r.registry.Unregister(r.eventType, r.factory)
}
