package eventbus

import (
	"sort"
	"sync"

	"github.com/erp/platform/internal/domain/event"
)

// subscription is one registered handler
type subscription struct {
	id       uint64
	name     event.Name
	moduleID string
	mode     event.Mode
	handler  event.Handler
}

// HandlerRegistry manages handler registrations per event name
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[event.Name][]*subscription // event name -> handlers in registration order
	nextID   uint64
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[event.Name][]*subscription),
	}
}

// Register appends a handler for name and returns its subscription id
func (r *HandlerRegistry) Register(name event.Name, mode event.Mode, moduleID string, handler event.Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &subscription{
		id:       r.nextID,
		name:     name,
		moduleID: moduleID,
		mode:     mode,
		handler:  handler,
	}
	r.handlers[name] = append(r.handlers[name], sub)
	return sub.id
}

// Handlers returns a snapshot of the handlers for name, in registration order.
// Registrations made while the snapshot is being dispatched do not affect it.
func (r *HandlerRegistry) Handlers(name event.Name) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.handlers[name]
	result := make([]*subscription, len(subs))
	copy(result, subs)
	return result
}

// Unregister removes the subscription with the given id
func (r *HandlerRegistry) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, subs := range r.handlers {
		kept := removeSubscriptions(subs, func(s *subscription) bool { return s.id == id })
		if len(kept) == len(subs) {
			continue
		}
		r.setHandlers(name, kept)
		return true
	}
	return false
}

// RemoveModule removes every subscription owned by moduleID and returns how many were removed
func (r *HandlerRegistry) RemoveModule(moduleID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, subs := range r.handlers {
		kept := removeSubscriptions(subs, func(s *subscription) bool { return s.moduleID == moduleID })
		removed += len(subs) - len(kept)
		r.setHandlers(name, kept)
	}
	return removed
}

// Events returns the names that have at least one handler, sorted
func (r *HandlerRegistry) Events() []event.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]event.Name, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Count returns the number of handlers registered for name
func (r *HandlerRegistry) Count(name event.Name) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}

// Reset drops every registration
func (r *HandlerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[event.Name][]*subscription)
}

// setHandlers must be called with the write lock held
func (r *HandlerRegistry) setHandlers(name event.Name, subs []*subscription) {
	if len(subs) == 0 {
		delete(r.handlers, name)
		return
	}
	r.handlers[name] = subs
}

func removeSubscriptions(subs []*subscription, match func(*subscription) bool) []*subscription {
	result := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if !match(s) {
			result = append(result, s)
		}
	}
	return result
}
