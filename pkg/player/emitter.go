package player

import "sync"

// Emitter is a concurrency-safe handler registry. Player and media element
// implementations embed one per event target.
type Emitter struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[EventName]map[uint64]Handler
}

func (e *Emitter) On(name EventName, h Handler) Subscription {
	e.mu.Lock()
	if e.handlers == nil {
		e.handlers = make(map[EventName]map[uint64]Handler)
	}
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[uint64]Handler)
	}
	e.next++
	id := e.next
	e.handlers[name][id] = h
	e.mu.Unlock()

	return SubscriptionFunc(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[name], id)
		if len(e.handlers[name]) == 0 {
			delete(e.handlers, name)
		}
	})
}

// Emit calls every handler registered for ev.Name. Handlers run on the
// caller's goroutine, outside the registry lock.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	hs := make([]Handler, 0, len(e.handlers[ev.Name]))
	for _, h := range e.handlers[ev.Name] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Listeners returns how many handlers are registered for name.
func (e *Emitter) Listeners(name EventName) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}
