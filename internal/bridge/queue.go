package bridge

import "sync"

// eventQueue is an unbounded FIFO so the read loop never blocks on slow
// handlers.
type eventQueue struct {
	mu     sync.Mutex
	items  []inboundMessage
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(msg inboundMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or done is closed. Items queued
// before done closed are still drained.
func (q *eventQueue) pop(done <-chan struct{}) (inboundMessage, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = inboundMessage{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-done:
			q.mu.Lock()
			empty := len(q.items) == 0
			q.mu.Unlock()
			if empty {
				return inboundMessage{}, false
			}
		}
	}
}
