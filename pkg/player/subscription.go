package player

import "sync"

type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a release function to Subscription. The function
// runs at most once.
func SubscriptionFunc(release func()) Subscription {
	return &funcSubscription{release: release}
}

type funcSubscription struct {
	once    sync.Once
	release func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Subscriptions releases a group of subscriptions with one Close call.
type Subscriptions struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add tracks sub. Adding to a closed group releases sub immediately.
func (g *Subscriptions) Add(sub Subscription) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Close releases every subscription in reverse order of acquisition.
func (g *Subscriptions) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}
