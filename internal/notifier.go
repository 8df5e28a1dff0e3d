package internal

import "sync"

// Notifier delivers state snapshots to subscribers synchronously, in the
// order they were published.
type Notifier[T any] struct {
	emitMu sync.Mutex

	mu   sync.Mutex
	subs []subscriber[T]
	next int
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function removing it
func (n *Notifier[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs = append(n.subs, subscriber[T]{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers v to every subscriber. unlock is called once delivery
// order is secured, so the caller's state lock is not held while
// subscribers run. Subscribers must not publish.
func (n *Notifier[T]) Publish(v T, unlock func()) {
	n.emitMu.Lock()
	unlock()
	defer n.emitMu.Unlock()

	n.mu.Lock()
	subs := make([]subscriber[T], len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}
