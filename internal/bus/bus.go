package bus

import "sync"

// Bus provides fan-out pub/sub semantics for values of type T. Each Subscribe
// call gets its own channel that receives every future publication. Past
// messages are not replayed. The implementation is safe for concurrent
// publishers and subscribers.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers []chan T
}

// New creates a ready-to-use Bus.
func New[T any]() *Bus[T] { return &Bus[T]{} }

// Subscribe returns a read-only channel that will receive all future
// publications.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, 16) // small buffer absorbs bursts without blocking
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the value to all subscribers in a best-effort, non-blocking
// way. If a subscriber's buffer is full the value is skipped for that
// subscriber; the consumer will see the next publication once it catches up.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	subs := make([]chan T, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- v:
		default:
			continue
		}
	}
}
