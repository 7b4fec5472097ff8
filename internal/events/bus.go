// Package events provides a minimal typed publish/subscribe bus used to fan
// out task and catalog notifications without coupling the core to any
// presentation layer.
package events

import "sync"

// Bus delivers values of type T to every subscriber, in subscription order.
// Handlers run synchronously on the publishing goroutine and must stay cheap;
// a handler must not publish back into the same bus.
type Bus[T any] struct {
	mu       sync.RWMutex
	handlers []func(T)
}

// Subscribe registers fn to receive every subsequently published value.
func (b *Bus[T]) Subscribe(fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

// Publish delivers v to all current subscribers.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}
