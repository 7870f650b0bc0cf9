package player

import "sync"

// broadcaster fans values out to subscribers. Sends never block: a
// subscriber whose buffer is full misses that value.
type broadcaster[T any] struct {
	mutex     sync.Mutex
	listeners []chan T
}

// Subscribe adds a listener for published values
func (b *broadcaster[T]) Subscribe() <-chan T {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan T, 16)
	b.listeners = append(b.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener (call this when done to prevent
// leaks)
func (b *broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i, listener := range b.listeners {
		if listener == ch {
			close(listener)
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Count returns the number of subscribers
func (b *broadcaster[T]) Count() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.listeners)
}

func (b *broadcaster[T]) publish(v T) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, listener := range b.listeners {
		select {
		case listener <- v:
		default:
		}
	}
}
