package playback

import "sync"

// fanout holds the parked long-poll waiters for one cache. Each waiter is
// a buffered channel so broadcast never blocks on a slow reader; a waiter
// belongs to the list until it is delivered to or removed, never both.
type fanout[T any] struct {
	mu      sync.Mutex
	waiters []chan T
}

func (f *fanout[T]) add() chan T {
	ch := make(chan T, 1)
	f.mu.Lock()
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()
	return ch
}

// remove drops a waiter that timed out or whose connection closed. It is
// a no-op when broadcast already claimed the channel.
func (f *fanout[T]) remove(ch chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w == ch {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// broadcast delivers payload to every parked waiter and clears the list.
func (f *fanout[T]) broadcast(payload T) {
	f.mu.Lock()
	ws := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, ch := range ws {
		ch <- payload
	}
}
