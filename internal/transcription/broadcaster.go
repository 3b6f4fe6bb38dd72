package transcription

import "sync"

// Broadcaster fans values out to any number of subscribers without ever
// blocking the publisher. A subscriber whose buffer is full loses its oldest
// pending value to make room for the newest.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	next    int
	dropped int64
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Subscribe returns a channel of published values and a function that ends
// the subscription and closes the channel. buffer below 1 is treated as 1.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
			b.dropped++
		default:
		}
		select {
		case ch <- v:
		default:
			b.dropped++
		}
	}
}

// Subscribers counts live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped counts values discarded for slow subscribers.
func (b *Broadcaster[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
