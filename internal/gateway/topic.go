package gateway

import "sync"

// Topic is a single-producer, single-consumer channel with "keep latest"
// overflow: a publish that can't fit drops whatever is buffered in favor
// of the new value. The downstream client's dispatch graph is built from
// four of these: dispatch, receiver, sender, control.
type Topic[T any] struct {
	mu sync.Mutex
	ch chan T
}

// NewTopic creates an empty, unbuffered-beyond-one Topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{ch: make(chan T, 1)}
}

// Publish delivers v, dropping any value already buffered and not yet
// consumed in favor of v.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case t.ch <- v:
		return
	default:
	}
	select {
	case <-t.ch:
	default:
	}
	select {
	case t.ch <- v:
	default:
	}
}

// C exposes the read side for consumers.
func (t *Topic[T]) C() <-chan T {
	return t.ch
}
