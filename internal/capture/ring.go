package capture

import "sync"

// Ring is a bounded, thread-safe FIFO that overwrites its oldest elements
// when full. It keeps a sliding window of the most recent samples between
// an audio callback and a consumer.
type Ring[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    int64
}

// NewRing creates a ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{buf: make([]T, size)}
}

// Write appends p, discarding the oldest elements to make room.
func (r *Ring[T]) Write(p []T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := int64(len(r.buf))
	if int64(len(p)) > size {
		r.dropped += int64(len(p)) - size
		p = p[int64(len(p))-size:]
	}
	for _, v := range p {
		r.buf[r.tail%size] = v
		r.tail++
	}
	if over := r.tail - r.head - size; over > 0 {
		r.head += over
		r.dropped += over
	}
}

// Drain removes and returns everything buffered, oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := int64(len(r.buf))
	out := make([]T, 0, r.tail-r.head)
	for i := r.head; i < r.tail; i++ {
		out = append(out, r.buf[i%size])
	}
	r.head = r.tail
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns how many elements have been overwritten unread.
func (r *Ring[T]) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
