package common

import "sync"

// RingBuffer keeps the last size values added, oldest first.
// Adapted from https://medium.com/@nathanbcrocker/a-practical-guide-to-implementing-a-generic-ring-buffer-in-go-866d27ec1a05.
type RingBuffer[T any] struct {
	mu     sync.Mutex
	buffer []T
	write  int
	count  int
}

func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{buffer: make([]T, size)}
}

// Add inserts value, overwriting the oldest if full.
func (rb *RingBuffer[T]) Add(value T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buffer[rb.write] = value
	rb.write = (rb.write + 1) % len(rb.buffer)
	if rb.count < len(rb.buffer) {
		rb.count++
	}
}

func (rb *RingBuffer[T]) index(i int) int {
	size := len(rb.buffer)
	return (rb.write + size - rb.count + i) % size
}

// Values returns the contents oldest first.
func (rb *RingBuffer[T]) Values() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]T, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		out = append(out, rb.buffer[rb.index(i)])
	}
	return out
}

// Last returns the most recently added value.
func (rb *RingBuffer[T]) Last() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	var zero T
	if rb.count == 0 {
		return zero, false
	}
	return rb.buffer[rb.index(rb.count-1)], true
}

func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buffer)
	rb.write, rb.count = 0, 0
}
