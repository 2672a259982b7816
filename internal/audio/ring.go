// internal/audio/ring.go
package audio

import "sync"

// Ring is a fixed-capacity circular buffer over an owned array. Read and
// write positions wrap explicitly; one writer and one reader may run
// concurrently.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	read  int
	write int
	count int
}

// NewRing creates a ring holding up to capacity values.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Write copies as many values as fit and returns how many were stored.
func (r *Ring[T]) Write(src []T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(src), len(r.buf)-r.count)
	for i := 0; i < n; i++ {
		r.buf[r.write] = src[i]
		r.write++
		if r.write == len(r.buf) {
			r.write = 0
		}
	}
	r.count += n
	return n
}

// Read moves up to len(dst) values into dst and returns how many were read.
func (r *Ring[T]) Read(dst []T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), r.count)
	for i := 0; i < n; i++ {
		dst[i] = r.buf[r.read]
		r.read++
		if r.read == len(r.buf) {
			r.read = 0
		}
	}
	r.count -= n
	return n
}

// Len returns the number of buffered values.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Reset drops all buffered values.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read, r.write, r.count = 0, 0, 0
}
