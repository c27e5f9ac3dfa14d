// Package ringbuf provides a fixed-capacity ring buffer that overwrites its
// oldest element when full. It backs bounded bar and snapshot histories.
//
// A Ring is not safe for concurrent use; callers serialise writers the same
// way they serialise the series that owns it.
package ringbuf

// Ring is a FIFO ring of T bounded to a fixed capacity.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int

	// Total number of elements evicted by Push on a full ring.
	evicted uint64
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is dropped and
// returned with ok=true.
func (r *Ring[T]) Push(v T) (dropped T, ok bool) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return dropped, false
	}

	dropped = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return dropped, true
}

// At returns the i-th element, oldest first. It panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element, or false when empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Tail copies the newest n elements (fewer if unavailable), oldest first.
func (r *Ring[T]) Tail(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.count - n
	for i := range out {
		out[i] = r.At(start + i)
	}
	return out
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Evicted returns how many elements were dropped to make room.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }

// Reset empties the ring, keeping its capacity.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
	r.evicted = 0
}
