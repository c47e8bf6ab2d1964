// Package ring provides the fixed-capacity FIFO used for per-process
// task queues. Nothing allocates after construction.
package ring

type Ring[T any] struct {
	buf  []T
	head int
	n    int
}

func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Len() int { return r.n }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v; it reports false when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	if r.n == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return true
}

// Pop removes and returns the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// RemoveIf drops every element matching pred, preserving order, and
// returns how many were removed.
func (r *Ring[T]) RemoveIf(pred func(v T) bool) int {
	kept := 0
	removed := 0
	for i := 0; i < r.n; i++ {
		v := r.buf[(r.head+i)%len(r.buf)]
		if pred(v) {
			removed++
			continue
		}
		r.buf[(r.head+kept)%len(r.buf)] = v
		kept++
	}
	var zero T
	for i := kept; i < r.n; i++ {
		r.buf[(r.head+i)%len(r.buf)] = zero
	}
	r.n = kept
	return removed
}

// Flush empties the ring.
func (r *Ring[T]) Flush() {
	var zero T
	for i := 0; i < r.n; i++ {
		r.buf[(r.head+i)%len(r.buf)] = zero
	}
	r.head = 0
	r.n = 0
}
