package journal

import "sync"

// DefaultRingSize is the capacity used when NewRing is given zero.
const DefaultRingSize = 512

// Ring keeps the most recent events. Goroutine-safe.
type Ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

// NewRing creates a Ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]Event, size)}
}

// Push stores e, evicting the oldest event when full.
func (r *Ring) Push(e Event) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Len is the number of stored events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Ring) lenLocked() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Recent returns up to n events, oldest first. n <= 0 returns all.
func (r *Ring) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.lenLocked()
	if n <= 0 || n > size {
		n = size
	}
	if n == 0 {
		return nil
	}
	out := make([]Event, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Counts tallies stored events by kind.
func (r *Ring) Counts() map[Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Kind]int)
	for i := 0; i < r.lenLocked(); i++ {
		counts[r.buf[i].Kind]++
	}
	return counts
}
