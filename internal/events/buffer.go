package events

import "sync"

// RingBuffer keeps the most recent events and numbers them. Sequence numbers
// start at 1 and keep growing across wrap-around and Clear, so a reader that
// remembers the last number it saw can ask for what came after.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	start  int
	count  int
	seq    uint64
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 256
	}
	return &RingBuffer{events: make([]Event, size)}
}

// Add stamps e with the next sequence number, stores it and returns it.
func (rb *RingBuffer) Add(e Event) Event {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	e.Seq = rb.seq
	size := len(rb.events)
	if rb.count < size {
		rb.events[(rb.start+rb.count)%size] = e
		rb.count++
	} else {
		rb.events[rb.start] = e
		rb.start = (rb.start + 1) % size
	}
	return e
}

// Snapshot returns the buffered events, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

// Last returns the n newest events, oldest first. n <= 0 means all.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	return rb.copyFrom(rb.count-n, n)
}

// Since returns the buffered events numbered above seq, oldest first. Events
// that already fell out of the buffer are not returned.
func (rb *RingBuffer) Since(seq uint64) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if seq >= rb.seq {
		return []Event{}
	}
	n := int(rb.seq - seq)
	if n > rb.count {
		n = rb.count
	}
	return rb.copyFrom(rb.count-n, n)
}

// Seq returns the number of the newest event, 0 before the first Add.
func (rb *RingBuffer) Seq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.seq
}

// copyFrom copies n events starting at logical offset off. Callers hold the
// read lock.
func (rb *RingBuffer) copyFrom(off, n int) []Event {
	out := make([]Event, n)
	size := len(rb.events)
	for i := 0; i < n; i++ {
		out[i] = rb.events[(rb.start+off+i)%size]
	}
	return out
}

// Clear drops every buffered event. Numbering continues.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.events)
	rb.start = 0
	rb.count = 0
}
