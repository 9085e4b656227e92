package main

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer for float32 PCM audio samples.
// It holds the most recent `cap` samples ever written; older samples are
// overwritten (drop oldest). Both operations hold the lock only for the
// length of the data they touch, never for the full capacity, so the audio
// callback's hold time stays bounded.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []float32
	cap  int
	head int // index of next write position
	len  int // number of valid samples (caps at cap)
}

// NewRingBuffer creates a new RingBuffer with the given capacity (in samples).
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buf: make([]float32, capacity),
		cap: capacity,
	}
}

// Write appends samples to the ring buffer, evicting the oldest samples when
// full. Allocation-free: safe to call from the audio capture path. If the
// input is longer than the whole buffer only its trailing part survives, so
// just write the tail.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(samples) > rb.cap {
		samples = samples[len(samples)-rb.cap:]
	}

	n := copy(rb.buf[rb.head:], samples)
	copy(rb.buf, samples[n:]) // wrap around

	rb.head = (rb.head + len(samples)) % rb.cap
	rb.len += len(samples)
	if rb.len > rb.cap {
		rb.len = rb.cap
	}
}

// SnapshotLast returns a copy of the most recent n samples. If fewer than n
// samples have ever been written, the missing leading portion is zero-filled,
// so the result always has length n (clamped to capacity). Safe to call
// concurrently with Write; the copy is atomic with respect to it.
func (rb *RingBuffer) SnapshotLast(n int) []float32 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.cap {
		n = rb.cap
	}
	out := make([]float32, n)

	avail := n
	if avail > rb.len {
		avail = rb.len
	}
	if avail == 0 {
		return out
	}

	// Newest sample sits at head-1. Copy `avail` samples ending there into
	// the tail of out, leaving the zero pad at the front.
	start := (rb.head - avail + rb.cap) % rb.cap
	dst := out[n-avail:]
	m := copy(dst, rb.buf[start:])
	if m < avail {
		copy(dst[m:], rb.buf[:avail-m]) // wrapped portion
	}
	return out
}

// Len returns the number of samples currently held in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.len
}

// Capacity returns the fixed buffer capacity in samples.
func (rb *RingBuffer) Capacity() int {
	return rb.cap
}
