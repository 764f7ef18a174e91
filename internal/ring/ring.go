// Package ring implements the single-producer/single-consumer packet ring
// that connects a session's builder tasklet to its transmitter tasklet
// (spec.md §3 "Packet Ring"). Capacity is rounded up to a power of two so
// index wrap is a mask instead of a modulo.
package ring

import (
	"sync/atomic"
)

// Packet is one queued unit: the wire bytes plus the pacer-assigned send
// time and a ring-local index used for inflight bookkeeping (spec.md §3:
// "packets carry a target_tsc and an index in the dynamic private area").
type Packet struct {
	Bytes     []byte
	TargetTSC uint64
	Index     uint32
	// Dummy marks a packet emitted only to complete a short final burst
	// (spec.md §8 boundary behaviour); the transmitter filters and counts
	// these instead of sending them.
	Dummy bool
}

// Ring is a bounded SPSC queue of *Packet. One goroutine (the builder
// tasklet) calls Push; a different goroutine (the transmitter tasklet)
// calls Pop. No other synchronization is required between them beyond the
// atomics below, matching spec.md §5: "ordering is enforced by the single-
// producer single-consumer ring; there is no back-edge."
type Ring struct {
	mask uint64
	buf  []*Packet
	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned
}

// New creates a ring whose capacity is the next power of two >= capacity.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	return &Ring{
		mask: uint64(c - 1),
		buf:  make([]*Packet, c),
	}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push enqueues one packet; it returns false (ring_full, spec.md §7
// transient error) if the ring has no free slot.
func (r *Ring) Push(p *Packet) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.buf)) {
		return false
	}
	r.buf[head&r.mask] = p
	r.head.Store(head + 1)
	return true
}

// Pop dequeues up to len(out) packets and returns how many were filled
// (dequeue_empty, spec.md §7, is simply a return value of 0).
func (r *Ring) Pop(out []*Packet) int {
	head := r.head.Load()
	tail := r.tail.Load()
	n := 0
	for tail < head && n < len(out) {
		out[n] = r.buf[tail&r.mask]
		r.buf[tail&r.mask] = nil
		tail++
		n++
	}
	r.tail.Store(tail)
	return n
}

// Len reports the number of queued-but-unconsumed packets.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap reports the ring's power-of-two capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
