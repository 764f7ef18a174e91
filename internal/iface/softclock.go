package iface

import (
	"sync/atomic"
	"time"
)

// SoftClock is a PTPClock/TSCClock backed by the wall clock with an
// optional manual offset, for tests and the software-only CLI sender.
// Production builds would instead wrap the PTP-disciplined NIC clock and
// RDTSC, both explicitly out of scope for the core (spec.md §1).
type SoftClock struct {
	base      time.Time
	offsetNS  atomic.Int64
}

// NewSoftClock returns a clock anchored at the current wall-clock time.
func NewSoftClock() *SoftClock {
	return &SoftClock{base: time.Now()}
}

// PTPTimeNS implements PTPClock. The port argument is ignored by the
// software clock; real implementations key per physical port.
func (c *SoftClock) PTPTimeNS(port int) uint64 {
	return uint64(time.Since(c.base).Nanoseconds() + c.offsetNS.Load())
}

// TSCNS implements TSCClock.
func (c *SoftClock) TSCNS() uint64 {
	return uint64(time.Since(c.base).Nanoseconds())
}

// AdvanceBy shifts PTPTimeNS forward (or backward, with a negative delta)
// without actually sleeping, for deterministic pacing tests. TSCNS is not
// affected.
func (c *SoftClock) AdvanceBy(delta time.Duration) {
	c.offsetNS.Add(int64(delta))
}
