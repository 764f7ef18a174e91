// Package iface defines the collaborator interfaces the core depends on
// (spec.md §6.1). NIC bring-up, PTP discipline, ARP resolution and DMA
// memory management are out of scope for the core; it only ever talks to
// these abstractions, so a test or a software-only sender can supply
// trivial implementations.
package iface

import (
	"context"
	"net"
	"time"
)

// PTPClock reports monotonic TAI time in nanoseconds, disciplined by an
// external PTP client. Out of scope: clock discipline itself.
type PTPClock interface {
	PTPTimeNS(port int) uint64
}

// TSCClock reports a monotonic CPU time-counter-equivalent in nanoseconds.
// On real hardware this wraps RDTSC scaled to nanoseconds; the software
// implementation here just wraps a monotonic clock.
type TSCClock interface {
	TSCNS() uint64
}

// ARPResolver resolves a destination IP to a MAC address for a given port,
// honoring arp_timeout_ms (spec.md §5).
type ARPResolver interface {
	ResolveMAC(ctx context.Context, port int, ip net.IP, timeout time.Duration) (net.HardwareAddr, error)
	SrcMAC(port int) net.HardwareAddr
	SrcIP(port int) net.IP
}

// TxQueueStatus mirrors the TX Queue invariant of spec.md §3: fatal status
// forces a fresh id and discards queued inflight state.
type TxQueueStatus int

const (
	TxQueueOK TxQueueStatus = iota
	TxQueueFatal
)

// TxQueue is the abstract collaborator of spec.md §4.4.
type TxQueue interface {
	// ID identifies this binding of the queue; it changes after FatalError.
	ID() uint64
	// Burst attempts a non-blocking send of pkts[:n] and returns how many
	// were actually accepted.
	Burst(pkts [][]byte) (sent int, err error)
	// BurstBusy retries Burst until timeout elapses or all packets send.
	BurstBusy(ctx context.Context, pkts [][]byte, timeout time.Duration) (sent int, err error)
	// Flush drains HW descriptors, padding with pad if the HW requires a
	// full burst to flush.
	Flush(pad []byte) error
	// SetBPS informs the HW rate limiter of the target rate; a no-op if
	// unsupported.
	SetBPS(bps uint64) error
	// FatalError marks the queue for replacement; a subsequent Get call
	// from the collaborator-level factory yields a queue with a new ID.
	FatalError()
	// Status reports whether the queue is still usable.
	Status() TxQueueStatus
}

// RxQueue is used only for RTCP feedback reception (spec.md §6.1).
type RxQueue interface {
	Burst(buf [][]byte) (recv int, err error)
}

// TxQueueFactory opens and closes TX queues bound to a (port, flow)
// descriptor, mirroring tx_queue_get/tx_queue_put of spec.md §6.1.
type TxQueueFactory interface {
	Get(port int, flow FlowDescriptor) (TxQueue, error)
	Put(q TxQueue)
}

// FlowDescriptor names a 5-tuple-equivalent flow binding used to rebind a
// queue after a fatal error (spec.md §4.9.2: "request a new one with the
// same flow descriptor").
type FlowDescriptor struct {
	DstIP   net.IP
	DstPort uint16
	SrcPort uint16
}

// MemPool is the collaborator equivalent of mempool_create/mempool_free.
type MemPool interface {
	Alloc() ([]byte, error)
	Free(buf []byte)
	Name() string
}

// MemPoolFactory creates per-session memory pools sized for one media
// kind's packet buffers.
type MemPoolFactory interface {
	Create(name string, n int, elementSize int, socket int) (MemPool, error)
	Destroy(p MemPool)
}
