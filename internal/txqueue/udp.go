// Package txqueue implements the iface.TxQueue collaborator over a
// plain UDP socket, for development and testing without a kernel-bypass
// NIC driver (spec.md §4.4, §6.1: "a test or a software-only sender can
// supply trivial implementations").
package txqueue

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/st2110go/internal/iface"
)

var nextID atomic.Uint64

// UDPQueue sends packets over a connected net.PacketConn, applying a
// token-bucket limiter as the software rate-control stand-in for the
// NIC's hardware pacer.
type UDPQueue struct {
	id     uint64
	conn   net.PacketConn
	dst    net.Addr
	mu     sync.Mutex
	limiter *rate.Limiter
	status iface.TxQueueStatus
}

// Dial opens a UDP queue bound to dst, with bps the initial rate limit
// (0 means unlimited).
func Dial(dst *net.UDPAddr, bps uint64) (*UDPQueue, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("txqueue: dial: %w", err)
	}
	q := &UDPQueue{
		id:   nextID.Add(1),
		conn: conn,
		dst:  dst,
	}
	if bps > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(bps/8), int(bps/8))
	}
	return q, nil
}

func (q *UDPQueue) ID() uint64 { return q.id }

// Burst sends as many packets as the limiter currently allows; under no
// rate limit, all of them.
func (q *UDPQueue) Burst(pkts [][]byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status == iface.TxQueueFatal {
		return 0, fmt.Errorf("txqueue: queue %d is fatal", q.id)
	}

	sent := 0
	for _, p := range pkts {
		if q.limiter != nil && !q.limiter.AllowN(time.Now(), len(p)) {
			break
		}
		if _, err := q.conn.WriteTo(p, q.dst); err != nil {
			return sent, fmt.Errorf("txqueue: write: %w", err)
		}
		sent++
	}
	return sent, nil
}

// BurstBusy retries Burst until every packet sends or timeout elapses.
func (q *UDPQueue) BurstBusy(ctx context.Context, pkts [][]byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	total := 0
	remaining := pkts
	for len(remaining) > 0 {
		n, err := q.Burst(remaining)
		total += n
		if err != nil {
			return total, err
		}
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return total, fmt.Errorf("txqueue: burst_busy timed out with %d packets remaining", len(remaining))
		}
		time.Sleep(time.Microsecond * 50)
	}
	return total, nil
}

// Flush is a no-op for a software queue: there is no HW descriptor ring
// to drain.
func (q *UDPQueue) Flush(pad []byte) error {
	_ = pad
	return nil
}

// SetBPS replaces the limiter's rate.
func (q *UDPQueue) SetBPS(bps uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if bps == 0 {
		q.limiter = nil
		return nil
	}
	q.limiter = rate.NewLimiter(rate.Limit(bps/8), int(bps/8))
	return nil
}

func (q *UDPQueue) FatalError() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.status = iface.TxQueueFatal
}

func (q *UDPQueue) Status() iface.TxQueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Close releases the underlying socket.
func (q *UDPQueue) Close() error {
	return q.conn.Close()
}

// Factory implements iface.TxQueueFactory by dialing a fresh UDPQueue
// per Get, and closing it on Put.
type Factory struct{}

func (Factory) Get(port int, flow iface.FlowDescriptor) (iface.TxQueue, error) {
	_ = port
	dst := &net.UDPAddr{IP: flow.DstIP, Port: int(flow.DstPort)}
	return Dial(dst, 0)
}

func (Factory) Put(q iface.TxQueue) {
	if uq, ok := q.(*UDPQueue); ok {
		uq.Close()
	}
}
