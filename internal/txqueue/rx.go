package txqueue

import (
	"fmt"
	"net"
	"time"
)

// RxUDPQueue implements iface.RxQueue over a plain UDP listen socket: the
// receive-side counterpart to UDPQueue, used to ingest RTCP feedback PDUs
// without a kernel-bypass NIC driver (spec.md §4.10, §6.1).
type RxUDPQueue struct {
	conn net.PacketConn
}

// ListenUDP opens a UDP socket bound to addr for RTCP feedback reception.
// addr.Port == 0 lets the kernel pick a port.
func ListenUDP(addr *net.UDPAddr) (*RxUDPQueue, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("txqueue: listen: %w", err)
	}
	return &RxUDPQueue{conn: conn}, nil
}

// Burst reads up to len(buf) pending datagrams without blocking the
// tasklet, resizing each entry to the bytes actually read.
func (q *RxUDPQueue) Burst(buf [][]byte) (int, error) {
	recv := 0
	for recv < len(buf) {
		full := buf[recv][:cap(buf[recv])]
		q.conn.SetReadDeadline(time.Now())
		n, _, err := q.conn.ReadFrom(full)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return recv, err
		}
		buf[recv] = full[:n]
		recv++
	}
	return recv, nil
}

// Close releases the underlying socket.
func (q *RxUDPQueue) Close() error {
	return q.conn.Close()
}
