package txqueue

import (
	"net"
	"testing"
	"time"

	"github.com/ehrlich-b/st2110go/internal/iface"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBurstSendsAllPacketsUnlimited(t *testing.T) {
	rx := listenLoopback(t)
	q, err := Dial(rx.LocalAddr().(*net.UDPAddr), 0)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer q.Close()

	pkts := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	n, err := q.Burst(pkts)
	if err != nil {
		t.Fatalf("burst: %v", err)
	}
	if n != len(pkts) {
		t.Fatalf("sent %d, want %d", n, len(pkts))
	}

	rx.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	for i := 0; i < len(pkts); i++ {
		if _, _, err := rx.ReadFrom(buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
}

func TestFatalErrorBlocksFurtherBursts(t *testing.T) {
	rx := listenLoopback(t)
	q, err := Dial(rx.LocalAddr().(*net.UDPAddr), 0)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer q.Close()

	q.FatalError()
	if q.Status() != iface.TxQueueFatal {
		t.Fatal("expected fatal status")
	}
	if _, err := q.Burst([][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected burst on a fatal queue to error")
	}
}

func TestFactoryGetPut(t *testing.T) {
	rx := listenLoopback(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	var f Factory
	q, err := f.Get(0, iface.FlowDescriptor{DstIP: addr.IP, DstPort: uint16(addr.Port)})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.ID() == 0 {
		t.Fatal("expected a nonzero queue id")
	}
	f.Put(q)
}
