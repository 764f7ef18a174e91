package transmitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
)

type fakeTSC struct{ ns uint64 }

func (f *fakeTSC) TSCNS() uint64 { return f.ns }

type fakeQueue struct {
	sent    [][]byte
	accept  int // -1 means accept all
	status  iface.TxQueueStatus
	burstErr error
}

func (q *fakeQueue) ID() uint64 { return 1 }
func (q *fakeQueue) Burst(pkts [][]byte) (int, error) {
	n := len(pkts)
	if q.accept >= 0 && q.accept < n {
		n = q.accept
	}
	q.sent = append(q.sent, pkts[:n]...)
	return n, q.burstErr
}
func (q *fakeQueue) BurstBusy(ctx context.Context, pkts [][]byte, timeout time.Duration) (int, error) {
	return q.Burst(pkts)
}
func (q *fakeQueue) Flush(pad []byte) error     { return nil }
func (q *fakeQueue) SetBPS(bps uint64) error    { return nil }
func (q *fakeQueue) FatalError()                { q.status = iface.TxQueueFatal }
func (q *fakeQueue) Status() iface.TxQueueStatus { return q.status }

type fakeFactory struct {
	q   *fakeQueue
	err error
}

func (f *fakeFactory) Get(port int, flow iface.FlowDescriptor) (iface.TxQueue, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.q = &fakeQueue{accept: -1}
	return f.q, nil
}
func (f *fakeFactory) Put(q iface.TxQueue) {}

func TestHandlerSendsQueuedPacketsOncePastTargetTSC(t *testing.T) {
	r := ring.New(8)
	pool := frame.NewPool(2, 64, nil)
	pool.At(0).HoldForPacket()
	r.Push(&ring.Packet{Bytes: []byte("abc"), TargetTSC: 100, Index: 0})

	q := &fakeQueue{accept: -1}
	tsc := &fakeTSC{ns: 50}
	tr := New(Config{Ring: r, Frames: pool, TSC: tsc, Queue: q, Bulk: 4})

	if res := tr.Handler(); res != sched.HasPending {
		t.Fatalf("expected HasPending while before target_tsc, got %v", res)
	}
	if len(q.sent) != 0 {
		t.Fatal("packet sent before target_tsc reached")
	}

	tsc.ns = 200
	if res := tr.Handler(); res != sched.AllDone {
		t.Fatalf("expected AllDone after send, got %v", res)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected 1 packet sent, got %d", len(q.sent))
	}
	if !pool.At(0).Idle() {
		t.Fatal("expected frame released after its only packet sent")
	}
}

func TestHandlerCarriesPartialBurstAsInflight(t *testing.T) {
	r := ring.New(8)
	pool := frame.NewPool(2, 64, nil)
	pool.At(0).HoldForPacket()
	pool.At(0).HoldForPacket()
	r.Push(&ring.Packet{Bytes: []byte("a"), TargetTSC: 0, Index: 0})
	r.Push(&ring.Packet{Bytes: []byte("b"), TargetTSC: 0, Index: 0})

	q := &fakeQueue{accept: 1}
	tsc := &fakeTSC{ns: 10}
	tr := New(Config{Ring: r, Frames: pool, TSC: tsc, Queue: q, Bulk: 4})

	if res := tr.Handler(); res != sched.HasPending {
		t.Fatalf("expected HasPending with one packet still inflight, got %v", res)
	}
	if len(tr.inflight) != 1 {
		t.Fatalf("expected 1 inflight packet, got %d", len(tr.inflight))
	}

	q.accept = -1
	if res := tr.Handler(); res != sched.AllDone {
		t.Fatalf("expected AllDone once inflight drains, got %v", res)
	}
	if len(q.sent) != 2 {
		t.Fatalf("expected 2 packets total sent, got %d", len(q.sent))
	}
}

func TestFatalQueueTriggersRecoveryAndForceResetsFrames(t *testing.T) {
	r := ring.New(8)
	pool := frame.NewPool(2, 64, nil)
	pool.At(0).CheckOut()
	pool.At(0).HoldForPacket()
	r.Push(&ring.Packet{Bytes: []byte("a"), TargetTSC: 0, Index: 0})

	oldQ := &fakeQueue{status: iface.TxQueueFatal}
	factory := &fakeFactory{}
	var notified string
	sessStats := &stats.Session{}
	tr := New(Config{
		Ring: r, Frames: pool, TSC: &fakeTSC{}, Queue: oldQ, Factory: factory,
		Stats:       sessStats,
		NotifyEvent: func(reason string) { notified = reason },
	})

	if res := tr.Handler(); res != sched.HasPending {
		t.Fatalf("expected HasPending after recovery, got %v", res)
	}
	if !pool.At(0).Idle() {
		t.Fatal("expected frame force-reset to idle during recovery")
	}
	if tr.cfg.Queue == oldQ {
		t.Fatal("expected queue to be rebound to a new instance")
	}
	if got := tr.Stats().HangRecoveries; got != 1 {
		t.Fatalf("expected 1 hang recovery, got %d", got)
	}
	if notified != "recovery_error" {
		t.Fatalf("expected recovery_error notification, got %q", notified)
	}
}

func TestRecoveryReportsErrorWhenRebindFails(t *testing.T) {
	r := ring.New(8)
	pool := frame.NewPool(2, 64, nil)
	q := &fakeQueue{status: iface.TxQueueFatal}
	factory := &fakeFactory{err: errors.New("no nic")}
	tr := New(Config{Ring: r, Frames: pool, TSC: &fakeTSC{}, Queue: q, Factory: factory})

	if res := tr.Handler(); res != sched.Fatal {
		t.Fatalf("expected Fatal when rebind fails, got %v", res)
	}
}

func TestDummyPacketsAreCountedNotReleased(t *testing.T) {
	r := ring.New(8)
	pool := frame.NewPool(2, 64, nil)
	r.Push(&ring.Packet{Bytes: []byte("pad"), TargetTSC: 0, Index: 0, Dummy: true})

	q := &fakeQueue{accept: -1}
	tr := New(Config{Ring: r, Frames: pool, TSC: &fakeTSC{ns: 1}, Queue: q, Bulk: 4, Stats: &stats.Session{}})

	tr.Handler()
	if got := tr.Stats().DummyFiltered; got != 1 {
		t.Fatalf("expected 1 dummy filtered, got %d", got)
	}
}
