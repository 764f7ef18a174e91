package builder

import (
	"fmt"
	"testing"

	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
)

type fakeClock struct {
	ptp uint64
	tsc uint64
}

func (c *fakeClock) PTPTimeNS(port int) uint64 { return c.ptp }
func (c *fakeClock) TSCNS() uint64             { return c.tsc }

type fakePlanner struct {
	total     int
	failAt    int // -1 disables
	clockRate uint32
}

func (p *fakePlanner) TotalPackets(frameIdx int, meta FrameMeta) int { return p.total }

func (p *fakePlanner) BuildPayload(frameIdx, pktIdx int, meta FrameMeta) ([]byte, bool, error) {
	if p.failAt >= 0 && pktIdx == p.failAt {
		return nil, false, fmt.Errorf("fakePlanner: injected failure at pkt %d", pktIdx)
	}
	return []byte{byte(frameIdx), byte(pktIdx)}, pktIdx == p.total-1, nil
}

func (p *fakePlanner) ClockRateHz() uint32 { return p.clockRate }

// flatProfile keeps ComputeEpoch's gate trivially satisfied: zero TRS and
// offset means start_tai collapses to epoch*frame_time_ns with no VRX
// headroom, so as long as the fake clock's PTP reading lands exactly on
// an epoch boundary, timeToTX comes out to zero and the builder never
// has to wait before its first burst.
func flatProfile(totalPkts int) pacing.Profile {
	return pacing.Profile{FrameTimeNS: 1_000_000, TotalPktsPerFrame: totalPkts}
}

func newTestBuilder(t *testing.T, planner Planner, bulk int, ringCap int, onFrame func() (int, FrameMeta, bool), onDone func(int)) (*Builder, *ring.Ring, *frame.Pool) {
	t.Helper()
	pool := frame.NewPool(2, 16, onDone)
	r := ring.New(ringCap)
	clock := &fakeClock{ptp: 10_000_000, tsc: 5000}
	b := New("test-builder", Config{
		Frames: pool,
		RingP:  r,
		Pacing: pacing.NewState(flatProfile(3)),
		PTP:    clock,
		TSC:    clock,
		Bulk:   bulk,
		Planner: planner,
		Callbacks: Callbacks{
			GetNextFrame: onFrame,
		},
	})
	return b, r, pool
}

func TestHandlerEmitsAllPacketsInOneTickThenReleasesFrame(t *testing.T) {
	calls := 0
	var doneIdx []int
	planner := &fakePlanner{total: 3, failAt: -1, clockRate: 90_000}
	b, r, pool := newTestBuilder(t, planner, 7, 16, func() (int, FrameMeta, bool) {
		calls++
		if calls > 1 {
			return 0, FrameMeta{}, true
		}
		return 0, FrameMeta{}, false
	}, func(idx int) { doneIdx = append(doneIdx, idx) })

	if res := b.Handler(); res != sched.HasPending {
		t.Fatalf("expected HasPending after the first burst, got %v", res)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 packets queued, got %d", r.Len())
	}
	if len(doneIdx) != 0 {
		t.Fatalf("expected no NotifyFrameDone while packets are in flight, got %v", doneIdx)
	}
	fr := pool.At(0)
	if fr.Refcnt() != 3 {
		t.Fatalf("expected refcnt 3 (one per queued packet), got %d", fr.Refcnt())
	}

	if res := b.Handler(); res != sched.AllDone {
		t.Fatalf("expected AllDone once get_next_frame reports busy, got %v", res)
	}

	for i := 0; i < 3; i++ {
		fr.ReleasePacket()
	}
	if len(doneIdx) != 1 || doneIdx[0] != 0 {
		t.Fatalf("expected NotifyFrameDone(0) once the last packet is released, got %v", doneIdx)
	}
}

func TestHandlerFlushesStrandedInflightBeforeNextFrame(t *testing.T) {
	calls := 0
	planner := &fakePlanner{total: 3, failAt: -1, clockRate: 90_000}
	b, r, _ := newTestBuilder(t, planner, 7, 2, func() (int, FrameMeta, bool) {
		calls++
		return 0, FrameMeta{}, calls > 1
	}, nil)

	b.Handler()
	if r.Len() != 2 {
		t.Fatalf("expected ring to be full at capacity 2, got %d", r.Len())
	}
	if len(b.inflightP) != 1 {
		t.Fatalf("expected 1 packet stranded in inflight, got %d", len(b.inflightP))
	}

	popped := make([]*ring.Packet, 1)
	r.Pop(popped)

	b.Handler()
	if len(b.inflightP) != 0 {
		t.Fatalf("expected inflight to drain once ring has room, got %d", len(b.inflightP))
	}
	if r.Len() != 2 {
		t.Fatalf("expected ring full again after flush, got %d", r.Len())
	}
}

func TestHandlerFiresFatalEventOnPlannerError(t *testing.T) {
	var gotEvent Event
	var eventFired bool
	planner := &fakePlanner{total: 3, failAt: 1, clockRate: 90_000}

	pool := frame.NewPool(2, 16, nil)
	r := ring.New(16)
	clock := &fakeClock{ptp: 10_000_000, tsc: 5000}
	b := New("test-builder", Config{
		Frames: pool,
		RingP:  r,
		Pacing: pacing.NewState(flatProfile(3)),
		PTP:    clock,
		TSC:    clock,
		Bulk:   7,
		Planner: planner,
		Callbacks: Callbacks{
			GetNextFrame: func() (int, FrameMeta, bool) { return 0, FrameMeta{}, false },
			NotifyEvent: func(ev Event) { gotEvent = ev; eventFired = true },
		},
	})
	if res := b.Handler(); res != sched.Fatal {
		t.Fatalf("expected Fatal once the planner errors, got %v", res)
	}
	if !eventFired || gotEvent != EventFatal {
		t.Fatalf("expected NotifyEvent(EventFatal), got fired=%v event=%v", eventFired, gotEvent)
	}
}

func TestHandlerRejectsOversizedUserMeta(t *testing.T) {
	planner := &fakePlanner{total: 1, failAt: -1, clockRate: 90_000}
	b, _, pool := newTestBuilder(t, planner, 7, 16, func() (int, FrameMeta, bool) {
		return 0, FrameMeta{UserMeta: make([]byte, DefaultMaxUserMetaBytes+1)}, false
	}, nil)

	if res := b.Handler(); res != sched.AllDone {
		t.Fatalf("expected AllDone when user meta exceeds the budget, got %v", res)
	}
	if pool.At(0).Refcnt() != 0 {
		t.Fatal("expected the frame to never be checked out when meta is rejected")
	}
}
