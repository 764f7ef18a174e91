// Package transmitter implements the Transmitter tasklet of spec.md
// §4.9: pulls packets from a session's ring, gates them on the pacer's
// target_tsc, burst-sends to the TX queue, and recovers from a stuck
// queue.
package transmitter

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
)

// Config bundles one session-port's transmitter dependencies.
type Config struct {
	Name          string
	Ring          *ring.Ring
	Frames        *frame.Pool
	TSC           iface.TSCClock
	Queue         iface.TxQueue
	Factory       iface.TxQueueFactory
	Flow          iface.FlowDescriptor
	Port          int
	Bulk          int
	PadInterval   float64
	PadPacket     []byte
	HangThreshold time.Duration
	WarmupPackets int
	Stats         *stats.Session // nil only in tests that don't care about counters

	NotifyEvent func(reason string)
}

type Transmitter struct {
	cfg Config

	inflight []*ring.Packet
	popBuf   []*ring.Packet

	pktCounter uint64
	hangSince  time.Time
	hanging    bool
	warmedUp   bool
}

func New(cfg Config) *Transmitter {
	if cfg.Bulk <= 0 {
		cfg.Bulk = 7
	}
	return &Transmitter{cfg: cfg, popBuf: make([]*ring.Packet, cfg.Bulk)}
}

func (t *Transmitter) Name() string             { return t.cfg.Name }
func (t *Transmitter) PreStart()                 {}
func (t *Transmitter) Start()                    {}
func (t *Transmitter) Stop()                     {}
func (t *Transmitter) AdviceSleepUS() uint64     { return 0 }

// Stats returns a point-in-time snapshot of the session's shared counters,
// or a zero Snapshot if this transmitter was built without one.
func (t *Transmitter) Stats() stats.Snapshot {
	if t.cfg.Stats == nil {
		return stats.Snapshot{}
	}
	return t.cfg.Stats.Snapshot()
}

// Handler implements the per-tick algorithm of spec.md §4.9.
func (t *Transmitter) Handler() sched.Result {
	if t.cfg.Queue.Status() == iface.TxQueueFatal {
		if err := t.recover(); err != nil {
			return sched.Fatal
		}
		return sched.HasPending
	}

	// Step 4.9.1: RL warmup, only once, before the very first real packet.
	if !t.warmedUp && t.cfg.WarmupPackets > 0 && t.cfg.PadPacket != nil {
		warm := make([][]byte, t.cfg.WarmupPackets)
		for i := range warm {
			warm[i] = t.cfg.PadPacket
		}
		t.cfg.Queue.Burst(warm)
		t.warmedUp = true
	}

	// Step 1: drain any packet stranded by a previous partial burst.
	if len(t.inflight) > 0 {
		if t.cfg.TSC.TSCNS() < t.inflight[0].TargetTSC {
			return sched.HasPending
		}
		if r := t.drainInflight(); r != sched.AllDone {
			return r
		}
	}

	// Step 2: dequeue up to bulk packets, gated on the first one's
	// target_tsc.
	n := t.cfg.Ring.Pop(t.popBuf)
	if n == 0 {
		return sched.AllDone
	}
	batch := t.popBuf[:n]

	if t.cfg.TSC.TSCNS() < batch[0].TargetTSC {
		// Not yet time; put the batch back as inflight and wait.
		t.inflight = append(t.inflight, batch...)
		return sched.HasPending
	}

	// Step 3: burst-send; unsent packets become inflight.
	sent := t.burst(batch)
	if sent < len(batch) {
		t.inflight = append(t.inflight, batch[sent:]...)
	}

	// Step 4: periodic pad insertion.
	t.pktCounter += uint64(sent)
	if shouldPad(t.pktCounter, t.cfg.PadInterval) && t.cfg.PadPacket != nil {
		t.cfg.Queue.Burst([][]byte{t.cfg.PadPacket})
	}

	if len(t.inflight) > 0 {
		return sched.HasPending
	}
	return sched.AllDone
}

func shouldPad(counter uint64, padInterval float64) bool {
	if padInterval <= 0 {
		return false
	}
	return float64(counter%uint64(padInterval)) < 1
}

func (t *Transmitter) drainInflight() sched.Result {
	wire := make([][]byte, len(t.inflight))
	for i, p := range t.inflight {
		wire[i] = p.Bytes
	}
	sent, err := t.cfg.Queue.Burst(wire)
	t.releaseFrames(t.inflight[:sent])
	t.addSent(sent)
	t.inflight = t.inflight[sent:]

	if err != nil {
		return t.trackHang()
	}
	if sent == 0 {
		return t.trackHang()
	}
	t.hanging = false
	if len(t.inflight) > 0 {
		return sched.HasPending
	}
	return sched.AllDone
}

func (t *Transmitter) burst(batch []*ring.Packet) int {
	wire := make([][]byte, len(batch))
	for i, p := range batch {
		wire[i] = p.Bytes
	}
	sent, err := t.cfg.Queue.Burst(wire)
	if sent > 0 {
		t.releaseFrames(batch[:sent])
		t.addSent(sent)
	}
	if err != nil || sent == 0 {
		t.trackHang()
	} else {
		t.hanging = false
	}
	return sent
}

func (t *Transmitter) releaseFrames(sent []*ring.Packet) {
	for _, p := range sent {
		if p.Dummy {
			if t.cfg.Stats != nil {
				t.cfg.Stats.DummyFiltered.Add(1)
			}
			continue
		}
		if fr := t.cfg.Frames.At(int(p.Index)); fr != nil {
			fr.ReleasePacket()
		}
	}
}

// addSent records n freshly-sent packets against the shared session
// counters, if any are wired.
func (t *Transmitter) addSent(n int) {
	if t.cfg.Stats != nil && n > 0 {
		t.cfg.Stats.Sent.Add(uint64(n))
	}
}

// trackHang records a zero-send tick and, once the cumulative hang
// time exceeds HangThreshold, marks the queue fatal (spec.md §4.4,
// §4.9.2).
func (t *Transmitter) trackHang() sched.Result {
	if !t.hanging {
		t.hanging = true
		t.hangSince = time.Now()
		return sched.HasPending
	}
	if t.cfg.HangThreshold > 0 && time.Since(t.hangSince) > t.cfg.HangThreshold {
		t.cfg.Queue.FatalError()
		if t.cfg.NotifyEvent != nil {
			t.cfg.NotifyEvent("tx_hang")
		}
	}
	return sched.HasPending
}

// recover implements spec.md §4.9.2 fatal-error recovery: drain rings,
// free inflight, rebind the queue with the same flow descriptor, and
// reset frames.
func (t *Transmitter) recover() error {
	drained := make([]*ring.Packet, t.cfg.Bulk)
	for {
		n := t.cfg.Ring.Pop(drained)
		if n == 0 {
			break
		}
		for _, p := range drained[:n] {
			if fr := t.cfg.Frames.At(int(p.Index)); fr != nil {
				fr.ForceReset()
			}
		}
	}
	for _, p := range t.inflight {
		if fr := t.cfg.Frames.At(int(p.Index)); fr != nil {
			fr.ForceReset()
		}
	}
	t.inflight = nil

	if t.cfg.Factory == nil {
		return fmt.Errorf("transmitter: no queue factory configured for recovery")
	}
	t.cfg.Factory.Put(t.cfg.Queue)
	q, err := t.cfg.Factory.Get(t.cfg.Port, t.cfg.Flow)
	if err != nil {
		if t.cfg.NotifyEvent != nil {
			t.cfg.NotifyEvent("queue_rebind_failed")
		}
		return fmt.Errorf("transmitter: rebind queue: %w", err)
	}
	t.cfg.Queue = q
	t.hanging = false
	t.warmedUp = false
	if t.cfg.Stats != nil {
		t.cfg.Stats.HangRecoveries.Add(1)
	}
	if t.cfg.NotifyEvent != nil {
		t.cfg.NotifyEvent("recovery_error")
	}
	return nil
}
