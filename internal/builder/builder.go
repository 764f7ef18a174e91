// Package builder implements the Session Builder of spec.md §4.7: the
// per-session tasklet that turns application framebuffers into paced,
// sequenced RTP packets. st20/st22/st30/st40/st41 share this shape
// (spec.md §4.7: "ST20 as the exemplar; ST22/30/40/41 follow the same
// shape") and differ only in their Planner.
package builder

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/rtcpfb"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// epochTroffsetTolerance is the Open Question decision of spec.md §9:
// tsc_cursor drift past frame_time*(1+tolerance) counts as a pacer
// overrun.
const epochTroffsetTolerance = 0.05

// Event enumerates the app-facing event kinds of spec.md §6.2
// notify_event.
type Event int

const (
	EventVsync Event = iota
	EventFatal
	EventRecoveryError
)

// FrameMeta is what get_next_frame hands back per spec.md §6.2/§3.
type FrameMeta struct {
	TAI             uint64
	UserPacing      bool
	ExactUserPacing bool
	UserTimestamp   bool
	SecondField     bool
	UserMeta        []byte
}

// Callbacks are the application-supplied hooks of spec.md §6.2.
type Callbacks struct {
	GetNextFrame    func() (idx int, meta FrameMeta, busy bool)
	NotifyFrameDone func(idx int)
	NotifyFrameLate func(lateByEpochs uint64)
	NotifyRTPDone   func()
	NotifyEvent     func(Event)
}

// Planner builds the wire bytes for one packet of one frame; it is the
// only part of the builder that differs per media kind.
type Planner interface {
	// TotalPackets returns how many packets frameIdx's frame will emit.
	TotalPackets(frameIdx int, meta FrameMeta) int
	// BuildPayload returns the media-specific payload bytes (without
	// the RTP fixed header) for packet pktIdx of the frame at
	// frameIdx, plus whether this packet carries the frame's marker
	// bit (spec.md §8 invariant 3: set on exactly pkt_idx ==
	// total_pkts-1, with the sole exception of user-meta packets).
	BuildPayload(frameIdx, pktIdx int, meta FrameMeta) (payload []byte, marker bool, err error)
	// ClockRateHz is the RTP media clock rate for MediaClockTimestamp.
	ClockRateHz() uint32
}

type builderState int

const (
	stateWaitFrame builderState = iota
	stateSendingPkts
)

// Config bundles a Builder's collaborators.
type Config struct {
	Frames    *frame.Pool
	RingP     *ring.Ring
	RingR     *ring.Ring // nil when ST 2022-7 redundancy is disabled
	Pacing    *pacing.State
	PTP       iface.PTPClock
	TSC       iface.TSCClock
	Port      int
	Bulk      int
	PayloadType uint8
	SSRC      uint32
	Planner   Planner
	Callbacks Callbacks
	NACKBuf   *rtcpfb.Buffer // nil unless ENABLE_RTCP
	Stats     *stats.Session // nil only in tests that don't care about counters

	// Allow* mirror the session-level TxFlag gates of spec.md §6.3
	// ("flags, effect explicit"): a per-frame FrameMeta override only
	// takes effect when the session was created with the matching flag
	// set, regardless of what get_next_frame hands back.
	AllowUserPacing        bool
	AllowExactUserPacing   bool
	AllowUserTimestamp     bool
	AllowRTPTimestampEpoch bool
	EnableVsync            bool
}

// Builder is the per-session builder tasklet (spec.md §4.7).
type Builder struct {
	cfg   Config
	state builderState

	curFrameIdx int
	curMeta     FrameMeta
	pktIdx      int
	totalPkts   int
	rtpTS       uint32
	seq         wire.ExtSeq

	inflightP []*ring.Packet
	inflightR []*ring.Packet

	name string
}

// DefaultMaxUserMetaBytes is max_udp_size - rtp_hdr, the default
// per-frame user-metadata budget of spec.md §4.7.3.
const DefaultMaxUserMetaBytes = 1500 - 20

// New constructs a Builder; name is used only for Tasklet.Name().
func New(name string, cfg Config) *Builder {
	return &Builder{cfg: cfg, name: name}
}

func (b *Builder) Name() string    { return b.name }
func (b *Builder) PreStart()       {}
func (b *Builder) Start()          {}
func (b *Builder) Stop()           {}
func (b *Builder) AdviceSleepUS() uint64 { return 0 }

// Handler implements sched.Tasklet: one tick of the six-step algorithm
// of spec.md §4.7.
func (b *Builder) Handler() sched.Result {
	if r := b.flushInflight(); r != sched.AllDone {
		return r
	}

	if b.state == stateWaitFrame {
		idx, meta, busy := b.cfg.Callbacks.GetNextFrame()
		if busy {
			return sched.AllDone
		}
		fr := b.cfg.Frames.At(idx)
		if fr == nil || fr.Refcnt() != 0 {
			if b.cfg.Callbacks.NotifyEvent != nil {
				b.cfg.Callbacks.NotifyEvent(EventRecoveryError)
			}
			return sched.AllDone
		}
		if len(meta.UserMeta) > DefaultMaxUserMetaBytes {
			return sched.AllDone
		}
		fr.CheckOut()

		b.curFrameIdx = idx
		b.curMeta = meta
		b.pktIdx = 0
		b.totalPkts = b.cfg.Planner.TotalPackets(idx, meta)
		b.state = stateSendingPkts

		var requiredTAI uint64
		if meta.UserPacing && b.cfg.AllowUserPacing {
			requiredTAI = meta.TAI
		}
		exactUserPacing := meta.ExactUserPacing && b.cfg.AllowExactUserPacing
		res := b.cfg.Pacing.ComputeEpoch(b.cfg.PTP.PTPTimeNS(b.cfg.Port), b.cfg.TSC.TSCNS(), requiredTAI, exactUserPacing)
		if res.FrameLate {
			if b.cfg.Stats != nil {
				b.cfg.Stats.FramesLate.Add(1)
			}
			if b.cfg.Callbacks.NotifyFrameLate != nil {
				b.cfg.Callbacks.NotifyFrameLate(res.LateByEpochs)
			}
		}

		switch {
		case meta.UserTimestamp && b.cfg.AllowUserTimestamp:
			b.rtpTS = wire.MediaClockTimestamp(meta.TAI, b.cfg.Planner.ClockRateHz())
		case b.cfg.AllowRTPTimestampEpoch:
			// RTP timestamp derived from the epoch boundary itself
			// rather than the pacer's vrx-adjusted start time.
			epochTAI := res.Epoch * uint64(b.cfg.Pacing.Profile.FrameTimeNS)
			b.rtpTS = wire.MediaClockTimestamp(epochTAI, b.cfg.Planner.ClockRateHz())
		default:
			b.rtpTS = wire.MediaClockTimestamp(res.StartTAI, b.cfg.Planner.ClockRateHz())
		}

		if b.cfg.EnableVsync && b.cfg.Callbacks.NotifyEvent != nil {
			b.cfg.Callbacks.NotifyEvent(EventVsync)
		}
	}

	// Gate: don't emit ahead of the pacer's cursor.
	if b.cfg.TSC.TSCNS() < b.cfg.Pacing.TSCCursor {
		gap := b.cfg.Pacing.TSCCursor - b.cfg.TSC.TSCNS()
		if gap < uint64(b.cfg.Pacing.Profile.TRSNS)*4 {
			return sched.HasPending
		}
		return sched.AllDone
	}

	bulk := b.cfg.Bulk
	for i := 0; i < bulk && b.pktIdx < b.totalPkts; i++ {
		if err := b.emitOne(); err != nil {
			if b.cfg.Callbacks.NotifyEvent != nil {
				b.cfg.Callbacks.NotifyEvent(EventFatal)
			}
			return sched.Fatal
		}
	}

	if b.pktIdx >= b.totalPkts {
		fr := b.cfg.Frames.At(b.curFrameIdx)
		if fr != nil {
			fr.ReleasePacket() // builder's own hold; NIC holds the rest via per-packet refs; the pool's DoneFunc reports the frame done once the last one is released
		}
		if b.cfg.Stats != nil {
			b.cfg.Stats.FramesDone.Add(1)
			if pacing.EpochTroffsetMismatch(b.cfg.Pacing.TSCCursor, b.cfg.Pacing.TSCFrameStart, b.cfg.Pacing.Profile.FrameTimeNS, epochTroffsetTolerance) {
				b.cfg.Stats.EpochTroffsetMismatch.Add(1)
			}
		}
		b.state = stateWaitFrame
	}
	return sched.HasPending
}

func (b *Builder) emitOne() error {
	payload, marker, err := b.cfg.Planner.BuildPayload(b.curFrameIdx, b.pktIdx, b.curMeta)
	if err != nil {
		return fmt.Errorf("builder: build payload: %w", err)
	}

	hdr := wire.BuildRTPHeader(wire.RTPHeaderParams{
		PayloadType: b.cfg.PayloadType,
		Seq:         b.seq.Wire(),
		Timestamp:   b.rtpTS,
		SSRC:        b.cfg.SSRC,
		Marker:      marker,
	})
	pktBytes, err := wire.MarshalPacket(hdr, payload)
	if err != nil {
		return fmt.Errorf("builder: marshal: %w", err)
	}

	fr := b.cfg.Frames.At(b.curFrameIdx)

	fr.HoldForPacket()
	p := &ring.Packet{Bytes: pktBytes, TargetTSC: b.cfg.Pacing.TSCCursor, Index: uint32(b.curFrameIdx)}
	if !b.cfg.RingP.Push(p) {
		// Ring full: keep the frame held and retry next tick (step 1,
		// "inflight flush"); flushInflight drives the retry.
		b.inflightP = append(b.inflightP, p)
	}
	if b.cfg.RingR != nil {
		fr.HoldForPacket()
		rp := &ring.Packet{Bytes: pktBytes, TargetTSC: b.cfg.Pacing.TSCCursor, Index: uint32(b.curFrameIdx)}
		if !b.cfg.RingR.Push(rp) {
			b.inflightR = append(b.inflightR, rp)
		}
	}
	if b.cfg.NACKBuf != nil {
		b.cfg.NACKBuf.Record(uint32(b.seq.Wire()), pktBytes)
	}

	b.seq = b.seq.Next()
	b.pktIdx++
	b.cfg.Pacing.AdvancePacket()
	return nil
}

func (b *Builder) flushInflight() sched.Result {
	if len(b.inflightP) == 0 && len(b.inflightR) == 0 {
		return sched.AllDone
	}
	b.inflightP = flushRing(b.cfg.RingP, b.inflightP)
	if b.cfg.RingR != nil {
		b.inflightR = flushRing(b.cfg.RingR, b.inflightR)
	}
	if len(b.inflightP) > 0 || len(b.inflightR) > 0 {
		return sched.HasPending
	}
	return sched.AllDone
}

func flushRing(r *ring.Ring, pending []*ring.Packet) []*ring.Packet {
	i := 0
	for i < len(pending) {
		if !r.Push(pending[i]) {
			break
		}
		i++
	}
	return pending[i:]
}
