package st2110

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/builder/st20"
	"github.com/ehrlich-b/st2110go/internal/builder/st22"
	"github.com/ehrlich-b/st2110go/internal/builder/st30"
	"github.com/ehrlich-b/st2110go/internal/builder/st40"
	"github.com/ehrlich-b/st2110go/internal/builder/st41"
	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/rtcpfb"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/session"
	"github.com/ehrlich-b/st2110go/internal/transmitter"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// CommonParams bundles the fields every CreateTx* entry point needs,
// regardless of media kind (spec.md §6.2 create(params)).
type CommonParams struct {
	Manager *session.Manager
	Name    string
	Socket  int // -1 means "any"; FlagForceNUMA pins to Socket

	QuotaMbs uint64
	NumFrames int

	BuilderScheduler *sched.Scheduler
	TxScheduler      *sched.Scheduler

	PTP iface.PTPClock
	TSC iface.TSCClock

	QueueP iface.TxQueue
	QueueR iface.TxQueue // non-nil only for ST 2022-7 redundant sessions
	Factory iface.TxQueueFactory
	FlowP   iface.FlowDescriptor
	FlowR   iface.FlowDescriptor

	Flags     TxFlag
	Callbacks Callbacks

	PayloadType uint8
	SSRC        uint32

	RingCapacity int

	// HangThreshold gates trackHang's fatal threshold (spec.md §4.9.2);
	// zero disables the tx_hang recovery path entirely.
	HangThreshold time.Duration

	// NominalBPS, when nonzero, opts a session into the RL pad-interval
	// training pass of spec.md §4.5.1 instead of the static pad_interval
	// a profile computes on its own.
	NominalBPS uint64

	// ExternalFrames/ExternalIOVAs supply application-owned frame memory
	// for FlagExtFrame sessions (spec.md §3 "external" frame Kind);
	// both must have length NumFrames (or 3 if NumFrames is unset).
	ExternalFrames [][]byte
	ExternalIOVAs  []uintptr

	// RTCPQueue, when set alongside FlagEnableRTCP, arms the receive
	// half of the NACK round trip: an rtcpfb.Receiver tasklet polls it
	// and feeds parsed feedback into the session's NACK buffer (spec.md
	// §4.10).
	RTCPQueue iface.RxQueue
}

func (p CommonParams) validate() error {
	if p.Manager == nil {
		return fmt.Errorf("st2110: CommonParams.Manager is required")
	}
	if p.BuilderScheduler == nil || p.TxScheduler == nil {
		return fmt.Errorf("st2110: both BuilderScheduler and TxScheduler are required")
	}
	if p.QueueP == nil {
		return fmt.Errorf("st2110: QueueP is required")
	}
	return nil
}

func (p CommonParams) ringCapacity() int {
	if p.RingCapacity > 0 {
		return p.RingCapacity
	}
	return 512
}

func (p CommonParams) bulk() int {
	if p.Flags.Has(FlagDisableBulk) {
		return 1
	}
	return 7
}

// padPacket builds a wire-valid, content-inert RTP packet for the RL
// warmup burst and periodic pad insertion of spec.md §4.9.1/§4.5.1:
// receivers key off payload type and sequence, not pad content.
func (p CommonParams) padPacket() []byte {
	hdr := wire.BuildRTPHeader(wire.RTPHeaderParams{
		PayloadType: p.PayloadType,
		SSRC:        p.SSRC,
	})
	pkt, err := wire.MarshalPacket(hdr, nil)
	if err != nil {
		return nil
	}
	return pkt
}

// trainPadInterval runs the RL pad-interval calibration pass of spec.md
// §4.5.1 against queue, sampling the profile's nominal packet rate as the
// target. Only called when NominalBPS opts a session in.
func trainPadInterval(queue iface.TxQueue, profile pacing.Profile, nominalBPS uint64, pad []byte) pacing.TrainResult {
	cfg := pacing.TrainConfig{
		TotalPktsPerFrame: profile.TotalPktsPerFrame,
		NominalPktsPerSec: float64(profile.TotalPktsPerFrame) / (profile.FrameTimeNS / 1e9),
		NominalBPS:        nominalBPS,
	}
	sample := func(frameIdx int) float64 {
		start := time.Now()
		for i := 0; i < cfg.TotalPktsPerFrame; i++ {
			queue.Burst([][]byte{pad})
		}
		elapsed := time.Since(start).Seconds()
		if elapsed <= 0 {
			return cfg.NominalPktsPerSec
		}
		return float64(cfg.TotalPktsPerFrame) / elapsed
	}
	return pacing.Train(cfg, sample)
}

func (p CommonParams) attach(kind session.Kind, frameSize int, pacingProfile pacing.Profile, planner builder.Planner) (*TxHandle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	onDone := func(idx int) {
		if p.Callbacks.NotifyFrameDone != nil {
			p.Callbacks.NotifyFrameDone(idx)
		}
	}
	numFrames := p.NumFrames
	if numFrames <= 0 {
		numFrames = 3
	}

	var frames *frame.Pool
	if p.Flags.Has(FlagExtFrame) {
		if len(p.ExternalFrames) == 0 || len(p.ExternalFrames) != len(p.ExternalIOVAs) {
			return nil, fmt.Errorf("st2110: FlagExtFrame requires ExternalFrames and ExternalIOVAs of equal, nonzero length")
		}
		frames = frame.NewExternalPool(p.ExternalFrames, p.ExternalIOVAs, onDone)
	} else {
		frames = frame.NewPool(numFrames, frameSize, onDone)
	}

	ringP := ring.New(p.ringCapacity())
	var ringR *ring.Ring
	if p.QueueR != nil {
		ringR = ring.New(p.ringCapacity())
	}

	var nackBuf *rtcpfb.Buffer
	if p.Flags.Has(FlagEnableRTCP) {
		nackBuf = rtcpfb.NewBuffer(0)
	}

	bcfg := builder.Config{
		PTP:         p.PTP,
		TSC:         p.TSC,
		Bulk:        p.bulk(),
		PayloadType: p.PayloadType,
		SSRC:        p.SSRC,
		Planner:     planner,
		Callbacks:   p.Callbacks.toBuilder(),
		NACKBuf:     nackBuf,

		AllowUserPacing:        p.Flags.Has(FlagUserPacing),
		AllowExactUserPacing:   p.Flags.Has(FlagExactUserPacing),
		AllowUserTimestamp:     p.Flags.Has(FlagUserTimestamp),
		AllowRTPTimestampEpoch: p.Flags.Has(FlagRTPTimestampEpoch),
		EnableVsync:            p.Flags.Has(FlagEnableVsync),
	}
	if p.Flags.Has(FlagForceNUMA) {
		bcfg.Port = p.Socket
	}

	pad := p.padPacket()
	padInterval := 0.0
	switch {
	case p.Flags.Has(FlagEnableStaticPadP):
		// ENABLE_STATIC_PAD_P: skip the RL training burst and use the
		// spec.md §4.5.1/§9 floor as a conservative static profile.
		padInterval = 32
	case p.NominalBPS > 0:
		result := trainPadInterval(p.QueueP, pacingProfile, p.NominalBPS, pad)
		padInterval = result.PadInterval
	}
	warmup := pacing.WarmupPackets(pacingProfile.TrOffsetNS, pacingProfile.TRSNS)

	tcfgP := transmitter.Config{
		Name:          p.Name + "-tx-p",
		TSC:           p.TSC,
		Queue:         p.QueueP,
		Factory:       p.Factory,
		Flow:          p.FlowP,
		Bulk:          p.bulk(),
		PadInterval:   padInterval,
		PadPacket:     pad,
		HangThreshold: p.HangThreshold,
		WarmupPackets: warmup,
	}
	var tcfgR *transmitter.Config
	if p.QueueR != nil {
		tcfgR = &transmitter.Config{
			Name:          p.Name + "-tx-r",
			TSC:           p.TSC,
			Queue:         p.QueueR,
			Factory:       p.Factory,
			Flow:          p.FlowR,
			Bulk:          p.bulk(),
			PadInterval:   padInterval,
			PadPacket:     pad,
			HangThreshold: p.HangThreshold,
			WarmupPackets: warmup,
		}
	}

	sess, err := p.Manager.Attach(session.AttachRequest{
		Name:     p.Name,
		Kind:     kind,
		Socket:   p.Socket,
		QuotaMbs: p.QuotaMbs,

		BuilderScheduler: p.BuilderScheduler,
		TxScheduler:      p.TxScheduler,

		Frames: frames,
		RingP:  ringP,
		RingR:  ringR,
		Pacing: &pacingProfile,

		BuilderCfg: bcfg,
		Transmit:   tcfgP,
		TransmitR:  tcfgR,
	})
	if err != nil {
		return nil, err
	}

	if err := sess.UpdateDestination(session.PortP, p.FlowP); err != nil {
		return nil, err
	}
	if p.QueueR != nil {
		if err := sess.UpdateDestination(session.PortR, p.FlowR); err != nil {
			return nil, err
		}
	}

	handle := &TxHandle{mgr: p.Manager, kind: kind, sess: sess}

	if nackBuf != nil && p.RTCPQueue != nil {
		recv := rtcpfb.NewReceiver(p.Name+"-rtcp-rx", p.RTCPQueue, nackBuf, rtcpfb.QueueSender{Queue: p.QueueP}, p.bulk(), sess.Stats)
		handle.rtcpRxSched = p.TxScheduler
		handle.rtcpRxTID = p.TxScheduler.AttachTasklet(recv)
	}

	return handle, nil
}

// VideoParams describes an ST20 session's fixed geometry (spec.md
// §4.7.1).
type VideoParams struct {
	Width, Height int
	PixelGroup    wire.PixelGroup
	Packing       wire.Packing
	MaxPayload    int
	FPS           pacing.FPS
	Source        st20.FrameSource
}

// CreateTx20 creates an ST 2110-20 uncompressed-video sender session
// (spec.md §6.2 create(), ST20 variant).
func CreateTx20(c CommonParams, v VideoParams) (*TxHandle, error) {
	frameSize := wire.TotalFrameBytes(v.Width, v.Height, v.PixelGroup)
	plan := st20.New(st20.Params{Width: v.Width, Height: v.Height, PixelGroup: v.PixelGroup, Packing: v.Packing, MaxPayload: v.MaxPayload}, v.Source)
	totalPkts := plan.TotalPackets(0, builder.FrameMeta{})
	profile := pacing.NewHDProfile(v.FPS, maxInt(totalPkts, 1))
	return c.attach(session.KindST20, frameSize, profile, plan)
}

// CompressedVideoParams describes an ST22 session.
type CompressedVideoParams struct {
	MaxPayload   int
	MaxFrameSize int
	FPS          pacing.FPS
	Source       st22.CodestreamSource
}

// CreateTx22 creates an ST 2110-22 compressed-video sender session.
func CreateTx22(c CommonParams, v CompressedVideoParams) (*TxHandle, error) {
	plan := st22.New(st22.Params{MaxPayload: v.MaxPayload, DisableBoxes: c.Flags.Has(FlagDisableBoxes)}, v.Source)
	totalPkts := plan.TotalPackets(0, builder.FrameMeta{})
	profile := pacing.NewHDProfile(v.FPS, maxInt(totalPkts, 1))
	return c.attach(session.KindST22, v.MaxFrameSize, profile, plan)
}

// AudioParams describes an ST30 session (spec.md §6.4 RFC 3550 PCM).
type AudioParams struct {
	Audio  wire.AudioParams
	Source st30.PCMSource
}

// CreateTx30 creates an ST 2110-30 PCM audio sender session.
func CreateTx30(c CommonParams, a AudioParams) (*TxHandle, error) {
	plan := st30.New(a.Audio, a.Source)
	profile := pacing.NewNonVideoProfile(a.Audio.FrameTimeNS(), 1)
	return c.attach(session.KindST30, a.Audio.PacketLen(), profile, plan)
}

// AncillaryParams describes an ST40 session (spec.md §6.4 RFC 8331).
type AncillaryParams struct {
	FrameTimeNS float64
	MaxFrameSize int
	Source      st40.ANCSource
}

// CreateTx40 creates an ST 2110-40 ancillary-data sender session.
func CreateTx40(c CommonParams, a AncillaryParams) (*TxHandle, error) {
	plan := st40.New(a.Source)
	totalPkts := plan.TotalPackets(0, builder.FrameMeta{})
	profile := pacing.NewNonVideoProfile(a.FrameTimeNS, maxInt(totalPkts, 1))
	return c.attach(session.KindST40, a.MaxFrameSize, profile, plan)
}

// FastMetadataParams describes an ST41 session.
type FastMetadataParams struct {
	MaxPayload   int
	FrameTimeNS  float64
	MaxFrameSize int
	Source       st41.ItemSource
}

// CreateTx41 creates an ST 2110-41 fast-metadata sender session.
func CreateTx41(c CommonParams, f FastMetadataParams) (*TxHandle, error) {
	plan := st41.New(f.MaxPayload, f.Source)
	totalPkts := plan.TotalPackets(0, builder.FrameMeta{})
	profile := pacing.NewNonVideoProfile(f.FrameTimeNS, maxInt(totalPkts, 1))
	return c.attach(session.KindST41, f.MaxFrameSize, profile, plan)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
