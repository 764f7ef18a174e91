package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ehrlich-b/st2110go/internal/config"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/logger"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/session"
	"github.com/ehrlich-b/st2110go/internal/st2110"
	"github.com/ehrlich-b/st2110go/internal/txqueue"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// daemon owns every scheduler and session a profile brought up, for
// orderly shutdown.
type daemon struct {
	clock   *iface.SoftClock
	schedMgr *sched.Manager
	scheds  map[string]*sched.Scheduler
	sessMgr *session.Manager
	handles []*st2110.TxHandle
	rxQueues []*txqueue.RxUDPQueue

	statsStop context.CancelFunc
}

func newDaemon(profile *config.Profile) (*daemon, error) {
	d := &daemon{
		clock:   iface.NewSoftClock(),
		schedMgr: sched.NewManager(nil),
		scheds:  make(map[string]*sched.Scheduler),
		sessMgr: session.NewManager(nil),
	}

	for _, sc := range profile.Schedulers {
		typ, err := parseSchedulerType(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("scheduler %q: %w", sc.Name, err)
		}
		s, err := d.schedMgr.Request(sched.Config{
			Name:        sc.Name,
			Type:        typ,
			NbTasklets:  sc.NbTasklets,
			Socket:      sc.Socket,
			PinCore:     sc.PinCore,
			QuotaCapMbs: uint64(sc.QuotaCapMbs),
			Clock:       d.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler %q: %w", sc.Name, err)
		}
		d.scheds[sc.Name] = s
		if err := s.Start(); err != nil {
			return nil, fmt.Errorf("start scheduler %q: %w", sc.Name, err)
		}
	}

	for _, ssc := range profile.Sessions {
		h, err := d.attachSession(ssc)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("session %q: %w", ssc.Name, err)
		}
		d.handles = append(d.handles, h)
	}

	return d, nil
}

func (d *daemon) attachSession(sc config.SessionConfig) (*st2110.TxHandle, error) {
	bSched, ok := d.scheds[sc.Scheduler]
	if !ok {
		return nil, fmt.Errorf("no scheduler named %q", sc.Scheduler)
	}
	txSched := bSched
	if tx, ok := d.scheds[sc.Scheduler+"-tx"]; ok {
		txSched = tx
	}

	flowP, err := destinationToFlow(sc.Destination)
	if err != nil {
		return nil, err
	}
	queueP, err := txqueue.Dial(&net.UDPAddr{IP: flowP.DstIP, Port: int(flowP.DstPort)}, 0)
	if err != nil {
		return nil, fmt.Errorf("dial primary destination: %w", err)
	}

	flags := parseFlags(sc.Flags)

	common := st2110.CommonParams{
		Manager:          d.sessMgr,
		Name:             sc.Name,
		Socket:           -1,
		BuilderScheduler: bSched,
		TxScheduler:      txSched,
		PTP:              d.clock,
		TSC:              d.clock,
		QueueP:           queueP,
		Factory:          txqueue.Factory{},
		FlowP:            flowP,
		Flags:            flags,
		Callbacks:        sessionCallbacks(sc.Name),
		HangThreshold:    2 * time.Second,
	}

	if flags.Has(st2110.FlagEnableRTCP) && sc.RTCPListenPort > 0 {
		rxQueue, err := txqueue.ListenUDP(&net.UDPAddr{Port: sc.RTCPListenPort})
		if err != nil {
			return nil, fmt.Errorf("listen rtcp feedback port: %w", err)
		}
		common.RTCPQueue = rxQueue
		d.rxQueues = append(d.rxQueues, rxQueue)
	}

	if sc.Redundant != nil {
		flowR, err := destinationToFlow(*sc.Redundant)
		if err != nil {
			return nil, err
		}
		queueR, err := txqueue.Dial(&net.UDPAddr{IP: flowR.DstIP, Port: int(flowR.DstPort)}, 0)
		if err != nil {
			return nil, fmt.Errorf("dial redundant destination: %w", err)
		}
		common.QueueR = queueR
		common.FlowR = flowR
	}

	switch strings.ToLower(sc.Kind) {
	case "st20":
		if sc.Video == nil {
			return nil, fmt.Errorf("st20 session requires video params")
		}
		pg, err := parsePixelFormat(sc.Video.PixelFormat)
		if err != nil {
			return nil, err
		}
		pk := parsePacking(sc.Video.Packing)
		gen := newBarsGenerator(sc.Video.Width, sc.Video.Height, pg)
		return st2110.CreateTx20(common, st2110.VideoParams{
			Width: sc.Video.Width, Height: sc.Video.Height,
			PixelGroup: pg, Packing: pk,
			MaxPayload: 1200,
			FPS:        fps(sc.Video.FPSMul, sc.Video.FPSDen),
			Source:     gen.Frame,
		})
	case "st22":
		if sc.Video == nil {
			return nil, fmt.Errorf("st22 session requires video params")
		}
		gen := newCodestreamGenerator()
		return st2110.CreateTx22(common, st2110.CompressedVideoParams{
			MaxPayload:   1200,
			MaxFrameSize: 4 << 20,
			FPS:          fps(sc.Video.FPSMul, sc.Video.FPSDen),
			Source:       gen.Frame,
		})
	case "st30":
		if sc.Audio == nil {
			return nil, fmt.Errorf("st30 session requires audio params")
		}
		audio := wire.AudioParams{
			SampleRateHz: sc.Audio.SampleRateHz,
			Channels:     sc.Audio.Channels,
			SampleSize:   sampleSizeFor(sc.Audio.Format),
			PacketTime:   wire.PacketTimeUS(sc.Audio.PacketTimeUS),
		}
		gen := newSilenceGenerator(audio.PacketLen())
		return st2110.CreateTx30(common, st2110.AudioParams{Audio: audio, Source: gen.Frame})
	case "st40":
		gen := newANCGenerator()
		return st2110.CreateTx40(common, st2110.AncillaryParams{
			FrameTimeNS:  1_000_000_000.0 / 25,
			MaxFrameSize: 2048,
			Source:       gen.Frame,
		})
	case "st41":
		gen := newFastMetadataGenerator()
		return st2110.CreateTx41(common, st2110.FastMetadataParams{
			MaxPayload:   1200,
			FrameTimeNS:  1_000_000_000.0 / 25,
			MaxFrameSize: 2048,
			Source:       gen.Frame,
		})
	default:
		return nil, fmt.Errorf("unknown session kind %q", sc.Kind)
	}
}

func (d *daemon) StartStats(ctx context.Context, interval time.Duration) {
	sctx, cancel := context.WithCancel(ctx)
	d.statsStop = cancel
	d.sessMgr.StartStatsAggregator(sctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sctx.Done():
				return
			case <-ticker.C:
				for _, h := range d.handles {
					snap := h.GetStats()
					logger.Log.Info("session stats",
						"sent", snap.Sent, "dummy", snap.DummyFiltered,
						"frames_done", snap.FramesDone, "late", snap.FramesLate,
						"hangs", snap.HangRecoveries,
						"retransmit_succ", snap.RetransmitSucc, "retransmit_fail", snap.RetransmitFail)
				}
			}
		}
	}()
}

func (d *daemon) Close() {
	if d.statsStop != nil {
		d.statsStop()
	}
	d.sessMgr.StopStatsAggregator()
	for _, h := range d.handles {
		h.Free()
	}
	for _, q := range d.rxQueues {
		q.Close()
	}
	d.schedMgr.StopAll()
}

func sessionCallbacks(name string) st2110.Callbacks {
	return st2110.Callbacks{
		NotifyEvent: func(ev st2110.Event) {
			switch ev {
			case st2110.EventFatal:
				logger.Log.Warn("queue went fatal", "session", name)
			case st2110.EventRecoveryError:
				logger.Log.Error("queue recovery failed", "session", name)
			case st2110.EventVsync:
				logger.Log.Debug("vsync", "session", name)
			}
		},
		NotifyFrameLate: func(lateByEpochs uint64) {
			logger.Log.Warn("frame late", "session", name, "epochs", lateByEpochs)
		},
	}
}

func parseSchedulerType(s string) (sched.Type, error) {
	switch strings.ToLower(s) {
	case "builder":
		return sched.TypeBuilder, nil
	case "transmitter":
		return sched.TypeTransmitter, nil
	case "mixed":
		return sched.TypeMixed, nil
	default:
		return 0, fmt.Errorf("unknown scheduler type %q", s)
	}
}

func destinationToFlow(dst config.Destination) (iface.FlowDescriptor, error) {
	ip := net.ParseIP(dst.IP)
	if ip == nil {
		return iface.FlowDescriptor{}, fmt.Errorf("invalid destination IP %q", dst.IP)
	}
	return iface.FlowDescriptor{DstIP: ip, DstPort: uint16(dst.Port), SrcPort: uint16(dst.SrcPort)}, nil
}

func parsePixelFormat(s string) (wire.PixelGroup, error) {
	switch strings.ToLower(s) {
	case "yuv422_8bit":
		return wire.PixelGroupYUV422_8bit, nil
	case "", "yuv422_10bit":
		return wire.PixelGroupYUV422_10bit, nil
	case "yuv422_12bit":
		return wire.PixelGroupYUV422_12bit, nil
	case "yuv444_8bit":
		return wire.PixelGroupYUV444_8bit, nil
	case "yuv444_10bit":
		return wire.PixelGroupYUV444_10bit, nil
	default:
		return wire.PixelGroup{}, fmt.Errorf("unknown pixel_format %q", s)
	}
}

func parsePacking(s string) wire.Packing {
	switch strings.ToLower(s) {
	case "gpm_sl":
		return wire.PackingGPMSL
	case "gpm":
		return wire.PackingGPM
	default:
		return wire.PackingBPM
	}
}

func sampleSizeFor(format string) int {
	switch strings.ToLower(format) {
	case "l24":
		return 3
	case "l32":
		return 4
	default:
		return 2 // L16
	}
}

func fps(mul, den int) pacing.FPS {
	if mul == 0 {
		mul = 60
	}
	if den == 0 {
		den = 1
	}
	return pacing.FPS{Mul: uint64(mul), Den: uint64(den)}
}

func parseFlags(list config.FlagList) st2110.TxFlag {
	var f st2110.TxFlag
	for _, name := range list {
		switch strings.ToLower(name) {
		case "user_pacing":
			f |= st2110.FlagUserPacing
		case "exact_user_pacing":
			f |= st2110.FlagExactUserPacing
		case "user_timestamp":
			f |= st2110.FlagUserTimestamp
		case "rtp_timestamp_epoch":
			f |= st2110.FlagRTPTimestampEpoch
		case "disable_bulk":
			f |= st2110.FlagDisableBulk
		case "enable_vsync":
			f |= st2110.FlagEnableVsync
		case "enable_rtcp":
			f |= st2110.FlagEnableRTCP
		case "enable_static_pad_p":
			f |= st2110.FlagEnableStaticPadP
		case "force_numa":
			f |= st2110.FlagForceNUMA
		}
	}
	return f
}
