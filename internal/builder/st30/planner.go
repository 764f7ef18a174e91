// Package st30 implements the builder.Planner for SMPTE ST 2110-30 PCM
// audio (spec.md §8 scenario 4).
package st30

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// PCMSource supplies the raw interleaved PCM bytes for one frame
// (one "frame" here is one packet-time's worth of audio, per spec.md
// scenario 4: pkts_per_frame=1).
type PCMSource func(frameIdx int) []byte

type Planner struct {
	Audio  wire.AudioParams
	Source PCMSource
}

func New(a wire.AudioParams, source PCMSource) *Planner {
	return &Planner{Audio: a, Source: source}
}

// TotalPackets is always 1: ST30's "frame" unit is a single packet time
// (spec.md scenario 4: "pkts_per_frame=1").
func (p *Planner) TotalPackets(frameIdx int, meta builder.FrameMeta) int { return 1 }

func (p *Planner) BuildPayload(frameIdx, pktIdx int, meta builder.FrameMeta) ([]byte, bool, error) {
	if pktIdx != 0 {
		return nil, false, fmt.Errorf("st30: pkt_idx %d out of range (total 1)", pktIdx)
	}
	pcm := p.Source(frameIdx)
	want := p.Audio.PacketLen()
	if len(pcm) != want {
		return nil, false, fmt.Errorf("st30: pcm buffer is %d bytes, want %d", len(pcm), want)
	}
	out := make([]byte, want)
	copy(out, pcm)
	return out, true, nil
}

func (p *Planner) ClockRateHz() uint32 { return uint32(p.Audio.SampleRateHz) }
