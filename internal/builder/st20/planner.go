// Package st20 implements the builder.Planner for SMPTE ST 2110-20
// uncompressed video (spec.md §4.7.1).
package st20

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// ClockRateHz is the RTP media clock rate for video (spec.md §4.5: "90
// kHz for video/ANC").
const ClockRateHz = 90_000

// Params describes one ST20 session's fixed geometry.
type Params struct {
	Width, Height int
	PixelGroup    wire.PixelGroup
	Packing       wire.Packing
	MaxPayload    int
}

// FrameSource supplies the raw line-ordered pixel bytes for a frame,
// e.g. backed by frame.Frame.Buffer.
type FrameSource func(frameIdx int) []byte

// Planner implements builder.Planner for ST20.
type Planner struct {
	Params Params
	Source FrameSource

	plan     wire.Plan
	offsets  []int // cumulative byte offset of each packet, parallel to plan.Packets
	planFrom int    // frame index the cached plan belongs to; -1 until first use
}

func New(p Params, source FrameSource) *Planner {
	return &Planner{Params: p, Source: source, planFrom: -1}
}

func (p *Planner) ensurePlan(frameIdx int, secondField bool) wire.Plan {
	if p.planFrom == frameIdx {
		return p.plan
	}
	p.plan = wire.PlanFrame(p.Params.Packing, p.Params.Width, p.Params.Height, p.Params.MaxPayload, p.Params.PixelGroup, secondField)
	p.offsets = make([]int, len(p.plan.Packets))
	off := 0
	for i, d := range p.plan.Packets {
		p.offsets[i] = off
		off += d.PayloadLen
	}
	p.planFrom = frameIdx
	return p.plan
}

func (p *Planner) TotalPackets(frameIdx int, meta builder.FrameMeta) int {
	return len(p.ensurePlan(frameIdx, meta.SecondField).Packets)
}

func (p *Planner) BuildPayload(frameIdx, pktIdx int, meta builder.FrameMeta) ([]byte, bool, error) {
	plan := p.ensurePlan(frameIdx, meta.SecondField)
	if pktIdx >= len(plan.Packets) {
		return nil, false, fmt.Errorf("st20: pkt_idx %d out of range (total %d)", pktIdx, len(plan.Packets))
	}
	desc := plan.Packets[pktIdx]

	frameBytes := p.Source(frameIdx)
	offset := p.offsets[pktIdx]
	if offset+desc.PayloadLen > len(frameBytes) {
		return nil, false, fmt.Errorf("st20: frame buffer too short: need %d bytes at offset %d, have %d", desc.PayloadLen, offset, len(frameBytes))
	}

	srdHeaderLen := 6
	out := make([]byte, srdHeaderLen+desc.PayloadLen)
	lineNum := wire.SRDLineNumber(desc.LineNumber, desc.SecondField)
	out[0] = byte(desc.PayloadLen >> 8)
	out[1] = byte(desc.PayloadLen)
	out[2] = byte(lineNum >> 8)
	out[3] = byte(lineNum)
	off := wire.SRDOffset(desc.RowOffset, desc.Continuation)
	out[4] = byte(off >> 8)
	out[5] = byte(off)
	copy(out[srdHeaderLen:], frameBytes[offset:offset+desc.PayloadLen])

	marker := pktIdx == len(plan.Packets)-1
	return out, marker, nil
}

func (p *Planner) ClockRateHz() uint32 { return ClockRateHz }
