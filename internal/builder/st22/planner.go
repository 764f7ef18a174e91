// Package st22 implements the builder.Planner for SMPTE ST 2110-22
// compressed video (J2K/JPEG-XS), spec.md §4.7.1, §8 scenario 3.
package st22

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// ClockRateHz matches ST20: 90 kHz (spec.md §4.5).
const ClockRateHz = 90_000

// CodestreamSource supplies one frame's codestream bytes; when boxes
// are enabled the caller is expected to have already prepended the 60
// box bytes (spec.md §6.4, §8 scenario 3: "boxes occupy bytes 0-59").
type CodestreamSource func(frameIdx int) []byte

type Params struct {
	MaxPayload   int
	DisableBoxes bool
}

type Planner struct {
	Params Params
	Source CodestreamSource

	headers   []wire.ST22PayloadHeader
	headerFor int
}

func New(p Params, source CodestreamSource) *Planner {
	return &Planner{Params: p, Source: source, headerFor: -1}
}

func (p *Planner) ensureHeaders(frameIdx int) []wire.ST22PayloadHeader {
	if p.headerFor == frameIdx {
		return p.headers
	}
	codestream := p.Source(frameIdx)
	p.headers = wire.PlanST22(len(codestream), p.Params.MaxPayload, frameIdx)
	p.headerFor = frameIdx
	return p.headers
}

func (p *Planner) TotalPackets(frameIdx int, meta builder.FrameMeta) int {
	return len(p.ensureHeaders(frameIdx))
}

func (p *Planner) BuildPayload(frameIdx, pktIdx int, meta builder.FrameMeta) ([]byte, bool, error) {
	headers := p.ensureHeaders(frameIdx)
	if pktIdx >= len(headers) {
		return nil, false, fmt.Errorf("st22: pkt_idx %d out of range (total %d)", pktIdx, len(headers))
	}
	codestream := p.Source(frameIdx)
	payloadBudget := p.Params.MaxPayload - wire.ST22PayloadHeaderLen
	offset := pktIdx * payloadBudget
	end := offset + payloadBudget
	if end > len(codestream) {
		end = len(codestream)
	}
	if offset > len(codestream) {
		return nil, false, fmt.Errorf("st22: codestream too short for pkt_idx %d", pktIdx)
	}

	h := headers[pktIdx].Marshal()
	out := make([]byte, 0, len(h)+(end-offset))
	out = append(out, h[:]...)
	out = append(out, codestream[offset:end]...)

	marker := pktIdx == len(headers)-1
	return out, marker, nil
}

func (p *Planner) ClockRateHz() uint32 { return ClockRateHz }
