// Package st41 implements the builder.Planner for SMPTE ST 2110-41
// fast metadata (spec.md §6.4: word-aligned, zero-padded data items).
package st41

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// ItemSource supplies the data items carried in one frame.
type ItemSource func(frameIdx int) []wire.ST41DataItem

type Planner struct {
	MaxPayload int
	Source     ItemSource

	groups    [][]wire.ST41DataItem
	groupsFor int
}

func New(maxPayload int, source ItemSource) *Planner {
	return &Planner{MaxPayload: maxPayload, Source: source, groupsFor: -1}
}

func (p *Planner) ensureGroups(frameIdx int) [][]wire.ST41DataItem {
	if p.groupsFor == frameIdx {
		return p.groups
	}
	items := p.Source(frameIdx)
	p.groups = wire.PlanST41(items, p.MaxPayload)
	p.groupsFor = frameIdx
	return p.groups
}

func (p *Planner) TotalPackets(frameIdx int, meta builder.FrameMeta) int {
	return len(p.ensureGroups(frameIdx))
}

func (p *Planner) BuildPayload(frameIdx, pktIdx int, meta builder.FrameMeta) ([]byte, bool, error) {
	groups := p.ensureGroups(frameIdx)
	if pktIdx >= len(groups) {
		return nil, false, fmt.Errorf("st41: pkt_idx %d out of range (total %d)", pktIdx, len(groups))
	}
	var out []byte
	for _, item := range groups[pktIdx] {
		out = append(out, item.Marshal()...)
	}
	marker := pktIdx == len(groups)-1
	return out, marker, nil
}

// ClockRateHz: fast metadata reuses the 90 kHz video clock (spec.md §4.5).
func (p *Planner) ClockRateHz() uint32 { return 90_000 }
