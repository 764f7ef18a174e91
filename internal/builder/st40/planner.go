// Package st40 implements the builder.Planner for SMPTE ST 2110-40
// ancillary data (spec.md §8 scenario 5: "test-bad-parity").
package st40

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

// ANCSource supplies the ANC packets carried in one frame.
type ANCSource func(frameIdx int) wire.ANCFrame

type Stats struct {
	BadParityFrames uint64
}

type Planner struct {
	Source ANCSource

	groups    [][]wire.ANCPacket
	groupsFor int
	stats     Stats
}

func New(source ANCSource) *Planner {
	return &Planner{Source: source, groupsFor: -1}
}

func (p *Planner) ensureGroups(frameIdx int) [][]wire.ANCPacket {
	if p.groupsFor == frameIdx {
		return p.groups
	}
	frame := p.Source(frameIdx)
	p.groups = wire.PlanST40(frame)
	p.groupsFor = frameIdx
	for _, pkt := range frame.Packets {
		if pkt.BadParity {
			p.stats.BadParityFrames++
			break
		}
	}
	return p.groups
}

func (p *Planner) TotalPackets(frameIdx int, meta builder.FrameMeta) int {
	return len(p.ensureGroups(frameIdx))
}

func (p *Planner) BuildPayload(frameIdx, pktIdx int, meta builder.FrameMeta) ([]byte, bool, error) {
	groups := p.ensureGroups(frameIdx)
	if pktIdx >= len(groups) {
		return nil, false, fmt.Errorf("st40: pkt_idx %d out of range (total %d)", pktIdx, len(groups))
	}
	var out []byte
	for _, anc := range groups[pktIdx] {
		did, sdid, dataCount := anc.MarshalANCHeader()
		out = append(out, byte(did>>8), byte(did), byte(sdid>>8), byte(sdid), byte(dataCount>>8), byte(dataCount))
		for _, w := range anc.MarshalUDW() {
			out = append(out, byte(w>>8), byte(w))
		}
	}
	marker := pktIdx == len(groups)-1
	return out, marker, nil
}

// ClockRateHz: ANC reuses the 90 kHz video clock (spec.md §4.5).
func (p *Planner) ClockRateHz() uint32 { return 90_000 }

// Stats returns the bad-parity frame counter (spec.md §8 scenario 5:
// "stat_bad_parity_frames").
func (p *Planner) Stats() Stats { return p.stats }
