// Package pacing implements the ST 2110-21 transmit pacing engine of
// spec.md §4.5: epoch tracking, TRS/Tr-offset/VRX computation, padding
// training, and per-packet TSC targets.
package pacing

import (
	"math"
)

// Mode selects which tasklet gates transmit timing (spec.md §4.5.2).
type Mode int

const (
	ModeRL Mode = iota
	ModeTSC
	ModeTSCNarrow
	ModePTP
	ModeBE
)

// ActiveRatio is the active-video-lines-over-total-lines fraction used in
// the TRS formula (spec.md §4.5). Progressive HD and higher use 1080/1125;
// legacy interlaced formats use their own ratios.
type ActiveRatio struct {
	Active int
	Total  int
}

func (r ActiveRatio) Float() float64 { return float64(r.Active) / float64(r.Total) }

var (
	ActiveRatioHDAndAbove = ActiveRatio{Active: 1080, Total: 1125}
	ActiveRatio480i       = ActiveRatio{Active: 487, Total: 525}
	ActiveRatio576i       = ActiveRatio{Active: 576, Total: 625}
)

// FPS is a rational frame rate (e.g. 60000/1001 for 59.94).
type FPS struct {
	Mul uint64 // numerator
	Den uint64 // denominator
}

// FrameTimeNS computes frame_time_ns = (den/mul) * 1e9, rounded to the
// nearest representable double (spec.md §4.5).
func (f FPS) FrameTimeNS() float64 {
	return float64(f.Den) / float64(f.Mul) * 1e9
}

// Profile is the static per-session pacing configuration derived once at
// session attach from format + fps (spec.md §4.5).
type Profile struct {
	FrameTimeNS        float64
	TRSNS              float64
	TrOffsetNS         float64
	TotalPktsPerFrame  int
	ActiveRatio        ActiveRatio
	IsLegacyInterlaced bool
}

// NewHDProfile builds a Profile for progressive HD-and-above video.
func NewHDProfile(fps FPS, totalPkts int) Profile {
	ft := fps.FrameTimeNS()
	ratio := ActiveRatioHDAndAbove
	return Profile{
		FrameTimeNS:       ft,
		TRSNS:             ft * ratio.Float() / float64(totalPkts),
		TrOffsetNS:        ft * 43.0 / 1125.0,
		TotalPktsPerFrame: totalPkts,
		ActiveRatio:       ratio,
	}
}

// New480iProfile builds a Profile for legacy 480i video.
func New480iProfile(fps FPS, totalPkts int) Profile {
	ft := fps.FrameTimeNS()
	ratio := ActiveRatio480i
	return Profile{
		FrameTimeNS:        ft,
		TRSNS:              ft * ratio.Float() / float64(totalPkts),
		TrOffsetNS:         ft * 20.0 / 525.0 * 2.0,
		TotalPktsPerFrame:  totalPkts,
		ActiveRatio:        ratio,
		IsLegacyInterlaced: true,
	}
}

// New576iProfile builds a Profile for legacy 576i video.
func New576iProfile(fps FPS, totalPkts int) Profile {
	ft := fps.FrameTimeNS()
	ratio := ActiveRatio576i
	return Profile{
		FrameTimeNS:        ft,
		TRSNS:              ft * ratio.Float() / float64(totalPkts),
		TrOffsetNS:         ft * 26.0 / 625.0 * 2.0,
		TotalPktsPerFrame:  totalPkts,
		ActiveRatio:        ratio,
		IsLegacyInterlaced: true,
	}
}

// NewNonVideoProfile builds a Profile for audio/ancillary/fast-metadata
// sessions where trs is simply the per-packet time and tr_offset is 0
// (those media kinds have no VBI concept).
func NewNonVideoProfile(frameTimeNS float64, totalPkts int) Profile {
	trs := frameTimeNS
	if totalPkts > 0 {
		trs = frameTimeNS / float64(totalPkts)
	}
	return Profile{
		FrameTimeNS:       frameTimeNS,
		TRSNS:             trs,
		TrOffsetNS:        0,
		TotalPktsPerFrame: totalPkts,
	}
}

// VRX computes the virtual-receive-buffer packet budgets of spec.md §4.5.
func VRX(totalPkts int, frameTimeNS float64, rlMode bool) (narrow, wide int) {
	frameTimeS := frameTimeNS / 1e9
	n := int(math.Ceil(float64(totalPkts) / (27000 * frameTimeS)))
	if n < 8 {
		n = 8
	}
	w := int(math.Ceil(float64(totalPkts) / (300 * frameTimeS)))
	if w < 720 {
		w = 720
	}
	if rlMode {
		n -= 4 // burst + deviation allowance, spec.md §4.5
		if n < 0 {
			n = 0
		}
	}
	return n, w
}

// WarmupPackets computes the RL-mode warmup packet count: at most 128,
// and at most 80% of the packets that fit within tr_offset (spec.md
// §4.5).
func WarmupPackets(trOffsetNS, trsNS float64) int {
	if trsNS <= 0 {
		return 0
	}
	fitInOffset := int(trOffsetNS / trsNS)
	cap80 := int(float64(fitInOffset) * 0.8)
	if cap80 > 128 {
		return 128
	}
	if cap80 < 0 {
		return 0
	}
	return cap80
}
