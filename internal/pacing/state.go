package pacing

import "math"

// State is the per-session mutable pacing cursor set of spec.md §3
// ("Pacing State").
type State struct {
	Profile Profile

	PadInterval float64 // trained packets-between-pads, float per spec.md
	CurEpoch    uint64
	TSCCursor   uint64
	TSCFrameStart uint64
	PTPCursor   uint64
	RTPTimestamp uint32

	// MaxOnward bounds how far epoch may be pulled forward before the
	// drop-onward metric fires (spec.md §4.5 epoch computation).
	MaxOnward uint64

	DropOnwardCount    uint64
	FrameLateCount     uint64
	UserTimestampErrors uint64
}

// NewState seeds a State for a fresh session attach.
func NewState(p Profile) *State {
	return &State{Profile: p, MaxOnward: 8}
}

// EpochResult is what ComputeEpoch hands back to the builder for this
// frame (spec.md §4.7 step 3).
type EpochResult struct {
	Epoch       uint64
	StartTAI    uint64
	TimeToTXNS  uint64
	FrameLate   bool
	LateByEpochs uint64
}

// ComputeEpoch implements the per-frame epoch algorithm of spec.md §4.5.
// curTAI and curTSC are the collaborator clock readings at call time;
// requiredTAI is 0 unless the application supplied an exact timestamp
// (USER_PACING); exactUserPacing additionally honors EXACT_USER_PACING.
func (s *State) ComputeEpoch(curTAI, curTSC, requiredTAI uint64, exactUserPacing bool) EpochResult {
	nextFree := s.CurEpoch + 1
	var epoch uint64
	var res EpochResult

	if requiredTAI == 0 {
		epoch = uint64(math.Ceil(float64(curTAI) / s.Profile.FrameTimeNS))
		if epoch <= nextFree {
			onward := nextFree - epoch
			if onward > s.MaxOnward {
				s.DropOnwardCount++
			}
			epoch = nextFree
		} else {
			lateBy := epoch - nextFree
			s.FrameLateCount++
			res.FrameLate = true
			res.LateByEpochs = lateBy
		}
	} else {
		epoch = uint64(math.Round(float64(requiredTAI) / s.Profile.FrameTimeNS))
		curTAIEpoch := uint64(curTAI / uint64(s.Profile.FrameTimeNS))
		if epoch < curTAIEpoch {
			s.UserTimestampErrors++
		}
	}

	var startTAI uint64
	if exactUserPacing && requiredTAI != 0 {
		startTAI = requiredTAI
	} else {
		vrxNS := uint64(0)
		// vrx budget expressed in trs units, converted to ns.
		if s.Profile.TRSNS > 0 {
			// Narrow VRX is the default pacing headroom (spec.md §4.5).
			narrow, _ := VRX(s.Profile.TotalPktsPerFrame, s.Profile.FrameTimeNS, true)
			vrxNS = uint64(float64(narrow) * s.Profile.TRSNS)
		}
		base := epoch*uint64(s.Profile.FrameTimeNS) + uint64(s.Profile.TrOffsetNS)
		if base > vrxNS {
			startTAI = base - vrxNS
		} else {
			startTAI = 0
		}
	}

	var timeToTX uint64
	if startTAI > curTAI {
		timeToTX = startTAI - curTAI
	}

	s.TSCCursor = curTSC + timeToTX
	s.TSCFrameStart = s.TSCCursor
	s.PTPCursor = startTAI
	s.CurEpoch = epoch

	res.Epoch = epoch
	res.StartTAI = startTAI
	res.TimeToTXNS = timeToTX
	return res
}

// AdvancePacket moves the cursors forward by one TRS after a packet is
// stamped (spec.md §4.5: "Per-packet forward: after each packet the
// cursors advance by trs_ns").
func (s *State) AdvancePacket() {
	adv := nextAfterSafe(s.Profile.TRSNS)
	s.TSCCursor += uint64(adv)
	s.PTPCursor += uint64(adv)
}

// nextAfterSafe applies the "nextafter trick" spec.md §9 Design Notes
// calls for: a value at or above 2^53 is rounded up to the next
// representable double before it is cast to an integer time value.
// Smaller values are returned unchanged, so AdvancePacket's uint64 cast
// drops the fractional nanoseconds of trs_ns on every packet.
func nextAfterSafe(v float64) float64 {
	if v >= (1 << 53) {
		return math.Nextafter(v, math.Inf(1))
	}
	return v
}

// ShouldPad reports whether a pad packet belongs at packetIndex, given
// the trained (possibly fractional) pad_interval (spec.md §4.5: "A
// padding packet is inserted whenever (packet_index + pad_interval/2) mod
// pad_interval < bulk").
func ShouldPad(packetIndex int, padInterval float64, bulk int) bool {
	if padInterval <= 0 {
		return false
	}
	v := math.Mod(float64(packetIndex)+padInterval/2, padInterval)
	return v < float64(bulk)
}

// FrameIdleTimeNS is the minimum allowed gap between the last packet of
// one frame and the first of the next (spec.md §8 invariant 5).
func FrameIdleTimeNS(frameTimeNS, trOffsetNS, reactiveRatio float64) float64 {
	return frameTimeNS - trOffsetNS - frameTimeNS*reactiveRatio
}

// EpochTroffsetMismatch implements the Open Question recommendation of
// spec.md §9: tsc_cursor at end of frame minus tsc_frame_start exceeding
// frame_time * (1+tolerance) is a pacer overrun.
func EpochTroffsetMismatch(tscCursorAtEnd, tscFrameStart uint64, frameTimeNS float64, tolerance float64) bool {
	return float64(tscCursorAtEnd-tscFrameStart) > frameTimeNS*(1+tolerance)
}
