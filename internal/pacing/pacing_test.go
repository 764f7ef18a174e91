package pacing

import (
	"math"
	"testing"
)

func TestHDProfile1080p5994(t *testing.T) {
	fps := FPS{Mul: 60000, Den: 1001}
	p := NewHDProfile(fps, 4320)

	wantFrameTime := 1001.0 / 60000.0 * 1e9
	if math.Abs(p.FrameTimeNS-wantFrameTime) > 1 {
		t.Fatalf("frame_time_ns = %v, want ~%v", p.FrameTimeNS, wantFrameTime)
	}

	wantTRS := wantFrameTime * (1080.0 / 1125.0) / 4320
	if math.Abs(p.TRSNS-wantTRS) > 1e-6 {
		t.Fatalf("trs_ns = %v, want %v", p.TRSNS, wantTRS)
	}

	wantOffset := wantFrameTime * 43.0 / 1125.0
	if math.Abs(p.TrOffsetNS-wantOffset) > 1e-6 {
		t.Fatalf("tr_offset_ns = %v, want %v", p.TrOffsetNS, wantOffset)
	}
}

func TestVRXNarrowAndWideFloors(t *testing.T) {
	// A tiny total_pkts / frame_time combination should hit the floors.
	narrow, wide := VRX(10, 16_666_666, false)
	if narrow < 8 {
		t.Fatalf("narrow vrx should floor at 8, got %d", narrow)
	}
	if wide < 720 {
		t.Fatalf("wide vrx should floor at 720, got %d", wide)
	}
}

func TestVRXNarrowRLSubtractsFour(t *testing.T) {
	// A large total_pkts pushes narrow vrx above the floor so the RL
	// -4 adjustment is observable.
	withoutRL, _ := VRX(100_000, 16_666_666, false)
	withRL, _ := VRX(100_000, 16_666_666, true)
	if withoutRL-withRL != 4 {
		t.Fatalf("expected RL mode to subtract exactly 4 packets, got %d vs %d", withoutRL, withRL)
	}
}

func TestWarmupPacketsBounds(t *testing.T) {
	// tr_offset fits many trs periods: warmup should cap at 128.
	w := WarmupPackets(1_000_000, 1000)
	if w != 128 {
		t.Fatalf("expected warmup capped at 128, got %d", w)
	}
	// tr_offset fits few trs periods: warmup should be 80% of that.
	w2 := WarmupPackets(1000, 100)
	if w2 != 8 {
		t.Fatalf("expected warmup = 0.8*10 = 8, got %d", w2)
	}
}

func TestComputeEpochAdvancesMonotonically(t *testing.T) {
	p := NewHDProfile(FPS{Mul: 60, Den: 1}, 4320) // 60fps exact, easy frame_time
	s := NewState(p)

	curTSC := uint64(0)
	prevEpoch := uint64(0)
	for i := 0; i < 5; i++ {
		curTAI := uint64(float64(i) * p.FrameTimeNS)
		res := s.ComputeEpoch(curTAI, curTSC, 0, false)
		if i > 0 && res.Epoch < prevEpoch {
			t.Fatalf("epoch went backwards: %d -> %d", prevEpoch, res.Epoch)
		}
		prevEpoch = res.Epoch
		curTSC = s.TSCCursor
	}
}

func TestComputeEpochExactUserPacing(t *testing.T) {
	p := NewHDProfile(FPS{Mul: 60, Den: 1}, 4320)
	s := NewState(p)

	const T0 = uint64(5_000_000_000)
	curTAI := uint64(4_999_000_000)
	curTSC := uint64(1_000_000)

	res := s.ComputeEpoch(curTAI, curTSC, T0, true)
	if res.StartTAI != T0 {
		t.Fatalf("exact user pacing should start exactly at T0, got %d", res.StartTAI)
	}
	wantTSC := curTSC + (T0 - curTAI)
	if s.TSCCursor != wantTSC {
		t.Fatalf("tsc_cursor = %d, want %d", s.TSCCursor, wantTSC)
	}
}

func TestComputeEpochPastTimestampRecordsErrorAndProceeds(t *testing.T) {
	p := NewHDProfile(FPS{Mul: 60, Den: 1}, 4320)
	s := NewState(p)
	s.CurEpoch = 100 // pretend we're already far along

	pastTAI := uint64(10 * p.FrameTimeNS) // well before the current epoch
	curTAI := uint64(100 * p.FrameTimeNS)
	res := s.ComputeEpoch(curTAI, 0, pastTAI, false)

	if s.UserTimestampErrors == 0 {
		t.Fatalf("expected a user_timestamp_error to be recorded for a past timestamp")
	}
	// The session proceeds (doesn't error out) at the computed epoch.
	if res.Epoch == 0 {
		t.Fatalf("expected the session to proceed with a nonzero computed epoch")
	}
}

func TestShouldPadPeriodicity(t *testing.T) {
	padInterval := 10.0
	count := 0
	for i := 0; i < 1000; i++ {
		if ShouldPad(i, padInterval, 1) {
			count++
		}
	}
	// Roughly one pad per pad_interval packets.
	want := 1000 / int(padInterval)
	if count < want-5 || count > want+5 {
		t.Fatalf("expected ~%d pads over 1000 packets at interval %v, got %d", want, padInterval, count)
	}
}

func TestTrainConverges(t *testing.T) {
	cfg := TrainConfig{
		TotalPktsPerFrame: 4320,
		NominalPktsPerSec: 4320 * 60,
		NominalBPS:        1_000_000_000,
	}
	// Measured rate consistently a bit higher than nominal, as in a
	// well-provisioned NIC.
	result := Train(cfg, func(frameIdx int) float64 {
		return cfg.NominalPktsPerSec * 1.01
	})
	if !result.Converged {
		t.Fatalf("expected training to converge, got retry_bps=%d", result.RetryBPS)
	}
	if result.PadInterval < 32.0 {
		t.Fatalf("converged pad_interval %v should be >= floor %v", result.PadInterval, 32.0)
	}
}

func TestTrainRequestsRetryWhenBelowNominal(t *testing.T) {
	cfg := TrainConfig{
		TotalPktsPerFrame: 4320,
		NominalPktsPerSec: 4320 * 60,
		NominalBPS:        1_000_000_000,
	}
	result := Train(cfg, func(frameIdx int) float64 {
		return cfg.NominalPktsPerSec * 0.99 // measured below nominal
	})
	if result.Converged {
		t.Fatalf("expected training to request a retry, not converge")
	}
	if result.RetryBPS <= cfg.NominalBPS {
		t.Fatalf("expected retry BPS to be raised above nominal, got %d vs %d", result.RetryBPS, cfg.NominalBPS)
	}
}
