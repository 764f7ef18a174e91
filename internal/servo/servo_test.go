package servo

import (
	"math"
	"testing"
)

func TestServoLockSequence(t *testing.T) {
	s := New(Config{Gains: SoftwareStampedGains, MaxPPB: 500_000, MaxOffsetNS: 1_000_000})

	if _, jump := s.Sample(1000, 0); jump {
		t.Fatalf("first sample should not jump")
	}
	if s.State() != Unlocked {
		t.Fatalf("expected Unlocked after first sample, got %v", s.State())
	}

	if _, jump := s.Sample(1100, 1); jump {
		t.Fatalf("second sample should not jump")
	}

	if _, jump := s.Sample(1050, 2); !jump {
		t.Fatalf("third sample should trigger the one-shot clock jump")
	}
	if s.State() != Jump {
		t.Fatalf("expected Jump state, got %v", s.State())
	}

	ppb, jump := s.Sample(500, 3)
	if jump {
		t.Fatalf("fourth sample should not jump again")
	}
	if s.State() != Locked {
		t.Fatalf("expected Locked after fourth sample, got %v", s.State())
	}
	if ppb == 0 {
		t.Fatalf("expected a nonzero frequency adjustment once locked")
	}
}

func TestServoClampsAndSkipsWindup(t *testing.T) {
	s := New(Config{Gains: Gains{KP: 1, KI: 1}, MaxPPB: 100, MaxOffsetNS: 1_000_000_000})
	s.Sample(0, 0)
	s.Sample(0, 1)
	s.Sample(0, 2) // jump step

	ppb, _ := s.Sample(10_000, 3) // would be far beyond MaxPPB unclamped
	if math.Abs(ppb) > 100 {
		t.Fatalf("expected ppb clamped to +/-100, got %v", ppb)
	}
}

func TestServoResetsOnLargeOffset(t *testing.T) {
	s := New(Config{Gains: SoftwareStampedGains, MaxPPB: 500_000, MaxOffsetNS: 1000})
	s.Sample(0, 0)
	s.Sample(0, 1)
	s.Sample(0, 2)
	s.Sample(0, 3) // now Locked

	if s.State() != Locked {
		t.Fatalf("expected Locked before large offset, got %v", s.State())
	}
	s.Sample(1_000_000, 4) // far beyond MaxOffsetNS
	if s.State() != Unlocked {
		t.Fatalf("expected reset to Unlocked after large offset, got %v", s.State())
	}
}
