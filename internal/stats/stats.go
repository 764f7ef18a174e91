// Package stats holds the per-session counters. Every counter is an
// atomic, because the session-manager aggregator ticker and GetStats read
// them from goroutines other than the owning tasklet.
package stats

import "sync/atomic"

// Session is one session's exported counter set. The builder/transmitter
// tasklets increment the fields; all of them are atomic.Uint64 so that
// Snapshot can read them from any goroutine (the manager's aggregation
// ticker reads FramesLate).
type Session struct {
	Sent           atomic.Uint64
	DummyFiltered  atomic.Uint64
	FramesDone     atomic.Uint64
	FramesLate     atomic.Uint64
	HangRecoveries atomic.Uint64
	RetransmitSucc atomic.Uint64
	RetransmitFail atomic.Uint64

	// EpochTroffsetMismatch counts pacer overruns (spec.md §9 Open
	// Questions decision).
	EpochTroffsetMismatch atomic.Uint64
}

// Snapshot is an immutable point-in-time copy, safe to hand to an
// application callback or a /stats endpoint.
type Snapshot struct {
	Sent                  uint64
	DummyFiltered         uint64
	FramesDone            uint64
	FramesLate            uint64
	HangRecoveries        uint64
	RetransmitSucc        uint64
	RetransmitFail        uint64
	EpochTroffsetMismatch uint64
}

// Snapshot reads every counter without requiring the caller to take a
// lock.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Sent:                  s.Sent.Load(),
		DummyFiltered:         s.DummyFiltered.Load(),
		FramesDone:            s.FramesDone.Load(),
		FramesLate:            s.FramesLate.Load(),
		HangRecoveries:        s.HangRecoveries.Load(),
		RetransmitSucc:        s.RetransmitSucc.Load(),
		RetransmitFail:        s.RetransmitFail.Load(),
		EpochTroffsetMismatch: s.EpochTroffsetMismatch.Load(),
	}
}

// Reset zeroes every counter (spec.md §6.2 ResetStats).
func (s *Session) Reset() {
	s.Sent.Store(0)
	s.DummyFiltered.Store(0)
	s.FramesDone.Store(0)
	s.FramesLate.Store(0)
	s.HangRecoveries.Store(0)
	s.RetransmitSucc.Store(0)
	s.RetransmitFail.Store(0)
	s.EpochTroffsetMismatch.Store(0)
}
