// Package sched implements the cooperative tasklet scheduler of spec.md
// §4.2/§4.3: one worker goroutine per claimed CPU core, round-robin over
// a fixed vector of tasklets, with adaptive sleep when every tasklet
// reports nothing to do.
package sched

// Result is the ternary handler result of spec.md §4.3.
type Result int

const (
	// AllDone means the scheduler may sleep.
	AllDone Result = iota
	// HasPending means reschedule immediately.
	HasPending
	// Fatal means the tasklet panicked internally or hit an
	// unrecoverable error; the worker removes its slot and continues.
	Fatal
)

func (r Result) String() string {
	switch r {
	case AllDone:
		return "all_done"
	case HasPending:
		return "has_pending"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Tasklet is the cooperative unit of work contract of spec.md §4.3. A
// Handler call must run to completion and never block; any wait for
// external I/O must be driven by polling.
type Tasklet interface {
	// PreStart runs once, before the worker's main loop begins.
	PreStart()
	// Start runs once, after PreStart, before the first Handler call.
	Start()
	// Handler is called once per worker loop iteration.
	Handler() Result
	// Stop runs once, after the worker has observed a request to exit.
	Stop()
	// AdviceSleepUS hints how long the worker may sleep if every tasklet
	// returned AllDone this tick (spec.md §4.2).
	AdviceSleepUS() uint64
	// Name identifies the tasklet for stats and logging.
	Name() string
}

// TimeStats accumulates per-tasklet wall-clock spent inside Handler, used
// for the scheduler's per-tasklet time accounting (spec.md §2 row B).
type TimeStats struct {
	Calls    uint64
	TotalNS  uint64
	MaxNS    uint64
}

func (s *TimeStats) record(elapsedNS uint64) {
	s.Calls++
	s.TotalNS += elapsedNS
	if elapsedNS > s.MaxNS {
		s.MaxNS = elapsedNS
	}
}

// AvgNS returns the mean handler duration, or 0 with no samples yet.
func (s *TimeStats) AvgNS() uint64 {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalNS / s.Calls
}

// slot wraps a registered Tasklet with the scheduler's bookkeeping: the
// exit handshake of spec.md §3 ("ack_exit is set by the scheduler after
// observing request_exit and removing the slot").
type slot struct {
	id          int
	t           Tasklet
	requestExit bool
	ackExit     bool
	stats       TimeStats
}
