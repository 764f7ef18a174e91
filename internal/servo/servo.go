// Package servo implements the PI control loop of spec.md §4.6 that
// drives a sampled PTP offset into a parts-per-billion frequency
// adjustment for the (out-of-scope) PTP clock collaborator.
package servo

import "math"

// State is the servo's lock state machine (spec.md §4.6).
type State int

const (
	Unlocked State = iota
	Jump
	Locked
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Jump:
		return "jump"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Gains is the (kp, ki) pair for the PI loop. spec.md §4.6 defaults:
// hardware-stamped = (0.7, 0.3); software-stamped = (0.1, 0.001).
type Gains struct {
	KP float64
	KI float64
}

var HardwareStampedGains = Gains{KP: 0.7, KI: 0.3}
var SoftwareStampedGains = Gains{KP: 0.1, KI: 0.001}

// Config parameterizes a Servo.
type Config struct {
	Gains       Gains
	MaxPPB      float64
	MaxOffsetNS float64 // |offset| beyond this resets to Unlocked
}

// Servo is a single-instance PI offset-to-frequency controller.
type Servo struct {
	cfg   Config
	state State
	step  int

	off  [2]float64 // first two offset samples, for drift init
	t    [2]float64 // their timestamps (seconds)
	drift float64
}

// New creates a Servo in the Unlocked state.
func New(cfg Config) *Servo {
	if cfg.MaxPPB == 0 {
		cfg.MaxPPB = 500_000
	}
	if cfg.MaxOffsetNS == 0 {
		cfg.MaxOffsetNS = 1_000_000_000 // 1s
	}
	return &Servo{cfg: cfg, state: Unlocked}
}

// State reports the current lock state.
func (s *Servo) State() State { return s.state }

// Sample feeds one (offsetNS, timestamp-in-seconds) observation and
// returns the frequency adjustment in parts-per-billion, plus whether
// this sample triggered a one-shot clock jump (step 3 of spec.md §4.6).
func (s *Servo) Sample(offsetNS float64, tSec float64) (ppb float64, jump bool) {
	if math.Abs(offsetNS) > s.cfg.MaxOffsetNS {
		s.reset()
	}

	switch s.step {
	case 0:
		s.off[0] = offsetNS
		s.t[0] = tSec
		s.step = 1
		s.state = Unlocked
		return 0, false
	case 1:
		s.off[1] = offsetNS
		s.t[1] = tSec
		dt := s.t[1] - s.t[0]
		if dt != 0 {
			s.drift = (s.off[1] - s.off[0]) / dt
		}
		s.step = 2
		s.state = Unlocked
		return 0, false
	case 2:
		// One-shot clock jump (spec.md §4.6 step 3); the caller applies
		// the jump to the disciplined clock out-of-band.
		s.step = 3
		s.state = Jump
		return 0, true
	default:
		s.state = Locked
	}

	raw := s.cfg.Gains.KP*offsetNS + s.drift + s.cfg.Gains.KI*offsetNS
	clamped := clamp(raw, -s.cfg.MaxPPB, s.cfg.MaxPPB)
	if clamped == raw {
		// Anti-windup: only accumulate drift when not clamped (spec.md
		// §4.6: "when clamped, drift is not accumulated").
		s.drift += s.cfg.Gains.KI * offsetNS
	}
	return clamped, false
}

func (s *Servo) reset() {
	s.state = Unlocked
	s.step = 0
	s.drift = 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
