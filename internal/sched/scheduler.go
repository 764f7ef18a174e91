package sched

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/lcore"
	"github.com/ehrlich-b/st2110go/internal/logger"
)

// Type distinguishes the kind of work a scheduler carries, for quota and
// naming purposes (spec.md §4.2 request()).
type Type int

const (
	TypeBuilder Type = iota
	TypeTransmitter
	TypeMixed
)

const (
	defaultSleepUS     = 1000
	zeroSleepThreshold = 20 // below this, yield instead of timed-waiting
	maxCondvarWaitUS   = 1_000_000
	loopAvgWindow      = 2 * time.Second
)

// Config parameterizes one scheduler/worker pair.
type Config struct {
	Name        string
	Type        Type
	NbTasklets  int // capacity hint; the tasklet vector still grows as needed
	Socket      int
	Mask        uint64 // reserved for future explicit-core-list support
	PinCore     bool   // false opts out of core pinning (detached OS thread)
	QuotaCapMbs uint64
	Clock       iface.TSCClock
}

// Scheduler owns one worker loop and its tasklet vector. It is created
// via a Manager's Request call (spec.md §4.2: "request(...) -> sch_id").
type Scheduler struct {
	id     int
	cfg    Config
	lcores *lcore.Registry
	lcore  int // claimed lcore id, -1 if not core-pinned
	log    *slog.Logger

	mu      sync.Mutex
	slots   []*slot
	nextTID int

	wake        chan struct{}
	requestStop atomic.Bool
	stopped     chan struct{}

	quotaMbs atomic.Uint64

	loopMu      sync.Mutex
	loopCount   uint64
	loopNS      uint64
	windowStart time.Time
	avgNSPerLoop atomic.Uint64
	sleepNS      atomic.Uint64
	activeNS     atomic.Uint64
}

// newScheduler is called only by Manager.Request.
func newScheduler(id int, cfg Config, lcores *lcore.Registry) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = iface.NewSoftClock()
	}
	s := &Scheduler{
		id:          id,
		cfg:         cfg,
		lcores:      lcores,
		lcore:       -1,
		log:         logger.Component("scheduler:" + cfg.Name),
		wake:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		windowStart: time.Now(),
	}
	s.quotaMbs.Store(cfg.QuotaCapMbs)
	return s
}

// ID returns this scheduler's handle.
func (s *Scheduler) ID() int { return s.id }

// AttachTasklet registers a tasklet and returns its id (spec.md §4.2
// attach_tasklet). Safe to call while the worker is running; registration
// is guarded by the slot mutex (spec.md §3 ownership note).
func (s *Scheduler) AttachTasklet(t Tasklet) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTID
	s.nextTID++
	s.slots = append(s.slots, &slot{id: id, t: t})
	return id
}

// DetachTasklet requests a tasklet's exit; it is runtime-safe and may be
// called from any goroutine.
func (s *Scheduler) DetachTasklet(tid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		if sl.id == tid {
			sl.requestExit = true
		}
	}
}

// AddQuota increases this scheduler's data-rate capacity budget.
func (s *Scheduler) AddQuota(mbs uint64) {
	s.quotaMbs.Add(mbs)
}

// Put gives back previously reserved quota; it never underflows below 0.
func (s *Scheduler) Put(mbs uint64) {
	for {
		cur := s.quotaMbs.Load()
		next := cur
		if mbs >= cur {
			next = 0
		} else {
			next = cur - mbs
		}
		if s.quotaMbs.CompareAndSwap(cur, next) {
			return
		}
	}
}

// HasQuotaFor reports whether adding mbs would stay within the configured
// cap (spec.md §4.2: "a scheduler may refuse further sessions once
// data_quota_mbs_total exceeds its configured cap").
func (s *Scheduler) HasQuotaFor(mbs uint64) bool {
	if s.cfg.QuotaCapMbs == 0 {
		return true // uncapped
	}
	return s.quotaMbs.Load()+mbs <= s.cfg.QuotaCapMbs
}

// Start claims an lcore (unless PinCore is false) and launches the
// worker goroutine. Failure releases the claimed lcore, per spec.md §4.2
// ("start failure releases the claimed lcore and returns error").
func (s *Scheduler) Start() error {
	if s.cfg.PinCore {
		if s.lcores == nil {
			return fmt.Errorf("sched: core pinning requested but no lcore registry configured")
		}
		id, err := s.lcores.Claim(s.cfg.Socket, lcoreRoleFor(s.cfg.Type))
		if err != nil {
			return fmt.Errorf("sched: claim lcore: %w", err)
		}
		s.lcore = id
	}

	go s.run()
	return nil
}

func lcoreRoleFor(t Type) lcore.Role {
	if t == TypeTransmitter {
		return lcore.RoleOther
	}
	return lcore.RoleScheduler
}

// Stop requests the worker to exit and blocks until it has (spec.md
// §4.2: "stop(sch_id) requests and awaits exit").
func (s *Scheduler) Stop() {
	s.requestStop.Store(true)
	select {
	case <-s.wake:
	default:
	}
	s.wake <- struct{}{}
	<-s.stopped
	if s.lcore >= 0 && s.lcores != nil {
		s.lcores.Release(s.lcore)
		s.lcore = -1
	}
}

// CPUIdleScore returns the fraction of the worker's time spent sleeping,
// cumulative since the worker started; no rolling window is applied, so
// older activity weighs as much as recent activity.
func (s *Scheduler) CPUIdleScore() float64 {
	sleep := float64(s.sleepNS.Load())
	active := float64(s.activeNS.Load())
	total := sleep + active
	if total == 0 {
		return 0
	}
	return sleep / total
}

// AvgNSPerLoop reports the 2s-windowed average loop duration.
func (s *Scheduler) AvgNSPerLoop() uint64 {
	return s.avgNSPerLoop.Load()
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	s.mu.Lock()
	for _, sl := range s.slots {
		sl.t.PreStart()
	}
	for _, sl := range s.slots {
		sl.t.Start()
	}
	s.mu.Unlock()

	for !s.requestStop.Load() {
		loopStart := s.cfg.Clock.TSCNS()
		pending := s.tick()

		elapsed := s.cfg.Clock.TSCNS() - loopStart
		s.activeNS.Add(elapsed)
		s.accumulateLoop(elapsed)

		if pending == AllDone {
			sleepUS := s.chosenSleepUS()
			if sleepUS < zeroSleepThreshold {
				runtimeGosched()
			} else {
				s.sleepFor(sleepUS)
			}
		}
	}

	s.mu.Lock()
	for _, sl := range s.slots {
		sl.t.Stop()
	}
	s.mu.Unlock()
}

// tick runs one round-robin pass over the tasklet vector (spec.md §4.2
// worker loop pseudocode).
func (s *Scheduler) tick() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := AllDone
	live := s.slots[:0]
	for _, sl := range s.slots {
		if sl.requestExit {
			sl.ackExit = true
			continue // slot removed
		}
		start := s.cfg.Clock.TSCNS()
		r := sl.t.Handler()
		elapsed := s.cfg.Clock.TSCNS() - start
		sl.stats.record(elapsed)

		if r == HasPending {
			pending = HasPending
		} else if r == Fatal {
			s.log.Error("tasklet fatal, removing slot", "tasklet", sl.t.Name())
			continue // removed, like an exit request
		}
		live = append(live, sl)
	}
	s.slots = live
	return pending
}

// chosenSleepUS computes min(default_sleep_us, min over tasklets of
// advice_sleep_us) as spec.md §4.2 describes.
func (s *Scheduler) chosenSleepUS() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sleepUS := uint64(defaultSleepUS)
	for _, sl := range s.slots {
		if adv := sl.t.AdviceSleepUS(); adv < sleepUS {
			sleepUS = adv
		}
	}
	return sleepUS
}

func (s *Scheduler) sleepFor(us uint64) {
	d := time.Duration(us) * time.Microsecond
	if d > time.Second {
		d = time.Second // condvar wait bounded by 1s, spec.md §4.2
	}
	start := s.cfg.Clock.TSCNS()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wake: // external alarm/wake, spec.md §4.2
	}
	s.sleepNS.Add(s.cfg.Clock.TSCNS() - start)
}

// Wake lets an external collaborator (e.g. a newly-armed RTCP NACK, or a
// test) break the worker out of its sleep early.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) accumulateLoop(elapsedNS uint64) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	s.loopCount++
	s.loopNS += elapsedNS
	if time.Since(s.windowStart) >= loopAvgWindow {
		if s.loopCount > 0 {
			s.avgNSPerLoop.Store(s.loopNS / s.loopCount)
		}
		s.loopCount = 0
		s.loopNS = 0
		s.windowStart = time.Now()
	}
}

func runtimeGosched() {
	// A zero/near-zero advised sleep means yield the core instead of
	// arming a timer (spec.md §4.2: "if sleep_us < zero_sleep_threshold:
	// yield").
	runtime.Gosched()
}
