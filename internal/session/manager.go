package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/logger"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
	"github.com/ehrlich-b/st2110go/internal/transmitter"
	"github.com/google/uuid"
)

var managerLog = logger.Component("session-manager")

// DefaultCapacity mirrors spec.md §4.11's worked example ("60 tx-video
// sessions per scheduler, 180 tx-audio sessions globally") as a sane
// per-kind default; callers size it per deployment via Capacities.
var DefaultCapacity = map[Kind]int{
	KindST20: 60,
	KindST22: 60,
	KindST30: 180,
	KindST40: 180,
	KindST41: 180,
}

// slot is one fixed-capacity table entry, guarded by its own mutex
// (spec.md §4.11: "Guards each slot with a spinlock" — realized as
// sync.Mutex, the idiomatic Go substitute).
type slot struct {
	mu        sync.Mutex
	session   *Session
	scheduler *sched.Scheduler
	txSched   *sched.Scheduler
	quotaMbs  uint64
}

// AttachRequest bundles everything the manager needs to build and place
// a new session (spec.md §4.7's Config, plus the placement constraints
// of §4.11's attach()).
type AttachRequest struct {
	Name     string
	Kind     Kind
	Socket   int // NUMA constraint; -1 means "any"
	QuotaMbs uint64

	BuilderScheduler *sched.Scheduler
	TxScheduler      *sched.Scheduler

	Frames *frame.Pool
	RingP  *ring.Ring
	RingR  *ring.Ring
	Pacing *pacing.Profile

	BuilderCfg builder.Config
	Transmit   transmitter.Config
	TransmitR  *transmitter.Config // nil unless redundant
}

// Manager is the Session Manager of spec.md §4.11.
type Manager struct {
	mu         sync.Mutex
	capacities map[Kind]int
	slots      map[Kind][]*slot

	lateFramesThreshold uint64 // FramesLate count that trips shedding
	statsInterval       time.Duration

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewManager builds a manager with the given per-kind slot capacities
// (nil selects DefaultCapacity).
func NewManager(capacities map[Kind]int) *Manager {
	if capacities == nil {
		capacities = DefaultCapacity
	}
	m := &Manager{
		capacities:          capacities,
		slots:               make(map[Kind][]*slot),
		lateFramesThreshold: 100,
		statsInterval:       time.Second,
	}
	for k, n := range capacities {
		m.slots[k] = make([]*slot, n)
	}
	return m
}

// Attach picks a free slot of the requested kind, builds the session's
// pacing state, builder and transmitter(s), places them on the given
// schedulers, and returns the live Session (spec.md §4.11 attach()).
//
// External blocking work (ARP resolution, queue bring-up) is expected to
// have already happened by the time Attach is called in a real
// deployment; per spec.md §5 that blocking "happens off the worker
// during attach, under the manager mutex only", so Attach itself holds
// m.mu for its whole body rather than the finer per-slot lock alone.
func (m *Manager) Attach(req AttachRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.slots[req.Kind]
	if !ok {
		return nil, fmt.Errorf("session: no slot table configured for kind %s", req.Kind)
	}
	if req.BuilderScheduler == nil || req.TxScheduler == nil {
		return nil, fmt.Errorf("session: attach requires both a builder and a tx scheduler")
	}
	if !req.BuilderScheduler.HasQuotaFor(req.QuotaMbs) {
		return nil, fmt.Errorf("session: builder scheduler has no quota for %d mbs", req.QuotaMbs)
	}

	idx := -1
	for i, sl := range table {
		if sl == nil || sl.session == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("session: no free %s slot (capacity %d)", req.Kind, len(table))
	}

	st := pacing.NewState(derefProfile(req.Pacing))
	sess := &Session{
		ID:     uuid.New(),
		Index:  idx,
		Kind:   req.Kind,
		Name:   req.Name,
		Frames: req.Frames,
		RingP:  req.RingP,
		RingR:  req.RingR,
		Pacing: st,
		Stats:  &stats.Session{},
		active: true,
	}
	if req.RingR != nil {
		sess.HdrR = &HeaderTemplate{}
	}

	bcfg := req.BuilderCfg
	bcfg.RingP = req.RingP
	bcfg.RingR = req.RingR
	bcfg.Frames = req.Frames
	bcfg.Pacing = st
	bcfg.Stats = sess.Stats
	sess.Builder = builder.New(req.Name+"-builder", bcfg)

	tcfg := req.Transmit
	tcfg.Ring = req.RingP
	tcfg.Frames = req.Frames
	tcfg.Stats = sess.Stats
	sess.TransmitterP = transmitter.New(tcfg)

	if req.TransmitR != nil {
		rcfg := *req.TransmitR
		rcfg.Ring = req.RingR
		rcfg.Frames = req.Frames
		rcfg.Stats = sess.Stats
		sess.TransmitterR = transmitter.New(rcfg)
	}

	req.BuilderScheduler.AddQuota(req.QuotaMbs)
	sess.AttachTasklets(req.BuilderScheduler, req.TxScheduler)

	newSlot := &slot{session: sess, scheduler: req.BuilderScheduler, txSched: req.TxScheduler, quotaMbs: req.QuotaMbs}
	table[idx] = newSlot

	managerLog.Info("session attached", "kind", req.Kind.String(), "index", idx, "name", req.Name)
	return sess, nil
}

// Detach idempotently releases a session's slot (spec.md §4.11
// "detach (idempotent)").
func (m *Manager) Detach(kind Kind, index int) {
	m.mu.Lock()
	table, ok := m.slots[kind]
	if !ok || index < 0 || index >= len(table) {
		m.mu.Unlock()
		return
	}
	sl := table[index]
	m.mu.Unlock()
	if sl == nil {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil {
		return // already detached
	}
	sl.session.active = false
	sl.scheduler.Put(sl.quotaMbs)
	sl.session = nil
	sl.scheduler = nil
	sl.txSched = nil
	sl.quotaMbs = 0

	managerLog.Info("session detached", "kind", kind.String(), "index", index)
}

// Get returns the session occupying a slot, or nil if empty.
func (m *Manager) Get(kind Kind, index int) *Session {
	m.mu.Lock()
	table, ok := m.slots[kind]
	m.mu.Unlock()
	if !ok || index < 0 || index >= len(table) {
		return nil
	}
	sl := table[index]
	if sl == nil {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.session
}

// Active returns every currently attached session across all kinds.
func (m *Manager) Active() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, table := range m.slots {
		for _, sl := range table {
			if sl == nil {
				continue
			}
			sl.mu.Lock()
			if sl.session != nil {
				out = append(out, sl.session)
			}
			sl.mu.Unlock()
		}
	}
	return out
}

// StartStatsAggregator launches the periodic aggregation/shedding loop
// (spec.md §4.11: "Aggregates per-session statistics on a timer and
// enforces a hard 'session-late' condition by shedding quota"), the way
// the teacher's bandwidth meter runs its periodic sync on a
// time.Ticker.
func (m *Manager) StartStatsAggregator(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	ticker := time.NewTicker(m.statsInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.aggregateAndShed()
			}
		}
	}()
}

// StopStatsAggregator cancels the aggregator loop started by
// StartStatsAggregator; safe to call multiple times.
func (m *Manager) StopStatsAggregator() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
}

func (m *Manager) aggregateAndShed() {
	for _, sess := range m.Active() {
		snap := sess.Stats.Snapshot()
		if snap.FramesLate < m.lateFramesThreshold {
			continue
		}
		m.shed(sess)
	}
}

// shed implements the hard session-late condition: the session's quota
// is handed back to the scheduler so healthier sessions can use it, and
// the event is logged (spec.md §4.11). No application callback is
// invoked.
func (m *Manager) shed(sess *Session) {
	m.mu.Lock()
	table := m.slots[sess.Kind]
	m.mu.Unlock()
	if sess.Index < 0 || sess.Index >= len(table) {
		return
	}
	sl := table[sess.Index]
	if sl == nil {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session != sess || sl.quotaMbs == 0 {
		return
	}
	shedAmount := sl.quotaMbs / 2
	if shedAmount == 0 {
		return
	}
	sl.scheduler.Put(shedAmount)
	sl.quotaMbs -= shedAmount
	managerLog.Warn("session-late: shedding quota", "kind", sess.Kind.String(), "index", sess.Index, "shed_mbs", shedAmount)
}

func derefProfile(p *pacing.Profile) pacing.Profile {
	if p == nil {
		return pacing.Profile{}
	}
	return *p
}
