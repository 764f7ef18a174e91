package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ehrlich-b/st2110go/internal/iface"
)

// countingTasklet counts Handler calls and can be told to stop returning
// work after a fixed number of calls.
type countingTasklet struct {
	name        string
	calls       atomic.Int64
	doneAfter   int64
	adviceUS    uint64
	preStarted  atomic.Bool
	started     atomic.Bool
	stopped     atomic.Bool
}

func (c *countingTasklet) PreStart()         { c.preStarted.Store(true) }
func (c *countingTasklet) Start()            { c.started.Store(true) }
func (c *countingTasklet) Stop()             { c.stopped.Store(true) }
func (c *countingTasklet) Name() string      { return c.name }
func (c *countingTasklet) AdviceSleepUS() uint64 {
	if c.adviceUS != 0 {
		return c.adviceUS
	}
	return 50
}

func (c *countingTasklet) Handler() Result {
	n := c.calls.Add(1)
	if c.doneAfter > 0 && n >= c.doneAfter {
		return AllDone
	}
	return HasPending
}

func TestSchedulerRunsTaskletsAndStops(t *testing.T) {
	mgr := NewManager(nil)
	s, err := mgr.Request(Config{Name: "test", Clock: iface.NewSoftClock()})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	ct := &countingTasklet{name: "counter", doneAfter: 5}
	s.AttachTasklet(ct)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for ct.calls.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for handler calls, got %d", ct.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	s.Stop()

	if !ct.preStarted.Load() || !ct.started.Load() || !ct.stopped.Load() {
		t.Fatalf("expected lifecycle hooks to all fire: pre=%v start=%v stop=%v",
			ct.preStarted.Load(), ct.started.Load(), ct.stopped.Load())
	}
}

// fatalTasklet always reports Fatal so the scheduler must remove its slot
// without crashing the worker (spec.md §4.2: "A tasklet that panics
// internally is expected to return fatal; the worker removes that slot
// and continues").
type fatalTasklet struct {
	countingTasklet
}

func (f *fatalTasklet) Handler() Result {
	f.calls.Add(1)
	return Fatal
}

func TestSchedulerRemovesFatalTasklet(t *testing.T) {
	mgr := NewManager(nil)
	s, err := mgr.Request(Config{Name: "fataltest", Clock: iface.NewSoftClock()})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	ft := &fatalTasklet{countingTasklet{name: "fatal"}}
	survivor := &countingTasklet{name: "survivor", doneAfter: 3}
	s.AttachTasklet(ft)
	s.AttachTasklet(survivor)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for survivor.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("survivor tasklet starved, calls=%d fatal_calls=%d", survivor.calls.Load(), ft.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	s.Stop()

	if ft.calls.Load() != 1 {
		t.Fatalf("expected the fatal tasklet's Handler to be called exactly once before removal, got %d", ft.calls.Load())
	}
}

func TestQuotaCapRefusesOverBudget(t *testing.T) {
	mgr := NewManager(nil)
	s, err := mgr.Request(Config{Name: "quota", QuotaCapMbs: 100, Clock: iface.NewSoftClock()})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !s.HasQuotaFor(60) {
		t.Fatalf("expected quota available for 60 of 100")
	}
	s.AddQuota(60)
	if s.HasQuotaFor(60) {
		t.Fatalf("expected quota cap to refuse a second 60 after 60 is already reserved")
	}
	s.Put(60)
	if !s.HasQuotaFor(60) {
		t.Fatalf("expected quota to be available again after Put")
	}
}

func TestMigratePreservesTaskletState(t *testing.T) {
	mgr := NewManager(nil)
	src, _ := mgr.Request(Config{Name: "src", Clock: iface.NewSoftClock()})
	dst, _ := mgr.Request(Config{Name: "dst", Clock: iface.NewSoftClock()})

	ct := &countingTasklet{name: "migrating"}
	tid := src.AttachTasklet(ct)

	newID, err := mgr.Migrate(src, tid, dst, ct)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if newID < 0 {
		t.Fatalf("expected a valid new tasklet id")
	}

	if err := dst.Start(); err != nil {
		t.Fatalf("Start dst: %v", err)
	}
	deadline := time.After(time.Second)
	for ct.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("migrated tasklet never ran on destination scheduler")
		case <-time.After(time.Millisecond):
		}
	}
	dst.Stop()
}
