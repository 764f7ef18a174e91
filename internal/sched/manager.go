package sched

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/st2110go/internal/lcore"
)

// Manager owns the set of schedulers in a process (spec.md §4.2: the
// collection of worker/core pairs the rest of the core attaches tasklets
// to). It is distinct from session.Manager, which tracks sessions rather
// than schedulers.
type Manager struct {
	mu    sync.Mutex
	next  int
	scheds map[int]*Scheduler
	lcores *lcore.Registry
}

// NewManager creates a scheduler manager backed by an optional lcore
// registry (nil disables core pinning entirely: every scheduler runs on
// a plain goroutine).
func NewManager(lcores *lcore.Registry) *Manager {
	return &Manager{
		scheds: make(map[int]*Scheduler),
		lcores: lcores,
	}
}

// Request reserves a new scheduler slot (spec.md §4.2 request()).
func (m *Manager) Request(cfg Config) (*Scheduler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	s := newScheduler(id, cfg, m.lcores)
	m.scheds[id] = s
	return s, nil
}

// Get looks up a previously requested scheduler.
func (m *Manager) Get(id int) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheds[id]
	return s, ok
}

// StopAll requests and awaits exit for every scheduler this manager owns.
func (m *Manager) StopAll() {
	m.mu.Lock()
	scheds := make([]*Scheduler, 0, len(m.scheds))
	for _, s := range m.scheds {
		scheds = append(scheds, s)
	}
	m.mu.Unlock()

	for _, s := range scheds {
		s.Stop()
	}
}

// Migratable is implemented by anything a tasklet wraps that needs to
// preserve its builder/pacing state across a scheduler migration (spec.md
// §4.2 "Session migration"). Session.Tasklet (internal/session) is the
// concrete user.
type Migratable interface {
	Tasklet
}

// Migrate detaches a tasklet from its current scheduler and attaches it
// to dst, preserving all state because only the tasklet *index* changes —
// the tasklet value itself, and any ring it closes over, moves unchanged
// (spec.md §4.2: "Only the tasklet index changes; no packets in flight
// are lost because the ring is session-local").
func (m *Manager) Migrate(src *Scheduler, tid int, dst *Scheduler, t Migratable) (int, error) {
	if src == nil || dst == nil {
		return -1, fmt.Errorf("sched: migrate requires non-nil src and dst schedulers")
	}
	src.DetachTasklet(tid)
	newID := dst.AttachTasklet(t)
	return newID, nil
}
