// Package session implements the Session entity and Session Manager of
// spec.md §3 ("Session") and §4.11.
package session

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/frame"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/pacing"
	"github.com/ehrlich-b/st2110go/internal/ring"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
	"github.com/ehrlich-b/st2110go/internal/transmitter"
	"github.com/google/uuid"
)

// Kind names the media kind a session carries (spec.md §3).
type Kind int

const (
	KindST20 Kind = iota
	KindST22
	KindST30
	KindST40
	KindST41
)

func (k Kind) String() string {
	switch k {
	case KindST20:
		return "st20"
	case KindST22:
		return "st22"
	case KindST30:
		return "st30"
	case KindST40:
		return "st40"
	case KindST41:
		return "st41"
	default:
		return "unknown"
	}
}

// Port names the P/R leg of a session (spec.md §4.8 ST 2022-7).
type Port int

const (
	PortP Port = iota
	PortR
)

// HeaderTemplate is the per-port fixed prefix rebuilt by UpdateDestination
// (spec.md §4.11: "rebuilds the header template under the slot lock").
// In this software-only core that is simply the destination flow; the
// real IP/UDP/RTP fixed-header bytes live with the TX queue/wire layer.
type HeaderTemplate struct {
	Flow iface.FlowDescriptor
}

// Session is one attached media flow (spec.md §3 "Session").
type Session struct {
	ID    uuid.UUID
	Index int
	Kind  Kind
	Name  string

	mu     sync.Mutex // per-session try-lock (spec.md §3: "at most one builder
	                   // and one transmitter tick at a time per session")
	locked bool

	Frames *frame.Pool
	RingP  *ring.Ring
	RingR  *ring.Ring

	Pacing *pacing.State

	hdrMu sync.Mutex
	HdrP  HeaderTemplate
	HdrR  *HeaderTemplate // nil unless redundant (ST 2022-7)

	Builder      *builder.Builder
	TransmitterP *transmitter.Transmitter
	TransmitterR *transmitter.Transmitter

	Stats *stats.Session

	active bool
}

// TryLock acquires the session's per-tick exclusivity lock, matching
// spec.md §3's "enforced by a per-session try-lock" without blocking the
// caller.
func (s *Session) TryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return false
	}
	s.locked = true
	return true
}

// Unlock releases the try-lock acquired by TryLock.
func (s *Session) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

// Active reports whether the session is currently attached.
func (s *Session) Active() bool { return s.active }

// UpdateDestination rebuilds the header template for one port under the
// slot lock (spec.md §4.11: "update_destination (rebuilds the header
// template under the slot lock)").
func (s *Session) UpdateDestination(port Port, flow iface.FlowDescriptor) error {
	s.hdrMu.Lock()
	defer s.hdrMu.Unlock()

	switch port {
	case PortP:
		s.HdrP = HeaderTemplate{Flow: flow}
	case PortR:
		if s.HdrR == nil {
			return fmt.Errorf("session %d: update_destination(R): session has no redundant port", s.Index)
		}
		*s.HdrR = HeaderTemplate{Flow: flow}
	default:
		return fmt.Errorf("session %d: unknown port %d", s.Index, port)
	}
	return nil
}

// Redundant reports whether this session has an armed second (R) port.
func (s *Session) Redundant() bool { return s.HdrR != nil }

// AttachTasklets registers this session's builder and transmitter(s) on
// the given scheduler(s) (spec.md §4.2 attach_tasklet).
func (s *Session) AttachTasklets(builderSched *sched.Scheduler, txSched *sched.Scheduler) {
	builderSched.AttachTasklet(s.Builder)
	if s.TransmitterP != nil {
		txSched.AttachTasklet(s.TransmitterP)
	}
	if s.TransmitterR != nil {
		txSched.AttachTasklet(s.TransmitterR)
	}
}
