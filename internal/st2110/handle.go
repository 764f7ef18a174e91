package st2110

import (
	"fmt"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/session"
	"github.com/ehrlich-b/st2110go/internal/stats"
)

// Event re-exports builder.Event so application code never has to import
// internal/builder directly (spec.md §6.2 notify_event).
type Event = builder.Event

const (
	EventVsync         = builder.EventVsync
	EventFatal         = builder.EventFatal
	EventRecoveryError = builder.EventRecoveryError
)

// FrameMeta re-exports builder.FrameMeta, the shape get_next_frame hands
// back (spec.md §3/§6.2).
type FrameMeta = builder.FrameMeta

// SliceMeta answers query_frame_lines_ready for slice-level video
// (spec.md §6.2); Lines is how many contiguous lines from the top of the
// frame are ready to read.
type SliceMeta struct {
	Lines int
	Done  bool
}

// Callbacks are the application-supplied hooks of spec.md §6.2, superset
// of builder.Callbacks with the slice-readiness query the low-level
// builder has no use for.
type Callbacks struct {
	GetNextFrame         func() (idx int, meta FrameMeta, busy bool)
	NotifyFrameDone      func(idx int)
	NotifyFrameLate      func(lateByEpochs uint64)
	NotifyRTPDone        func()
	NotifyEvent          func(Event)
	QueryFrameLinesReady func(idx int) SliceMeta
}

func (c Callbacks) toBuilder() builder.Callbacks {
	return builder.Callbacks{
		GetNextFrame:    c.GetNextFrame,
		NotifyFrameDone: c.NotifyFrameDone,
		NotifyFrameLate: c.NotifyFrameLate,
		NotifyRTPDone:   c.NotifyRTPDone,
		NotifyEvent:     c.NotifyEvent,
	}
}

// TxHandle is the opaque per-session handle spec.md §6.2's create()
// returns.
type TxHandle struct {
	mgr  *session.Manager
	kind session.Kind
	sess *session.Session

	// rtcpRxSched/rtcpRxTID identify the RTCP receive tasklet attach()
	// registered for ENABLE_RTCP sessions with an RTCPQueue, if any; nil
	// scheduler means there is none to detach.
	rtcpRxSched *sched.Scheduler
	rtcpRxTID   int
}

// Free detaches the session and releases its slot (spec.md §6.2 free()).
func (h *TxHandle) Free() {
	if h == nil || h.sess == nil {
		return
	}
	if h.rtcpRxSched != nil {
		h.rtcpRxSched.DetachTasklet(h.rtcpRxTID)
	}
	h.mgr.Detach(h.kind, h.sess.Index)
}

// UpdateDestination rewrites one port's destination flow (spec.md §6.2
// update_destination()).
func (h *TxHandle) UpdateDestination(port session.Port, flow iface.FlowDescriptor) error {
	if h == nil || h.sess == nil {
		return fmt.Errorf("st2110: update_destination on a freed handle")
	}
	return h.sess.UpdateDestination(port, flow)
}

// GetFramebuffer returns the backing buffer of frame idx (spec.md §6.2
// get_framebuffer()), for the application to fill before the builder
// picks it up.
func (h *TxHandle) GetFramebuffer(idx int) []byte {
	if h == nil || h.sess == nil {
		return nil
	}
	fr := h.sess.Frames.At(idx)
	if fr == nil {
		return nil
	}
	return fr.Buffer
}

// GetStats returns a point-in-time snapshot of the session's counters
// (spec.md §6.2 get_session_stats()).
func (h *TxHandle) GetStats() stats.Snapshot {
	if h == nil || h.sess == nil {
		return stats.Snapshot{}
	}
	return h.sess.Stats.Snapshot()
}

// ResetStats zeroes the session's counters (spec.md §6.2
// reset_session_stats()).
func (h *TxHandle) ResetStats() {
	if h == nil || h.sess == nil {
		return
	}
	h.sess.Stats.Reset()
}

// Session exposes the underlying session.Session for callers that need
// lower-level access (e.g. the CLI's stats reporter); most application
// code should only need the methods above.
func (h *TxHandle) Session() *session.Session { return h.sess }
