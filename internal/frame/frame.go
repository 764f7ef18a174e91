// Package frame models the owned/external framebuffer lifecycle of
// spec.md §3 ("Frame") and the drop-hook refcounting scheme recommended
// in spec.md §9 Design Notes: "Model as Arc<Frame> with a drop hook that
// calls back into the session to increment frame_done counters and
// invoke the app callback."
package frame

import (
	"sync/atomic"
)

// Kind distinguishes core-allocated memory from application-owned memory
// (spec.md §3: "owned when the core allocated the backing memory;
// external when the application supplied buffer+iova").
type Kind int

const (
	Owned Kind = iota
	External
)

func (k Kind) String() string {
	if k == External {
		return "external"
	}
	return "owned"
}

// DoneFunc is invoked exactly once, when a frame's refcount returns to
// zero after having been checked out — the core's half of
// notify_frame_done (spec.md §6.2).
type DoneFunc func(idx int)

// Frame is one slot in a session's fixed-size frame pool.
type Frame struct {
	Index  int
	Buffer []byte
	IOVA   uintptr
	Kind   Kind

	// UserMeta is the out-of-band per-frame application metadata
	// (spec.md §4.7.3); nil when the session carries none.
	UserMeta []byte

	refcnt atomic.Int32
	onDone DoneFunc
}

// New creates an owned frame backed by a freshly allocated buffer.
func New(index int, size int, onDone DoneFunc) *Frame {
	return &Frame{
		Index:  index,
		Buffer: make([]byte, size),
		Kind:   Owned,
		onDone: onDone,
	}
}

// NewExternal wraps application-owned memory. buffer and iova must
// already be set (spec.md §3 invariant); the core never reallocates it.
func NewExternal(index int, buffer []byte, iova uintptr, onDone DoneFunc) *Frame {
	return &Frame{
		Index:  index,
		Buffer: buffer,
		IOVA:   iova,
		Kind:   External,
		onDone: onDone,
	}
}

// Idle reports whether the frame is eligible for the next get_next_frame
// callback (spec.md §3 invariant: "refcnt==0 iff the frame is eligible").
func (f *Frame) Idle() bool {
	return f.refcnt.Load() == 0
}

// Refcnt returns the current outstanding-packet count.
func (f *Frame) Refcnt() int32 {
	return f.refcnt.Load()
}

// CheckOut is called once by the builder when it selects this frame
// (spec.md §4.7 step 2: "Verify the chosen frame has refcount 0;
// increment it"). It sets the refcount to 1 unconditionally and does not
// check that the frame was idle; the builder verifies Refcnt() == 0 first
// (spec.md §7: "frame_refcnt_nonzero_on_pick: log and abort this frame
// only", handled by the caller before ever reaching CheckOut).
func (f *Frame) CheckOut() {
	f.refcnt.Store(1)
}

// HoldForPacket increments the refcount once per packet that references
// this frame while in flight (spec.md §3: "held while the last packet
// referencing it is in flight").
func (f *Frame) HoldForPacket() {
	f.refcnt.Add(1)
}

// ReleasePacket is the drop hook: called once per packet that leaves the
// NIC (or is discarded on recovery). When the count reaches zero the
// frame is done and onDone fires exactly once (spec.md §8 invariant 1).
func (f *Frame) ReleasePacket() {
	if f.refcnt.Add(-1) == 0 && f.onDone != nil {
		f.onDone(f.Index)
	}
}

// ForceReset drops all outstanding references without invoking onDone —
// used only during fatal-error recovery (spec.md §4.9.2: "Reset all
// frames: drop current refcounts").
func (f *Frame) ForceReset() {
	f.refcnt.Store(0)
}

// Pool is a session's fixed-capacity ring of frames (spec.md §3: "N
// frames, N in [2, 2^8] for ST20").
type Pool struct {
	frames []*Frame
	cursor int
}

// NewPool allocates n owned frames of size bytes each.
func NewPool(n int, size int, onDone DoneFunc) *Pool {
	if n < 2 {
		n = 2
	}
	if n > 256 {
		n = 256
	}
	frames := make([]*Frame, n)
	for i := range frames {
		frames[i] = New(i, size, onDone)
	}
	return &Pool{frames: frames}
}

// NewExternalPool builds a pool around application-owned buffers, one per
// slot; bufs and iovas must have equal, matching length.
func NewExternalPool(bufs [][]byte, iovas []uintptr, onDone DoneFunc) *Pool {
	frames := make([]*Frame, len(bufs))
	for i := range bufs {
		frames[i] = NewExternal(i, bufs[i], iovas[i], onDone)
	}
	return &Pool{frames: frames}
}

// Frames exposes the backing slice (read-only use expected).
func (p *Pool) Frames() []*Frame { return p.frames }

// Len returns the pool's fixed capacity.
func (p *Pool) Len() int { return len(p.frames) }

// NextIdle scans starting after the last returned index for an idle
// frame, wrapping once. Returns nil if every frame is still in flight.
func (p *Pool) NextIdle() *Frame {
	n := len(p.frames)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.frames[idx].Idle() {
			p.cursor = (idx + 1) % n
			return p.frames[idx]
		}
	}
	return nil
}

// At returns the frame at idx for GetFramebuffer (spec.md §6.2).
func (p *Pool) At(idx int) *Frame {
	if idx < 0 || idx >= len(p.frames) {
		return nil
	}
	return p.frames[idx]
}
