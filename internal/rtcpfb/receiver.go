package rtcpfb

import (
	"github.com/ehrlich-b/st2110go/internal/iface"
	"github.com/ehrlich-b/st2110go/internal/sched"
	"github.com/ehrlich-b/st2110go/internal/stats"
)

// QueueSender adapts a iface.TxQueue into a Sender: retransmission re-sends
// the exact recorded bytes on the primary TX queue (spec.md §4.10, "a NACK
// for its sequence yields a byte-identical retransmission").
type QueueSender struct {
	Queue iface.TxQueue
}

func (s QueueSender) Send(seq uint32, payload []byte) error {
	_, err := s.Queue.Burst([][]byte{payload})
	return err
}

// Receiver is the RTCP feedback-ingest tasklet that closes the NACK round
// trip of spec.md §4.10: poll an RxQueue for incoming PT204 PDUs, parse
// them, and hand each to buf's retransmit logic.
type Receiver struct {
	name   string
	rx     iface.RxQueue
	buf    *Buffer
	sender Sender
	stats  *stats.Session

	recvBuf [][]byte
}

// NewReceiver builds a Receiver polling rx in bursts of up to burst
// packets per tick, replaying matches from buf via sender. sessionStats may
// be nil; when set, the session's RetransmitSucc/RetransmitFail counters
// mirror buf's own running totals after every tick that parses feedback.
func NewReceiver(name string, rx iface.RxQueue, buf *Buffer, sender Sender, burst int, sessionStats *stats.Session) *Receiver {
	if burst <= 0 {
		burst = 7
	}
	bufs := make([][]byte, burst)
	for i := range bufs {
		bufs[i] = make([]byte, 1500)
	}
	return &Receiver{name: name, rx: rx, buf: buf, sender: sender, stats: sessionStats, recvBuf: bufs}
}

func (r *Receiver) Name() string          { return r.name }
func (r *Receiver) PreStart()             {}
func (r *Receiver) Start()                {}
func (r *Receiver) Stop()                 {}
func (r *Receiver) AdviceSleepUS() uint64 { return 1000 }

// Handler implements sched.Tasklet: one non-blocking poll of rx per tick,
// replaying every FCI run found in whatever PT204 PDUs arrived.
func (r *Receiver) Handler() sched.Result {
	for i := range r.recvBuf {
		r.recvBuf[i] = r.recvBuf[i][:cap(r.recvBuf[i])]
	}
	n, err := r.rx.Burst(r.recvBuf)
	if err != nil || n == 0 {
		return sched.AllDone
	}

	for i := 0; i < n; i++ {
		fb, err := Unmarshal(r.recvBuf[i])
		if err != nil {
			continue
		}
		r.buf.HandleFeedback(fb, r.sender)
	}
	if r.stats != nil {
		s := r.buf.Stats()
		r.stats.RetransmitSucc.Store(s.RetransmitSucc)
		r.stats.RetransmitFail.Store(s.RetransmitFailNotBuffered + s.RetransmitFailSend)
	}
	return sched.HasPending
}
