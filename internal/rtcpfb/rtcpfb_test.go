package rtcpfb

import "testing"

func TestFeedbackMarshalUnmarshalRoundTrip(t *testing.T) {
	f := Feedback{
		SenderSSRC: 111,
		MediaSSRC:  222,
		Runs:       []FCIRun{{Start: 500, Follow: 1}, {Start: 900, Follow: 0}},
	}
	b, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SenderSSRC != f.SenderSSRC || got.MediaSSRC != f.MediaSSRC {
		t.Fatalf("SSRCs mismatch: %+v", got)
	}
	if len(got.Runs) != 2 || got.Runs[0] != f.Runs[0] || got.Runs[1] != f.Runs[1] {
		t.Fatalf("runs mismatch: %+v", got.Runs)
	}
}

func TestMarshalRejectsTooManyFCIs(t *testing.T) {
	runs := make([]FCIRun, MaxFCIsPerPDU+1)
	f := Feedback{Runs: runs}
	if _, err := f.Marshal(); err != ErrTooManyFCIs {
		t.Fatalf("expected ErrTooManyFCIs, got %v", err)
	}
}

type fakeSender struct {
	sent map[uint32][]byte
	fail bool
}

func (s *fakeSender) Send(seq uint32, payload []byte) error {
	if s.fail {
		return errSend
	}
	if s.sent == nil {
		s.sent = make(map[uint32][]byte)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.sent[seq] = cp
	return nil
}

var errSend = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send failed" }

// TestNACKRetransmitByteIdentical reproduces spec.md §8 scenario 6:
// send sequences 0..999, NACK 500 with follow=1, expect a byte-
// identical retransmission and stat_rtp_retransmit_succ == 1.
func TestNACKRetransmitByteIdentical(t *testing.T) {
	buf := NewBuffer(1024)
	payloads := make(map[uint32][]byte)
	for seq := uint32(0); seq < 1000; seq++ {
		p := []byte{byte(seq), byte(seq >> 8), 0xAB}
		payloads[seq] = p
		buf.Record(seq, p)
	}

	sender := &fakeSender{}
	fb := Feedback{Runs: []FCIRun{{Start: 500, Follow: 1}}}
	buf.HandleFeedback(fb, sender)

	for _, seq := range []uint32{500} {
		got, ok := sender.sent[seq]
		if !ok {
			t.Fatalf("expected seq %d to be retransmitted", seq)
		}
		want := payloads[seq]
		if len(got) != len(want) {
			t.Fatalf("seq %d: length mismatch", seq)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("seq %d: byte %d mismatch: got %x want %x", seq, i, got[i], want[i])
			}
		}
	}

	if _, ok := sender.sent[501]; ok {
		t.Fatalf("seq 501 lies outside the run and should not be retransmitted")
	}

	if buf.Stats().RetransmitSucc != 1 {
		t.Fatalf("stat_rtp_retransmit_succ = %d, want 1", buf.Stats().RetransmitSucc)
	}
}

func TestRetransmitMissingSequenceCountsFailure(t *testing.T) {
	buf := NewBuffer(8)
	sender := &fakeSender{}
	reason := buf.Retransmit(5, sender)
	if reason != FailNotInBuffer {
		t.Fatalf("expected FailNotInBuffer, got %v", reason)
	}
	if buf.Stats().RetransmitFailNotBuffered != 1 {
		t.Fatalf("expected 1 not-buffered failure, got %d", buf.Stats().RetransmitFailNotBuffered)
	}
}
