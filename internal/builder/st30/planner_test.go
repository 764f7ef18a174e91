package st30

import (
	"testing"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

func testAudio() wire.AudioParams {
	return wire.AudioParams{SampleRateHz: 48000, Channels: 2, SampleSize: 3, PacketTime: wire.PacketTime1ms}
}

func TestPlannerAlwaysEmitsOnePacketWithMarkerSet(t *testing.T) {
	audio := testAudio()
	pcm := make([]byte, audio.PacketLen())
	for i := range pcm {
		pcm[i] = byte(i)
	}

	p := New(audio, func(int) []byte { return pcm })
	meta := builder.FrameMeta{}

	if got := p.TotalPackets(0, meta); got != 1 {
		t.Fatalf("expected exactly 1 packet per frame, got %d", got)
	}

	payload, marker, err := p.BuildPayload(0, 0, meta)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	if !marker {
		t.Fatal("expected marker set on ST30's sole packet")
	}
	if len(payload) != len(pcm) {
		t.Fatalf("expected payload of %d bytes, got %d", len(pcm), len(payload))
	}
}

func TestPlannerRejectsWrongSizedPCMBuffer(t *testing.T) {
	audio := testAudio()
	p := New(audio, func(int) []byte { return make([]byte, audio.PacketLen()-1) })
	if _, _, err := p.BuildPayload(0, 0, builder.FrameMeta{}); err == nil {
		t.Fatal("expected an error for a short PCM buffer")
	}
}

func TestPlannerRejectsNonZeroPacketIndex(t *testing.T) {
	audio := testAudio()
	p := New(audio, func(int) []byte { return make([]byte, audio.PacketLen()) })
	if _, _, err := p.BuildPayload(0, 1, builder.FrameMeta{}); err == nil {
		t.Fatal("expected an error for a nonzero packet index")
	}
}

func TestClockRateHzMatchesSampleRate(t *testing.T) {
	audio := testAudio()
	p := New(audio, func(int) []byte { return nil })
	if p.ClockRateHz() != uint32(audio.SampleRateHz) {
		t.Fatalf("expected clock rate %d, got %d", audio.SampleRateHz, p.ClockRateHz())
	}
}
