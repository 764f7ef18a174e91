package st40

import (
	"testing"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

func TestPlannerGroupsPacketsAndMarksLastGroup(t *testing.T) {
	frame := wire.ANCFrame{
		Packets: []wire.ANCPacket{
			{LineNumber: 9, DID: 0x41, SDID: 0x01, DataCount: 2, UDW: []uint16{1, 2}},
			{LineNumber: 9, DID: 0x41, SDID: 0x02, DataCount: 1, UDW: []uint16{3}},
		},
	}
	p := New(func(int) wire.ANCFrame { return frame })
	meta := builder.FrameMeta{}

	total := p.TotalPackets(0, meta)
	if total == 0 {
		t.Fatal("expected at least one RTP packet")
	}

	var lastMarker bool
	for i := 0; i < total; i++ {
		payload, marker, err := p.BuildPayload(0, i, meta)
		if err != nil {
			t.Fatalf("pkt %d: %v", i, err)
		}
		if len(payload) == 0 {
			t.Fatalf("pkt %d: expected non-empty payload", i)
		}
		if i == total-1 {
			lastMarker = marker
		}
	}
	if !lastMarker {
		t.Fatal("expected marker set on the final packet")
	}
}

func TestBadParityPacketIsCountedOnce(t *testing.T) {
	frame := wire.ANCFrame{
		Packets: []wire.ANCPacket{
			{LineNumber: 9, DID: 0x41, SDID: 0x01, DataCount: 1, UDW: []uint16{1}, BadParity: true},
		},
	}
	p := New(func(int) wire.ANCFrame { return frame })
	p.TotalPackets(0, builder.FrameMeta{})

	if p.Stats().BadParityFrames != 1 {
		t.Fatalf("expected 1 bad-parity frame recorded, got %d", p.Stats().BadParityFrames)
	}
}

func TestPlannerErrorsOnOutOfRangePacket(t *testing.T) {
	p := New(func(int) wire.ANCFrame { return wire.ANCFrame{} })
	if _, _, err := p.BuildPayload(0, 999, builder.FrameMeta{}); err == nil {
		t.Fatal("expected an error for an out-of-range packet index")
	}
}
