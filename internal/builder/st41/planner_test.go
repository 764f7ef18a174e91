package st41

import (
	"testing"

	"github.com/ehrlich-b/st2110go/internal/builder"
	"github.com/ehrlich-b/st2110go/internal/wire"
)

func TestPlannerGroupsItemsAndMarksLastGroup(t *testing.T) {
	items := []wire.ST41DataItem{
		{DataItemType: 1, DataItemK: 0, Payload: make([]byte, 100)},
		{DataItemType: 2, DataItemK: 0, Payload: make([]byte, 100)},
		{DataItemType: 3, DataItemK: 0, Payload: make([]byte, 100)},
	}
	p := New(150, func(int) []wire.ST41DataItem { return items })
	meta := builder.FrameMeta{}

	total := p.TotalPackets(0, meta)
	if total < 2 {
		t.Fatalf("expected items to span multiple packets at maxPayload=150, got %d", total)
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
		} else if marker {
			t.Fatalf("pkt %d: marker set on a non-final packet", i)
		}
	}
	if !lastMarker {
		t.Fatal("expected marker set on the final packet")
	}
}

func TestPlannerErrorsOnOutOfRangePacket(t *testing.T) {
	p := New(1200, func(int) []wire.ST41DataItem { return nil })
	if _, _, err := p.BuildPayload(0, 999, builder.FrameMeta{}); err == nil {
		t.Fatal("expected an error for an out-of-range packet index")
	}
}

func TestClockRateHzIs90kHz(t *testing.T) {
	p := New(1200, func(int) []wire.ST41DataItem { return nil })
	if p.ClockRateHz() != 90_000 {
		t.Fatalf("expected 90kHz clock, got %d", p.ClockRateHz())
	}
}
