package wire

import "testing"

func TestExtSeqWrapsAndIncrementsExtension(t *testing.T) {
	var s ExtSeq = 0xFFFF
	next := s.Next()
	if next.Wire() != 0 {
		t.Fatalf("wire seq should wrap to 0, got %d", next.Wire())
	}
	if next.Ext() != 1 {
		t.Fatalf("extension should increment on wrap, got %d", next.Ext())
	}
}

func TestExtSeqNoWrapLeavesExtension(t *testing.T) {
	var s ExtSeq = 5
	next := s.Next()
	if next.Wire() != 6 || next.Ext() != 0 {
		t.Fatalf("unexpected next = wire %d ext %d", next.Wire(), next.Ext())
	}
}

// TestST20RoundTripBytesInvariantAcrossPacking verifies spec.md §8's
// round-trip law: total bytes emitted in one frame equals
// width*height*pg.size/pg.coverage regardless of packing mode.
func TestST20RoundTripBytesInvariantAcrossPacking(t *testing.T) {
	width, height := 1920, 1080
	pg := PixelGroupYUV422_10bit
	want := TotalFrameBytes(width, height, pg)

	bpm := PlanBPM(width, height, pg, false)
	if bpm.TotalPayloadBytes != want {
		t.Fatalf("BPM total = %d, want %d", bpm.TotalPayloadBytes, want)
	}

	gpmsl := PlanGPMSL(width, height, 1200, pg, false)
	if gpmsl.TotalPayloadBytes != want {
		t.Fatalf("GPM_SL total = %d, want %d", gpmsl.TotalPayloadBytes, want)
	}

	gpm := PlanGPM(width, height, 1200, pg, false)
	if gpm.TotalPayloadBytes != want {
		t.Fatalf("GPM total = %d, want %d", gpm.TotalPayloadBytes, want)
	}
}

// TestST20_1080p5994BPMScenario reproduces spec.md §8 scenario 1.
func TestST20_1080p5994BPMScenario(t *testing.T) {
	pg := PixelGroupYUV422_10bit
	bytesInLine := BytesInLine(1920, pg)
	if bytesInLine != 4800 {
		t.Fatalf("bytes_in_line = %d, want 4800", bytesInLine)
	}

	plan := PlanBPM(1920, 1080, pg, false)
	wantTotal := 4320 // ceil(1920*1080*5/2 / 1260)
	if len(plan.Packets) < wantTotal {
		t.Fatalf("expected at least %d packets (plus extras), got %d", wantTotal, len(plan.Packets))
	}

	last := plan.Packets[len(plan.Packets)-1]
	if !last.Tail {
		t.Fatalf("last packet of the frame should be the FRAME_TAIL")
	}
}

func TestST22BoxesLenIs60(t *testing.T) {
	var b ST22Boxes
	if len(b.Bytes()) != ST22BoxesLen {
		t.Fatalf("box bundle length = %d, want %d", len(b.Bytes()), ST22BoxesLen)
	}
}

// TestST22FirstFrameHeaderScenario reproduces spec.md §8 scenario 3.
func TestST22FirstFrameHeaderScenario(t *testing.T) {
	codestreamLen := ST22BoxesLen + 1_000_000
	headers := PlanST22(codestreamLen, 1260, 0)
	if len(headers) == 0 {
		t.Fatal("expected at least one packet")
	}
	first := headers[0]
	if first.PCounter != 0 || first.SepCounter != 0 || first.FCounter != 0 {
		t.Fatalf("unexpected first header: %+v", first)
	}
	last := headers[len(headers)-1]
	if !last.LastPacket {
		t.Fatal("last header should have LastPacket set")
	}
}

func TestST22FCounterWrapsMod32(t *testing.T) {
	headers := PlanST22(2000, 1260, 35)
	if headers[0].FCounter != 3 {
		t.Fatalf("f_counter = %d, want 35 mod 32 = 3", headers[0].FCounter)
	}
}

// TestST30_48kHz1msScenario reproduces spec.md §8 scenario 4.
func TestST30_48kHz1msScenario(t *testing.T) {
	p := AudioParams{SampleRateHz: 48000, Channels: 2, SampleSize: 3, PacketTime: PacketTime1ms}
	if p.SampleNum() != 48 {
		t.Fatalf("sample_num = %d, want 48", p.SampleNum())
	}
	if p.PacketLen() != 288 {
		t.Fatalf("pkt_len = %d, want 288", p.PacketLen())
	}
	if p.FrameTimeNS() != 1_000_000 {
		t.Fatalf("frame_time_ns = %v, want 1000000", p.FrameTimeNS())
	}
}

func TestST40BadParityFlipsParityBit(t *testing.T) {
	good := ANCPacket{DID: 0x61, SDID: 0x01, DataCount: 4}
	bad := good
	bad.BadParity = true

	gDID, _, _ := good.MarshalANCHeader()
	bDID, _, _ := bad.MarshalANCHeader()
	if gDID == bDID {
		t.Fatal("bad parity injection should flip the encoded DID word")
	}
}

func TestST40SplitModeProducesOnePacketPerANC(t *testing.T) {
	f := ANCFrame{
		Packets:   []ANCPacket{{DID: 1}, {DID: 2}, {DID: 3}},
		SplitMode: true,
	}
	groups := PlanST40(f)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups in split mode, got %d", len(groups))
	}
}

func TestST41DataItemLengthRoundsUpAndPads(t *testing.T) {
	item := ST41DataItem{Payload: []byte{1, 2, 3, 4, 5}}
	if item.DataItemLengthWords() != 2 {
		t.Fatalf("expected 2 words (ceil(5/4)), got %d", item.DataItemLengthWords())
	}
	padded := item.Pad()
	if len(padded) != 8 {
		t.Fatalf("expected padded length 8, got %d", len(padded))
	}
	for _, b := range padded[5:] {
		if b != 0 {
			t.Fatal("padding bytes should be zero")
		}
	}
}

func TestMediaClockTimestampScalesByClockRate(t *testing.T) {
	ts := MediaClockTimestamp(1_000_000_000, 90_000)
	if ts != 90_000 {
		t.Fatalf("ts = %d, want 90000", ts)
	}
}
