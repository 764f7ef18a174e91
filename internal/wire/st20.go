package wire

import "math"

// PixelGroup is the RFC 4175 "pg" unit: Size bytes cover Coverage pixels.
type PixelGroup struct {
	Size     int
	Coverage int
}

var (
	PixelGroupYUV422_8bit  = PixelGroup{Size: 4, Coverage: 2}
	PixelGroupYUV422_10bit = PixelGroup{Size: 5, Coverage: 2}
	PixelGroupYUV422_12bit = PixelGroup{Size: 6, Coverage: 2}
	PixelGroupYUV444_8bit  = PixelGroup{Size: 3, Coverage: 1}
	PixelGroupYUV444_10bit = PixelGroup{Size: 15, Coverage: 4}
)

// Packing selects the ST 2110-20 packing mode of spec.md §4.7.1.
type Packing int

const (
	PackingBPM Packing = iota
	PackingGPMSL
	PackingGPM
)

// Line number flags (spec.md §4.7.1).
const (
	LineSecondFieldBit = 1 << 15
	SRDOffsetContinuationBit = 1 << 15
)

// BytesInLine returns the byte length of one scan line for width pixels.
func BytesInLine(width int, pg PixelGroup) int {
	return ceilDiv(width, pg.Coverage) * pg.Size
}

// TotalFrameBytes is the byte total the round-trip law of spec.md §8
// checks against: width*height*pg.size/pg.coverage regardless of
// packing mode.
func TotalFrameBytes(width, height int, pg PixelGroup) int {
	return BytesInLine(width, pg) * height
}

// PacketDesc describes one emitted RTP packet's SRD framing (spec.md
// §4.7.1).
type PacketDesc struct {
	PayloadLen  int
	LineNumber  int // video line this packet's first SRD starts on
	RowOffset   int // pixel offset within LineNumber, low 15 bits
	Continuation bool // an EXTRA SRD follows in this same packet
	Extra       bool  // this packet itself is an EXTRA-SRD continuation packet
	Tail        bool  // FRAME_TAIL: shorter than the nominal packet length
	SecondField bool
}

// Plan is the full per-frame packetization the builder walks one packet
// at a time (spec.md §4.7 step 5).
type Plan struct {
	Packets           []PacketDesc
	TotalPayloadBytes int
}

func ceilDiv(a, b int) int {
	return int(math.Ceil(float64(a) / float64(b)))
}

// PlanGPMSL packetizes single-line-per-packet (spec.md §4.7.1 GPM_SL):
// pkts_in_line = ceil(bytes_in_line/max_payload); pkt_len =
// ceil(pixels_in_pkt/pg.coverage) * pg.size.
func PlanGPMSL(width, height, maxPayload int, pg PixelGroup, secondField bool) Plan {
	bytesInLine := BytesInLine(width, pg)
	pktsInLine := ceilDiv(bytesInLine, maxPayload)
	if pktsInLine < 1 {
		pktsInLine = 1
	}

	var plan Plan
	pixelsPerPkt := ceilDiv(width, pktsInLine)
	for line := 0; line < height; line++ {
		remainingPixels := width
		offset := 0
		for p := 0; p < pktsInLine; p++ {
			px := pixelsPerPkt
			if px > remainingPixels {
				px = remainingPixels
			}
			if px <= 0 {
				break
			}
			pktLen := ceilDiv(px, pg.Coverage) * pg.Size
			plan.Packets = append(plan.Packets, PacketDesc{
				PayloadLen:  pktLen,
				LineNumber:  line,
				RowOffset:   offset,
				SecondField: secondField,
			})
			plan.TotalPayloadBytes += pktLen
			offset += px
			remainingPixels -= px
		}
	}
	return plan
}

// PlanBPM packetizes block-packing mode (spec.md §4.7.1 BPM): fixed
// pkt_len of 1260 bytes regardless of line boundaries; a packet whose
// span crosses a line boundary carries an extra SRD sub-header (Extra/
// Continuation), and the final short packet of the frame is the
// FRAME_TAIL.
func PlanBPM(width, height, pg PixelGroup, secondField bool) Plan {
	const bpmPktLen = 1260
	bytesInLine := BytesInLine(width, pg)
	totalBytes := bytesInLine * height

	var plan Plan
	offset := 0
	for offset < totalBytes {
		remaining := totalBytes - offset
		pktLen := bpmPktLen
		tail := false
		if pktLen >= remaining {
			pktLen = remaining
			tail = true
		}

		startLine := offset / bytesInLine
		startRow := offset % bytesInLine
		endLine := (offset + pktLen - 1) / bytesInLine
		crosses := endLine != startLine

		plan.Packets = append(plan.Packets, PacketDesc{
			PayloadLen:   pktLen,
			LineNumber:   startLine,
			RowOffset:    startRow,
			Continuation: crosses,
			Extra:        false,
			Tail:         tail,
			SecondField:  secondField,
		})
		plan.TotalPayloadBytes += pktLen
		offset += pktLen
	}
	return plan
}

// PlanGPM packetizes general packing mode (spec.md §4.7.1 GPM): pkt_len
// = floor(max_payload/(pg.size*2)) * (pg.size*2), applied as a flat
// stream over the whole frame without line-boundary bookkeeping.
func PlanGPM(width, height, maxPayload int, pg PixelGroup, secondField bool) Plan {
	pktLen := (maxPayload / (pg.Size * 2)) * (pg.Size * 2)
	if pktLen <= 0 {
		pktLen = pg.Size * 2
	}
	totalBytes := BytesInLine(width, pg) * height

	var plan Plan
	offset := 0
	for offset < totalBytes {
		remaining := totalBytes - offset
		n := pktLen
		tail := false
		if n >= remaining {
			n = remaining
			tail = true
		}
		plan.Packets = append(plan.Packets, PacketDesc{
			PayloadLen:  n,
			Tail:        tail,
			SecondField: secondField,
		})
		plan.TotalPayloadBytes += n
		offset += n
	}
	return plan
}

// PlanFrame dispatches to the packing-specific planner (spec.md §4.7.1).
func PlanFrame(packing Packing, width, height, maxPayload int, pg PixelGroup, secondField bool) Plan {
	switch packing {
	case PackingBPM:
		return PlanBPM(width, height, pg, secondField)
	case PackingGPM:
		return PlanGPM(width, height, maxPayload, pg, secondField)
	default:
		return PlanGPMSL(width, height, maxPayload, pg, secondField)
	}
}

// SRDLineNumber packs the SECOND_FIELD bit into the 16-bit line-number
// wire field (spec.md §4.7.1).
func SRDLineNumber(line int, secondField bool) uint16 {
	v := uint16(line)
	if secondField {
		v |= LineSecondFieldBit
	}
	return v
}

// SRDOffset packs the CONTINUATION bit into the 16-bit SRD offset wire
// field (spec.md §4.7.1).
func SRDOffset(offset int, continuation bool) uint16 {
	v := uint16(offset)
	if continuation {
		v |= SRDOffsetContinuationBit
	}
	return v
}
