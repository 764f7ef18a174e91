// Package wire builds the RTP-level wire formats for each ST 2110 media
// kind (spec.md §6.4): RFC 4175 (ST20), RFC 9134 boxes (ST22), RFC 3550
// PCM framing (ST30), RFC 8331 ancillary (ST40) and the ST41
// fast-metadata word-aligned framing, plus the shared RTP fixed header.
package wire

import (
	"github.com/pion/rtp"
)

// ExtSeq packs the 16-bit wire sequence number and its 16-bit extension
// field into one uint32 counter for reorder detection (spec.md §9 Design
// Notes: "Model as a packed u32 and split at serialisation time").
type ExtSeq uint32

// Next returns the successor extended sequence, wrapping the low 16 bits
// onto the wire and incrementing the high 16 bits (the extension) on
// wrap (spec.md §8 invariant 2: "16-bit wrap is handled by incrementing
// the ext-seq field").
func (s ExtSeq) Next() ExtSeq {
	lo := uint16(s) + 1
	hi := uint16(s >> 16)
	if lo == 0 {
		hi++
	}
	return ExtSeq(uint32(hi)<<16 | uint32(lo))
}

// Wire returns the 16-bit sequence number as it appears on the wire.
func (s ExtSeq) Wire() uint16 { return uint16(s) }

// Ext returns the 16-bit extension (the high bits of the packed counter).
func (s ExtSeq) Ext() uint16 { return uint16(s >> 16) }

// RTPHeaderParams is the set of per-packet values the builder fills in
// before marshaling the fixed RTP header (spec.md §4.7 step 5).
type RTPHeaderParams struct {
	PayloadType uint8
	Seq         uint16
	Timestamp   uint32
	SSRC        uint32
	Marker      bool
}

// BuildRTPHeader returns a pion/rtp Header with the fixed fields set;
// callers append their own RFC-specific extension bytes after
// marshaling (spec.md §6.4 formats each layer their own header/payload
// split on top of this fixed header).
func BuildRTPHeader(p RTPHeaderParams) rtp.Header {
	return rtp.Header{
		Version:        2,
		Padding:        false,
		Extension:      false,
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.Seq,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
	}
}

// MarshalPacket builds the full wire bytes: fixed RTP header + payload.
func MarshalPacket(h rtp.Header, payload []byte) ([]byte, error) {
	pkt := rtp.Packet{Header: h, Payload: payload}
	return pkt.Marshal()
}

// MediaClockTimestamp converts a TAI nanosecond value to an RTP media
// clock timestamp at the given clock rate (90kHz for video/ANC, the
// sample rate for audio), per spec.md §4.5 "RTP timestamp".
func MediaClockTimestamp(tAI uint64, clockRateHz uint32) uint32 {
	return uint32((tAI * uint64(clockRateHz)) / 1_000_000_000)
}
