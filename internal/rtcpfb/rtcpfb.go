// Package rtcpfb implements the RTCP/NACK helper of spec.md §4.10: a
// sequence-numbered retransmission buffer and the PT 204 generic-NACK
// feedback wire format (4-byte header plus 24-byte FCI runs, spec.md
// §6.4).
package rtcpfb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtcp"
)

// PacketType is the RTCP payload type this feedback channel uses.
// Numerically identical to rtcp.TypeApplicationDefined; spec.md §6.4
// fixes PT 204 for this custom FCI-run format rather than the IANA
// generic-NACK (PT 205) layout.
const PacketType = rtcp.TypeApplicationDefined

// FCIRunLen is the fixed size of one FCI entry: a start sequence plus a
// follow-count (spec.md §6.4: "24-byte FCI run (start/follow pairs)").
const FCIRunLen = 24

// MaxFCIsPerPDU bounds one feedback PDU (spec.md §6.4).
const MaxFCIsPerPDU = 256

var ErrTooManyFCIs = errors.New("rtcpfb: FCI count exceeds MaxFCIsPerPDU")

// FCIRun is one start/follow NACK run: Follow is the run length, so
// packets [Start, Start+Follow) are requested; Start is requested even
// when Follow is 0.
type FCIRun struct {
	Start  uint32
	Follow uint32
}

// Feedback is one parsed/built PT 204 PDU.
type Feedback struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	Runs       []FCIRun
}

// Marshal encodes the 4-byte rtcp.Header plus the fixed 8-byte
// SSRC pair and the FCI runs, each padded to FCIRunLen.
func (f Feedback) Marshal() ([]byte, error) {
	if len(f.Runs) > MaxFCIsPerPDU {
		return nil, ErrTooManyFCIs
	}

	body := make([]byte, 8+len(f.Runs)*FCIRunLen)
	binary.BigEndian.PutUint32(body[0:4], f.SenderSSRC)
	binary.BigEndian.PutUint32(body[4:8], f.MediaSSRC)
	for i, r := range f.Runs {
		off := 8 + i*FCIRunLen
		binary.BigEndian.PutUint32(body[off:off+4], r.Start)
		binary.BigEndian.PutUint32(body[off+4:off+8], r.Follow)
		// remaining 16 bytes of the run are reserved/zero.
	}

	h := rtcp.Header{
		Count:  uint8(len(f.Runs) % 32),
		Type:   PacketType,
		Length: uint16((len(body) / 4)),
	}
	hdrBytes, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("rtcpfb: marshal header: %w", err)
	}
	return append(hdrBytes, body...), nil
}

// Unmarshal parses a PT 204 PDU built by Marshal.
func Unmarshal(b []byte) (Feedback, error) {
	var h rtcp.Header
	if err := h.Unmarshal(b); err != nil {
		return Feedback{}, fmt.Errorf("rtcpfb: unmarshal header: %w", err)
	}
	hdrLen := 4
	body := b[hdrLen:]
	if len(body) < 8 {
		return Feedback{}, fmt.Errorf("rtcpfb: short body (%d bytes)", len(body))
	}

	f := Feedback{
		SenderSSRC: binary.BigEndian.Uint32(body[0:4]),
		MediaSSRC:  binary.BigEndian.Uint32(body[4:8]),
	}
	runsBytes := body[8:]
	n := len(runsBytes) / FCIRunLen
	if n > MaxFCIsPerPDU {
		return Feedback{}, ErrTooManyFCIs
	}
	f.Runs = make([]FCIRun, n)
	for i := 0; i < n; i++ {
		off := i * FCIRunLen
		f.Runs[i] = FCIRun{
			Start:  binary.BigEndian.Uint32(runsBytes[off : off+4]),
			Follow: binary.BigEndian.Uint32(runsBytes[off+4 : off+8]),
		}
	}
	return f, nil
}
