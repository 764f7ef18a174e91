package wire

// ANCPacket is one RFC 8331 ancillary data packet (spec.md §6.4, §4.7.1
// scenario 5).
type ANCPacket struct {
	LineNumber  int
	HOffset     int
	StreamNum   int
	DID         uint16 // 10-bit + parity
	SDID        uint16
	DataCount   uint16
	UDW         []uint16 // 10-bit user data words, parity applied on marshal
	BadParity   bool     // test-injection: flip parity on DID/SDID/DataCount/UDW
}

// evenParity10 returns the 10-bit value with bits 8 (even parity) and 9
// (inverse of bit 8) set per SMPTE 291M ancillary-word coding.
func evenParity10(v uint16) uint16 {
	v &= 0xff
	ones := 0
	for i := 0; i < 8; i++ {
		if v&(1<<i) != 0 {
			ones++
		}
	}
	parity := uint16(0)
	if ones%2 == 1 {
		parity = 1
	}
	word := v | (parity << 8)
	word |= (^(word >> 8) & 1) << 9
	return word
}

// encodeWord applies even-parity coding, or flips it when badParity
// injects a fault for the test-bad-parity scenario.
func encodeWord(v uint16, badParity bool) uint16 {
	w := evenParity10(v)
	if badParity {
		w ^= 1 << 8
	}
	return w
}

// MarshalANCHeader encodes the fixed per-ANC-packet header fields (did,
// sdid, data_count plus their parity bits) as three 10-bit coded words.
func (p ANCPacket) MarshalANCHeader() (did, sdid, dataCount uint16) {
	return encodeWord(p.DID, p.BadParity), encodeWord(p.SDID, p.BadParity), encodeWord(p.DataCount, p.BadParity)
}

// MarshalUDW encodes the user-data-word payload with parity.
func (p ANCPacket) MarshalUDW() []uint16 {
	out := make([]uint16, len(p.UDW))
	for i, w := range p.UDW {
		out[i] = encodeWord(w, p.BadParity)
	}
	return out
}

// ANCFrame is the set of ANC packets carried in one RTP payload
// (split-by-ANC-packet mode packs each ANCPacket in its own RTP
// packet; the non-split mode concatenates them, spec.md §6.4).
type ANCFrame struct {
	Packets   []ANCPacket
	SplitMode bool
}

// PlanST40 groups ANC packets into RTP payloads: one packet group per
// RTP packet in split mode, or all of them in one RTP packet otherwise.
func PlanST40(f ANCFrame) [][]ANCPacket {
	if !f.SplitMode {
		return [][]ANCPacket{f.Packets}
	}
	groups := make([][]ANCPacket, len(f.Packets))
	for i, p := range f.Packets {
		groups[i] = []ANCPacket{p}
	}
	return groups
}
