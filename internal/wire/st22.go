package wire

// ST22BoxesLen is the fixed size of the J2K/JPEG-XS box prelude
// prepended to the codestream unless DISABLE_BOXES is set (spec.md
// §6.4, §4.7.1: jpvs/jpvi/jxpl/colr, total 60 bytes).
const ST22BoxesLen = 60

// ST22Boxes holds the four boxes spec.md names; real box payloads are
// codec-parameter dependent, so this package only fixes their sizes
// and concatenation order. Build at session init, once per session.
type ST22Boxes struct {
	JPVS [16]byte
	JPVI [16]byte
	JXPL [20]byte
	COLR [8]byte
}

// Bytes concatenates the four boxes in wire order.
func (b ST22Boxes) Bytes() []byte {
	out := make([]byte, 0, ST22BoxesLen)
	out = append(out, b.JPVS[:]...)
	out = append(out, b.JPVI[:]...)
	out = append(out, b.JXPL[:]...)
	out = append(out, b.COLR[:]...)
	return out
}

// ST22PayloadHeaderLen is RFC 9134's 8-byte payload header that precedes
// the codestream bytes of each packet.
const ST22PayloadHeaderLen = 8

// ST22PayloadHeader is RFC 9134's per-packet header.
type ST22PayloadHeader struct {
	Interlace  bool
	FieldID    bool
	TransmissionMode uint8 // 0=progressive/frame, 1=interlace field, 2=sequential
	KMode      bool
	FType      uint8
	PCounter   uint32 // 24-bit packet counter within this f_counter window
	SepCounter uint8  // separation counter: codestream index within the frame
	FCounter   uint8  // 5-bit frame counter, wraps mod 32 (spec.md scenario 3)
	LastPacket bool
}

// Marshal packs the header into ST22PayloadHeaderLen bytes.
func (h ST22PayloadHeader) Marshal() [ST22PayloadHeaderLen]byte {
	var b [ST22PayloadHeaderLen]byte
	b[0] = byte(h.PCounter >> 16)
	b[1] = byte(h.PCounter >> 8)
	b[2] = byte(h.PCounter)

	flags := h.TransmissionMode & 0x3
	if h.Interlace {
		flags |= 1 << 2
	}
	if h.FieldID {
		flags |= 1 << 3
	}
	if h.KMode {
		flags |= 1 << 4
	}
	b[3] = flags | (h.FType << 5)

	b[4] = h.SepCounter
	b[5] = h.FCounter & 0x1f
	if h.LastPacket {
		b[5] |= 1 << 7
	}
	return b
}

// PlanST22 splits a codestream (boxes + compressed bytes, when the
// caller has prepended them) into maxPayload-sized chunks, one
// payload-header envelope each. pCounter resets to 0 at codestream
// start; fCounter is frameIdx mod 32 (spec.md scenario 3).
func PlanST22(codestreamLen, maxPayload int, frameIdx int) []ST22PayloadHeader {
	payloadBudget := maxPayload - ST22PayloadHeaderLen
	if payloadBudget <= 0 {
		payloadBudget = 1
	}
	n := ceilDiv(codestreamLen, payloadBudget)
	if n < 1 {
		n = 1
	}
	headers := make([]ST22PayloadHeader, n)
	fCounter := uint8(frameIdx % 32)
	for i := 0; i < n; i++ {
		headers[i] = ST22PayloadHeader{
			PCounter:   uint32(i),
			SepCounter: 0,
			FCounter:   fCounter,
			LastPacket: i == n-1,
		}
	}
	return headers
}
