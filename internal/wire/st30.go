package wire

// ST30Format is the RFC 3550 PCM payload format byte st2110-30 fixes at
// 0x60 (spec.md §6.4).
const ST30Format = 0x60

// PacketTimeUS enumerates the three packet durations ST30 allows.
type PacketTimeUS int

const (
	PacketTime1ms   PacketTimeUS = 1000
	PacketTime125us PacketTimeUS = 125
	PacketTime80us  PacketTimeUS = 80
)

// AudioParams describes one ST30 session's fixed per-packet geometry
// (spec.md scenario 4: "sample_num=48, sample_size=3, channel=2,
// pkt_len=288, pkts_per_frame=1").
type AudioParams struct {
	SampleRateHz int
	Channels     int
	SampleSize   int // bytes per sample per channel (2=16bit, 3=24bit, 4=32bit)
	PacketTime   PacketTimeUS
}

// SampleNum is the number of samples (per channel) carried in one
// packet at this packet time and sample rate.
func (p AudioParams) SampleNum() int {
	return p.SampleRateHz * int(p.PacketTime) / 1_000_000
}

// PacketLen is the PCM payload length in bytes.
func (p AudioParams) PacketLen() int {
	return p.SampleNum() * p.SampleSize * p.Channels
}

// FrameTimeNS is the per-packet spacing, equal to frame time for ST30
// (spec.md scenario 4: "trs = frame_time_ns").
func (p AudioParams) FrameTimeNS() float64 {
	return float64(p.PacketTime) * 1000
}
