package main

import (
	"math"

	"github.com/ehrlich-b/st2110go/internal/wire"
)

// barsGenerator fills a frame buffer with a byte ramp (each byte is its
// offset plus the frame index, mod 256), a cheap stand-in for a real video source that still changes per frame so
// a receiver can tell frames apart.
type barsGenerator struct {
	width, height int
	pg            wire.PixelGroup
	buf           []byte
}

func newBarsGenerator(width, height int, pg wire.PixelGroup) *barsGenerator {
	return &barsGenerator{
		width: width, height: height, pg: pg,
		buf: make([]byte, wire.TotalFrameBytes(width, height, pg)),
	}
}

func (g *barsGenerator) Frame(frameIdx int) []byte {
	shift := byte(frameIdx % 256)
	for i := range g.buf {
		g.buf[i] = byte(i) + shift
	}
	return g.buf
}

// codestreamGenerator produces a minimal, monotonically growing byte
// blob standing in for a JPEG XS codestream (ST22).
type codestreamGenerator struct {
	buf []byte
}

func newCodestreamGenerator() *codestreamGenerator {
	return &codestreamGenerator{buf: make([]byte, 4096)}
}

func (g *codestreamGenerator) Frame(frameIdx int) []byte {
	for i := range g.buf {
		g.buf[i] = byte(frameIdx + i)
	}
	return g.buf
}

// silenceGenerator emits a quiet sine wave instead of true silence, so a
// receiver sees a signal rather than an all-zero payload.
type silenceGenerator struct {
	packetLen int
	buf       []byte
	phase     float64
}

func newSilenceGenerator(packetLen int) *silenceGenerator {
	return &silenceGenerator{packetLen: packetLen, buf: make([]byte, packetLen)}
}

func (g *silenceGenerator) Frame(frameIdx int) []byte {
	const amplitude = 1000
	for i := 0; i+1 < len(g.buf); i += 2 {
		sample := int16(amplitude * math.Sin(g.phase))
		g.buf[i] = byte(sample)
		g.buf[i+1] = byte(sample >> 8)
		g.phase += 0.05
	}
	return g.buf
}

// ancGenerator emits one heartbeat ANC packet per frame carrying the
// frame index as its sole data word, enough to exercise the ST40 path
// without a real captioning/timecode source.
type ancGenerator struct{}

func newANCGenerator() *ancGenerator { return &ancGenerator{} }

func (g *ancGenerator) Frame(frameIdx int) wire.ANCFrame {
	return wire.ANCFrame{
		Packets: []wire.ANCPacket{
			{
				LineNumber: 9,
				DID:        0x60, SDID: 0x60,
				DataCount: 1,
				UDW:       []uint16{uint16(frameIdx)},
			},
		},
	}
}

// fastMetadataGenerator emits one ST41 data item per frame, similarly a
// heartbeat rather than real metadata.
type fastMetadataGenerator struct{}

func newFastMetadataGenerator() *fastMetadataGenerator { return &fastMetadataGenerator{} }

func (g *fastMetadataGenerator) Frame(frameIdx int) []wire.ST41DataItem {
	return []wire.ST41DataItem{
		{DataItemType: 1, DataItemK: 0, Payload: []byte{byte(frameIdx)}},
	}
}
