package lcore

import "encoding/binary"

// decodeEntry/encodeEntry translate between the mmap'd byte layout and the
// Entry struct. A manual layout (rather than unsafe struct overlay) keeps
// the shared-segment format independent of Go's struct padding rules,
// since that layout is also a durable on-disk format shared across
// process restarts.
func decodeEntry(b []byte) *Entry {
	e := &Entry{}
	e.Active = b[0] != 0
	e.PID = int32(binary.LittleEndian.Uint32(b[4:8]))
	copy(e.Hostname[:], b[8:72])
	copy(e.User[:], b[72:104])
	copy(e.Comm[:], b[104:120])
	copy(e.Role[:], b[120:136])
	return e
}

func encodeEntry(b []byte, e *Entry) {
	for i := range b {
		b[i] = 0
	}
	if e.Active {
		b[0] = 1
	}
	binary.LittleEndian.PutUint32(b[4:8], uint32(e.PID))
	copy(b[8:72], e.Hostname[:])
	copy(b[72:104], e.User[:])
	copy(b[104:120], e.Comm[:])
	copy(b[120:136], e.Role[:])
}
