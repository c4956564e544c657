package codegen

import "encoding/binary"

// codeBuffer is the emitter's ordered, random-access byte sequence (§3
// "Code buffer"). Emission always appends; patch sites rewrite four bytes
// in place once a forward-reference target becomes known.
type codeBuffer struct {
	bytes []byte
}

func newCodeBuffer() *codeBuffer {
	return &codeBuffer{bytes: make([]byte, 0, 256)}
}

func (b *codeBuffer) len() int { return len(b.bytes) }

// pushBytes appends raw bytes (§4.1 "push_bytes").
func (b *codeBuffer) pushBytes(bs ...byte) {
	b.bytes = append(b.bytes, bs...)
}

// pushU32 appends v little-endian (§4.1 "push_u32").
func (b *codeBuffer) pushU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.bytes = append(b.bytes, tmp[:]...)
}

// pushU64 appends v little-endian (§4.1 "push_u64").
func (b *codeBuffer) pushU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.bytes = append(b.bytes, tmp[:]...)
}

// patchU32 overwrites the 4 bytes at offset with v, little-endian (§4.1
// "patch_u32").
func (b *codeBuffer) patchU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(b.bytes[offset:offset+4], v)
}

// placeholder32 appends a 4-byte placeholder immediate and returns its
// offset, to be overwritten later by patchU32 once a target is known.
func (b *codeBuffer) placeholder32() int {
	off := b.len()
	b.pushU32(0)
	return off
}

// bytesCopy returns an independent copy of the accumulated bytes, so that
// further emission on this buffer (e.g. a subsequent Compile call reusing
// the generator) can never mutate a slice already handed to a caller.
func (b *codeBuffer) bytesCopy() []byte {
	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out
}

// displacement returns the 32-bit two's-complement displacement for slot
// (§4.1 "displacement"): negative for a local or register-passed-argument
// slot (positive index), positive for a caller-stack argument slot
// (negative index).
func displacement(slot int) int32 {
	return int32(-slot * 8)
}

// relative32 returns the x86 rel32 jump delta: to, measured from the
// instruction following the 4-byte immediate at fromEnd (§4.1
// "relative32").
func relative32(fromEnd, to int) int32 {
	return int32(to - fromEnd)
}
