// Package tf implements a compiler and bytecode evaluator for the
// title-formatting language used to render per-track display strings
// (column cells, window titles, status lines) from track metadata.
//
// A script such as `%artist% - %title%` is compiled once to a compact
// bytecode program and evaluated repeatedly, once per display refresh
// per track, against a Context bound to a track and its surroundings.
package tf

import "encoding/binary"

// nodeKind selects what follows a sentinel byte in a compiled program.
// The sentinel itself is the zero byte; a literal byte b != 0 is emitted
// verbatim and is never mistaken for a sentinel.
type nodeKind byte

const (
	sentinel byte = 0x00

	nodeCall       nodeKind = 0x01
	nodeField      nodeKind = 0x02
	nodeIfDefined  nodeKind = 0x03
	nodeLiteralRun nodeKind = 0x04
)

// lengthPrefixBytes is the size of the little-endian length word that
// precedes every compiled program.
const lengthPrefixBytes = 4

// trailerBytes is the defensive zero padding appended after the program.
const trailerBytes = 4

// Bytecode is an immutable, length-prefixed compiled program. Layout:
// 4-byte little-endian length N, N bytes of program, 4 bytes of zero
// padding. Re-used across many Evaluate calls; owned by the caller once
// Compile returns.
type Bytecode struct {
	buf []byte
}

// newBytecode frames program (the raw node sequence, no prefix/trailer yet)
// into the on-wire layout described above.
func newBytecode(program []byte) *Bytecode {
	out := make([]byte, lengthPrefixBytes+len(program)+trailerBytes)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(program)))
	copy(out[4:], program)
	return &Bytecode{buf: out}
}

// program returns the node bytes between the length prefix and the trailer.
func (b *Bytecode) program() []byte {
	n := binary.LittleEndian.Uint32(b.buf[0:4])
	return b.buf[lengthPrefixBytes : lengthPrefixBytes+int(n)]
}

// Len reports the number of program bytes (excluding prefix/trailer).
func (b *Bytecode) Len() int {
	return len(b.program())
}

// Bytes returns the full on-wire representation (prefix + program +
// trailer), suitable for persisting and later re-wrapping with FromBytes.
func (b *Bytecode) Bytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// FromBytes re-wraps a previously persisted bytecode buffer (as produced by
// Bytes) without recompiling. The caller is responsible for only feeding
// bytes that were produced by a Compile call against a registry with the
// same function-index ordering (see registry in registry.go).
func FromBytes(buf []byte) (*Bytecode, error) {
	if len(buf) < lengthPrefixBytes+trailerBytes {
		return nil, ErrCorruptBytecode
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if lengthPrefixBytes+int(n)+trailerBytes > len(buf) {
		return nil, ErrCorruptBytecode
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return &Bytecode{buf: out}, nil
}
