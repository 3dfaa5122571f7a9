package types

import (
	"encoding/binary"

	"golang.org/x/exp/constraints"
)

// Word is the unit of storage for registers, stack slots and closure slots.
// The same 32 bits also carry one packed Instruction.
type Word int32

const (
	closureShift = 24
	payloadMask  = 1<<closureShift - 1
)

// ZeroExtend widens an unsigned operand to a word without sign extension.
func ZeroExtend[T constraints.Unsigned](v T) Word {
	return Word(uint32(v))
}

// SignExtend interprets the low n bits of v as a two's complement value.
func SignExtend[T constraints.Integer](v T, n uint) int32 {
	shift := 32 - n
	return int32(uint32(v)<<shift) >> shift
}

// TagClosure packs a closure index into the top 8 bits of a word, keeping the
// low 24 bits of payload.
func TagClosure(index uint8, payload uint32) Word {
	return Word(uint32(index)<<closureShift | payload&payloadMask)
}

// ClosureIndex returns the top 8 bits of w.
func (w Word) ClosureIndex() uint8 {
	return uint8(uint32(w) >> closureShift)
}

// Payload returns the low 24 bits of a tagged closure value.
func (w Word) Payload() uint32 {
	return uint32(w) & payloadMask
}

// Bytes returns the little-endian byte image of w.
func (w Word) Bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(w))
	return b
}

// FunctionDescriptor is a callable bound to a captured closure. It occupies
// one word: entry address in bits 0-15, reserved in 16-23, closure in 24-31,
// so a tagged closure value whose payload is an entry address is directly
// callable.
type FunctionDescriptor struct {
	Address  uint16
	Reserved uint8
	Closure  uint8
}

// DecodeFunction unpacks a function descriptor from a word.
func DecodeFunction(w Word) FunctionDescriptor {
	u := uint32(w)
	return FunctionDescriptor{
		Address:  uint16(u),
		Reserved: uint8(u >> 16),
		Closure:  uint8(u >> closureShift),
	}
}

// Word packs the descriptor.
func (f FunctionDescriptor) Word() Word {
	return Word(uint32(f.Address) | uint32(f.Reserved)<<16 | uint32(f.Closure)<<closureShift)
}
