package types

import "fmt"

// Opcode values are positional and shared with every producer of instruction
// streams; never reorder them.
type Opcode uint8

const (
	LOAD_IMM        Opcode = 0  // R(x) = zext(yz)
	LOAD_UPPER      Opcode = 1  // R(x) |= yz << 16
	MOVE_REG        Opcode = 2  // R(x) = R(y)
	LOAD_STACK      Opcode = 3  // R(x) = stack[R(y) + z]
	STORE_STACK     Opcode = 4  // stack[R(x) + y] = R(z)
	ADD             Opcode = 5  // R(x) = R(y) + R(z)
	SUB             Opcode = 6  // R(x) = R(y) - R(z)
	INC             Opcode = 7  // R(x) += zext(yz)
	MUL             Opcode = 8  // R(x) = R(y) * R(z)
	DIV             Opcode = 9  // R(x) = R(y) / R(z)
	MOD             Opcode = 10 // R(x) = R(y) % R(z)
	NAND            Opcode = 11 // R(x) = ^(R(y) & R(z))
	SHL             Opcode = 12 // R(x) = R(y) << R(z)
	SHR             Opcode = 13 // R(x) = R(y) >> R(z)
	PRINT           Opcode = 14 // print text at R(x)
	FRAME           Opcode = 15 // frame += sext(yz)
	CLOSURE_MAKE    Opcode = 16 // aux = alloc(); R(x) = tag(closure, yz)
	CLOSURE_RETAIN  Opcode = 17 // retain(R(x) >> 24)
	CLOSURE_RELEASE Opcode = 18 // release(R(x) >> 24)
	SET_AUX         Opcode = 19 // aux = closure slot x
	CALL            Opcode = 20 // call yz with frame x, null closure
	CALL_IND        Opcode = 21 // call descriptor R(y) with frame x
	RET             Opcode = 22
	BREAK           Opcode = 23

	OpcodeCount = 24
)

var opcodeNames = [OpcodeCount]string{
	LOAD_IMM:        "LOAD_IMM",
	LOAD_UPPER:      "LOAD_UPPER",
	MOVE_REG:        "MOVE_REG",
	LOAD_STACK:      "LOAD_STACK",
	STORE_STACK:     "STORE_STACK",
	ADD:             "ADD",
	SUB:             "SUB",
	INC:             "INC",
	MUL:             "MUL",
	DIV:             "DIV",
	MOD:             "MOD",
	NAND:            "NAND",
	SHL:             "SHL",
	SHR:             "SHR",
	PRINT:           "PRINT",
	FRAME:           "FRAME",
	CLOSURE_MAKE:    "CLOSURE_MAKE",
	CLOSURE_RETAIN:  "CLOSURE_RETAIN",
	CLOSURE_RELEASE: "CLOSURE_RELEASE",
	SET_AUX:         "SET_AUX",
	CALL:            "CALL",
	CALL_IND:        "CALL_IND",
	RET:             "RET",
	BREAK:           "BREAK",
}

// Valid reports whether op is a recognised opcode.
func (op Opcode) Valid() bool {
	return op < OpcodeCount
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OP_0x%02x", uint8(op))
	}
	return opcodeNames[op]
}

// Selector picks one of the four register windows.
type Selector uint8

const (
	SelectorFrame   Selector = 0
	SelectorClosure Selector = 1
	SelectorAux     Selector = 2
	SelectorGlobal  Selector = 3
)

func (s Selector) String() string {
	switch s & 3 {
	case SelectorFrame:
		return "f"
	case SelectorClosure:
		return "c"
	case SelectorAux:
		return "a"
	default:
		return "g"
	}
}

// MaxOffset is the largest offset a register reference can address.
const MaxOffset = 63

// RegRef packs a 6-bit offset (low bits) with a 2-bit window selector (high bits).
type RegRef uint8

// NewRegRef builds a register reference; offset is truncated to 6 bits.
func NewRegRef(sel Selector, offset uint8) RegRef {
	return RegRef(uint8(sel&3)<<6 | offset&MaxOffset)
}

func Frame(offset uint8) RegRef   { return NewRegRef(SelectorFrame, offset) }
func Closure(offset uint8) RegRef { return NewRegRef(SelectorClosure, offset) }
func Aux(offset uint8) RegRef     { return NewRegRef(SelectorAux, offset) }
func Global(offset uint8) RegRef  { return NewRegRef(SelectorGlobal, offset) }

func (r RegRef) Selector() Selector {
	return Selector(r >> 6)
}

func (r RegRef) Offset() uint8 {
	return uint8(r) & MaxOffset
}

func (r RegRef) String() string {
	return fmt.Sprintf("%s%d", r.Selector(), r.Offset())
}

// Instruction is one packed word: opcode in bits 0-7, x in 8-15 and the
// 16-bit operand yz in 16-31. The operand doubles as two bytes y (16-23)
// and z (24-31).
type Instruction struct {
	Op Opcode
	X  RegRef
	YZ uint16
}

// NewInstruction builds an instruction with a 16-bit operand.
func NewInstruction(op Opcode, x RegRef, yz uint16) Instruction {
	return Instruction{Op: op, X: x, YZ: yz}
}

// NewInstructionXYZ builds an instruction whose operand is split into y and z.
func NewInstructionXYZ(op Opcode, x, y, z RegRef) Instruction {
	return Instruction{Op: op, X: x, YZ: uint16(y) | uint16(z)<<8}
}

func (i Instruction) Y() RegRef {
	return RegRef(i.YZ)
}

func (i Instruction) Z() RegRef {
	return RegRef(i.YZ >> 8)
}

// YZSigned is the operand read as a signed 16-bit value.
func (i Instruction) YZSigned() int16 {
	return int16(SignExtend(i.YZ, 16))
}

// Word packs the instruction.
func (i Instruction) Word() Word {
	return Word(uint32(i.Op) | uint32(i.X)<<8 | uint32(i.YZ)<<16)
}

// DecodeInstruction unpacks a word. It never fails; validity of the opcode
// is checked at dispatch.
func DecodeInstruction(w Word) Instruction {
	u := uint32(w)
	return Instruction{
		Op: Opcode(u),
		X:  RegRef(u >> 8),
		YZ: uint16(u >> 16),
	}
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %02x %02x %02x", i.Op, uint8(i.X), uint8(i.Y()), uint8(i.Z()))
}
