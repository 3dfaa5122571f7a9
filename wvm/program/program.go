package program

import (
	"github.com/colorfulnotion/regwin/types"
)

// Program is a loadable instruction stream. Its last word is the trailer
// whose operand names the entry address.
type Program struct {
	Code []types.Word
}

func NewProgram(code []types.Word) *Program {
	return &Program{Code: code}
}

// Entry returns the entry address carried by the trailer.
func (p *Program) Entry() (uint16, bool) {
	if len(p.Code) == 0 {
		return 0, false
	}
	return types.DecodeInstruction(p.Code[len(p.Code)-1]).YZ, true
}

// Body returns every word before the trailer.
func (p *Program) Body() []types.Word {
	if len(p.Code) == 0 {
		return nil
	}
	return p.Code[:len(p.Code)-1]
}

// Builder appends instructions in order. Addresses are word indices, so the
// address of the next instruction is Len().
type Builder struct {
	code []types.Word
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Len is the address the next emitted word will occupy.
func (b *Builder) Len() uint16 {
	return uint16(len(b.code))
}

func (b *Builder) Emit(inst types.Instruction) *Builder {
	b.code = append(b.code, inst.Word())
	return b
}

// Data appends raw words.
func (b *Builder) Data(words ...types.Word) *Builder {
	b.code = append(b.code, words...)
	return b
}

// Text appends s packed four bytes per word, little-endian, NUL terminated.
func (b *Builder) Text(s string) *Builder {
	b.code = append(b.code, PackText(s)...)
	return b
}

func (b *Builder) LoadImm(x types.RegRef, v uint16) *Builder {
	return b.Emit(types.NewInstruction(types.LOAD_IMM, x, v))
}

func (b *Builder) LoadUpper(x types.RegRef, v uint16) *Builder {
	return b.Emit(types.NewInstruction(types.LOAD_UPPER, x, v))
}

// LoadConst loads any 32-bit constant, adding LOAD_UPPER only when the high
// half is non-zero.
func (b *Builder) LoadConst(x types.RegRef, v int32) *Builder {
	u := uint32(v)
	b.LoadImm(x, uint16(u))
	if hi := uint16(u >> 16); hi != 0 {
		b.LoadUpper(x, hi)
	}
	return b
}

func (b *Builder) Move(x, y types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.MOVE_REG, x, y, 0))
}

// LoadStack emits R(x) = stack[R(y) + disp].
func (b *Builder) LoadStack(x, y types.RegRef, disp uint8) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.LOAD_STACK, x, y, types.RegRef(disp)))
}

// StoreStack emits stack[R(x) + disp] = R(z).
func (b *Builder) StoreStack(x types.RegRef, disp uint8, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.STORE_STACK, x, types.RegRef(disp), z))
}

func (b *Builder) Add(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.ADD, x, y, z))
}
func (b *Builder) Sub(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.SUB, x, y, z))
}
func (b *Builder) Mul(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.MUL, x, y, z))
}
func (b *Builder) Div(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.DIV, x, y, z))
}
func (b *Builder) Mod(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.MOD, x, y, z))
}
func (b *Builder) Nand(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.NAND, x, y, z))
}
func (b *Builder) Shl(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.SHL, x, y, z))
}
func (b *Builder) Shr(x, y, z types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.SHR, x, y, z))
}

func (b *Builder) Inc(x types.RegRef, v uint16) *Builder {
	return b.Emit(types.NewInstruction(types.INC, x, v))
}

func (b *Builder) Print(x types.RegRef) *Builder {
	return b.Emit(types.NewInstruction(types.PRINT, x, 0))
}

// Frame moves the frame window by delta words.
func (b *Builder) Frame(delta int16) *Builder {
	return b.Emit(types.NewInstruction(types.FRAME, 0, uint16(delta)))
}

func (b *Builder) ClosureMake(x types.RegRef, payload uint16) *Builder {
	return b.Emit(types.NewInstruction(types.CLOSURE_MAKE, x, payload))
}

func (b *Builder) Retain(x types.RegRef) *Builder {
	return b.Emit(types.NewInstruction(types.CLOSURE_RETAIN, x, 0))
}

func (b *Builder) Release(x types.RegRef) *Builder {
	return b.Emit(types.NewInstruction(types.CLOSURE_RELEASE, x, 0))
}

// SetAux points the auxiliary window at closure slot idx.
func (b *Builder) SetAux(idx uint8) *Builder {
	return b.Emit(types.NewInstruction(types.SET_AUX, types.RegRef(idx), 0))
}

// Call emits a call to entry with the null closure, reserving frame words.
func (b *Builder) Call(frame uint8, entry uint16) *Builder {
	return b.Emit(types.NewInstruction(types.CALL, types.RegRef(frame), entry))
}

// CallInd emits a call through the function descriptor held in R(y).
func (b *Builder) CallInd(frame uint8, y types.RegRef) *Builder {
	return b.Emit(types.NewInstructionXYZ(types.CALL_IND, types.RegRef(frame), y, 0))
}

func (b *Builder) Ret() *Builder {
	return b.Emit(types.NewInstruction(types.RET, 0, 0))
}

func (b *Builder) Break() *Builder {
	return b.Emit(types.NewInstruction(types.BREAK, 0, 0))
}

// Build appends the trailer naming entry and returns the stream.
func (b *Builder) Build(entry uint16) []types.Word {
	out := make([]types.Word, 0, len(b.code)+1)
	out = append(out, b.code...)
	return append(out, types.NewInstruction(types.CALL, 0, entry).Word())
}

// PackText packs s into words, four bytes each, little-endian, with at least
// one NUL byte at the end.
func PackText(s string) []types.Word {
	n := len(s)/4 + 1
	words := make([]types.Word, n)
	for i := 0; i < len(s); i++ {
		words[i/4] |= types.Word(uint32(s[i]) << (8 * (i % 4)))
	}
	return words
}
