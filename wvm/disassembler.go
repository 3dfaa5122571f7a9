package wvm

import (
	"fmt"

	"github.com/colorfulnotion/regwin/types"
)

// InstrDef describes how one opcode's operands are rendered.
type InstrDef struct {
	Name   string
	Format func(inst types.Instruction) string
}

var instrTable map[types.Opcode]InstrDef

func init() {
	instrTable = make(map[types.Opcode]InstrDef, types.OpcodeCount)
	regImm := func(inst types.Instruction) string {
		return fmt.Sprintf("%s %d", inst.X, inst.YZ)
	}
	twoReg := func(inst types.Instruction) string {
		return fmt.Sprintf("%s %s", inst.X, inst.Y())
	}
	threeReg := func(inst types.Instruction) string {
		return fmt.Sprintf("%s %s %s", inst.X, inst.Y(), inst.Z())
	}
	oneReg := func(inst types.Instruction) string {
		return inst.X.String()
	}
	none := func(inst types.Instruction) string { return "" }

	for _, op := range []types.Opcode{types.LOAD_IMM, types.LOAD_UPPER, types.INC, types.CLOSURE_MAKE} {
		instrTable[op] = InstrDef{Name: op.String(), Format: regImm}
	}
	instrTable[types.MOVE_REG] = InstrDef{Name: "MOVE_REG", Format: twoReg}
	instrTable[types.LOAD_STACK] = InstrDef{Name: "LOAD_STACK", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("%s [%s+%d]", inst.X, inst.Y(), uint8(inst.Z()))
	}}
	instrTable[types.STORE_STACK] = InstrDef{Name: "STORE_STACK", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("[%s+%d] %s", inst.X, uint8(inst.Y()), inst.Z())
	}}
	for _, op := range []types.Opcode{types.ADD, types.SUB, types.MUL, types.DIV, types.MOD, types.NAND, types.SHL, types.SHR} {
		instrTable[op] = InstrDef{Name: op.String(), Format: threeReg}
	}
	for _, op := range []types.Opcode{types.PRINT, types.CLOSURE_RETAIN, types.CLOSURE_RELEASE} {
		instrTable[op] = InstrDef{Name: op.String(), Format: oneReg}
	}
	instrTable[types.FRAME] = InstrDef{Name: "FRAME", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("%+d", inst.YZSigned())
	}}
	instrTable[types.SET_AUX] = InstrDef{Name: "SET_AUX", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("#%d", uint8(inst.X))
	}}
	instrTable[types.CALL] = InstrDef{Name: "CALL", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("@%d frame=%d", inst.YZ, uint8(inst.X))
	}}
	instrTable[types.CALL_IND] = InstrDef{Name: "CALL_IND", Format: func(inst types.Instruction) string {
		return fmt.Sprintf("%s frame=%d", inst.Y(), uint8(inst.X))
	}}
	instrTable[types.RET] = InstrDef{Name: "RET", Format: none}
	instrTable[types.BREAK] = InstrDef{Name: "BREAK", Format: none}
}

// DisassembleInstruction renders one instruction without its address.
func DisassembleInstruction(inst types.Instruction) string {
	def, ok := instrTable[inst.Op]
	if !ok {
		return fmt.Sprintf(".word 0x%08x", uint32(inst.Word()))
	}
	if args := def.Format(inst); args != "" {
		return def.Name + " " + args
	}
	return def.Name
}

// Disassemble renders one line per word. The last word is the entry trailer.
func Disassemble(code []types.Word) []string {
	lines := make([]string, 0, len(code))
	for i, w := range code {
		inst := types.DecodeInstruction(w)
		if i == len(code)-1 {
			lines = append(lines, fmt.Sprintf("%4d: entry @%d", i, inst.YZ))
			continue
		}
		lines = append(lines, fmt.Sprintf("%4d: %s", i, DisassembleInstruction(inst)))
	}
	return lines
}
