package wvm

import (
	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvmerrors"
)

func init() {
	initDispatchTable()
}

// WvmTrace enables per-instruction dumps on the wvm_trace log module.
var WvmTrace = false

type OpcodeHandler func(m *Machine, inst types.Instruction)

var dispatchTable [256]OpcodeHandler

func initDispatchTable() {
	for i := range dispatchTable {
		dispatchTable[i] = handleUnknown
	}

	// register and immediate
	dispatchTable[types.LOAD_IMM] = handleLOAD_IMM
	dispatchTable[types.LOAD_UPPER] = handleLOAD_UPPER
	dispatchTable[types.INC] = handleINC

	// register to register
	dispatchTable[types.MOVE_REG] = handleMOVE_REG
	dispatchTable[types.LOAD_STACK] = handleLOAD_STACK
	dispatchTable[types.STORE_STACK] = handleSTORE_STACK

	// three registers
	dispatchTable[types.ADD] = handleADD
	dispatchTable[types.SUB] = handleSUB
	dispatchTable[types.MUL] = handleMUL
	dispatchTable[types.DIV] = handleDIV
	dispatchTable[types.MOD] = handleMOD
	dispatchTable[types.NAND] = handleNAND
	dispatchTable[types.SHL] = handleSHL
	dispatchTable[types.SHR] = handleSHR

	// windows and closures
	dispatchTable[types.PRINT] = handlePRINT
	dispatchTable[types.FRAME] = handleFRAME
	dispatchTable[types.CLOSURE_MAKE] = handleCLOSURE_MAKE
	dispatchTable[types.CLOSURE_RETAIN] = handleCLOSURE_RETAIN
	dispatchTable[types.CLOSURE_RELEASE] = handleCLOSURE_RELEASE
	dispatchTable[types.SET_AUX] = handleSET_AUX

	// control
	dispatchTable[types.CALL] = handleCALL
	dispatchTable[types.CALL_IND] = handleCALL_IND
	dispatchTable[types.RET] = handleRET
	dispatchTable[types.BREAK] = handleBREAK
}

// step fetches the instruction at pc, offers it to the hook and dispatches.
func (m *Machine) step() {
	if m.pc < 0 || m.pc >= StackSize {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return
	}
	m.inst = types.DecodeInstruction(m.stack[m.pc])
	if m.hook != nil {
		if code := m.hook(uint16(m.pc), m.inst); code != 0 {
			m.halt(HaltCode(code))
			return
		}
	}
	dispatchTable[m.inst.Op](m, m.inst)
}

func handleUnknown(m *Machine, inst types.Instruction) {
	m.trap(HaltDecodeError, wvmerrors.ErrMDecode)
}

func handleLOAD_IMM(m *Machine, inst types.Instruction) {
	v := types.ZeroExtend(inst.YZ)
	if !m.write(inst.X, v) {
		return
	}
	dumpLoadImm("LOAD_IMM", inst.X, v)
	m.pc++
}

func handleLOAD_UPPER(m *Machine, inst types.Instruction) {
	p := m.cell(inst.X)
	if p == nil {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return
	}
	*p |= types.Word(uint32(inst.YZ) << 16)
	dumpLoadImm("LOAD_UPPER", inst.X, *p)
	m.pc++
}

func handleINC(m *Machine, inst types.Instruction) {
	p := m.cell(inst.X)
	if p == nil {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return
	}
	*p += types.ZeroExtend(inst.YZ)
	dumpLoadImm("INC", inst.X, *p)
	m.pc++
}

func handleMOVE_REG(m *Machine, inst types.Instruction) {
	v, ok := m.read(inst.Y())
	if !ok || !m.write(inst.X, v) {
		return
	}
	dumpMov(inst.X, inst.Y(), v)
	m.pc++
}

func handleLOAD_STACK(m *Machine, inst types.Instruction) {
	base, ok := m.read(inst.Y())
	if !ok {
		return
	}
	src := m.stackCell(base, uint8(inst.Z()))
	if src == nil || !m.write(inst.X, *src) {
		return
	}
	dumpStack("LOAD_STACK", inst.X, base, uint8(inst.Z()), *src)
	m.pc++
}

func handleSTORE_STACK(m *Machine, inst types.Instruction) {
	base, ok := m.read(inst.X)
	if !ok {
		return
	}
	v, ok := m.read(inst.Z())
	if !ok {
		return
	}
	dst := m.stackCell(base, uint8(inst.Y()))
	if dst == nil {
		return
	}
	*dst = v
	dumpStack("STORE_STACK", inst.Z(), base, uint8(inst.Y()), v)
	m.pc++
}

// threeReg reads R(y) and R(z) for the arithmetic and bitwise handlers.
func (m *Machine) threeReg(inst types.Instruction) (types.Word, types.Word, bool) {
	a, ok := m.read(inst.Y())
	if !ok {
		return 0, 0, false
	}
	b, ok := m.read(inst.Z())
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

func (m *Machine) setResult(name string, inst types.Instruction, result types.Word) {
	if !m.write(inst.X, result) {
		return
	}
	dumpThreeRegOp(name, inst.X, inst.Y(), inst.Z(), result)
	m.pc++
}

func handleADD(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	m.setResult("+", inst, a+b)
}

func handleSUB(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	m.setResult("-", inst, a-b)
}

func handleMUL(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	m.setResult("*", inst, a*b)
}

func handleDIV(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	if b == 0 {
		m.trap(HaltDivideByZero, wvmerrors.ErrMDivideByZero)
		return
	}
	// MinInt32 / -1 wraps to MinInt32
	m.setResult("/", inst, a/b)
}

func handleMOD(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	if b == 0 {
		m.trap(HaltDivideByZero, wvmerrors.ErrMDivideByZero)
		return
	}
	m.setResult("%", inst, a%b)
}

func handleNAND(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	m.setResult("nand", inst, ^(a & b))
}

func handleSHL(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	var result types.Word
	if shift := uint32(b); shift < 32 {
		result = a << shift
	}
	m.setResult("<<", inst, result)
}

func handleSHR(m *Machine, inst types.Instruction) {
	a, b, ok := m.threeReg(inst)
	if !ok {
		return
	}
	shift := uint32(b)
	if shift > 31 {
		shift = 31
	}
	m.setResult(">>", inst, a>>shift)
}

func handlePRINT(m *Machine, inst types.Instruction) {
	text, ok := m.readText(inst.X)
	if !ok {
		return
	}
	if m.printer != nil {
		m.printer(text)
	}
	m.pc++
}

func handleFRAME(m *Machine, inst types.Instruction) {
	m.frame += int(types.SignExtend(inst.YZ, 16))
	dumpWindows("FRAME", m)
	m.pc++
}

func handleCLOSURE_MAKE(m *Machine, inst types.Instruction) {
	idx, err := m.pool.Allocate()
	if err != nil {
		m.trap(HaltClosureExhausted, err)
		return
	}
	clear(m.closures[idx][:])
	m.aux = idx
	if !m.write(inst.X, types.TagClosure(idx, uint32(inst.YZ))) {
		return
	}
	dumpClosure("CLOSURE_MAKE", idx, m.pool.RefCount(idx))
	m.pc++
}

func handleCLOSURE_RETAIN(m *Machine, inst types.Instruction) {
	v, ok := m.read(inst.X)
	if !ok {
		return
	}
	idx := v.ClosureIndex()
	if err := m.pool.Retain(idx); err != nil {
		m.trap(HaltRefcountViolation, err)
		return
	}
	dumpClosure("CLOSURE_RETAIN", idx, m.pool.RefCount(idx))
	m.pc++
}

func handleCLOSURE_RELEASE(m *Machine, inst types.Instruction) {
	v, ok := m.read(inst.X)
	if !ok {
		return
	}
	idx := v.ClosureIndex()
	freed, err := m.pool.Release(idx)
	if err != nil {
		m.trap(HaltRefcountViolation, err)
		return
	}
	if freed {
		clear(m.closures[idx][:])
	}
	dumpClosure("CLOSURE_RELEASE", idx, m.pool.RefCount(idx))
	m.pc++
}

func handleSET_AUX(m *Machine, inst types.Instruction) {
	m.aux = uint8(inst.X)
	dumpWindows("SET_AUX", m)
	m.pc++
}

func handleCALL(m *Machine, inst types.Instruction) {
	m.call(inst.YZ, 0, uint8(inst.X))
}

func handleCALL_IND(m *Machine, inst types.Instruction) {
	v, ok := m.read(inst.Y())
	if !ok {
		return
	}
	fn := types.DecodeFunction(v)
	m.call(fn.Address, fn.Closure, uint8(inst.X))
}

func handleRET(m *Machine, inst types.Instruction) {
	m.ret()
}

func handleBREAK(m *Machine, inst types.Instruction) {
	m.pc++
}

func dumpLoadImm(name string, x types.RegRef, v types.Word) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, name, "dst", x.String(), "value", int32(v))
}

func dumpMov(x, y types.RegRef, v types.Word) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, "MOVE_REG", "dst", x.String(), "src", y.String(), "value", int32(v))
}

func dumpStack(name string, r types.RegRef, base types.Word, disp uint8, v types.Word) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, name, "reg", r.String(), "addr", int64(base)+int64(disp), "value", int32(v))
}

func dumpThreeRegOp(opname string, x, y, z types.RegRef, result types.Word) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, "op", "expr", x.String()+" = "+y.String()+" "+opname+" "+z.String(), "result", int32(result))
}

func dumpWindows(name string, m *Machine) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, name, "frame", m.frame, "closure", m.closure, "aux", m.aux, "global", m.global)
}

func dumpClosure(name string, idx uint8, refs uint32) {
	if !WvmTrace {
		return
	}
	log.Trace(log.TraceMonitoring, name, "closure", idx, "refs", refs)
}
