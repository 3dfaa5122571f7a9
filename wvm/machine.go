package wvm

import (
	"fmt"
	"sync/atomic"

	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/types"
)

const (
	StackSize     = 1 << 16 // words in the data stack
	ClosureCount  = 256     // closure slots, index 0 is the null closure
	ClosureSize   = 64      // words per closure slot
	DefaultBudget = 1 << 12 // instructions per run
)

// HaltCode is the outcome of a run: 0 for success, negative for a machine
// failure and positive for a code returned by the instruction hook.
type HaltCode int32

const (
	HaltOK                HaltCode = 0
	HaltBudgetExhausted   HaltCode = -1
	HaltDecodeError       HaltCode = -2
	HaltMemoryFault       HaltCode = -3
	HaltDivideByZero      HaltCode = -4
	HaltRefcountViolation HaltCode = -5
	HaltClosureExhausted  HaltCode = -6
	HaltInvalidProgram    HaltCode = -7
	HaltBusy              HaltCode = -8
)

func (c HaltCode) String() string {
	switch c {
	case HaltOK:
		return "ok"
	case HaltBudgetExhausted:
		return "budget exhausted"
	case HaltDecodeError:
		return "decode error"
	case HaltMemoryFault:
		return "memory fault"
	case HaltDivideByZero:
		return "divide by zero"
	case HaltRefcountViolation:
		return "refcount violation"
	case HaltClosureExhausted:
		return "closure pool exhausted"
	case HaltInvalidProgram:
		return "invalid program"
	case HaltBusy:
		return "machine busy"
	}
	if c > 0 {
		return fmt.Sprintf("hook halt %d", int32(c))
	}
	return fmt.Sprintf("halt %d", int32(c))
}

// Hook is called before every instruction with its stack offset. A non-zero
// return halts the run with that code.
type Hook func(offset uint16, inst types.Instruction) int32

// Printer receives the text referenced by a PRINT instruction.
type Printer func(text string)

// Fault describes a machine failure.
type Fault struct {
	Code HaltCode
	PC   int
	Inst types.Instruction
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at pc %d (%s): %v", f.Code, f.PC, f.Inst, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

type callFrame struct {
	pc      int
	frame   int
	closure uint8
}

// Machine is one independent interpreter instance. It may run one program
// at a time; concurrent runs need separate instances.
type Machine struct {
	stack    [StackSize]types.Word
	closures [ClosureCount][ClosureSize]types.Word
	pool     *ClosurePool

	// windows
	frame   int
	global  int
	closure uint8
	aux     uint8

	pc     int
	inst   types.Instruction
	entry  uint16
	frames []callFrame

	tick   uint32
	budget uint32

	hook    Hook
	printer Printer

	running    atomic.Bool
	terminated bool
	haltCode   HaltCode
	fault      *Fault

	logging string
}

// NewMachine returns a machine ready to Run.
func NewMachine() *Machine {
	return &Machine{
		pool:    NewClosurePool(),
		frames:  make([]callFrame, 0, 64),
		logging: log.WvmMonitoring,
	}
}

// reset clears all state left by a previous run.
func (m *Machine) reset() {
	clear(m.stack[:])
	for i := range m.closures {
		clear(m.closures[i][:])
	}
	m.pool.Reset()
	m.frame, m.global = 0, 0
	m.closure, m.aux = 0, 0
	m.pc = 0
	m.inst = types.Instruction{}
	m.entry = 0
	m.frames = m.frames[:0]
	m.tick = 0
	m.terminated = false
	m.haltCode = HaltOK
	m.fault = nil
}

// trap stops the run with a machine failure.
func (m *Machine) trap(code HaltCode, err error) {
	m.terminated = true
	m.haltCode = code
	m.fault = &Fault{Code: code, PC: m.pc, Inst: m.inst, Err: err}
}

// halt stops the run on request of the hook.
func (m *Machine) halt(code HaltCode) {
	m.terminated = true
	m.haltCode = code
	log.Debug(m.logging, "halted by hook", "code", int32(code), "pc", m.pc)
}
