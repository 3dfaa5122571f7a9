package wvm

import (
	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvmerrors"
)

// Run loads code into the stack and calls the entry function named by the
// last word's operand, sharing budget instructions across the whole call
// tree. The error is non-nil exactly when the machine failed; it is then a
// *Fault. A halt requested by the hook returns the hook's code and no error.
func (m *Machine) Run(code []types.Word, budget uint32, hook Hook, printer Printer) (HaltCode, error) {
	if !m.running.CompareAndSwap(false, true) {
		return HaltBusy, &Fault{Code: HaltBusy, Err: wvmerrors.ErrMMachineBusy}
	}
	defer m.running.Store(false)

	m.reset()
	switch {
	case len(code) == 0:
		m.trap(HaltInvalidProgram, wvmerrors.ErrMEmptyProgram)
		return m.haltCode, m.fault
	case len(code) > StackSize:
		m.trap(HaltInvalidProgram, wvmerrors.ErrMProgramTooLarge)
		return m.haltCode, m.fault
	}

	// the trailer is not loaded; its slot is the first free cell under
	// both windows
	last := len(code) - 1
	copy(m.stack[:], code[:last])
	m.frame = last
	m.global = last
	m.entry = types.DecodeInstruction(code[last]).YZ
	m.budget = budget
	m.hook = hook
	m.printer = printer
	defer func() {
		m.hook = nil
		m.printer = nil
	}()

	log.Debug(m.logging, "run", "words", len(code), "entry", m.entry, "budget", budget)
	m.pc = int(m.entry)
	m.call(m.entry, 0, 0)

	for m.tick < m.budget {
		m.tick++
		m.step()
		if m.terminated || len(m.frames) == 0 {
			return m.finish()
		}
	}
	m.trap(HaltBudgetExhausted, wvmerrors.ErrMBudgetExhausted)
	return m.finish()
}

func (m *Machine) finish() (HaltCode, error) {
	if m.fault != nil {
		log.Warn(m.logging, "terminated", "reason", m.fault.Code.String(), "pc", m.fault.PC, "inst", m.fault.Inst.String(), "depth", len(m.frames), "ticks", m.tick)
		return m.haltCode, m.fault
	}
	log.Debug(m.logging, "finished", "code", int32(m.haltCode), "ticks", m.tick)
	return m.haltCode, nil
}
