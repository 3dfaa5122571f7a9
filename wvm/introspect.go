package wvm

import (
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvmerrors"
)

// Windows is a snapshot of the four window bases. Frame and Global are stack
// addresses; Closure and Aux are closure pool indices.
type Windows struct {
	Frame   int
	Closure uint8
	Aux     uint8
	Global  int
}

// ClosureInfo describes one allocated closure.
type ClosureInfo struct {
	Index    uint8
	RefCount uint32
}

// ReadRegister resolves (sel, offset) against the current windows without
// side effects.
func (m *Machine) ReadRegister(sel types.Selector, offset uint8) (types.Word, error) {
	if offset > types.MaxOffset {
		return 0, wvmerrors.ErrMMemoryFault
	}
	return m.ReadRef(types.NewRegRef(sel, offset))
}

// ReadRef resolves a packed register reference without side effects.
func (m *Machine) ReadRef(ref types.RegRef) (types.Word, error) {
	p := m.cell(ref)
	if p == nil {
		return 0, wvmerrors.ErrMMemoryFault
	}
	return *p, nil
}

func (m *Machine) Windows() Windows {
	return Windows{Frame: m.frame, Closure: m.closure, Aux: m.aux, Global: m.global}
}

// Stack returns the word at stack address addr.
func (m *Machine) Stack(addr int) (types.Word, error) {
	if addr < 0 || addr >= StackSize {
		return 0, wvmerrors.ErrMMemoryFault
	}
	return m.stack[addr], nil
}

// ClosureSlot returns a copy of the 64 words of closure idx.
func (m *Machine) ClosureSlot(idx uint8) [ClosureSize]types.Word {
	return m.closures[idx]
}

// Closures lists the allocated closures in index order.
func (m *Machine) Closures() []ClosureInfo {
	out := make([]ClosureInfo, 0, m.pool.InUse())
	for i := 1; i < ClosureCount; i++ {
		idx := uint8(i)
		if m.pool.Allocated(idx) {
			out = append(out, ClosureInfo{Index: idx, RefCount: m.pool.RefCount(idx)})
		}
	}
	return out
}

func (m *Machine) Ticks() uint32  { return m.tick }
func (m *Machine) Budget() uint32 { return m.budget }
func (m *Machine) PC() int        { return m.pc }
func (m *Machine) Entry() uint16  { return m.entry }

// Depth is the number of calls that have not yet returned.
func (m *Machine) Depth() int { return len(m.frames) }

// Fault returns the failure that ended the last run, if any.
func (m *Machine) Fault() *Fault { return m.fault }
