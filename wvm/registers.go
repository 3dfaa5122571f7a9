package wvm

import (
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvmerrors"
)

// locate resolves ref against the current windows. It returns the region
// the cell lives in (the stack or one closure slot) and the index within it.
func (m *Machine) locate(ref types.RegRef) ([]types.Word, int, bool) {
	off := int(ref.Offset())
	switch ref.Selector() {
	case types.SelectorFrame:
		return m.stackRegion(m.frame + off)
	case types.SelectorClosure:
		return m.closures[m.closure][:], off, true
	case types.SelectorAux:
		return m.closures[m.aux][:], off, true
	default:
		return m.stackRegion(m.global + off)
	}
}

func (m *Machine) stackRegion(addr int) ([]types.Word, int, bool) {
	if addr < 0 || addr >= StackSize {
		return nil, 0, false
	}
	return m.stack[:], addr, true
}

func (m *Machine) cell(ref types.RegRef) *types.Word {
	region, i, ok := m.locate(ref)
	if !ok {
		return nil
	}
	return &region[i]
}

// read loads R(ref), trapping with a memory fault when it is out of range.
func (m *Machine) read(ref types.RegRef) (types.Word, bool) {
	p := m.cell(ref)
	if p == nil {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return 0, false
	}
	return *p, true
}

// write stores v into R(ref), trapping with a memory fault when it is out of
// range.
func (m *Machine) write(ref types.RegRef, v types.Word) bool {
	p := m.cell(ref)
	if p == nil {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return false
	}
	*p = v
	return true
}

// stackCell addresses the stack directly for LOAD_STACK and STORE_STACK.
func (m *Machine) stackCell(base types.Word, disp uint8) *types.Word {
	addr := int64(base) + int64(disp)
	if addr < 0 || addr >= StackSize {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return nil
	}
	return &m.stack[addr]
}

// readText collects the NUL terminated bytes starting at R(ref), four per
// word in little-endian order, without leaving the cell's region.
func (m *Machine) readText(ref types.RegRef) (string, bool) {
	region, i, ok := m.locate(ref)
	if !ok {
		m.trap(HaltMemoryFault, wvmerrors.ErrMMemoryFault)
		return "", false
	}
	var buf []byte
	for ; i < len(region); i++ {
		for _, c := range region[i].Bytes() {
			if c == 0 {
				return string(buf), true
			}
			buf = append(buf, c)
		}
	}
	m.trap(HaltMemoryFault, wvmerrors.ErrMUnterminatedString)
	return "", false
}
