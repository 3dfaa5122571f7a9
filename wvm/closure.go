package wvm

import (
	"math/bits"

	"github.com/colorfulnotion/regwin/wvmerrors"
)

// ClosurePool tracks which of the 255 usable closure indices are allocated
// and how many references each holds. Index 0 is the null closure and is
// never handed out.
//
// Free indices sit on a stack so the most recently released index is the
// next one allocated.
type ClosurePool struct {
	free      []uint8
	allocated [ClosureCount / 64]uint64
	refs      [ClosureCount]uint32
}

// NewClosurePool returns a pool with every index free.
func NewClosurePool() *ClosurePool {
	p := &ClosurePool{free: make([]uint8, 0, ClosureCount-1)}
	p.Reset()
	return p
}

// Reset frees every index and zeroes all counts.
func (p *ClosurePool) Reset() {
	p.free = p.free[:0]
	for i := ClosureCount - 1; i >= 1; i-- {
		p.free = append(p.free, uint8(i))
	}
	p.allocated = [ClosureCount / 64]uint64{}
	p.refs = [ClosureCount]uint32{}
}

// Allocate takes the next free index. A fresh index is allocated with a
// count of zero; it becomes live on its first Retain.
func (p *ClosurePool) Allocate() (uint8, error) {
	n := len(p.free)
	if n == 0 {
		return 0, wvmerrors.ErrMClosureExhausted
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.allocated[idx/64] |= 1 << (idx % 64)
	p.refs[idx] = 0
	return idx, nil
}

// Retain adds a reference to idx. Retaining the null closure does nothing.
func (p *ClosurePool) Retain(idx uint8) error {
	if idx == 0 {
		return nil
	}
	if !p.Allocated(idx) {
		return wvmerrors.ErrMRefcountViolation
	}
	p.refs[idx]++
	return nil
}

// Release drops a reference to idx and reports whether the index went back
// to the free stack. Releasing the null closure does nothing.
func (p *ClosurePool) Release(idx uint8) (bool, error) {
	if idx == 0 {
		return false, nil
	}
	if !p.Allocated(idx) || p.refs[idx] == 0 {
		return false, wvmerrors.ErrMRefcountViolation
	}
	p.refs[idx]--
	if p.refs[idx] > 0 {
		return false, nil
	}
	p.allocated[idx/64] &^= 1 << (idx % 64)
	p.free = append(p.free, idx)
	return true, nil
}

// Allocated reports whether idx is currently handed out.
func (p *ClosurePool) Allocated(idx uint8) bool {
	return p.allocated[idx/64]&(1<<(idx%64)) != 0
}

// RefCount returns the reference count of idx.
func (p *ClosurePool) RefCount(idx uint8) uint32 {
	return p.refs[idx]
}

// InUse returns the number of allocated indices.
func (p *ClosurePool) InUse() int {
	n := 0
	for _, w := range p.allocated {
		n += bits.OnesCount64(w)
	}
	return n
}

// Available returns the number of free indices.
func (p *ClosurePool) Available() int {
	return len(p.free)
}
