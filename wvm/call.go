package wvm

import (
	"github.com/colorfulnotion/regwin/log"
)

// call saves pc, frame and closure, then enters entry with the frame window
// advanced by frameSize and the closure window on the given slot.
func (m *Machine) call(entry uint16, closure uint8, frameSize uint8) {
	m.frames = append(m.frames, callFrame{pc: m.pc, frame: m.frame, closure: m.closure})
	m.frame += int(frameSize)
	m.closure = closure
	m.pc = int(entry)
	if WvmTrace {
		log.Trace(log.TraceMonitoring, "call", "entry", entry, "closure", closure, "frame", m.frame, "depth", len(m.frames))
	}
}

// ret restores the caller's pc, frame and closure. The caller resumes after
// its call instruction; the outermost return leaves pc on the entry address.
func (m *Machine) ret() {
	n := len(m.frames) - 1
	saved := m.frames[n]
	m.frames = m.frames[:n]
	m.pc = saved.pc
	m.frame = saved.frame
	m.closure = saved.closure
	if n > 0 {
		m.pc++
	}
	if WvmTrace {
		log.Trace(log.TraceMonitoring, "ret", "pc", m.pc, "frame", m.frame, "depth", n)
	}
}
