package trace

import (
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
)

// TraceStep is the machine state observed just before one instruction runs.
type TraceStep struct {
	Step    uint32 `json:"step"`
	PC      uint16 `json:"pc"`
	Opcode  uint8  `json:"opcode"`
	Op      string `json:"op"`
	X       uint8  `json:"x"`
	Y       uint8  `json:"y"`
	Z       uint8  `json:"z"`
	YZ      uint16 `json:"yz"`
	Frame   int    `json:"frame"`
	Closure uint8  `json:"closure"`
	Aux     uint8  `json:"aux"`
	Depth   int    `json:"depth"`
	Halt    *int32 `json:"halt,omitempty"` // set when the wrapped hook stopped the run here
}

func NewTraceStep(step uint32, pc uint16, inst types.Instruction, win wvm.Windows, depth int) *TraceStep {
	return &TraceStep{
		Step:    step,
		PC:      pc,
		Opcode:  uint8(inst.Op),
		Op:      inst.Op.String(),
		X:       uint8(inst.X),
		Y:       uint8(inst.Y()),
		Z:       uint8(inst.Z()),
		YZ:      inst.YZ,
		Frame:   win.Frame,
		Closure: win.Closure,
		Aux:     win.Aux,
		Depth:   depth,
	}
}

func (ts *TraceStep) SetHalt(code int32) {
	ts.Halt = &code
}
