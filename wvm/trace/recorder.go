package trace

import (
	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
)

// Inspector is the read-only machine view a Recorder needs.
type Inspector interface {
	Windows() wvm.Windows
	Depth() int
	ReadRef(ref types.RegRef) (types.Word, error)
}

// Recorder observes a run through the instruction hook. It writes one
// TraceStep per instruction, builds the call tree and then defers to an
// optional downstream hook, whose halt code it passes through unchanged.
type Recorder struct {
	insp  Inspector
	out   StepWriter
	next  wvm.Hook
	steps uint32
	tree  *CallTree
	stack []*CallNode
	err   error
}

// NewRecorder builds a recorder for one run. out and next may be nil.
func NewRecorder(insp Inspector, out StepWriter, next wvm.Hook) *Recorder {
	return &Recorder{insp: insp, out: out, next: next, tree: &CallTree{}}
}

// Hook returns the function to pass to Machine.Run.
func (r *Recorder) Hook() wvm.Hook {
	return r.observe
}

func (r *Recorder) observe(offset uint16, inst types.Instruction) int32 {
	r.steps++
	depth := r.insp.Depth()

	var step *TraceStep
	if r.out != nil {
		step = NewTraceStep(r.steps, offset, inst, r.insp.Windows(), depth)
	}
	var code int32
	if r.next != nil {
		code = r.next(offset, inst)
	}
	r.track(offset, inst, depth, code == 0)
	if step != nil {
		if code != 0 {
			step.SetHalt(code)
		}
		if err := r.out.WriteStep(step); err != nil && r.err == nil {
			r.err = err
			log.Warn(log.TraceMonitoring, "trace write failed", "step", r.steps, "err", err)
		}
	}
	return code
}

// track keeps the node stack in line with the machine's call depth. A call
// pushes its callee here; the return is seen as a drop in depth on the next
// step. An instruction the downstream hook halted on never runs and is not
// counted.
func (r *Recorder) track(offset uint16, inst types.Instruction, depth int, runs bool) {
	for len(r.stack) > depth {
		r.stack = r.stack[:len(r.stack)-1]
	}
	if len(r.stack) == 0 {
		r.tree.Root = &CallNode{Entry: offset}
		r.stack = append(r.stack, r.tree.Root)
	}
	if !runs {
		return
	}
	cur := r.stack[len(r.stack)-1]
	cur.Steps++

	switch inst.Op {
	case types.CALL:
		r.stack = append(r.stack, cur.add(inst.YZ, 0, true))
	case types.CALL_IND:
		v, err := r.insp.ReadRef(inst.Y())
		if err != nil {
			return
		}
		fn := types.DecodeFunction(v)
		r.stack = append(r.stack, cur.add(fn.Address, fn.Closure, false))
	}
	log.Trace(log.TraceMonitoring, "step", "n", r.steps, "pc", offset, "op", inst.Op.String(), "depth", depth)
}

// Steps is the number of instructions observed.
func (r *Recorder) Steps() uint32 { return r.steps }

// CallTree returns the calls observed so far.
func (r *Recorder) CallTree() *CallTree { return r.tree }

// Err returns the first trace write error.
func (r *Recorder) Err() error { return r.err }
