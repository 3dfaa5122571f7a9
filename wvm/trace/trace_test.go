package trace

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// B at 0, A at 2 (through a closure), main at 6
func nested() []types.Word {
	b := program.NewBuilder()
	b.LoadImm(types.Frame(0), 9).Ret()
	a := b.Len()
	b.Break().Call(3, 0).Break().Ret()
	entry := b.Len()
	b.ClosureMake(types.Frame(1), a).
		Retain(types.Frame(1)).
		CallInd(2, types.Frame(1)).
		Ret()
	return b.Build(entry)
}

func readSteps(t *testing.T, data []byte) []TraceStep {
	t.Helper()
	var steps []TraceStep
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var s TraceStep
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		steps = append(steps, s)
	}
	require.NoError(t, sc.Err())
	return steps
}

func TestRecorderWritesEveryStep(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLTraceWriter(&buf)
	m := wvm.NewMachine()
	rec := NewRecorder(m, w, nil)

	code, err := m.Run(nested(), wvm.DefaultBudget, rec.Hook(), nil)
	require.NoError(t, err)
	require.Equal(t, wvm.HaltOK, code)
	require.NoError(t, w.Close())
	require.NoError(t, rec.Err())

	steps := readSteps(t, buf.Bytes())
	require.Len(t, steps, int(m.Ticks()))
	assert.Equal(t, uint32(10), rec.Steps())

	first := steps[0]
	assert.Equal(t, uint32(1), first.Step)
	assert.Equal(t, uint16(6), first.PC)
	assert.Equal(t, "CLOSURE_MAKE", first.Op)
	assert.Equal(t, 1, first.Depth)
	assert.Nil(t, first.Halt)

	// LOAD_IMM in B runs two calls deep on the null closure
	inB := steps[5]
	assert.Equal(t, uint16(0), inB.PC)
	assert.Equal(t, 3, inB.Depth)
	assert.Equal(t, uint8(0), inB.Closure)
	assert.Equal(t, steps[3].Frame+3, inB.Frame)
}

func TestRecorderCallTree(t *testing.T) {
	m := wvm.NewMachine()
	rec := NewRecorder(m, nil, nil)
	_, err := m.Run(nested(), wvm.DefaultBudget, rec.Hook(), nil)
	require.NoError(t, err)

	tree := rec.CallTree()
	require.NotNil(t, tree.Root)
	assert.Equal(t, uint16(6), tree.Root.Entry)
	assert.Equal(t, 4, tree.Root.Steps)
	assert.Equal(t, 2, tree.Calls())

	require.Len(t, tree.Root.Children, 1)
	a := tree.Root.Children[0]
	assert.Equal(t, uint16(2), a.Entry)
	assert.Equal(t, uint8(1), a.Closure)
	assert.False(t, a.Direct)
	assert.Equal(t, 4, a.Steps)

	require.Len(t, a.Children, 1)
	b := a.Children[0]
	assert.True(t, b.Direct)
	assert.Equal(t, 2, b.Steps)

	out := tree.Render()
	assert.Contains(t, out, "entry @6 steps=4")
	assert.Contains(t, out, "@2 closure=1 steps=4")
	assert.Contains(t, out, "@0 steps=2")
}

func TestRecorderForwardsHalt(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLTraceWriter(&buf)
	m := wvm.NewMachine()
	next := func(offset uint16, inst types.Instruction) int32 {
		if inst.Op == types.BREAK {
			return 3
		}
		return 0
	}
	rec := NewRecorder(m, w, next)
	code, err := m.Run(nested(), wvm.DefaultBudget, rec.Hook(), nil)
	require.NoError(t, err)
	assert.Equal(t, wvm.HaltCode(3), code)
	require.NoError(t, w.Flush())

	steps := readSteps(t, buf.Bytes())
	require.Len(t, steps, 4)
	last := steps[3]
	assert.Equal(t, "BREAK", last.Op)
	require.NotNil(t, last.Halt)
	assert.Equal(t, int32(3), *last.Halt)
}

func TestRecorderSkipsHaltedCall(t *testing.T) {
	b := program.NewBuilder()
	b.LoadImm(types.Frame(0), 1).Call(2, 0).Ret()
	m := wvm.NewMachine()
	next := func(offset uint16, inst types.Instruction) int32 {
		if inst.Op == types.CALL {
			return 7
		}
		return 0
	}
	rec := NewRecorder(m, nil, next)
	code, err := m.Run(b.Build(0), wvm.DefaultBudget, rec.Hook(), nil)
	require.NoError(t, err)
	assert.Equal(t, wvm.HaltCode(7), code)

	tree := rec.CallTree()
	assert.Zero(t, tree.Calls())
	assert.Equal(t, 1, tree.Root.Steps)
	assert.Equal(t, uint32(2), rec.Steps())
	assert.NotContains(t, tree.Render(), "@0 steps=0")
}

func TestRecorderRecursionTree(t *testing.T) {
	b := program.NewBuilder()
	b.Call(1, 0)
	m := wvm.NewMachine()
	rec := NewRecorder(m, nil, nil)
	code, _ := m.Run(b.Build(0), 5, rec.Hook(), nil)
	assert.Equal(t, wvm.HaltBudgetExhausted, code)
	assert.Equal(t, 5, rec.CallTree().Calls())
}

func TestEmptyCallTree(t *testing.T) {
	assert.Equal(t, "(no calls)\n", (&CallTree{}).Render())
	assert.Zero(t, (&CallTree{}).Calls())
}

func TestJSONLWriterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	w, err := NewJSONLTraceWriterFile(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStep(&TraceStep{Step: 1, Op: "RET"}))
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteStep(&TraceStep{}), ErrTraceWriterClosed)
	assert.ErrorIs(t, w.Flush(), ErrTraceWriterClosed)
}

func TestReadStepsRoundTrip(t *testing.T) {
	b := program.NewBuilder()
	b.Call(4, 2).Ret().
		LoadImm(types.Frame(0), 1).Ret()

	var buf bytes.Buffer
	w := NewJSONLTraceWriter(&buf)
	m := wvm.NewMachine()
	rec := NewRecorder(m, w, nil)
	_, err := m.Run(b.Build(0), wvm.DefaultBudget, rec.Hook(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var steps []*TraceStep
	require.NoError(t, ReadSteps(&buf, func(s *TraceStep) error {
		steps = append(steps, s)
		return nil
	}))
	require.Len(t, steps, 4)
	assert.Equal(t, types.CALL, steps[0].Instruction().Op)
	assert.Equal(t, uint16(2), steps[0].Instruction().YZ)
	assert.Equal(t, 2, steps[1].Depth)

	line := steps[1].Format()
	assert.Contains(t, line, "LOAD_IMM")
	assert.Contains(t, line, "frame=8")
}

func TestReadStepsGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	w := NewJSONLTraceWriter(gz)
	require.NoError(t, w.WriteStep(&TraceStep{Step: 1, Opcode: uint8(types.RET), Op: "RET", Depth: 1}))
	require.NoError(t, w.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	n := 0
	require.NoError(t, ReadStepsFile(path, func(s *TraceStep) error {
		n++
		assert.Equal(t, types.RET, s.Instruction().Op)
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestReadStepsBadLine(t *testing.T) {
	err := ReadSteps(strings.NewReader("{\"step\":1}\nnot json\n"), func(*TraceStep) error { return nil })
	assert.ErrorContains(t, err, "line 2")
}
