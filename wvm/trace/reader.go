package trace

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
)

// Instruction rebuilds the instruction the step recorded.
func (ts *TraceStep) Instruction() types.Instruction {
	return types.NewInstruction(types.Opcode(ts.Opcode), types.RegRef(ts.X), ts.YZ)
}

// Format renders the step as one log line, indented by call depth.
func (ts *TraceStep) Format() string {
	line := fmt.Sprintf("%6d %5d %s%-28s frame=%d closure=%d aux=%d",
		ts.Step, ts.PC, strings.Repeat("  ", max(ts.Depth-1, 0)),
		wvm.DisassembleInstruction(ts.Instruction()), ts.Frame, ts.Closure, ts.Aux)
	if ts.Halt != nil {
		line += fmt.Sprintf(" halt=%d", *ts.Halt)
	}
	return line
}

// ReadSteps calls fn for every record of a JSONL trace until fn returns an
// error or the input ends.
func ReadSteps(r io.Reader, fn func(*TraceStep) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var step TraceStep
		if err := json.Unmarshal(sc.Bytes(), &step); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(&step); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadStepsFile is ReadSteps over a file; names ending in .gz are
// decompressed.
func ReadStepsFile(path string, fn func(*TraceStep) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return ReadSteps(r, fn)
}
