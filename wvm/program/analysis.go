package program

import (
	"slices"

	"github.com/colorfulnotion/regwin/types"
)

// ProgramStats contains statistics about a program body.
type ProgramStats struct {
	InstructionCount   int                  // words decoding to a known opcode
	UnknownCount       int                  // words that would fault at dispatch
	OpcodeDistribution map[types.Opcode]int // known opcodes only
	CallTargets        []uint16             // distinct CALL entries, ascending
	Entry              uint16
	MaxFrame           int // largest single frame reservation (CALL or FRAME)
	ClosureOps         int // make, retain and release instructions
}

// Analyze scans every word before the trailer. Data words embedded in the
// body are indistinguishable from instructions and are counted as such.
func (p *Program) Analyze() *ProgramStats {
	stats := &ProgramStats{
		OpcodeDistribution: make(map[types.Opcode]int),
	}
	entry, ok := p.Entry()
	if !ok {
		return stats
	}
	stats.Entry = entry

	targets := make(map[uint16]struct{})
	for _, w := range p.Body() {
		inst := types.DecodeInstruction(w)
		if !inst.Op.Valid() {
			stats.UnknownCount++
			continue
		}
		stats.InstructionCount++
		stats.OpcodeDistribution[inst.Op]++

		switch inst.Op {
		case types.CALL:
			targets[inst.YZ] = struct{}{}
			stats.MaxFrame = max(stats.MaxFrame, int(uint8(inst.X)))
		case types.CALL_IND:
			stats.MaxFrame = max(stats.MaxFrame, int(uint8(inst.X)))
		case types.FRAME:
			stats.MaxFrame = max(stats.MaxFrame, int(inst.YZSigned()))
		case types.CLOSURE_MAKE, types.CLOSURE_RETAIN, types.CLOSURE_RELEASE:
			stats.ClosureOps++
		}
	}
	for t := range targets {
		stats.CallTargets = append(stats.CallTargets, t)
	}
	slices.Sort(stats.CallTargets)
	return stats
}

// InstructionInfo describes one body word.
type InstructionInfo struct {
	PC     int
	Inst   types.Instruction
	Target bool // address is the entry or a CALL target
}

// GetInstructions returns every body word with its decoded form.
func (p *Program) GetInstructions() []InstructionInfo {
	stats := p.Analyze()
	targets := make(map[int]bool, len(stats.CallTargets)+1)
	targets[int(stats.Entry)] = len(p.Code) > 0
	for _, t := range stats.CallTargets {
		targets[int(t)] = true
	}
	body := p.Body()
	out := make([]InstructionInfo, len(body))
	for i, w := range body {
		out[i] = InstructionInfo{PC: i, Inst: types.DecodeInstruction(w), Target: targets[i]}
	}
	return out
}
