package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/spf13/cobra"
)

func (a *app) disasmCmd() *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "disasm [image]",
		Short: "Disassemble a program image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _, err := a.loadCode(args, ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			lines := wvm.Disassemble(code)
			for _, info := range program.NewProgram(code).GetInstructions() {
				if info.Target {
					lines[info.PC] += "  ; target"
				}
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "hash", "", "disassemble a stored image by hash or name")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "analyze [image]",
		Short: "Print static statistics for a program image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, h, err := a.loadCode(args, ref)
			if err != nil {
				return err
			}
			stats := program.NewProgram(code).Analyze()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image:        %s\n", h.Hex())
			fmt.Fprintf(out, "words:        %d\n", len(code))
			fmt.Fprintf(out, "entry:        %d\n", stats.Entry)
			fmt.Fprintf(out, "instructions: %d\n", stats.InstructionCount)
			fmt.Fprintf(out, "unknown:      %d\n", stats.UnknownCount)
			fmt.Fprintf(out, "max frame:    %d\n", stats.MaxFrame)
			fmt.Fprintf(out, "closure ops:  %d\n", stats.ClosureOps)
			targets := make([]string, len(stats.CallTargets))
			for i, t := range stats.CallTargets {
				targets[i] = fmt.Sprint(t)
			}
			fmt.Fprintf(out, "call targets: [%s]\n", strings.Join(targets, " "))

			ops := make([]types.Opcode, 0, len(stats.OpcodeDistribution))
			for op := range stats.OpcodeDistribution {
				ops = append(ops, op)
			}
			slices.Sort(ops)
			for _, op := range ops {
				fmt.Fprintf(out, "  %-16s %d\n", op, stats.OpcodeDistribution[op])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "hash", "", "analyze a stored image by hash or name")
	return cmd
}
