package main

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/regwin/wvm/trace"
	"github.com/spf13/cobra"
)

var errStop = errors.New("stop")

func traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect step traces written by run --trace",
	}
	var limit int
	show := &cobra.Command{
		Use:   "show <trace.jsonl[.gz]>",
		Short: "Print a JSONL step trace as disassembled log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%6s %5s %s\n", "STEP", "PC", "INSTRUCTION")
			n := 0
			err := trace.ReadStepsFile(args[0], func(s *trace.TraceStep) error {
				if limit > 0 && n >= limit {
					return errStop
				}
				n++
				fmt.Fprintln(out, s.Format())
				return nil
			})
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		},
	}
	show.Flags().IntVarP(&limit, "limit", "n", 0, "print at most this many steps")
	cmd.AddCommand(show)
	return cmd
}
