package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/colorfulnotion/regwin/common"
	log "github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/telemetry"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
	"github.com/colorfulnotion/regwin/wvm/trace"
	"github.com/colorfulnotion/regwin/wvmerrors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	ref       string
	budget    uint32
	trace     string
	callTree  bool
	breakHalt int32
	regs      int
}

// haltError carries a non-zero halt code out of a command so main can use
// it as the exit status.
type haltError struct {
	code wvm.HaltCode
	err  error
}

func (e *haltError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.code.String()
}

func (e *haltError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var he *haltError
	if errors.As(err, &he) && he.code > 0 {
		// statuses are one byte; never let a hook halt read as success
		if c := int(he.code) & 0xff; c != 0 {
			return c
		}
	}
	return 1
}

func (a *app) runCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [image]",
		Short: "Execute a program image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ref, "hash", "", "run a stored image by hash or name instead of a file")
	f.Uint32Var(&opts.budget, "budget", 0, "instruction budget (default machine.budget)")
	f.StringVar(&opts.trace, "trace", "", "write a JSONL step trace to this path, - for stdout")
	f.BoolVar(&opts.callTree, "calltree", false, "print the call tree after the run")
	f.Int32Var(&opts.breakHalt, "break-halt", 0, "halt with this code when a BREAK instruction is reached")
	f.IntVar(&opts.regs, "regs", 0, "print this many frame registers after the run")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, opts *runOptions) error {
	code, imageHash, err := a.loadCode(args, opts.ref)
	if err != nil {
		return err
	}
	budget := a.cfg.Machine.Budget
	if opts.budget != 0 {
		budget = opts.budget
	}
	out := cmd.OutOrStdout()

	runID := uuid.New()
	logger := log.New("run_id", runID.String())
	logger.Info(log.CLIMonitoring, "run", "image", imageHash.String_short(), "words", len(code), "budget", budget)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.InitTracing(ctx, a.cfg.Telemetry.OTLPEndpoint, common.Version)
	if err != nil {
		log.Warn(log.CLIMonitoring, "otlp tracing disabled", "err", err)
	} else {
		defer shutdown(context.Background())
	}
	tc := a.telemetryClient()
	defer tc.Close()

	m := wvm.NewMachine()
	var hook wvm.Hook
	if opts.breakHalt != 0 {
		halt := opts.breakHalt
		hook = func(offset uint16, inst types.Instruction) int32 {
			if inst.Op == types.BREAK {
				return halt
			}
			return 0
		}
	}

	tracePath := a.cfg.Trace.Output
	if opts.trace != "" {
		tracePath = opts.trace
	}
	var rec *trace.Recorder
	var tw *trace.JSONLTraceWriter
	if tracePath != "" || opts.callTree || a.cfg.Trace.CallTree {
		if tracePath != "" {
			if tw, err = openTrace(tracePath, out); err != nil {
				return err
			}
			defer tw.Close()
		}
		var sw trace.StepWriter
		if tw != nil {
			sw = tw
		}
		rec = trace.NewRecorder(m, sw, hook)
		hook = rec.Hook()
	}

	printer := func(text string) {
		fmt.Fprintln(out, text)
	}

	_, span := telemetry.StartRunSpan(ctx, runID.String(), imageHash.Hex(), budget)
	started := tc.RunStarted(runID, imageHash, budget)
	t0 := time.Now()
	halt, runErr := m.Run(code, budget, hook, printer)
	elapsed := time.Since(t0)
	telemetry.EndRunSpan(span, int32(halt), m.Ticks(), runErr)

	var fault *wvm.Fault
	if errors.As(runErr, &fault) {
		tc.RunFaulted(runID, started, int32(halt), fault.PC, m.Ticks(), wvmerrors.GetErrorCodeWithName(fault.Err))
	} else {
		tc.RunFinished(runID, started, int32(halt), m.Ticks(), elapsed)
	}
	logger.Info(log.CLIMonitoring, "done", "code", int32(halt), "ticks", m.Ticks(), "elapsed", elapsed)

	if tw != nil {
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if rec != nil && rec.Err() != nil {
		return rec.Err()
	}
	if rec != nil && (opts.callTree || a.cfg.Trace.CallTree) {
		tree := rec.CallTree()
		fmt.Fprint(out, tree.Render())
		fmt.Fprintf(out, "%d calls\n", tree.Calls())
	}
	if opts.regs > 0 {
		printRegisters(out, m, opts.regs)
	}

	fmt.Fprintf(out, "halt %d (%s) after %d ticks\n", int32(halt), halt, m.Ticks())
	if fault != nil {
		fmt.Fprintf(out, "fault %s at pc %d (%s): %s\n", wvmerrors.GetErrorCodeWithName(fault.Err), fault.PC, fault.Inst, wvmerrors.GetErrorDesc(fault.Err))
	}
	if runErr != nil {
		return &haltError{code: halt, err: runErr}
	}
	if halt != wvm.HaltOK {
		return &haltError{code: halt}
	}
	return nil
}

func openTrace(path string, stdout io.Writer) (*trace.JSONLTraceWriter, error) {
	if path == "-" {
		return trace.NewJSONLTraceWriter(stdout), nil
	}
	return trace.NewJSONLTraceWriterFile(path)
}

func (a *app) telemetryClient() *telemetry.TelemetryClient {
	if a.cfg.Telemetry.Endpoint == "" {
		return telemetry.NewNoOpTelemetryClient()
	}
	tc := telemetry.NewTelemetryClient(a.cfg.Telemetry.Endpoint)
	if err := tc.Connect(telemetry.ClientInfo{Name: "wvm", Version: common.Version}); err != nil {
		log.Warn(log.CLIMonitoring, "telemetry unavailable", "endpoint", a.cfg.Telemetry.Endpoint, "err", err)
		return telemetry.NewNoOpTelemetryClient()
	}
	return tc
}

func printRegisters(w io.Writer, m *wvm.Machine, n int) {
	n = min(n, types.MaxOffset+1)
	for off := 0; off < n; off++ {
		v, err := m.ReadRegister(types.SelectorFrame, uint8(off))
		if err != nil {
			fmt.Fprintf(w, "f%-2d = <%v>\n", off, err)
			continue
		}
		fmt.Fprintf(w, "f%-2d = %d (0x%08x)\n", off, int32(v), uint32(v))
	}
}
