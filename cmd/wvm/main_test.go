package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/colorfulnotion/regwin/telemetry"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/colorfulnotion/regwin/wvmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	cmd := a.rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	require.NoError(t, a.close())
	return out.String(), err
}

func writeImage(t *testing.T, code []types.Word) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.wvm")
	require.NoError(t, os.WriteFile(path, program.EncodeImage(code), 0o644))
	return path
}

func TestRunImageFile(t *testing.T) {
	b := program.NewBuilder()
	b.LoadImm(types.Frame(0), 42).
		LoadConst(types.Frame(1), 'h'|'i'<<8).
		Print(types.Frame(1)).
		Ret()
	path := writeImage(t, b.Build(0))

	out, err := execute(t, "run", path, "--regs", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "hi\n")
	assert.Contains(t, out, "f0  = 42 (0x0000002a)")
	assert.Contains(t, out, "halt 0 (ok) after 4 ticks")
}

func TestRunBreakHalt(t *testing.T) {
	b := program.NewBuilder()
	b.Break().Ret()
	path := writeImage(t, b.Build(0))

	out, err := execute(t, "run", path, "--break-halt", "7")
	require.Error(t, err)
	assert.Equal(t, 7, exitCode(err))
	assert.Contains(t, out, "halt 7 (hook halt 7)")

	// without the flag BREAK is a no-op
	_, err = execute(t, "run", path)
	require.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		code wvm.HaltCode
		want int
	}{
		{7, 7},
		{255, 255},
		{256, 1},
		{512, 1},
		{0x107, 7},
		{wvm.HaltMemoryFault, 1},
	} {
		assert.Equal(t, tc.want, exitCode(&haltError{code: tc.code}), "halt %d", tc.code)
	}
	assert.Equal(t, 1, exitCode(errors.New("bad flag")))

	b := program.NewBuilder()
	b.Break().Ret()
	_, err := execute(t, "run", writeImage(t, b.Build(0)), "--break-halt", "256")
	require.Error(t, err)
	assert.NotZero(t, exitCode(err))
}

func TestRunFault(t *testing.T) {
	b := program.NewBuilder()
	b.LoadImm(types.Frame(1), 1).
		LoadImm(types.Frame(2), 0).
		Div(types.Frame(0), types.Frame(1), types.Frame(2)).
		Ret()
	path := writeImage(t, b.Build(0))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, wvmerrors.ErrMDivideByZero)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "halt -4 (divide by zero)")
	assert.Contains(t, out, "fault M4_DivideByZero at pc 2")
}

func TestRunBudget(t *testing.T) {
	b := program.NewBuilder()
	b.Call(0, 0)
	path := writeImage(t, b.Build(0))

	out, err := execute(t, "run", path, "--budget", "10")
	assert.ErrorIs(t, err, wvmerrors.ErrMBudgetExhausted)
	assert.Contains(t, out, "after 10 ticks")
}

func TestRunTraceAndCallTree(t *testing.T) {
	b := program.NewBuilder()
	b.Call(4, 2).Ret().
		LoadImm(types.Frame(0), 1).Ret()
	path := writeImage(t, b.Build(0))
	tracePath := filepath.Join(t.TempDir(), "trace.jsonl")

	out, err := execute(t, "run", path, "--trace", tracePath, "--calltree")
	require.NoError(t, err)
	assert.Contains(t, out, "entry @0")
	assert.Contains(t, out, "@2 steps=2")
	assert.Contains(t, out, "1 calls")

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 4, lines)

	out, err = execute(t, "trace", "show", tracePath, "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "CALL")
	assert.Contains(t, out, "LOAD_IMM")
	assert.NotContains(t, out, "RET")
}

func TestImageStoreCommands(t *testing.T) {
	db := t.TempDir()
	b := program.NewBuilder()
	b.LoadImm(types.Frame(0), 9).Ret()
	code := b.Build(0)
	path := writeImage(t, code)

	out, err := execute(t, "--db", db, "image", "put", path, "--name", "nine")
	require.NoError(t, err)
	hash := string(bytes.TrimSpace([]byte(out)))
	assert.Len(t, hash, 66)

	_, err = execute(t, "--db", db, "image", "put", path, "--name", "ix")
	require.NoError(t, err)
	out, err = execute(t, "--db", db, "image", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ix,nine")

	out, err = execute(t, "--db", db, "run", "--hash", "nine", "--regs", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "f0  = 9")

	_, err = execute(t, "--db", db, "run", "--hash", hash)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "copy.wvm")
	_, err = execute(t, "--db", db, "image", "get", "nine", "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, program.EncodeImage(code), data)

	_, err = execute(t, "--db", db, "image", "rm", "nine")
	require.NoError(t, err)
	_, err = execute(t, "--db", db, "run", "--hash", hash)
	assert.ErrorIs(t, err, wvmerrors.ErrIImageNotFound)
}

func TestDisasmAndAnalyze(t *testing.T) {
	b := program.NewBuilder()
	b.Call(4, 2).Ret().
		LoadImm(types.Frame(0), 1).Ret()
	path := writeImage(t, b.Build(0))

	out, err := execute(t, "disasm", path)
	require.NoError(t, err)
	assert.Contains(t, out, "   4: entry @0")
	assert.Regexp(t, `(?m)^   0: .*; target$`, out)
	assert.Regexp(t, `(?m)^   2: .*; target$`, out)
	assert.NotRegexp(t, `(?m)^   1: .*; target$`, out)

	out, err = execute(t, "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, out, "instructions: 4")
	assert.Contains(t, out, "call targets: [2]")
	assert.Contains(t, out, "max frame:    4")
}

func TestRunRequiresImage(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.wvm")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err = execute(t, "run", path)
	assert.ErrorIs(t, err, wvmerrors.ErrIMisaligned)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wvm dev")
}

func TestRunReportsTelemetry(t *testing.T) {
	events := make(chan *telemetry.Event, 4)
	srv := telemetry.NewTelemetryServer("127.0.0.1:0", func(_ telemetry.ClientInfo, ev *telemetry.Event) {
		events <- ev
	})
	addr, err := srv.Listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	cfgPath := filepath.Join(t.TempDir(), "wvm.toml")
	cfg := fmt.Sprintf("[telemetry]\nendpoint = %q\n", addr.String())
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	b := program.NewBuilder()
	b.LoadImm(types.Frame(0), 1).Ret()
	path := writeImage(t, b.Build(0))
	_, err = execute(t, "--config", cfgPath, "run", path)
	require.NoError(t, err)

	var got []*telemetry.Event
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of 2 events", len(got))
		}
	}
	assert.Equal(t, telemetry.RunStarted, got[0].Kind)
	assert.Equal(t, telemetry.RunFinished, got[1].Kind)
	assert.Equal(t, uint32(2), got[1].Ticks)
	assert.Equal(t, got[0].EventID, got[1].EventID)
}

func TestFormatEvent(t *testing.T) {
	info := telemetry.ClientInfo{Name: "wvm", Version: "dev"}
	line := formatEvent(info, &telemetry.Event{Kind: telemetry.RunFaulted, Code: -3, PC: 5, Reason: "memory fault"})
	assert.Contains(t, line, "wvm/dev faulted")
	assert.Contains(t, line, `reason="memory fault"`)
}
