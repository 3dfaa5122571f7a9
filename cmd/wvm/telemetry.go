package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/colorfulnotion/regwin/telemetry"
	"github.com/spf13/cobra"
)

func (a *app) telemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Telemetry tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve [host:port]",
		Short: "Receive run events from wvm clients and print them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.cfg.Telemetry.Endpoint
			if len(args) == 1 {
				addr = args[0]
			}
			if addr == "" {
				return fmt.Errorf("no listen address: pass host:port or set telemetry.endpoint")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveTelemetry(ctx, addr, cmd.OutOrStdout())
		},
	})
	return cmd
}

func serveTelemetry(ctx context.Context, addr string, out io.Writer) error {
	var mu sync.Mutex
	srv := telemetry.NewTelemetryServer(addr, func(info telemetry.ClientInfo, ev *telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, formatEvent(info, ev))
	})
	return srv.Serve(ctx)
}

func formatEvent(info telemetry.ClientInfo, ev *telemetry.Event) string {
	ts := ev.Time.UTC().Format("15:04:05.000000")
	switch ev.Kind {
	case telemetry.RunStarted:
		return fmt.Sprintf("%s %s/%s started  event=%d run=%s image=%s budget=%d", ts, info.Name, info.Version, ev.EventID, ev.RunID, ev.Image.String_short(), ev.Budget)
	case telemetry.RunFinished:
		return fmt.Sprintf("%s %s/%s finished event=%d code=%d ticks=%d", ts, info.Name, info.Version, ev.EventID, ev.Code, ev.Ticks)
	default:
		return fmt.Sprintf("%s %s/%s faulted  event=%d code=%d pc=%d ticks=%d reason=%q", ts, info.Name, info.Version, ev.EventID, ev.Code, ev.PC, ev.Ticks, ev.Reason)
	}
}
