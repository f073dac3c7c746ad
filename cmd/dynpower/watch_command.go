package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dynpower/internal/daemonctl"
	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

const watchPollWait = 10 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var powerEvents bool
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print daemon state changes as they happen",
		Long: "Follow the daemon's state change stream and print one line per change. " +
			"With --power follow this session's power source transitions instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			out := cmd.OutOrStdout()
			if powerEvents {
				return ctx.withSession(func(client *ipc.SessionClient) error {
					return watchPower(watchCtx, client, out, count)
				})
			}
			return ctx.withDaemon(func(client *ipc.DaemonClient) error {
				return watchState(watchCtx, client, out, count)
			})
		},
	}

	cmd.Flags().BoolVar(&powerEvents, "power", false, "Watch session power source transitions")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 runs until interrupted)")
	return cmd
}

func watchState(ctx context.Context, client *ipc.DaemonClient, out io.Writer, count int) error {
	state, err := client.GetDaemonState()
	if err != nil {
		return err
	}
	since := state.Version
	seen := 0
	for ctx.Err() == nil {
		next, changed, err := daemonctl.WaitForState(client, since, watchPollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !changed {
			continue
		}
		since = next.Version
		fmt.Fprintln(out, formatStateChange(next))
		seen++
		if count > 0 && seen >= count {
			return nil
		}
	}
	return nil
}

func formatStateChange(state power.DaemonState) string {
	ts := state.LastCycle
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s v%d profile=%s source=%s apply=%s power=%s thresholds=%.2f/%.2f",
		ts.Local().Format(time.RFC3339),
		state.Version,
		state.ActiveProfile,
		state.DecisionSource,
		state.ApplyState,
		state.PowerSource,
		state.ThresholdLow,
		state.ThresholdHigh,
	)
}

func watchPower(ctx context.Context, client *ipc.SessionClient, out io.Writer, count int) error {
	var since uint64
	seen := 0
	for ctx.Err() == nil {
		resp, err := client.WaitPowerStateChanged(since, watchPollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !resp.Changed {
			continue
		}
		since = resp.Seq
		fmt.Fprintf(out, "%s power source changed to %s (seq %d)\n",
			time.Now().Local().Format(time.RFC3339), resp.PowerSource, resp.Seq)
		seen++
		if count > 0 && seen >= count {
			return nil
		}
	}
	return nil
}
