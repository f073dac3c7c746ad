package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

func newOverrideCommand(ctx *commandContext) *cobra.Command {
	var boss bool

	cmd := &cobra.Command{
		Use:   "override [MODE]",
		Short: "Show or set this session's manual override",
		Long: "Without arguments, print the session's manual override. With a mode " +
			"set it; the session forwards it to dynpowerd on its next cycle and " +
			"replies once the daemon has confirmed the result. Dynamic clears it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(client *ipc.SessionClient) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					resp, err := client.GetUserOverride()
					if err != nil {
						return err
					}
					if resp.Boss {
						fmt.Fprintf(out, "Override: %s (boss)\n", resp.Mode)
					} else {
						fmt.Fprintf(out, "Override: %s\n", resp.Mode)
					}
					return nil
				}
				mode, err := power.ParseMode(args[0])
				if err != nil {
					return err
				}
				ack, err := client.SetUserOverride(string(mode), boss)
				if err != nil {
					return err
				}
				if err := refused(ack, "set override"); err != nil {
					return err
				}
				fmt.Fprintf(out, "Override: %s\n", mode)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&boss, "boss", false, "Bypass the battery veto")
	return cmd
}

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List process override rules matched by this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(client *ipc.SessionClient) error {
				matches, err := client.GetProcessMatches()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, matches)
				}
				out := cmd.OutOrStdout()
				if len(matches) == 0 {
					fmt.Fprintln(out, "No process overrides matched")
					return nil
				}
				fmt.Fprint(out, renderMatches(matches))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "push [PROCESS...]",
		Short: "Report running process names to the session",
		Long: "Push process names from an external scanner. The session resolves them " +
			"against process_overrides. With scanning enabled the next internal scan " +
			"replaces them; with no names the pushed set is cleared.",
		RunE: func(cmd *cobra.Command, args []string) error {
			matches := make([]ipc.ProcessMatch, 0, len(args))
			for _, name := range args {
				if name = strings.TrimSpace(name); name != "" {
					matches = append(matches, ipc.ProcessMatch{ProcessName: name})
				}
			}
			return ctx.withSession(func(client *ipc.SessionClient) error {
				ack, err := client.UpdateProcessMatches(matches)
				if err != nil {
					return err
				}
				if err := refused(ack, "push matches"); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d process name(s)\n", len(matches))
				return nil
			})
		},
	})
	return cmd
}

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show this session's view of the last cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(client *ipc.SessionClient) error {
				metrics, err := client.GetMetrics()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, metrics)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Power source:     %s\n", metrics.PowerSource)
				fmt.Fprintf(out, "Load (1m):        %.2f\n", metrics.Load1m)
				if metrics.BatteryPercent != nil {
					fmt.Fprintf(out, "Battery:          %.0f%%\n", *metrics.BatteryPercent)
				}
				fmt.Fprintf(out, "Resolved profile: %s\n", metrics.ResolvedProfile)
				fmt.Fprintf(out, "Decision source:  %s\n", metrics.DecisionSource)
				fmt.Fprintf(out, "Thresholds:       %s\n", formatThresholds(metrics.Thresholds.Low, metrics.Thresholds.High))
				fmt.Fprintf(out, "Apply state:      %s\n", metrics.ApplyState)
				fmt.Fprintf(out, "Daemon reachable: %s\n", yesNo(metrics.DaemonReachable))
				if !metrics.Timestamp.IsZero() {
					fmt.Fprintf(out, "Sampled:          %s\n", metrics.Timestamp.Local().Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
