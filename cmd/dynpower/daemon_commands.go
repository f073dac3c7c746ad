package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dynpower/internal/ipc"
	"dynpower/internal/power"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var boss bool

	cmd := &cobra.Command{
		Use:   "profile [MODE]",
		Short: "Show or set the daemon's manual profile override",
		Long: "Without arguments, print the active profile. With a mode " +
			"(Dynamic, InhibitPowersave, Performance, Balanced, Powersave) set the " +
			"daemon-wide manual override. Dynamic clears it. Performance and " +
			"Balanced are vetoed on battery unless --boss is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *ipc.DaemonClient) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					state, err := client.GetDaemonState()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Active profile: %s (%s)\n", state.ActiveProfile, state.DecisionSource)
					return nil
				}
				mode, err := power.ParseMode(args[0])
				if err != nil {
					return err
				}
				ack, err := client.SetUserProfile(mode, boss)
				if err != nil {
					return err
				}
				if err := refused(ack, "set profile"); err != nil {
					return err
				}
				state, err := client.GetDaemonState()
				if err != nil {
					return err
				}
				if mode == power.ModeDynamic {
					fmt.Fprintln(out, "Manual override cleared")
				} else if boss {
					fmt.Fprintf(out, "Manual override set to %s (boss)\n", mode)
				} else {
					fmt.Fprintf(out, "Manual override set to %s\n", mode)
				}
				fmt.Fprintf(out, "Active profile: %s (%s)\n", state.ActiveProfile, state.DecisionSource)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&boss, "boss", false, "Bypass the battery veto")
	return cmd
}

func newThresholdsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds [LOW HIGH]",
		Short: "Show or set the load thresholds",
		Long: "Without arguments, print the thresholds in effect. With LOW and HIGH " +
			"replace the base thresholds; the daemon clamps them so 0 <= LOW <= HIGH.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or LOW HIGH, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *ipc.DaemonClient) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					state, err := client.GetDaemonState()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Thresholds: %s\n", formatThresholds(state.ThresholdLow, state.ThresholdHigh))
					return nil
				}
				low, err := parseLoad(args[0])
				if err != nil {
					return err
				}
				high, err := parseLoad(args[1])
				if err != nil {
					return err
				}
				resp, err := client.SetLoadThresholds(low, high)
				if err != nil {
					return err
				}
				if err := refused(resp.Ack, "set thresholds"); err != nil {
					return err
				}
				fmt.Fprintf(out, "Thresholds: %s\n", formatThresholds(resp.Low, resp.High))
				return nil
			})
		},
	}
}

func newPollIntervalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "poll-interval SECONDS",
		Short: "Set the daemon's cycle interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 32)
			if err != nil {
				return fmt.Errorf("invalid interval %q: expected whole seconds", args[0])
			}
			return ctx.withDaemon(func(client *ipc.DaemonClient) error {
				resp, err := client.SetPollInterval(uint(seconds))
				if err != nil {
					return err
				}
				if err := refused(resp.Ack, "set poll interval"); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Poll interval: %ds\n", resp.Seconds)
				return nil
			})
		},
	}
}

func parseLoad(value string) (float64, error) {
	load, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid load value %q", value)
	}
	return load, nil
}
