package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dynpower/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			now := time.Now()

			printSection(stdout, "Daemon", daemonStatusLines(snapshot, now, colorize), colorize)
			fmt.Fprintln(stdout)
			printSection(stdout, "Session", sessionStatusLines(snapshot.Session, colorize), colorize)
			if len(snapshot.Dependencies) > 0 {
				fmt.Fprintln(stdout)
				printSection(stdout, "Dependencies", dependencyLines(snapshot.Dependencies, colorize), colorize)
			}

			for _, warning := range snapshot.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warn:", warning)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
