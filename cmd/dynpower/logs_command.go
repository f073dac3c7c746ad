package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dynpower/internal/config"
	"dynpower/internal/daemonrun"
	"dynpower/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var daemonLogs bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the session or daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := daemonrun.SessionLogName
			if daemonLogs {
				name = daemonrun.DaemonLogName
				cfg, err = daemonConfig(ctx)
				if err != nil {
					return err
				}
			}
			path := daemonrun.CurrentLogPath(cfg.Paths.LogDir, name)

			out := cmd.OutOrStdout()
			err = logs.Tail(cmd.Context(), path, logs.TailOptions{Lines: lines, Follow: follow}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return fmt.Errorf("tail %s: %w", path, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&daemonLogs, "daemon", false, "Show the dynpowerd log instead of the session log")
	return cmd
}

// daemonConfig loads the configuration as dynpowerd sees it so daemon paths
// resolve to their system defaults.
func daemonConfig(ctx *commandContext) (*config.Config, error) {
	var path string
	if ctx.configFlag != nil {
		path = strings.TrimSpace(*ctx.configFlag)
	}
	cfg, _, _, err := config.LoadFor(config.RoleDaemon, path)
	if err != nil {
		return nil, fmt.Errorf("load daemon config: %w", err)
	}
	return cfg, nil
}
