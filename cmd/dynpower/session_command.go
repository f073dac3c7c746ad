package main

import (
	"github.com/spf13/cobra"

	"dynpower/internal/daemonrun"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run the per-session process in the foreground",
		Long: "Run the unprivileged per-session process. It scans your processes, " +
			"forwards overrides to dynpowerd, and toggles session integrations " +
			"such as panel overdrive on power source changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.RunSession(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				ConfigPath:  ctx.configPath,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
