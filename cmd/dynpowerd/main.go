package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"dynpower/internal/config"
	"dynpower/internal/daemonrun"
)

var errNotRoot = errors.New("dynpowerd must run as root")

func main() {
	cmd := newRootCommand(unix.Geteuid)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "dynpowerd:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(euid func() int) *cobra.Command {
	var configFlag string
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:           "dynpowerd",
		Short:         "Dynamic CPU power profile daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if euid() != 0 {
				return errNotRoot
			}
			cfg, path, _, err := config.LoadFor(config.RoleDaemon, strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				ConfigPath:  path,
			})
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default /etc/dynpower/config.toml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
