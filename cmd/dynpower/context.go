package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dynpower/internal/config"
	"dynpower/internal/daemonctl"
	"dynpower/internal/ipc"
)

type commandContext struct {
	socketFlag        *string
	sessionSocketFlag *string
	configFlag        *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(socketFlag, sessionSocketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag:        socketFlag,
		sessionSocketFlag: sessionSocketFlag,
		configFlag:        configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.LoadFor(config.RoleSession, path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
			cfg.Paths.DaemonSocket = strings.TrimSpace(*c.socketFlag)
		}
		if c.sessionSocketFlag != nil && strings.TrimSpace(*c.sessionSocketFlag) != "" {
			cfg.Paths.SessionSocket = strings.TrimSpace(*c.sessionSocketFlag)
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) withDaemon(fn func(*ipc.DaemonClient) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := daemonctl.ConnectDaemon(cfg)
	if err != nil {
		return wrapDialError(err, "daemon", cfg.Paths.DaemonSocket)
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) withSession(fn func(*ipc.SessionClient) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := daemonctl.ConnectSession(cfg)
	if err != nil {
		return wrapDialError(err, "session", cfg.Paths.SessionSocket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, target, socket string) error {
	switch {
	case errors.Is(err, daemonctl.ErrDaemonNotRunning):
		return fmt.Errorf("connect to daemon: socket %s not available; start dynpowerd as root", socket)
	case errors.Is(err, daemonctl.ErrSessionNotRunning):
		return fmt.Errorf("connect to session: socket %s not available; start `dynpower session`", socket)
	default:
		return fmt.Errorf("connect to %s: %w", target, err)
	}
}

// refused turns a negative acknowledgement into an error.
func refused(ack ipc.Ack, action string) error {
	if ack.OK {
		return nil
	}
	if msg := strings.TrimSpace(ack.Message); msg != "" {
		return fmt.Errorf("%s refused: %s", action, msg)
	}
	return fmt.Errorf("%s refused", action)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
