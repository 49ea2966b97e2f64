package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"periscope/internal/client"
	"periscope/internal/config"
	"periscope/internal/ipc"
	"periscope/internal/wire"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
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

// withClient runs fn with a registered consumer session and closes it after.
func (c *commandContext) withClient(name string, fn func(*client.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	cl, err := client.Connect(cfg, wire.RoleConsumer, name)
	if err != nil {
		return wrapDialError(err, cfg.SocketPath())
	}
	defer cl.Close()
	return fn(cl)
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, ipc.ErrNotFound):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `periscope start`", socket)
	case errors.Is(err, ipc.ErrConnectFailed):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
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
