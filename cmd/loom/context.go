package main

import (
	"strings"
	"sync"

	"loom/internal/config"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiClient builds an HTTP client for the daemon API. The --addr flag wins;
// otherwise the configured bind address is used.
func (c *commandContext) apiClient() (*daemonClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	addr := ""
	if c.addrFlag != nil {
		addr = strings.TrimSpace(*c.addrFlag)
	}
	token := ""
	if addr == "" && cfg != nil {
		addr = strings.TrimSpace(cfg.Paths.APIBind)
	}
	if cfg != nil {
		token = strings.TrimSpace(cfg.Paths.APIToken)
	}
	return newDaemonClient(addr, token)
}
