package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"spinepipe/internal/config"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/ledger"
	"spinepipe/internal/logging"
	"spinepipe/internal/preflight"
)

type commandContext struct {
	configFlag *string
	logLevel   *string
	logFormat  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevel, logFormat *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
		logFormat:  logFormat,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if level := flagValue(c.logLevel); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if format := flagValue(c.logFormat); format != "" {
			cfg.Logging.Format = strings.ToLower(format)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	return flagValue(c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// runConfig returns the configuration after checking the paths and
// directories a pipeline run needs.
func (c *commandContext) runConfig() (*config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireRunPaths(); err != nil {
		return nil, err
	}
	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		return nil, fmt.Errorf("preflight check failed: %s: %s", failed[0].Name, failed[0].Detail)
	}
	return cfg, nil
}

func (c *commandContext) logger(subject string) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.NewFromConfig(c.configValue(), subject)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, closer, nil
}

func (c *commandContext) exclusions() (*exclusion.List, error) {
	cfg := c.configValue()
	list, err := exclusion.Load(cfg.Paths.ExcludeFile)
	if err != nil {
		return nil, fmt.Errorf("load exclusion list: %w", err)
	}
	return list, nil
}

func (c *commandContext) openLedger() (*ledger.Store, error) {
	store, err := ledger.Open(c.configValue().LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	return store, nil
}

func flagValue(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
