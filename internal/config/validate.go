package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. Dataset and output roots are
// checked by RequireRunPaths instead so that config utilities work before the
// batch environment is exported.
func (c *Config) Validate() error {
	if err := c.validateResults(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	return nil
}

// RequireRunPaths reports an error when the paths a pipeline run needs are unset.
func (c *Config) RequireRunPaths() error {
	if c.Paths.Data == "" {
		return errors.New("paths.data is required (set PATH_DATA or edit the config file)")
	}
	if c.Paths.Output == "" {
		return errors.New("paths.output is required (set PATH_OUTPUT or edit the config file)")
	}
	return nil
}

func (c *Config) validateResults() error {
	switch c.Results.Mode {
	case ResultsModeAppend, ResultsModeReplaceSubject:
		return nil
	default:
		return fmt.Errorf("results.mode must be %q or %q, got %q", ResultsModeAppend, ResultsModeReplaceSubject, c.Results.Mode)
	}
}

func (c *Config) validateBatch() error {
	if c.Batch.Jobs <= 0 {
		return errors.New("batch.jobs must be positive")
	}
	return nil
}
