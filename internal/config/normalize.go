package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvironment()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeToolbox()
	c.normalizeBatch()
	c.normalizeResults()
	c.normalizeLogging()
	return nil
}

// applyEnvironment fills empty fields from the variables a batch dispatcher
// exports. File values always win.
func (c *Config) applyEnvironment() {
	fill := func(field *string, keys ...string) {
		if strings.TrimSpace(*field) != "" {
			return
		}
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				*field = strings.TrimSpace(value)
				return
			}
		}
	}
	fill(&c.Paths.Data, "PATH_DATA")
	fill(&c.Paths.Output, "PATH_OUTPUT")
	fill(&c.Paths.Derivatives, "PATH_DERIVATIVES")
	fill(&c.Paths.Results, "PATH_RESULTS")
	fill(&c.Paths.QC, "PATH_QC")
	fill(&c.Toolbox.SCTDir, "SCT_DIR")
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.Data, err = expandPath(strings.TrimSpace(c.Paths.Data)); err != nil {
		return fmt.Errorf("paths.data: %w", err)
	}
	if c.Paths.Output, err = expandPath(strings.TrimSpace(c.Paths.Output)); err != nil {
		return fmt.Errorf("paths.output: %w", err)
	}
	if strings.TrimSpace(c.Paths.Derivatives) == "" && c.Paths.Data != "" {
		c.Paths.Derivatives = filepath.Join(c.Paths.Data, "derivatives")
	}
	if c.Paths.Derivatives, err = expandPath(strings.TrimSpace(c.Paths.Derivatives)); err != nil {
		return fmt.Errorf("paths.derivatives: %w", err)
	}
	if strings.TrimSpace(c.Paths.Results) == "" && c.Paths.Output != "" {
		c.Paths.Results = filepath.Join(c.Paths.Output, defaultResultsSubdir)
	}
	if c.Paths.Results, err = expandPath(strings.TrimSpace(c.Paths.Results)); err != nil {
		return fmt.Errorf("paths.results: %w", err)
	}
	if c.Paths.QC, err = expandPath(strings.TrimSpace(c.Paths.QC)); err != nil {
		return fmt.Errorf("paths.qc: %w", err)
	}
	if c.Paths.ExcludeFile, err = expandPath(strings.TrimSpace(c.Paths.ExcludeFile)); err != nil {
		return fmt.Errorf("paths.exclude_file: %w", err)
	}
	if c.Rootlets.ModelDir, err = expandPath(strings.TrimSpace(c.Rootlets.ModelDir)); err != nil {
		return fmt.Errorf("rootlets.model_dir: %w", err)
	}
	if c.Results.Participants, err = expandPath(strings.TrimSpace(c.Results.Participants)); err != nil {
		return fmt.Errorf("results.participants: %w", err)
	}
	return nil
}

func (c *Config) normalizeToolbox() {
	c.Toolbox.SCTDir = strings.TrimSpace(c.Toolbox.SCTDir)
	if c.Toolbox.SCTDir != "" {
		if expanded, err := expandPath(c.Toolbox.SCTDir); err == nil {
			c.Toolbox.SCTDir = expanded
		}
	}
	c.Toolbox.Python = strings.TrimSpace(c.Toolbox.Python)
	if c.Toolbox.Python == "" {
		c.Toolbox.Python = defaultPython
	}
	if c.Toolbox.TimeoutMinutes < 0 {
		c.Toolbox.TimeoutMinutes = 0
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.Jobs <= 0 {
		c.Batch.Jobs = defaultBatchJobs
	}
	subjects := make([]string, 0, len(c.Batch.Include))
	seen := make(map[string]struct{}, len(c.Batch.Include))
	for _, subject := range c.Batch.Include {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		subjects = append(subjects, subject)
	}
	c.Batch.Include = subjects

	steps := make([]string, 0, len(c.Overrides.Propagate))
	for _, step := range c.Overrides.Propagate {
		if step = strings.ToLower(strings.TrimSpace(step)); step != "" {
			steps = append(steps, step)
		}
	}
	c.Overrides.Propagate = steps
}

func (c *Config) normalizeResults() {
	c.Results.Mode = strings.ToLower(strings.TrimSpace(c.Results.Mode))
	if c.Results.Mode == "" {
		c.Results.Mode = ResultsModeAppend
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
