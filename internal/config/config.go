package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains dataset, output, and report locations.
type Paths struct {
	Data        string `toml:"data"`
	Output      string `toml:"output"`
	Derivatives string `toml:"derivatives"`
	Results     string `toml:"results"`
	QC          string `toml:"qc"`
	ExcludeFile string `toml:"exclude_file"`
}

// Toolbox describes where the external toolbox lives and how it is invoked.
type Toolbox struct {
	SCTDir         string `toml:"sct_dir"`
	Python         string `toml:"python"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
}

// Rootlets contains settings for the rootlets model scripts.
type Rootlets struct {
	ModelDir string `toml:"model_dir"`
}

// Batch contains settings for the subject worker pool.
type Batch struct {
	Jobs    int      `toml:"jobs"`
	Include []string `toml:"include"`
}

// Cache contains settings for the output existence guard.
type Cache struct {
	// DetectPartial enables pending markers so outputs left behind by an
	// interrupted step are recomputed instead of trusted.
	DetectPartial bool `toml:"detect_partial"`
}

// Overrides lists the steps whose cached outputs are mirrored into the
// subject working directory on a cache hit.
type Overrides struct {
	Propagate []string `toml:"propagate"`
}

// Results contains metric table settings.
type Results struct {
	Mode         string `toml:"mode"`
	Participants string `toml:"participants"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   bool   `toml:"file"`
}

// Result table modes.
const (
	ResultsModeAppend         = "append"
	ResultsModeReplaceSubject = "replace-subject"
)

// Config encapsulates all configuration values for spinepipe.
//
// Configuration sections by subsystem:
//   - Paths: dataset root, output tree, derivatives, results, QC, exclusions
//   - Toolbox: Spinal Cord Toolbox install and python interpreter
//   - Rootlets: external rootlets model checkout
//   - Batch: worker pool size and subject include-list
//   - Cache: partial-output detection
//   - Overrides: manual override propagation per step
//   - Results: metric table write mode and participants file
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Toolbox   Toolbox   `toml:"toolbox"`
	Rootlets  Rootlets  `toml:"rootlets"`
	Batch     Batch     `toml:"batch"`
	Cache     Cache     `toml:"cache"`
	Overrides Overrides `toml:"overrides"`
	Results   Results   `toml:"results"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spinepipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spinepipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, results, and log directories. The
// dataset and derivatives roots are never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.Output, c.Paths.Results, c.LogDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.QC) != "" {
		if err := os.MkdirAll(c.Paths.QC, 0o755); err != nil {
			return fmt.Errorf("create qc directory %q: %w", c.Paths.QC, err)
		}
	}
	return nil
}

// LogDir returns the directory holding the run ledger and log files.
func (c *Config) LogDir() string {
	if strings.TrimSpace(c.Paths.Output) == "" {
		return ""
	}
	return filepath.Join(c.Paths.Output, "log")
}

// LedgerPath returns the SQLite run history location.
func (c *Config) LedgerPath() string {
	dir := c.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "spinepipe.db")
}

// ParticipantsPath returns the participants table merged into metric rows.
func (c *Config) ParticipantsPath() string {
	if strings.TrimSpace(c.Results.Participants) != "" {
		return c.Results.Participants
	}
	if strings.TrimSpace(c.Paths.Data) == "" {
		return ""
	}
	return filepath.Join(c.Paths.Data, "participants.tsv")
}

// SCTBinary resolves an sct_* command name against the configured install
// directory. Without sct_dir the bare name is returned for PATH lookup.
func (c *Config) SCTBinary(name string) string {
	if strings.TrimSpace(c.Toolbox.SCTDir) == "" {
		return name
	}
	return filepath.Join(c.Toolbox.SCTDir, "bin", name)
}

// PropagatesOverride reports whether manual override propagation is enabled
// for the named step.
func (c *Config) PropagatesOverride(step string) bool {
	for _, name := range c.Overrides.Propagate {
		if name == step {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
