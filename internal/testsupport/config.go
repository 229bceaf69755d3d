package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"spinepipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Data = filepath.Join(base, "data")
	cfgVal.Paths.Output = filepath.Join(base, "output")
	cfgVal.Paths.Derivatives = filepath.Join(cfgVal.Paths.Data, "derivatives")
	cfgVal.Paths.Results = filepath.Join(cfgVal.Paths.Output, "results", "tables")
	cfgVal.Toolbox.SCTDir = filepath.Join(base, "sct")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithModelDir sets the rootlets model checkout on the test config.
func WithModelDir() ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "model")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir model dir: %v", err)
		}
		b.cfg.Rootlets.ModelDir = dir
	}
}

// WithResultsMode sets the metric table write mode.
func WithResultsMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Results.Mode = mode
	}
}

// WithQC enables QC report generation into a temp directory.
func WithQC() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.QC = filepath.Join(b.baseDir, "qc")
	}
}

// WithExcludeFile writes content to an exclusion YAML file and points the
// config at it.
func WithExcludeFile(content string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "exclude.yml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			b.t.Fatalf("write exclude file: %v", err)
		}
		b.cfg.Paths.ExcludeFile = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default toolbox binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"sct_deepseg", "sct_label_vertebrae", "sct_process_segmentation", "python"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.Data)
}
