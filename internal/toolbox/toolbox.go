package toolbox

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"spinepipe/internal/config"
	"spinepipe/internal/logging"
	"spinepipe/internal/services"
)

// Options describes where the tools live and how they are invoked.
type Options struct {
	SCTDir   string
	Python   string
	ModelDir string
	QCDir    string
	Timeout  time.Duration
}

// Option configures the toolbox.
type Option func(*Toolbox)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(t *Toolbox) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// WithLogger sets the logger receiving tool output at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolbox) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithModelDir overrides the rootlets model checkout.
func WithModelDir(dir string) Option {
	return func(t *Toolbox) {
		if dir = strings.TrimSpace(dir); dir != "" {
			t.opts.ModelDir = dir
		}
	}
}

// Toolbox wraps external tool invocations.
type Toolbox struct {
	opts   Options
	exec   Executor
	logger *slog.Logger
}

// New constructs a toolbox.
func New(opts Options, options ...Option) *Toolbox {
	if strings.TrimSpace(opts.Python) == "" {
		opts.Python = "python"
	}
	tb := &Toolbox{
		opts:   opts,
		exec:   commandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range options {
		opt(tb)
	}
	tb.logger = logging.NewComponentLogger(tb.logger, "toolbox")
	return tb
}

// FromConfig builds a toolbox from the run configuration.
func FromConfig(cfg *config.Config, options ...Option) *Toolbox {
	return New(Options{
		SCTDir:   cfg.Toolbox.SCTDir,
		Python:   cfg.Toolbox.Python,
		ModelDir: cfg.Rootlets.ModelDir,
		QCDir:    cfg.Paths.QC,
		Timeout:  time.Duration(cfg.Toolbox.TimeoutMinutes) * time.Minute,
	}, options...)
}

// ModelDir returns the configured rootlets model checkout.
func (t *Toolbox) ModelDir() string {
	return t.opts.ModelDir
}

// Binary resolves an sct_* command against the install directory.
func (t *Toolbox) Binary(name string) string {
	if t.opts.SCTDir == "" {
		return name
	}
	return filepath.Join(t.opts.SCTDir, "bin", name)
}

// TemplateFile returns a PAM50 template file from the toolbox data folder.
func (t *Toolbox) TemplateFile(name string) string {
	return filepath.Join(t.opts.SCTDir, "data", "PAM50", "template", name)
}

// SCT runs an sct_* binary.
func (t *Toolbox) SCT(ctx context.Context, tool string, args ...string) error {
	return t.run(ctx, tool, t.Binary(tool), args)
}

// Script runs a python script relative to the rootlets model checkout.
func (t *Toolbox) Script(ctx context.Context, script string, args ...string) error {
	if t.opts.ModelDir == "" {
		return services.Wrap(services.ErrConfiguration, filepath.Base(script), "run", "rootlets model directory not set", nil)
	}
	full := filepath.Join(t.opts.ModelDir, filepath.FromSlash(script))
	return t.run(ctx, filepath.Base(script), t.opts.Python, append([]string{full}, args...))
}

func (t *Toolbox) run(ctx context.Context, tool, binary string, args []string) error {
	runCtx := ctx
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, t.logger)
	logger.Debug("running tool",
		logging.String("tool", tool),
		logging.String("command", binary+" "+strings.Join(args, " ")),
	)
	started := time.Now()

	err := t.exec.Run(runCtx, binary, args, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			logger.Debug(line, logging.String("tool", tool))
		}
	})
	if err == nil {
		logger.Debug("tool finished", logging.String("tool", tool), logging.Duration("elapsed", time.Since(started)))
		return nil
	}
	return classify(ctx, runCtx, tool, err)
}

func classify(parent, runCtx context.Context, tool string, err error) error {
	if parent.Err() != nil {
		return services.Wrap(services.ErrInterrupted, tool, "run", "interrupted", parent.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrExternalTool, tool, "run", "timed out", runCtx.Err())
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrExternalTool, tool, "run", "", exitErr)
	}
	var procErr *exec.ExitError
	if errors.As(err, &procErr) && procErr.ExitCode() > 0 {
		return services.Wrap(services.ErrExternalTool, tool, "run", "", &ExitError{Tool: tool, Code: procErr.ExitCode()})
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrExternalTool, tool, "run", "binary not found", err)
	}
	return services.Wrap(services.ErrExternalTool, tool, "run", "failed", err)
}
