// Package cache decides whether a processing step needs to run.
//
// A step's declared outputs are its cache key: when every output exists the
// step is skipped. Files placed by a human rater at the same path are
// indistinguishable from automatic outputs and therefore override them.
// Steps that run leave a "<output>.pending" marker while the tool works. A
// failed or interrupted step stamps the marker with the output's size and
// mtime; on the next run an unchanged file is set aside as "<output>.partial"
// and recomputed, while a file replaced since then is trusted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spinepipe/internal/fileutil"
	"spinepipe/internal/logging"
)

// PendingSuffix marks outputs whose producing step has not completed.
const PendingSuffix = ".pending"

// Spec is the part of a processing step the guard inspects.
type Spec struct {
	Name    string
	Outputs []string
	// Propagate mirrors cached outputs (and their .json sidecars) into the
	// working directory on a cache hit.
	Propagate bool
}

// Options configures a Guard.
type Options struct {
	DetectPartial bool
	// MirrorDir receives propagated overrides. Empty disables propagation.
	MirrorDir string
	Logger    *slog.Logger
}

// Guard checks declared outputs before each step.
type Guard struct {
	detectPartial bool
	mirrorDir     string
	logger        *slog.Logger
}

// NewGuard constructs a guard.
func NewGuard(opts Options) *Guard {
	return &Guard{
		detectPartial: opts.DetectPartial,
		mirrorDir:     strings.TrimSpace(opts.MirrorDir),
		logger:        logging.NewComponentLogger(opts.Logger, "cache"),
	}
}

// PendingPath returns the marker path for an output.
func PendingPath(output string) string {
	return output + PendingSuffix
}

// ShouldRun reports whether the step must execute. It returns false only when
// every declared output exists and none carries a pending marker.
func (g *Guard) ShouldRun(ctx context.Context, spec Spec) (bool, error) {
	logger := logging.WithContext(ctx, g.logger)
	if len(spec.Outputs) == 0 {
		logger.Debug("step declares no outputs, proceeding")
		return true, nil
	}

	var missing []string
	for _, output := range spec.Outputs {
		ok, err := fileutil.Exists(output)
		if err != nil {
			return false, fmt.Errorf("check output %s: %w", output, err)
		}
		if !ok {
			missing = append(missing, output)
			continue
		}
		if g.detectPartial {
			partial, err := g.discardPartial(logger, output)
			if err != nil {
				return false, err
			}
			if partial {
				logger.Warn("discarding partial output from interrupted run",
					logging.String(logging.FieldEventType, "partial_output"),
					logging.String("path", output),
				)
				missing = append(missing, output)
			}
		}
	}

	if len(missing) > 0 {
		logger.Info("not found, proceeding",
			logging.String(logging.FieldEventType, "cache_miss"),
			logging.String("path", missing[0]),
			logging.Int("missing", len(missing)),
		)
		return true, nil
	}

	logger.Info("found",
		logging.String(logging.FieldEventType, "cache_hit"),
		logging.String("path", spec.Outputs[0]),
	)
	if spec.Propagate {
		if err := g.propagate(ctx, spec); err != nil {
			return false, err
		}
	}
	return false, nil
}

// PartialSuffix is appended to partial outputs set aside by the guard.
const PartialSuffix = ".partial"

// discardPartial sets aside an output whose pending marker survived an
// interrupted run, renaming it to <output>.partial. When the marker recorded
// the output's size and mtime at abort time and the file no longer matches,
// the file was replaced afterwards (a manual correction) and is kept.
func (g *Guard) discardPartial(logger *slog.Logger, output string) (bool, error) {
	marker := PendingPath(output)
	data, err := os.ReadFile(marker)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read pending marker: %w", err)
	}

	if recorded, ok := markerFingerprint(data); ok {
		current, err := fingerprint(output)
		if err != nil {
			return false, err
		}
		if current != recorded {
			if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return false, fmt.Errorf("remove pending marker: %w", err)
			}
			logger.Info("output replaced after interrupted run, keeping it",
				logging.String(logging.FieldEventType, "manual_override"),
				logging.String("path", output),
			)
			return false, nil
		}
	}

	if err := os.Rename(output, output+PartialSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("set aside partial output: %w", err)
	}
	if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove pending marker: %w", err)
	}
	return true, nil
}

// fingerprint identifies an output's state as "size mtime-ns". An absent
// output yields "".
func fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return fmt.Sprintf("%d %d", info.Size(), info.ModTime().UnixNano()), nil
}

// markerFingerprint returns the fingerprint line Abort writes after the step
// name. Markers left by a killed process carry only the step name.
func markerFingerprint(data []byte) (string, bool) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 2 {
		return "", false
	}
	return lines[1], true
}

// Begin writes pending markers for every declared output.
func (g *Guard) Begin(spec Spec) error {
	if !g.detectPartial {
		return nil
	}
	for _, output := range spec.Outputs {
		marker := PendingPath(output)
		if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(marker, []byte(spec.Name+"\n"), 0o644); err != nil {
			return fmt.Errorf("write pending marker: %w", err)
		}
	}
	return nil
}

// Complete clears the pending markers of a successful step.
func (g *Guard) Complete(spec Spec) error {
	if !g.detectPartial {
		return nil
	}
	for _, output := range spec.Outputs {
		if err := os.Remove(PendingPath(output)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear pending marker: %w", err)
		}
	}
	return nil
}

// Abort records the current state of each output in its pending marker after
// a failed or interrupted step. A later ShouldRun can then tell the partial
// file apart from one a rater put in its place.
func (g *Guard) Abort(spec Spec) error {
	if !g.detectPartial {
		return nil
	}
	for _, output := range spec.Outputs {
		marker := PendingPath(output)
		if ok, err := fileutil.Exists(marker); err != nil || !ok {
			continue
		}
		fp, err := fingerprint(output)
		if err != nil {
			return err
		}
		if err := os.WriteFile(marker, []byte(spec.Name+"\n"+fp+"\n"), 0o644); err != nil {
			return fmt.Errorf("update pending marker: %w", err)
		}
	}
	return nil
}

func (g *Guard) propagate(ctx context.Context, spec Spec) error {
	if g.mirrorDir == "" {
		return nil
	}
	logger := logging.WithContext(ctx, g.logger)
	for _, output := range spec.Outputs {
		files := []string{output}
		if sidecar := jsonSidecar(output); sidecar != "" {
			if ok, _ := fileutil.Exists(sidecar); ok {
				files = append(files, sidecar)
			}
		}
		for _, src := range files {
			dst := filepath.Join(g.mirrorDir, filepath.Base(src))
			if filepath.Clean(dst) == filepath.Clean(src) {
				continue
			}
			if same, err := fileutil.SameContent(src, dst); err == nil && same {
				continue
			}
			if err := fileutil.CopyFileVerified(src, dst); err != nil {
				return fmt.Errorf("propagate %s: %w", filepath.Base(src), err)
			}
			logger.Info("propagated cached output to working directory",
				logging.String(logging.FieldEventType, "override_propagated"),
				logging.String("source", src),
				logging.String("destination", dst),
			)
		}
	}
	return nil
}

func jsonSidecar(path string) string {
	for _, ext := range []string{".nii.gz", ".nii", ".csv"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext) + ".json"
		}
	}
	return ""
}
