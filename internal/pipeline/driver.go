package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"spinepipe/internal/cache"
	"spinepipe/internal/config"
	"spinepipe/internal/dataset"
	"spinepipe/internal/derivatives"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/ledger"
	"spinepipe/internal/logging"
	"spinepipe/internal/results"
	"spinepipe/internal/services"
	"spinepipe/internal/toolbox"
)

// StepResolve labels the acquisition lookup in the run ledger.
const StepResolve = "resolve"

// Driver runs one pipeline for one subject at a time.
type Driver struct {
	cfg        *config.Config
	layout     derivatives.Layout
	tools      *toolbox.Toolbox
	exclusions *exclusion.List
	recorder   Recorder
	aggregator *results.Aggregator
	logger     *slog.Logger
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithExclusions sets the exclusion list.
func WithExclusions(list *exclusion.List) DriverOption {
	return func(d *Driver) {
		d.exclusions = list
	}
}

// WithRecorder sets the run ledger.
func WithRecorder(recorder Recorder) DriverOption {
	return func(d *Driver) {
		d.recorder = recorder
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithAggregator overrides the metric table writer built from configuration.
func WithAggregator(aggregator *results.Aggregator) DriverOption {
	return func(d *Driver) {
		d.aggregator = aggregator
	}
}

// NewDriver constructs a driver over cfg and tools.
func NewDriver(cfg *config.Config, tools *toolbox.Toolbox, opts ...DriverOption) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("driver requires configuration")
	}
	if tools == nil {
		return nil, errors.New("driver requires a toolbox")
	}
	d := &Driver{
		cfg:        cfg,
		layout:     derivatives.New(cfg),
		tools:      tools,
		exclusions: exclusion.Empty(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.aggregator == nil {
		d.aggregator = results.FromConfig(cfg, d.exclusions, d.logger)
	}
	return d, nil
}

// RunSubject resolves the subject's acquisition for kind and runs the
// pipeline. A subject without a matching acquisition is skipped with a nil
// error and nothing is created on disk.
func (d *Driver) RunSubject(ctx context.Context, subject string, kind Kind) (Report, error) {
	if err := dataset.ValidateSubject(subject); err != nil {
		return Report{Subject: subject, Pipeline: string(kind)}, err
	}
	runID := ledger.NewRunID()
	ctx = services.WithRunID(services.WithPipeline(services.WithSubject(ctx, subject), string(kind)), runID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(d.logger, "driver"))
	started := time.Now()

	sel, ok, err := dataset.Resolve(d.cfg.Paths.Data, subject, kind.Modality(), dataset.DefaultCandidates(kind.Modality()))
	if err != nil {
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Started: started}, err
	}
	if !ok {
		logger.Info("no acquisition found, skipping subject",
			logging.String(logging.FieldEventType, "subject_skipped"),
			logging.String("modality", string(kind.Modality())),
		)
		d.recordSkip(ctx, runID, subject, kind, started)
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Skipped: true, Started: started}, nil
	}
	logger.Info("acquisition resolved",
		logging.String(logging.FieldEventType, "acquisition_resolved"),
		logging.String("stem", sel.Stem),
		logging.String("path", sel.Path),
	)

	steps, err := Build(kind, Env{
		Selection: sel,
		Layout:    d.layout,
		Tools:     d.tools,
		Results:   d.aggregator,
		Propagate: d.cfg.PropagatesOverride,
	})
	if err != nil {
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Stem: sel.Stem, Started: started}, err
	}

	workDir := d.layout.WorkDir(sel)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Stem: sel.Stem, Started: started},
			fmt.Errorf("create working directory: %w", err)
	}
	lock := flock.New(d.layout.SubjectLockPath(subject))
	locked, err := lock.TryLock()
	if err != nil {
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Stem: sel.Stem, Started: started},
			fmt.Errorf("acquire subject lock: %w", err)
	}
	if !locked {
		return Report{RunID: runID, Subject: subject, Pipeline: string(kind), Stem: sel.Stem, Started: started},
			services.Wrap(services.ErrLocked, subject, "acquire lock", "another run is processing this subject", nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release subject lock", logging.Error(err))
		}
	}()

	seq := NewSequencer(SequencerOptions{
		Subject:  subject,
		Stem:     sel.Stem,
		Pipeline: kind,
		RunID:    runID,
		Guard: cache.NewGuard(cache.Options{
			DetectPartial: d.cfg.Cache.DetectPartial,
			MirrorDir:     workDir,
			Logger:        d.logger,
		}),
		Exclusions: d.exclusions,
		Recorder:   d.recorder,
		Logger:     d.logger,
	})
	report, err := seq.Run(ctx, steps)
	report.Started = started
	report.Duration = time.Since(started)
	logger.Info("pipeline finished",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("status", string(report.Status())),
		logging.Int("executed", report.Count(OutcomeExecuted)),
		logging.Int("cached", report.Count(OutcomeCached)),
		logging.Int("excluded", report.Count(OutcomeExcluded)),
		logging.Duration("duration", report.Duration),
	)
	return report, err
}

func (d *Driver) recordSkip(ctx context.Context, runID, subject string, kind Kind, started time.Time) {
	if d.recorder == nil {
		return
	}
	entry := ledger.Entry{
		RunID:    runID,
		Subject:  subject,
		Pipeline: string(kind),
		Step:     StepResolve,
		Outcome:  string(OutcomeSkipped),
		Detail:   "no acquisition for " + string(kind.Modality()),
		Started:  started,
		Duration: time.Since(started),
	}
	if err := d.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger := logging.WithContext(ctx, d.logger)
		logger.Warn("failed to record skipped subject", logging.Error(err))
	}
}
