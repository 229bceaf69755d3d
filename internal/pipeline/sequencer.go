package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spinepipe/internal/cache"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/fileutil"
	"spinepipe/internal/ledger"
	"spinepipe/internal/logging"
	"spinepipe/internal/services"
)

// Recorder persists step outcomes.
type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// SequencerOptions configures a Sequencer.
type SequencerOptions struct {
	Subject    string
	Stem       string
	Pipeline   Kind
	RunID      string
	Guard      *cache.Guard
	Exclusions *exclusion.List
	Recorder   Recorder
	Logger     *slog.Logger
}

// Sequencer runs a pipeline's steps in order, consulting the cache guard
// before each one and stopping at the first failure.
type Sequencer struct {
	opts   SequencerOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewSequencer constructs a sequencer.
func NewSequencer(opts SequencerOptions) *Sequencer {
	if opts.Guard == nil {
		opts.Guard = cache.NewGuard(cache.Options{Logger: opts.Logger})
	}
	return &Sequencer{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "sequencer"),
		now:    time.Now,
	}
}

// Run executes steps in order. The returned report lists every step reached;
// steps after a failure are not attempted.
func (s *Sequencer) Run(ctx context.Context, steps []Step) (report Report, err error) {
	report = Report{
		RunID:    s.opts.RunID,
		Subject:  s.opts.Subject,
		Pipeline: string(s.opts.Pipeline),
		Stem:     s.opts.Stem,
		Started:  s.now(),
	}
	defer func() {
		report.Duration = s.now().Sub(report.Started)
	}()

	excludedOutputs := make(map[string]struct{})
	for _, step := range steps {
		stepCtx := services.WithStep(ctx, step.Name)
		logger := logging.WithContext(stepCtx, s.logger)
		started := s.now()

		if err := ctx.Err(); err != nil {
			wrapped := services.Wrap(services.ErrInterrupted, step.Name, "start", "run interrupted", err)
			s.finish(stepCtx, &report, step, OutcomeInterrupted, started, wrapped.Error())
			return report, wrapped
		}

		if category, excluded := s.excluded(step, excludedOutputs); excluded {
			for _, output := range step.Outputs {
				excludedOutputs[output] = struct{}{}
			}
			logger.Info("step excluded",
				logging.String(logging.FieldEventType, "step_excluded"),
				logging.String("category", category),
			)
			s.finish(stepCtx, &report, step, OutcomeExcluded, started, "excluded: "+category)
			continue
		}

		run, err := s.opts.Guard.ShouldRun(stepCtx, step.cacheSpec())
		if err != nil {
			wrapped := services.Wrap(services.ErrFilesystem, step.Name, "check outputs", "", err)
			return report, s.fail(stepCtx, &report, step, started, wrapped)
		}
		if !run {
			s.finish(stepCtx, &report, step, OutcomeCached, started, "")
			continue
		}

		logger.Info("step started",
			logging.String(logging.FieldEventType, "step_start"),
			logging.Strings("outputs", step.Outputs),
		)
		if err := s.execute(stepCtx, step); err != nil {
			return report, s.fail(stepCtx, &report, step, started, err)
		}
		logger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.Duration("duration", s.now().Sub(started)),
		)
		s.finish(stepCtx, &report, step, OutcomeExecuted, started, "")
	}
	return report, nil
}

func (s *Sequencer) execute(ctx context.Context, step Step) error {
	if step.Action == nil {
		return fmt.Errorf("step %s has no action", step.Name)
	}
	spec := step.cacheSpec()
	if err := s.opts.Guard.Begin(spec); err != nil {
		return services.Wrap(services.ErrFilesystem, step.Name, "mark outputs", "", err)
	}
	if err := s.runAction(ctx, step); err != nil {
		if abortErr := s.opts.Guard.Abort(spec); abortErr != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to stamp pending markers", "marker_update_failed",
				logging.String(logging.FieldImpact, "partial outputs are set aside on the next run even if replaced"),
				logging.Error(abortErr),
			)
		}
		return err
	}
	if err := s.opts.Guard.Complete(spec); err != nil {
		return services.Wrap(services.ErrFilesystem, step.Name, "clear markers", "", err)
	}
	return nil
}

// runAction invokes the step and checks that every declared output exists.
func (s *Sequencer) runAction(ctx context.Context, step Step) error {
	if err := step.Action(ctx); err != nil {
		return err
	}
	for _, output := range step.Outputs {
		ok, err := fileutil.Exists(output)
		if err != nil {
			return services.Wrap(services.ErrFilesystem, step.Name, "verify outputs", "", err)
		}
		if !ok {
			return services.Wrap(services.ErrExternalTool, step.Name, "verify outputs", "tool produced no output "+output, nil)
		}
	}
	return nil
}

// excluded reports whether step is gated by an exclusion category, either
// directly or because it consumes outputs of an excluded step.
func (s *Sequencer) excluded(step Step, excludedOutputs map[string]struct{}) (string, bool) {
	for _, category := range step.Exclusions {
		if s.opts.Exclusions.Excluded(category, s.opts.Subject, s.opts.Stem) {
			return category, true
		}
	}
	for _, input := range step.Inputs {
		if _, ok := excludedOutputs[input]; ok {
			return "upstream", true
		}
	}
	return "", false
}

func (s *Sequencer) fail(ctx context.Context, report *Report, step Step, started time.Time, err error) error {
	outcome := Outcome(services.Outcome(err))
	if errors.Is(err, context.Canceled) && !errors.Is(err, services.ErrInterrupted) {
		err = services.Wrap(services.ErrInterrupted, step.Name, "run", "", err)
	}
	logger := logging.WithContext(ctx, s.logger)
	if outcome == OutcomeInterrupted {
		logging.WarnWithContext(logger, "step interrupted", "step_interrupted",
			logging.String(logging.FieldImpact, "outputs of this step will be recomputed on the next run"),
			logging.Error(err),
		)
	} else {
		logging.ErrorWithContext(logger, "step failed", "step_failure",
			logging.String(logging.FieldErrorHint, "inspect the tool output above and the QC report"),
			logging.Error(err),
		)
	}
	s.finish(ctx, report, step, outcome, started, strings.TrimSpace(err.Error()))
	return err
}

func (s *Sequencer) finish(ctx context.Context, report *Report, step Step, outcome Outcome, started time.Time, detail string) {
	elapsed := s.now().Sub(started)
	report.Steps = append(report.Steps, StepReport{
		Name:     step.Name,
		Outcome:  outcome,
		Duration: elapsed,
		Detail:   detail,
	})
	s.record(ctx, step.Name, outcome, started, elapsed, detail)
}

func (s *Sequencer) record(ctx context.Context, step string, outcome Outcome, started time.Time, elapsed time.Duration, detail string) {
	if s.opts.Recorder == nil {
		return
	}
	entry := ledger.Entry{
		RunID:    s.opts.RunID,
		Subject:  s.opts.Subject,
		Pipeline: string(s.opts.Pipeline),
		Stem:     s.opts.Stem,
		Step:     step,
		Outcome:  string(outcome),
		Detail:   detail,
		Started:  started,
		Duration: elapsed,
	}
	// The ledger is written even when ctx is canceled so interrupts are recorded.
	if err := s.opts.Recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to record step outcome", "ledger_write_failed",
			logging.String(logging.FieldImpact, "run history is incomplete"),
			logging.Error(err),
		)
	}
}
