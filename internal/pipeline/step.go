package pipeline

import (
	"context"
	"time"

	"spinepipe/internal/cache"
)

// Outcome labels what happened to a step.
type Outcome string

const (
	OutcomeExecuted    Outcome = "executed"
	OutcomeCached      Outcome = "cached"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeExcluded    Outcome = "excluded"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Step is one unit of work in a pipeline.
type Step struct {
	Name string
	// Inputs are raw files or outputs of earlier steps.
	Inputs []string
	// Outputs are the cache key: the step is skipped when all exist.
	Outputs []string
	// Propagate mirrors cached outputs into the working directory.
	Propagate bool
	// Exclusions lists categories whose exclusion entries skip this step.
	Exclusions []string
	Action     func(ctx context.Context) error
}

func (s Step) cacheSpec() cache.Spec {
	return cache.Spec{Name: s.Name, Outputs: s.Outputs, Propagate: s.Propagate}
}

// StepReport records the outcome of one step.
type StepReport struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration
	Detail   string
}

// Report summarizes one subject run.
type Report struct {
	RunID    string
	Subject  string
	Pipeline string
	Stem     string
	// Skipped is set when no acquisition matched and nothing ran.
	Skipped  bool
	Steps    []StepReport
	Started  time.Time
	Duration time.Duration
}

// Count returns how many steps ended with outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, step := range r.Steps {
		if step.Outcome == outcome {
			n++
		}
	}
	return n
}

// Status summarizes the run for tables: the worst step outcome.
func (r Report) Status() Outcome {
	if r.Skipped {
		return OutcomeSkipped
	}
	for _, outcome := range []Outcome{OutcomeInterrupted, OutcomeFailed} {
		if r.Count(outcome) > 0 {
			return outcome
		}
	}
	if r.Count(OutcomeExecuted) > 0 {
		return OutcomeExecuted
	}
	if len(r.Steps) > 0 && r.Count(OutcomeExcluded) == len(r.Steps) {
		return OutcomeExcluded
	}
	return OutcomeCached
}
