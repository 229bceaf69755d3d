package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spinepipe/internal/config"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/ledger"
	"spinepipe/internal/pipeline"
	"spinepipe/internal/services"
	"spinepipe/internal/textutil"
	"spinepipe/internal/toolbox"
)

// subjectRunner holds what every subject of one invocation shares.
type subjectRunner struct {
	cmdCtx     *commandContext
	cfg        *config.Config
	kind       pipeline.Kind
	modelDir   string
	exclusions *exclusion.List
	store      *ledger.Store
}

func newSubjectRunner(cmdCtx *commandContext, pipelineName, modelDir string) (*subjectRunner, error) {
	kind, err := pipeline.ParseKind(pipelineName)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "pipeline", "", err)
	}
	cfg, err := cmdCtx.runConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(modelDir) == "" {
		modelDir = cfg.Rootlets.ModelDir
	} else if modelDir, err = config.ExpandPath(strings.TrimSpace(modelDir)); err != nil {
		return nil, fmt.Errorf("resolve model dir: %w", err)
	}
	if kind.RequiresModel() && modelDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, string(kind), "", "model directory required (argument, --model-dir, or rootlets.model_dir)", nil)
	}
	exclusions, err := cmdCtx.exclusions()
	if err != nil {
		return nil, err
	}
	store, err := cmdCtx.openLedger()
	if err != nil {
		return nil, err
	}
	return &subjectRunner{
		cmdCtx:     cmdCtx,
		cfg:        cfg,
		kind:       kind,
		modelDir:   modelDir,
		exclusions: exclusions,
		store:      store,
	}, nil
}

func (r *subjectRunner) Close() error {
	return r.store.Close()
}

func (r *subjectRunner) run(ctx context.Context, subject string) (pipeline.Report, error) {
	logger, logCloser, err := r.cmdCtx.logger(subject)
	if err != nil {
		return pipeline.Report{Subject: subject}, err
	}
	defer logCloser.Close()
	tools := toolbox.FromConfig(r.cfg, toolbox.WithLogger(logger), toolbox.WithModelDir(r.modelDir))
	driver, err := pipeline.NewDriver(r.cfg, tools,
		pipeline.WithExclusions(r.exclusions),
		pipeline.WithRecorder(r.store),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return pipeline.Report{Subject: subject}, err
	}
	return driver.RunSubject(ctx, subject, r.kind)
}

func stepRows(report pipeline.Report) [][]string {
	rows := make([][]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		rows = append(rows, []string{
			textutil.StepLabel(step.Name),
			string(step.Outcome),
			formatDuration(step.Duration),
		})
	}
	return rows
}

func formatDuration(d time.Duration) string {
	return textutil.Ternary(d < time.Second, d.Round(time.Millisecond).String(), d.Round(time.Second).String())
}
