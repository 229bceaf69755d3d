package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"spinepipe/internal/batch"
	"spinepipe/internal/dataset"
	"spinepipe/internal/pipeline"
	"spinepipe/internal/services"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var pipelineName string
	var modelDir string
	var jobs int
	var subjects []string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run one pipeline across many subjects",
		Long: `Batch runs the chosen pipeline for every subject in --subjects, the
batch.include list, or every sub-* directory of the dataset, in that order of
preference. Subjects run independently; one failure does not stop the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newSubjectRunner(ctx, pipelineName, modelDir)
			if err != nil {
				return err
			}
			defer runner.Close()

			cfg := runner.cfg
			targets := cleanSubjects(subjects)
			if len(targets) == 0 {
				targets = cfg.Batch.Include
			}
			if len(targets) == 0 {
				if targets, err = dataset.ListSubjects(cfg.Paths.Data); err != nil {
					return err
				}
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No subjects to process")
				return nil
			}
			if jobs <= 0 {
				jobs = cfg.Batch.Jobs
			}

			results := batch.Run(cmd.Context(), targets, jobs, func(runCtx context.Context, subject string) (pipeline.Report, error) {
				return runner.run(runCtx, subject)
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(batchColumns, batchRows(results)))

			if err := cmd.Context().Err(); err != nil {
				return services.Wrap(services.ErrInterrupted, "batch", "", "interrupted", err)
			}
			if failed := batch.Failed(results); failed > 0 {
				return fmt.Errorf("%d of %d subjects failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "t2w", "Pipeline to run (t1w, t2w, t2starw, dwi, rootlets)")
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "Rootlets model checkout (overrides rootlets.model_dir)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Subjects processed in parallel (default batch.jobs)")
	cmd.Flags().StringSliceVar(&subjects, "subjects", nil, "Comma-separated subjects to process")
	return cmd
}

func cleanSubjects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func batchRows(results []batch.Result[pipeline.Report]) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := string(r.Value.Status())
		switch {
		case !r.Started:
			status = "not started"
		case r.Err != nil && len(r.Value.Steps) == 0:
			status = string(pipeline.OutcomeFailed)
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Subject,
			status,
			strconv.Itoa(r.Value.Count(pipeline.OutcomeExecuted)),
			strconv.Itoa(r.Value.Count(pipeline.OutcomeCached)),
			formatDuration(r.Duration),
			errText,
		})
	}
	return rows
}
