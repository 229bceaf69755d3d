package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spinepipe/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var pipelineName string
	var modelDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <subject> [model-dir]",
		Short: "Run one pipeline for one subject",
		Long: `Run resolves the subject's acquisition for the chosen pipeline and executes
each step in order. Steps whose outputs already exist are skipped, so rerunning
after a failure or a manual correction resumes where the work left off.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
				return services.Wrap(services.ErrValidation, "run", "", "subject argument required", nil)
			}
			subject := strings.TrimSpace(args[0])
			if len(args) > 1 && modelDir == "" {
				modelDir = args[1]
			}

			runner, err := newSubjectRunner(ctx, pipelineName, modelDir)
			if err != nil {
				return err
			}
			defer runner.Close()

			report, runErr := runner.run(cmd.Context(), subject)
			if asJSON {
				if err := writeJSON(cmd, newReportJSON(report, runErr)); err != nil {
					return err
				}
				return runErr
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if report.Skipped {
				fmt.Fprintln(out, renderStatusLine(subject, statusWarn, fmt.Sprintf("no %s acquisition found, skipped", runner.kind.Modality()), colorize))
				return nil
			}
			if len(report.Steps) > 0 {
				fmt.Fprintf(out, "%s (%s, %s)\n", subject, report.Pipeline, report.Stem)
				fmt.Fprintln(out, renderTable(stepColumns, stepRows(report),
					"Total", string(report.Status()), formatDuration(report.Duration),
				))
				fmt.Fprintln(out, renderStatusLine("Status", outcomeKind(report.Status()), string(report.Status()), colorize))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "t2w", "Pipeline to run (t1w, t2w, t2starw, dwi, rootlets)")
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "Rootlets model checkout (overrides rootlets.model_dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run report as JSON")
	return cmd
}
