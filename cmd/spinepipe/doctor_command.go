package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"spinepipe/internal/deps"
	"spinepipe/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, toolbox binaries, and optional features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			writeSection(out, "Directories", colorize)
			for _, r := range preflight.RunAll(cfg) {
				problems += writeCheck(out, r, statusError, colorize)
			}

			writeSection(out, "Toolbox", colorize)
			for _, s := range preflight.CheckSystemDeps(cfg) {
				problems += writeDependency(out, s, colorize)
			}

			writeSection(out, "Features", colorize)
			problems += writeCheck(out, preflight.CheckModelDirFromConfig(cfg), statusWarn, colorize)
			problems += writeCheck(out, preflight.CheckExclusionsFromConfig(cfg), statusError, colorize)

			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func writeSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

// writeCheck prints a check result and returns 1 when it counts as a problem.
func writeCheck(out io.Writer, r preflight.Result, failKind statusKind, colorize bool) int {
	if r.Passed {
		fmt.Fprintln(out, renderStatusLine(r.Name, statusOK, r.Detail, colorize))
		return 0
	}
	fmt.Fprintln(out, renderStatusLine(r.Name, failKind, r.Detail, colorize))
	if failKind == statusError {
		return 1
	}
	return 0
}

func writeDependency(out io.Writer, s deps.Status, colorize bool) int {
	switch {
	case s.Available:
		fmt.Fprintln(out, renderStatusLine(s.Name, statusOK, s.Command, colorize))
		return 0
	case s.Optional:
		fmt.Fprintln(out, renderStatusLine(s.Name, statusWarn, s.Detail, colorize))
		return 0
	default:
		fmt.Fprintln(out, renderStatusLine(s.Name, statusError, s.Detail, colorize))
		return 1
	}
}
