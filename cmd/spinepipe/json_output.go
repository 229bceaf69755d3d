package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"spinepipe/internal/pipeline"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type stepJSON struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
}

type reportJSON struct {
	RunID      string     `json:"run_id"`
	Subject    string     `json:"subject"`
	Pipeline   string     `json:"pipeline"`
	Stem       string     `json:"stem,omitempty"`
	Status     string     `json:"status"`
	Skipped    bool       `json:"skipped"`
	DurationMs int64      `json:"duration_ms"`
	Steps      []stepJSON `json:"steps"`
	Error      string     `json:"error,omitempty"`
}

func newReportJSON(report pipeline.Report, err error) reportJSON {
	view := reportJSON{
		RunID:      report.RunID,
		Subject:    report.Subject,
		Pipeline:   report.Pipeline,
		Stem:       report.Stem,
		Status:     string(report.Status()),
		Skipped:    report.Skipped,
		DurationMs: report.Duration.Milliseconds(),
		Steps:      make([]stepJSON, 0, len(report.Steps)),
	}
	for _, step := range report.Steps {
		view.Steps = append(view.Steps, stepJSON{
			Name:       step.Name,
			Outcome:    string(step.Outcome),
			DurationMs: step.Duration.Milliseconds(),
			Detail:     step.Detail,
		})
	}
	if err != nil {
		view.Error = err.Error()
	}
	return view
}
