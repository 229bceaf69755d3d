package preflight

import (
	"spinepipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks for the given config. The dataset
// root only needs to be readable; output locations must be writable.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Dataset root (always checked)
	results = append(results, CheckDirectoryReadable("Dataset directory", cfg.Paths.Data))

	// Output tree (always checked)
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.Output))

	// Results directory (when it lives outside the output tree it may not be created yet)
	if cfg.Paths.Results != "" {
		results = append(results, CheckDirectoryAccess("Results directory", cfg.Paths.Results))
	}

	// QC reports
	if cfg.Paths.QC != "" {
		results = append(results, CheckDirectoryAccess("QC directory", cfg.Paths.QC))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
