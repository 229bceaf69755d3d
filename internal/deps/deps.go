package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// SCTInstallHint points operators at the toolbox installer.
const SCTInstallHint = "install the Spinal Cord Toolbox and set toolbox.sct_dir"

// Requirement is an external program a pipeline step shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Hint is appended to the detail when the program cannot be found.
	Hint     string
	Optional bool
}

// Status is a Requirement after lookup.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement against PATH, or as given when
// the command is already a path.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results = append(results, lookup(req))
	}
	return results
}

func lookup(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = withHint("command not configured", req.Hint)
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = withHint(fmt.Sprintf("binary %q not found", req.Command), req.Hint)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

func withHint(detail, hint string) string {
	if hint = strings.TrimSpace(hint); hint == "" {
		return detail
	}
	return detail + "; " + hint
}

// ToolboxBinaries are the sct_* commands the pipelines invoke.
var ToolboxBinaries = []string{
	"sct_deepseg",
	"sct_label_vertebrae",
	"sct_label_utils",
	"sct_register_to_template",
	"sct_register_multimodal",
	"sct_warp_template",
	"sct_process_segmentation",
	"sct_maths",
	"sct_dmri_moco",
	"sct_dmri_compute_dti",
	"sct_extract_metric",
	"sct_detect_pmj",
	"sct_get_centerline",
}
