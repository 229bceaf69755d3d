package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ToolCall records one simulated invocation.
type ToolCall struct {
	Tool string
	Args []string
}

// SCT is a toolbox executor that writes the files each tool would produce
// without running anything. Output content is deterministic so reruns can
// be compared byte for byte.
type SCT struct {
	mu       sync.Mutex
	calls    []ToolCall
	failures map[string]error
	skip     map[string]bool
}

// NewSCT returns a simulated toolbox executor.
func NewSCT() *SCT {
	return &SCT{failures: make(map[string]error), skip: make(map[string]bool)}
}

// FailWith makes every later invocation of tool return err.
func (s *SCT) FailWith(tool string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[tool] = err
}

// SkipOutputs makes tool succeed without writing anything.
func (s *SCT) SkipOutputs(tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skip[tool] = true
}

// Calls returns a copy of the recorded invocations.
func (s *SCT) Calls() []ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ToolCall(nil), s.calls...)
}

// Count returns how many times tool was invoked.
func (s *SCT) Count(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if call.Tool == tool {
			n++
		}
	}
	return n
}

// Total returns the number of invocations across all tools.
func (s *SCT) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Run implements the toolbox executor contract.
func (s *SCT) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tool := filepath.Base(binary)
	if len(args) > 0 && strings.HasSuffix(args[0], ".py") {
		tool = filepath.Base(args[0])
		args = args[1:]
	}

	s.mu.Lock()
	s.calls = append(s.calls, ToolCall{Tool: tool, Args: append([]string(nil), args...)})
	failure := s.failures[tool]
	skip := s.skip[tool]
	s.mu.Unlock()

	if onOutput != nil {
		onOutput(tool + " " + strings.Join(args, " "))
	}
	if failure != nil {
		return failure
	}
	if skip {
		return nil
	}
	return produce(tool, args)
}

// ToolCSV is the table written for sct_process_segmentation and
// sct_extract_metric calls.
const ToolCSV = "Filename,VertLevel,MEAN(area),MEAN(diameter_AP),MEAN(diameter_RL),MEAN(eccentricity),MEAN(solidity),MAP()\n" +
	"img.nii.gz,2,70.5,7.1,11.2,0.71,0.93,0.72\n" +
	"img.nii.gz,3,68.0,7.0,11.5,0.72,0.94,0.70\n" +
	"img.nii.gz,4,66.5,6.8,12.0,0.74,0.92,0.68\n" +
	"img.nii.gz,5,64.0,6.6,12.4,0.75,0.91,0.66\n"

// SpinalLevelsCSV is the table written by the rootlets spinal level script.
const SpinalLevelsCSV = "fname,spinal_level,distance_from_pmj_start,distance_from_pmj_end,height\n" +
	"img.nii.gz,2,50.0,61.0,11.0\n" +
	"img.nii.gz,3,61.0,73.5,12.5\n"

// VertebralLevelsCSV is the table written by the disc distance script.
const VertebralLevelsCSV = "fname,vertebral_level,distance_from_pmj_start,distance_from_pmj_end,height\n" +
	"img.nii.gz,2,48.0,66.0,18.0\n" +
	"img.nii.gz,3,66.0,82.0,16.0\n"

func produce(tool string, args []string) error {
	image := func(path string) error { return writeOutput(path, "simulated "+tool+"\n") }
	switch tool {
	case "sct_deepseg":
		out := flagValue(args, "-o")
		if len(args) > 0 && args[0] == "totalspineseg" {
			return image(out + "_step1_levels.nii.gz")
		}
		return image(out)
	case "sct_label_vertebrae":
		seg := trimNifti(filepath.Base(flagValue(args, "-s")))
		return image(filepath.Join(flagValue(args, "-ofolder"), seg+"_labeled.nii.gz"))
	case "sct_register_to_template":
		dir := flagValue(args, "-ofolder")
		if err := image(filepath.Join(dir, "warp_template2anat.nii.gz")); err != nil {
			return err
		}
		return image(filepath.Join(dir, "warp_anat2template.nii.gz"))
	case "sct_register_multimodal":
		src := trimNifti(filepath.Base(flagValue(args, "-i")))
		dest := trimNifti(filepath.Base(flagValue(args, "-d")))
		return image(filepath.Join(flagValue(args, "-ofolder"), "warp_"+src+"2"+dest+".nii.gz"))
	case "sct_warp_template":
		dir := flagValue(args, "-ofolder")
		if err := image(filepath.Join(dir, "template", "PAM50_levels.nii.gz")); err != nil {
			return err
		}
		return writeOutput(filepath.Join(dir, "atlas", "info_label.txt"), "51, white matter, PAM50_wm.nii.gz\n")
	case "sct_dmri_moco":
		base := trimNifti(filepath.Base(flagValue(args, "-i")))
		dir := flagValue(args, "-ofolder")
		if err := image(filepath.Join(dir, base+"_moco.nii.gz")); err != nil {
			return err
		}
		return image(filepath.Join(dir, base+"_moco_dwi_mean.nii.gz"))
	case "sct_dmri_compute_dti":
		prefix := flagValue(args, "-o")
		for _, metric := range []string{"FA", "MD", "AD", "RD"} {
			if err := image(prefix + metric + ".nii.gz"); err != nil {
				return err
			}
		}
		return nil
	case "sct_process_segmentation", "sct_extract_metric":
		return writeOutput(flagValue(args, "-o"), ToolCSV)
	case "sct_get_centerline":
		out := flagValue(args, "-o")
		if err := image(out); err != nil {
			return err
		}
		return writeOutput(trimNifti(out)+".csv", "x,y,z\n0,0,0\n")
	case "sct_detect_pmj", "sct_maths", "sct_label_utils":
		return image(flagValue(args, "-o"))
	case "zeroing_false_positive_rootlets.py":
		return image(trimNifti(flagValue(args, "-rootlets-seg")) + "_modif.nii.gz")
	case "02a_rootlets_to_spinal_levels.py":
		base := trimNifti(flagValue(args, "-i"))
		if err := image(base + "_spinal_levels.nii.gz"); err != nil {
			return err
		}
		return writeOutput(base+"_pmj_distance.csv", SpinalLevelsCSV)
	case "discs_to_vertebral_levels.py":
		return writeOutput(trimNifti(flagValue(args, "-disclabel"))+"_pmj_distance_vertebral_disc.csv", VertebralLevelsCSV)
	default:
		return fmt.Errorf("simulated toolbox: unknown tool %s", tool)
	}
}

func flagValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func trimNifti(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".nii")
}

func writeOutput(path, content string) error {
	if path == "" {
		return fmt.Errorf("simulated toolbox: missing output path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
