package toolbox

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"spinepipe/internal/services"
)

// Rootlets model scripts, relative to the model checkout.
const (
	ScriptZeroRootlets     = "pediatric_rootlets/zeroing_false_positive_rootlets.py"
	ScriptRootletsToLevels = "inter-rater_variability/02a_rootlets_to_spinal_levels.py"
	ScriptDiscsToVertebral = "pediatric_rootlets/discs_to_vertebral_levels.py"
)

// qcArgs appends the QC report flags when a QC directory is configured.
func (t *Toolbox) qcArgs(ctx context.Context, args []string) []string {
	if t.opts.QCDir == "" {
		return args
	}
	args = append(args, "-qc", t.opts.QCDir)
	if subject, ok := services.SubjectFromContext(ctx); ok {
		args = append(args, "-qc-subject", subject)
	}
	return args
}

// SegmentCord produces a binary spinal cord mask.
func (t *Toolbox) SegmentCord(ctx context.Context, image, output string) error {
	return t.SCT(ctx, "sct_deepseg", t.qcArgs(ctx, []string{"spinalcord", "-i", image, "-o", output})...)
}

// SegmentGrayMatter produces a gray matter mask (T2*w).
func (t *Toolbox) SegmentGrayMatter(ctx context.Context, image, output string) error {
	return t.SCT(ctx, "sct_deepseg", t.qcArgs(ctx, []string{"graymatter", "-i", image, "-o", output})...)
}

// SegmentRootlets produces the spinal rootlets segmentation.
func (t *Toolbox) SegmentRootlets(ctx context.Context, image, output string) error {
	return t.SCT(ctx, "sct_deepseg", t.qcArgs(ctx, []string{"rootlets", "-i", image, "-o", output})...)
}

// DetectDiscs runs the disc labeling model. The toolbox appends
// "_step1_levels" to prefix for the written label file.
func (t *Toolbox) DetectDiscs(ctx context.Context, image, prefix string) error {
	return t.SCT(ctx, "sct_deepseg", t.qcArgs(ctx, []string{"totalspineseg", "-i", image, "-o", prefix, "-step1-only", "1"})...)
}

// SubtractMask writes minuend minus subtrahend to output.
func (t *Toolbox) SubtractMask(ctx context.Context, minuend, subtrahend, output string) error {
	return t.SCT(ctx, "sct_maths", "-i", minuend, "-sub", subtrahend, "-o", output)
}

// LabelVertebrae writes {seg}_labeled.nii.gz into outDir from existing disc labels.
func (t *Toolbox) LabelVertebrae(ctx context.Context, image, seg, contrast, discs, outDir string) error {
	args := []string{"-i", image, "-s", seg, "-c", contrast, "-discfile", discs, "-ofolder", outDir}
	return t.SCT(ctx, "sct_label_vertebrae", t.qcArgs(ctx, args)...)
}

// KeepLabels keeps only the listed label values.
func (t *Toolbox) KeepLabels(ctx context.Context, labels string, keep []int, output string) error {
	return t.SCT(ctx, "sct_label_utils", "-i", labels, "-keep", joinInts(keep), "-o", output)
}

// RegisterToTemplate registers an anatomical image to PAM50 using disc labels.
func (t *Toolbox) RegisterToTemplate(ctx context.Context, image, seg, discs, contrast, outDir string) error {
	args := []string{"-i", image, "-s", seg, "-ldisc", discs, "-c", contrast, "-ofolder", outDir}
	return t.SCT(ctx, "sct_register_to_template", t.qcArgs(ctx, args)...)
}

// RegisterMultimodal registers the PAM50 template onto a non-anatomical image.
func (t *Toolbox) RegisterMultimodal(ctx context.Context, source, sourceSeg, dest, destSeg, param, outDir string) error {
	args := []string{"-i", source, "-iseg", sourceSeg, "-d", dest, "-dseg", destSeg, "-param", param, "-ofolder", outDir}
	return t.SCT(ctx, "sct_register_multimodal", t.qcArgs(ctx, args)...)
}

// WarpTemplate warps the PAM50 template and atlas into subject space.
func (t *Toolbox) WarpTemplate(ctx context.Context, dest, warp, outDir string) error {
	return t.SCT(ctx, "sct_warp_template", t.qcArgs(ctx, []string{"-d", dest, "-w", warp, "-ofolder", outDir})...)
}

// ProcessSegmentation computes morphometrics per vertebral level into a CSV.
func (t *Toolbox) ProcessSegmentation(ctx context.Context, seg, levels, vertfile string, perLevel, perSlice bool, output string) error {
	return t.SCT(ctx, "sct_process_segmentation",
		"-i", seg,
		"-vert", levels,
		"-vertfile", vertfile,
		"-perlevel", boolFlag(perLevel),
		"-perslice", boolFlag(perSlice),
		"-o", output,
	)
}

// MotionCorrect runs diffusion motion correction into outDir.
func (t *Toolbox) MotionCorrect(ctx context.Context, dwi, bvec, outDir string) error {
	return t.SCT(ctx, "sct_dmri_moco", t.qcArgs(ctx, []string{"-i", dwi, "-bvec", bvec, "-ofolder", outDir})...)
}

// ComputeDTI fits the tensor model, writing {prefix}FA.nii.gz and friends.
func (t *Toolbox) ComputeDTI(ctx context.Context, dwi, bval, bvec, prefix string) error {
	return t.SCT(ctx, "sct_dmri_compute_dti", "-i", dwi, "-bval", bval, "-bvec", bvec, "-o", prefix)
}

// ExtractMetric averages a metric map within an atlas label per level.
func (t *Toolbox) ExtractMetric(ctx context.Context, image, atlasDir string, label int, levels, vertfile, output string) error {
	return t.SCT(ctx, "sct_extract_metric",
		"-i", image,
		"-f", atlasDir,
		"-l", strconv.Itoa(label),
		"-vert", levels,
		"-vertfile", vertfile,
		"-perlevel", "1",
		"-method", "map",
		"-o", output,
	)
}

// DetectPMJ labels the pontomedullary junction.
func (t *Toolbox) DetectPMJ(ctx context.Context, image, contrast, seg, output string) error {
	args := []string{"-i", image, "-c", contrast, "-s", seg, "-ofolder", filepath.Dir(output), "-o", output}
	return t.SCT(ctx, "sct_detect_pmj", t.qcArgs(ctx, args)...)
}

// Centerline extracts an extrapolated cord centerline. The toolbox writes a
// CSV next to the output image.
func (t *Toolbox) Centerline(ctx context.Context, seg, output string) error {
	return t.SCT(ctx, "sct_get_centerline", "-i", seg, "-method", "fitseg", "-extrapolation", "1", "-o", output)
}

// ZeroFalsePositiveRootlets removes rootlets below the given disc level.
func (t *Toolbox) ZeroFalsePositiveRootlets(ctx context.Context, rootlets, discs string, threshold int) error {
	return t.Script(ctx, ScriptZeroRootlets, "-rootlets-seg", rootlets, "-d", discs, "-x", strconv.Itoa(threshold))
}

// RootletsToSpinalLevels derives spinal levels and their PMJ distances.
func (t *Toolbox) RootletsToSpinalLevels(ctx context.Context, rootlets, seg, pmj string) error {
	return t.Script(ctx, ScriptRootletsToLevels, "-i", rootlets, "-s", seg, "-pmj", pmj)
}

// DiscsToVertebralLevels computes vertebral level PMJ distances.
func (t *Toolbox) DiscsToVertebralLevels(ctx context.Context, centerline, discs string) error {
	return t.Script(ctx, ScriptDiscsToVertebral, "-centerline", centerline, "-disclabel", discs)
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
