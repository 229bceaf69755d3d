package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"spinepipe/internal/dataset"
	"spinepipe/internal/derivatives"
	"spinepipe/internal/fileutil"
	"spinepipe/internal/results"
	"spinepipe/internal/services"
	"spinepipe/internal/toolbox"
)

// Step names.
const (
	StepSCSeg            = "sc_seg"
	StepGMSeg            = "gm_seg"
	StepWMSeg            = "wm_seg"
	StepDiscLabels       = "disc_labels"
	StepVertLabels       = "vert_labels"
	StepRegisterTemplate = "register_template"
	StepCSAExtract       = "csa_extract"
	StepMoco             = "moco"
	StepDTI              = "dti"
	StepWarpTemplate     = "warp_template"
	StepDTIExtract       = "dti_extract"
	StepRootletsSeg      = "rootlets_seg"
	StepPMJDetect        = "pmj_detect"
	StepCenterline       = "centerline"
	StepRootletsZeroing  = "rootlets_zeroing"
	StepSpinalLevels     = "spinal_levels"
	StepVertPMJDistance  = "vert_pmj_distance"
	StepRootletsAggreg   = "rootlets_aggregate"
)

// CategoryRegistration is the exclusion category for template registration.
const CategoryRegistration = "registration"

// Env carries everything a pipeline's steps need.
type Env struct {
	Selection dataset.Selection
	Layout    derivatives.Layout
	Tools     *toolbox.Toolbox
	Results   *results.Aggregator
	// Propagate reports whether a step mirrors cached outputs into the
	// working directory. Nil disables propagation everywhere.
	Propagate func(step string) bool
}

// Build returns the ordered steps of kind for the selection in env.
func Build(kind Kind, env Env) ([]Step, error) {
	if env.Tools == nil {
		return nil, errors.New("pipeline environment has no toolbox")
	}
	if env.Results == nil {
		return nil, errors.New("pipeline environment has no result aggregator")
	}
	if env.Selection.Stem == "" {
		return nil, errors.New("pipeline environment has no resolved acquisition")
	}
	if kind.RequiresModel() && env.Tools.ModelDir() == "" {
		return nil, services.Wrap(services.ErrConfiguration, string(kind), "build", "rootlets model directory required", nil)
	}

	b := &builder{kind: kind, env: env, sel: env.Selection, layout: env.Layout, tools: env.Tools}
	var steps []Step
	switch kind {
	case KindT1w, KindT2w:
		steps = b.csaSteps()
	case KindT2starw:
		steps = b.t2starwSteps()
	case KindDWI:
		steps = b.dwiSteps()
	case KindRootlets:
		steps = b.rootletsSteps()
	default:
		return nil, fmt.Errorf("unknown pipeline %q", kind)
	}
	for i := range steps {
		if env.Propagate != nil {
			steps[i].Propagate = env.Propagate(steps[i].Name)
		}
	}
	return steps, nil
}

type builder struct {
	kind   Kind
	env    Env
	sel    dataset.Selection
	layout derivatives.Layout
	tools  *toolbox.Toolbox
}

func (b *builder) label(suffix string) string {
	return b.layout.Derivative(derivatives.CategoryLabels, b.sel, suffix)
}

func (b *builder) work(suffix, ext string) string {
	return b.layout.Work(b.sel, suffix, ext)
}

func (b *builder) workDir() string {
	return b.layout.WorkDir(b.sel)
}

func (b *builder) contrast() string {
	return b.sel.Modality.Contrast()
}

// Shared anatomical paths.

func (b *builder) cordSeg() string    { return b.label("label-SC_mask") }
func (b *builder) discs() string      { return b.label("labels-disc_step1_levels") }
func (b *builder) labeledSeg() string { return b.work("label-SC_mask_labeled", ".nii.gz") }
func (b *builder) templateDir() string {
	return filepath.Join(b.workDir(), b.sel.Stem+"_template")
}
func (b *builder) templateLevels() string {
	return filepath.Join(b.templateDir(), "template", "PAM50_levels.nii.gz")
}
func (b *builder) regDir() string {
	return filepath.Join(b.workDir(), b.sel.Stem+"_reg")
}

func (b *builder) segCord(input string) Step {
	out := b.cordSeg()
	return Step{
		Name:       StepSCSeg,
		Inputs:     []string{input},
		Outputs:    []string{out},
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.SegmentCord(ctx, input, out)
		},
	}
}

func (b *builder) discLabels() Step {
	out := b.discs()
	prefix := filepath.Join(b.layout.DerivativeDir(derivatives.CategoryLabels, b.sel), b.sel.Stem+"_labels-disc")
	return Step{
		Name:       StepDiscLabels,
		Inputs:     []string{b.sel.Path},
		Outputs:    []string{out},
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.DetectDiscs(ctx, b.sel.Path, prefix)
		},
	}
}

func (b *builder) vertLabels() Step {
	seg, discs := b.cordSeg(), b.discs()
	return Step{
		Name:       StepVertLabels,
		Inputs:     []string{b.sel.Path, seg, discs},
		Outputs:    []string{b.labeledSeg()},
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.LabelVertebrae(ctx, b.sel.Path, seg, b.contrast(), discs, b.workDir())
		},
	}
}

// gate returns the pipeline-wide exclusion categories. Only the diffusion
// pipeline is gated as a whole.
func (b *builder) gate(extra ...string) []string {
	var out []string
	if b.kind == KindDWI {
		out = append(out, KindDWI.Category())
	}
	return append(out, extra...)
}

// metricSource is one tool CSV feeding a metric table.
type metricSource struct {
	path    string
	mapping map[string]string
}

func (b *builder) appendMetrics(ctx context.Context, step, table string, sources []metricSource) error {
	var rows []results.Row
	for _, src := range sources {
		measurements, err := results.ParseToolCSV(src.path, src.mapping)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, step, "parse tool output", filepath.Base(src.path), err)
		}
		rows = append(rows, results.Rows(b.sel.Subject, string(b.sel.Modality), filepath.Base(src.path), measurements)...)
	}
	key := results.Key{Subject: b.sel.Subject, Stem: b.sel.Stem, Category: b.kind.Category()}
	if _, err := b.env.Results.Append(ctx, key, table, rows); err != nil {
		return services.Wrap(services.ErrValidation, step, "append metrics", table, err)
	}
	return nil
}

// multimodalWarp is the forward warp sct_register_multimodal writes into outDir.
func multimodalWarp(outDir, source, dest string) string {
	return filepath.Join(outDir, "warp_"+trimNifti(filepath.Base(source))+"2"+trimNifti(filepath.Base(dest))+".nii.gz")
}

func trimNifti(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".nii")
}

func promote(step string, pairs ...[2]string) error {
	for _, pair := range pairs {
		if err := fileutil.Move(pair[0], pair[1]); err != nil {
			return services.Wrap(services.ErrExternalTool, step, "collect output", filepath.Base(pair[0]), err)
		}
	}
	return nil
}
