package pipeline

import (
	"context"
	"path/filepath"

	"spinepipe/internal/derivatives"
	"spinepipe/internal/results"
)

// csaSteps: sc_seg, disc_labels, vert_labels, register_template, csa_extract.
func (b *builder) csaSteps() []Step {
	return []Step{
		b.segCord(b.sel.Path),
		b.discLabels(),
		b.vertLabels(),
		b.registerAnat(),
		b.csaExtract(),
	}
}

func (b *builder) registerAnat() Step {
	seg, discs := b.cordSeg(), b.discs()
	kept := b.work("labels-disc_3-5", ".nii.gz")
	forward := b.layout.Derivative(derivatives.CategoryRegistration, b.sel, "warp_template2anat")
	inverse := b.layout.Derivative(derivatives.CategoryRegistration, b.sel, "warp_anat2template")
	regDir := b.regDir()
	return Step{
		Name:       StepRegisterTemplate,
		Inputs:     []string{b.sel.Path, seg, discs},
		Outputs:    []string{forward, inverse},
		Exclusions: b.gate(CategoryRegistration),
		Action: func(ctx context.Context) error {
			if err := b.tools.KeepLabels(ctx, discs, RegistrationDiscs, kept); err != nil {
				return err
			}
			if err := b.tools.RegisterToTemplate(ctx, b.sel.Path, seg, kept, b.contrast(), regDir); err != nil {
				return err
			}
			return promote(StepRegisterTemplate,
				[2]string{filepath.Join(regDir, "warp_template2anat.nii.gz"), forward},
				[2]string{filepath.Join(regDir, "warp_anat2template.nii.gz"), inverse},
			)
		},
	}
}

func (b *builder) csaExtract() Step {
	seg, labeled := b.cordSeg(), b.labeledSeg()
	out := b.work("csa", ".csv")
	table := TableCSAT2w
	if b.kind == KindT1w {
		table = TableCSAT1w
	}
	return Step{
		Name:       StepCSAExtract,
		Inputs:     []string{seg, labeled},
		Outputs:    []string{out},
		Exclusions: []string{b.kind.Category()},
		Action: func(ctx context.Context) error {
			if err := b.tools.ProcessSegmentation(ctx, seg, CSALevels, labeled, true, false, out); err != nil {
				return err
			}
			return b.appendMetrics(ctx, StepCSAExtract, table, []metricSource{{path: out, mapping: results.ProcessSegmentationMetrics}})
		},
	}
}

// t2starwSteps: sc_seg, gm_seg, wm_seg, register_template, csa_extract over
// cord, gray matter, and white matter.
func (b *builder) t2starwSteps() []Step {
	sc := b.cordSeg()
	gm := b.label("label-GM_mask")
	wm := b.label("label-WM_mask")

	gmSeg := Step{
		Name:    StepGMSeg,
		Inputs:  []string{b.sel.Path},
		Outputs: []string{gm},
		Action: func(ctx context.Context) error {
			return b.tools.SegmentGrayMatter(ctx, b.sel.Path, gm)
		},
	}
	wmSeg := Step{
		Name:    StepWMSeg,
		Inputs:  []string{sc, gm},
		Outputs: []string{wm},
		Action: func(ctx context.Context) error {
			return b.tools.SubtractMask(ctx, sc, gm, wm)
		},
	}

	source := b.tools.TemplateFile("PAM50_t2s.nii.gz")
	sourceSeg := b.tools.TemplateFile("PAM50_cord.nii.gz")
	forward := b.layout.Derivative(derivatives.CategoryRegistration, b.sel, "warp_template2anat")
	levels := b.templateLevels()
	regDir := b.regDir()
	register := Step{
		Name:       StepRegisterTemplate,
		Inputs:     []string{b.sel.Path, sc},
		Outputs:    []string{forward, levels},
		Exclusions: []string{CategoryRegistration},
		Action: func(ctx context.Context) error {
			if err := b.tools.RegisterMultimodal(ctx, source, sourceSeg, b.sel.Path, sc, multimodalParam, regDir); err != nil {
				return err
			}
			if err := promote(StepRegisterTemplate, [2]string{multimodalWarp(regDir, source, b.sel.Path), forward}); err != nil {
				return err
			}
			return b.tools.WarpTemplate(ctx, b.sel.Path, forward, b.templateDir())
		},
	}

	masks := []struct {
		region string
		path   string
	}{{"SC", sc}, {"GM", gm}, {"WM", wm}}
	var outputs []string
	for _, m := range masks {
		outputs = append(outputs, b.work("csa-"+m.region, ".csv"))
	}
	extract := Step{
		Name:       StepCSAExtract,
		Inputs:     []string{sc, gm, wm, levels},
		Outputs:    outputs,
		Exclusions: []string{b.kind.Category()},
		Action: func(ctx context.Context) error {
			sources := make([]metricSource, 0, len(masks))
			for i, m := range masks {
				if err := b.tools.ProcessSegmentation(ctx, m.path, CSALevels, levels, true, false, outputs[i]); err != nil {
					return err
				}
				sources = append(sources, metricSource{path: outputs[i], mapping: results.ProcessSegmentationMetrics})
			}
			return b.appendMetrics(ctx, StepCSAExtract, TableCSAT2starw, sources)
		},
	}

	return []Step{b.segCord(b.sel.Path), gmSeg, wmSeg, register, extract}
}
