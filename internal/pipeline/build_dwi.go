package pipeline

import (
	"context"
	"path/filepath"

	"spinepipe/internal/derivatives"
	"spinepipe/internal/results"
)

// dwiSteps: moco, sc_seg, register_template, dti, warp_template, dti_extract.
// Every step is gated by the dwi exclusion category.
func (b *builder) dwiSteps() []Step {
	moco := b.work("moco", ".nii.gz")
	mean := b.work("moco_dwi_mean", ".nii.gz")
	seg := b.cordSeg()

	motion := Step{
		Name:       StepMoco,
		Inputs:     []string{b.sel.Path, b.sel.Bvec},
		Outputs:    []string{moco, mean},
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.MotionCorrect(ctx, b.sel.Path, b.sel.Bvec, b.workDir())
		},
	}

	source := b.tools.TemplateFile("PAM50_t1.nii.gz")
	sourceSeg := b.tools.TemplateFile("PAM50_cord.nii.gz")
	warp := b.layout.Derivative(derivatives.CategoryRegistration, b.sel, "warp_template2dwi")
	regDir := b.regDir()
	register := Step{
		Name:       StepRegisterTemplate,
		Inputs:     []string{mean, seg},
		Outputs:    []string{warp},
		Exclusions: b.gate(CategoryRegistration),
		Action: func(ctx context.Context) error {
			if err := b.tools.RegisterMultimodal(ctx, source, sourceSeg, mean, seg, multimodalParam, regDir); err != nil {
				return err
			}
			return promote(StepRegisterTemplate, [2]string{multimodalWarp(regDir, source, mean), warp})
		},
	}

	prefix := filepath.Join(b.layout.DerivativeDir(derivatives.CategoryDTI, b.sel), b.sel.Stem+"_")
	maps := make([]string, len(DTIMetrics))
	for i, metric := range DTIMetrics {
		maps[i] = b.layout.Derivative(derivatives.CategoryDTI, b.sel, metric)
	}
	tensor := Step{
		Name:       StepDTI,
		Inputs:     []string{moco, b.sel.Bval, b.sel.Bvec},
		Outputs:    maps,
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.ComputeDTI(ctx, moco, b.sel.Bval, b.sel.Bvec, prefix)
		},
	}

	levels := b.templateLevels()
	atlas := filepath.Join(b.templateDir(), "atlas")
	warpTemplate := Step{
		Name:       StepWarpTemplate,
		Inputs:     []string{mean, warp},
		Outputs:    []string{levels, filepath.Join(atlas, "info_label.txt")},
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			return b.tools.WarpTemplate(ctx, mean, warp, b.templateDir())
		},
	}

	csvs := make([]string, len(DTIMetrics))
	for i, metric := range DTIMetrics {
		csvs[i] = b.work("dti-"+metric, ".csv")
	}
	extract := Step{
		Name:       StepDTIExtract,
		Inputs:     append(append([]string{}, maps...), levels),
		Outputs:    csvs,
		Exclusions: b.gate(),
		Action: func(ctx context.Context) error {
			sources := make([]metricSource, 0, len(DTIMetrics))
			for i, metric := range DTIMetrics {
				if err := b.tools.ExtractMetric(ctx, maps[i], atlas, WhiteMatterLabel, CSALevels, levels, csvs[i]); err != nil {
					return err
				}
				sources = append(sources, metricSource{path: csvs[i], mapping: map[string]string{results.ExtractMetricColumn: metric}})
			}
			return b.appendMetrics(ctx, StepDTIExtract, TableDTI, sources)
		},
	}

	return []Step{motion, b.segCord(mean), register, tensor, warpTemplate, extract}
}
