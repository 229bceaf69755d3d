package pipeline

import (
	"context"
	"path/filepath"

	"spinepipe/internal/derivatives"
	"spinepipe/internal/fileutil"
	"spinepipe/internal/services"
)

// rootletsSteps derives spinal levels from the rootlets segmentation and
// reports spinal and vertebral level distances from the pontomedullary
// junction.
func (b *builder) rootletsSteps() []Step {
	seg, discs := b.cordSeg(), b.discs()
	rootletsPath := func(suffix string) string {
		return b.layout.Derivative(derivatives.CategoryRootlets, b.sel, suffix)
	}
	rootlets := rootletsPath("label-rootlets_dseg")
	modif := rootletsPath("label-rootlets_dseg_modif")
	spinalLevels := rootletsPath("label-rootlets_dseg_modif_spinal_levels")
	rootletsDistance := b.layout.DerivativeFile(derivatives.CategoryRootlets, b.sel, "label-rootlets_dseg_modif_pmj_distance", ".csv")
	pmj := b.label("label-PMJ_dlabel")
	centerline := b.work("label-SC_mask_centerline_extrapolated", ".nii.gz")
	centerlineCSV := b.work("label-SC_mask_centerline_extrapolated", ".csv")
	vertDistance := b.layout.DerivativeFile(derivatives.CategoryLabels, b.sel, "labels-disc_step1_levels_pmj_distance_vertebral_disc", ".csv")

	tables := b.layout.ResultsSubdir("rootlets")
	spinalTableCSV := filepath.Join(tables, b.sel.Stem+"_label-rootlets_dseg_modif_pmj_distance_rootlets.csv")
	vertTableCSV := filepath.Join(tables, filepath.Base(vertDistance))

	return []Step{
		b.segCord(b.sel.Path),
		{
			Name:    StepRootletsSeg,
			Inputs:  []string{b.sel.Path},
			Outputs: []string{rootlets},
			Action: func(ctx context.Context) error {
				return b.tools.SegmentRootlets(ctx, b.sel.Path, rootlets)
			},
		},
		b.discLabels(),
		{
			Name:    StepPMJDetect,
			Inputs:  []string{b.sel.Path, seg},
			Outputs: []string{pmj},
			Action: func(ctx context.Context) error {
				return b.tools.DetectPMJ(ctx, b.sel.Path, b.contrast(), seg, pmj)
			},
		},
		{
			Name:    StepCenterline,
			Inputs:  []string{seg},
			Outputs: []string{centerline, centerlineCSV},
			Action: func(ctx context.Context) error {
				return b.tools.Centerline(ctx, seg, centerline)
			},
		},
		{
			Name:    StepRootletsZeroing,
			Inputs:  []string{rootlets, discs},
			Outputs: []string{modif},
			Action: func(ctx context.Context) error {
				return b.tools.ZeroFalsePositiveRootlets(ctx, rootlets, discs, RootletsThreshold)
			},
		},
		{
			Name:    StepSpinalLevels,
			Inputs:  []string{modif, seg, pmj},
			Outputs: []string{spinalLevels, rootletsDistance},
			Action: func(ctx context.Context) error {
				return b.tools.RootletsToSpinalLevels(ctx, modif, seg, pmj)
			},
		},
		{
			Name:    StepVertPMJDistance,
			Inputs:  []string{centerlineCSV, discs},
			Outputs: []string{vertDistance},
			Action: func(ctx context.Context) error {
				return b.tools.DiscsToVertebralLevels(ctx, centerlineCSV, discs)
			},
		},
		b.vertLabels(),
		{
			Name:       StepRootletsAggreg,
			Inputs:     []string{rootletsDistance, vertDistance},
			Outputs:    []string{spinalTableCSV, vertTableCSV},
			Exclusions: []string{b.kind.Category()},
			Action: func(ctx context.Context) error {
				pairs := [][2]string{{rootletsDistance, spinalTableCSV}, {vertDistance, vertTableCSV}}
				for _, pair := range pairs {
					if err := fileutil.CopyFileVerified(pair[0], pair[1]); err != nil {
						return services.Wrap(services.ErrExternalTool, StepRootletsAggreg, "collect table", filepath.Base(pair[0]), err)
					}
				}
				if err := b.appendMetrics(ctx, StepRootletsAggreg, TableRootletsSpinalLevels, []metricSource{{path: spinalTableCSV}}); err != nil {
					return err
				}
				return b.appendMetrics(ctx, StepRootletsAggreg, TableRootletsVertLevels, []metricSource{{path: vertTableCSV}})
			},
		},
	}
}
