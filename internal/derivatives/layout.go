// Package derivatives owns the deterministic filesystem layout shared by the
// pipeline steps: derivative outputs, the per-subject working directory, and
// the metric tables.
package derivatives

import (
	"path/filepath"

	"spinepipe/internal/config"
	"spinepipe/internal/dataset"
)

// Derivative categories under {derivatives}.
const (
	CategoryLabels       = "labels"
	CategoryRegistration = "registration"
	CategoryDTI          = "dti"
	CategoryRootlets     = "rootlets"
)

const niftiExt = ".nii.gz"

// Layout resolves output locations from the run configuration.
type Layout struct {
	Data        string
	Derivatives string
	Output      string
	Results     string
	QC          string
}

// New builds a layout from configuration.
func New(cfg *config.Config) Layout {
	return Layout{
		Data:        cfg.Paths.Data,
		Derivatives: cfg.Paths.Derivatives,
		Output:      cfg.Paths.Output,
		Results:     cfg.Paths.Results,
		QC:          cfg.Paths.QC,
	}
}

// DerivativeDir returns {derivatives}/{category}/{subject}/{datatype}.
func (l Layout) DerivativeDir(category string, sel dataset.Selection) string {
	return filepath.Join(l.Derivatives, category, sel.Subject, sel.Datatype)
}

// Derivative returns {derivatives}/{category}/{subject}/{datatype}/{stem}_{suffix}.nii.gz.
func (l Layout) Derivative(category string, sel dataset.Selection, suffix string) string {
	return filepath.Join(l.DerivativeDir(category, sel), sel.Stem+"_"+suffix+niftiExt)
}

// DerivativeFile is Derivative with an explicit extension (".csv", ".txt").
func (l Layout) DerivativeFile(category string, sel dataset.Selection, suffix, ext string) string {
	return filepath.Join(l.DerivativeDir(category, sel), sel.Stem+"_"+suffix+ext)
}

// SubjectDir returns {output}/data_processed/{subject}.
func (l Layout) SubjectDir(subject string) string {
	return filepath.Join(l.Output, "data_processed", subject)
}

// WorkDir returns the subject scratch directory for the selection's datatype.
func (l Layout) WorkDir(sel dataset.Selection) string {
	return filepath.Join(l.SubjectDir(sel.Subject), sel.Datatype)
}

// Work returns {workdir}/{stem}_{suffix}{ext}.
func (l Layout) Work(sel dataset.Selection, suffix, ext string) string {
	return filepath.Join(l.WorkDir(sel), sel.Stem+"_"+suffix+ext)
}

// Mirror maps a derivative path into the working directory, keeping its
// base name. Propagated manual overrides land here.
func (l Layout) Mirror(sel dataset.Selection, path string) string {
	return filepath.Join(l.WorkDir(sel), filepath.Base(path))
}

// Table returns the metric table path for name.
func (l Layout) Table(name string) string {
	return filepath.Join(l.Results, name+".csv")
}

// ResultsSubdir returns a directory below the results root for raw per-subject
// tool tables.
func (l Layout) ResultsSubdir(name string) string {
	return filepath.Join(l.Results, name)
}

// SubjectLockPath returns the per-subject lock file.
func (l Layout) SubjectLockPath(subject string) string {
	return filepath.Join(l.SubjectDir(subject), ".spinepipe.lock")
}

// QCDir returns the QC report directory, or "" when QC is disabled.
func (l Layout) QCDir() string {
	return l.QC
}
