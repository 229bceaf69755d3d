package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"spinepipe/internal/services"
)

const imageExt = ".nii.gz"

// Selection is the acquisition chosen for one subject and modality. Every
// derived filename is built from Stem.
type Selection struct {
	Subject   string
	Modality  Modality
	Candidate string
	Stem      string
	Path      string
	Datatype  string
	// Bval and Bvec are set for diffusion selections.
	Bval string
	Bvec string
}

// Resolve checks {root}/{subject}/{datatype}/{subject}_{candidate}.nii.gz for
// each candidate in order and returns the first hit. ok is false when no
// candidate exists. Errors are reserved for unreadable trees and invalid
// arguments.
func Resolve(root, subject string, modality Modality, candidates []string) (Selection, bool, error) {
	if err := ValidateSubject(subject); err != nil {
		return Selection{}, false, err
	}
	if strings.TrimSpace(root) == "" {
		return Selection{}, false, services.Wrap(services.ErrConfiguration, "resolve", "dataset root", "not set", nil)
	}
	datatype := modality.Datatype()
	dir := filepath.Join(root, subject, datatype)

	for _, candidate := range candidates {
		stem := subject + "_" + candidate
		path := filepath.Join(dir, stem+imageExt)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Selection{}, false, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		sel := Selection{
			Subject:   subject,
			Modality:  modality,
			Candidate: candidate,
			Stem:      stem,
			Path:      path,
			Datatype:  datatype,
		}
		if modality == DWI {
			if err := sel.resolveGradients(dir); err != nil {
				return Selection{}, false, err
			}
		}
		return sel, true, nil
	}
	return Selection{}, false, nil
}

func (s *Selection) resolveGradients(dir string) error {
	bval := filepath.Join(dir, s.Stem+".bval")
	bvec := filepath.Join(dir, s.Stem+".bvec")
	for _, path := range []string{bval, bvec} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return services.Wrap(services.ErrMissingInput, "resolve", "diffusion gradients", filepath.Base(path)+" not found", nil)
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	s.Bval = bval
	s.Bvec = bvec
	return nil
}

// ValidateSubject rejects identifiers that are empty or would escape the
// dataset tree.
func ValidateSubject(subject string) error {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return services.Wrap(services.ErrValidation, "resolve", "subject", "identifier required", nil)
	}
	if trimmed != subject || strings.ContainsAny(subject, `/\`) || subject == "." || subject == ".." {
		return services.Wrap(services.ErrValidation, "resolve", "subject", fmt.Sprintf("invalid identifier %q", subject), nil)
	}
	return nil
}

// ListSubjects returns the sub-* directories under root in sorted order.
func ListSubjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	subjects := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "sub-") {
			subjects = append(subjects, entry.Name())
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}
