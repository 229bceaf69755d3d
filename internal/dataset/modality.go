package dataset

import (
	"fmt"
	"strings"
)

// Modality identifies an MRI acquisition type.
type Modality string

const (
	T1w     Modality = "T1w"
	T2w     Modality = "T2w"
	T2starw Modality = "T2starw"
	DWI     Modality = "dwi"
)

// Modalities lists every supported modality.
func Modalities() []Modality {
	return []Modality{T1w, T2w, T2starw, DWI}
}

// ParseModality accepts a modality name case-insensitively.
func ParseModality(value string) (Modality, error) {
	for _, m := range Modalities() {
		if strings.EqualFold(strings.TrimSpace(value), string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown modality %q", value)
}

// Datatype returns the BIDS datatype folder holding the modality.
func (m Modality) Datatype() string {
	if m == DWI {
		return "dwi"
	}
	return "anat"
}

// Contrast returns the contrast flag the toolbox expects (-c).
func (m Modality) Contrast() string {
	switch m {
	case T1w:
		return "t1"
	case T2starw:
		return "t2s"
	case DWI:
		return "dwi"
	default:
		return "t2"
	}
}

// DefaultCandidates returns the fixed candidate priority order for a
// modality. The order is part of the dataset contract and not configurable.
func DefaultCandidates(m Modality) []string {
	switch m {
	case T2w:
		return []string{"acq-composed_T2w", "acq-top_run-1_T2w", "acq-top_run-2_T2w", "acq-top_T2w"}
	case T1w:
		return []string{"acq-composed_T1w", "acq-top_run-1_T1w", "acq-top_run-2_T1w", "T1w"}
	case T2starw:
		return []string{"T2starw", "run-1_T2starw", "run-2_T2starw"}
	case DWI:
		return []string{"dwi", "run-1_dwi", "run-2_dwi"}
	default:
		return nil
	}
}
