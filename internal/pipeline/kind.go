package pipeline

import (
	"fmt"
	"strings"

	"spinepipe/internal/dataset"
)

// Kind names a pipeline.
type Kind string

const (
	KindT1w      Kind = "t1w"
	KindT2w      Kind = "t2w"
	KindT2starw  Kind = "t2starw"
	KindDWI      Kind = "dwi"
	KindRootlets Kind = "rootlets"
)

// Kinds lists every pipeline kind.
func Kinds() []Kind {
	return []Kind{KindT1w, KindT2w, KindT2starw, KindDWI, KindRootlets}
}

// ParseKind accepts a pipeline name case-insensitively.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range Kinds() {
		if k == normalized {
			return k, nil
		}
	}
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return "", fmt.Errorf("unknown pipeline %q (expected one of %s)", value, strings.Join(names, ", "))
}

// Modality returns the acquisition the pipeline resolves.
func (k Kind) Modality() dataset.Modality {
	switch k {
	case KindT1w:
		return dataset.T1w
	case KindT2starw:
		return dataset.T2starw
	case KindDWI:
		return dataset.DWI
	default:
		return dataset.T2w
	}
}

// Category is the exclusion category gating the pipeline's metrics.
func (k Kind) Category() string {
	return string(k)
}

// RequiresModel reports whether the pipeline needs the rootlets model checkout.
func (k Kind) RequiresModel() bool {
	return k == KindRootlets
}
