package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteAcquisition creates {data}/{subject}/{datatype}/{subject}_{candidate}.nii.gz
// and returns its path. Diffusion acquisitions also get .bval and .bvec files.
func WriteAcquisition(t testing.TB, dataRoot, subject, datatype, candidate string) string {
	t.Helper()

	stem := filepath.Join(dataRoot, subject, datatype, subject+"_"+candidate)
	WriteFile(t, stem+".nii.gz", 64)
	if datatype == "dwi" {
		WriteFile(t, stem+".bval", 16)
		WriteFile(t, stem+".bvec", 16)
	}
	return stem + ".nii.gz"
}

// WriteFile fills path with size bytes seeded from its base name, so two
// fixtures never compare equal by content.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	seed := []byte(filepath.Base(path) + "\n")
	content := bytes.Repeat(seed, size/len(seed)+1)[:max(size, 1)]
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
