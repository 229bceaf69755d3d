package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary", Hint: SCTInstallHint},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if !strings.HasSuffix(results[1].Detail, "; "+SCTInstallHint) {
		t.Fatalf("expected install hint in detail, got %q", results[1].Detail)
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckScript(t *testing.T) {
	modelDir := t.TempDir()
	rel := "pediatric_rootlets/discs_to_vertebral_levels.py"
	path := filepath.Join(modelDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	status := CheckScript("Discs to vertebral levels", modelDir, rel)
	if !status.Available {
		t.Fatalf("expected script to be available, got detail %q", status.Detail)
	}
	if status.Command != path {
		t.Fatalf("expected command %q, got %q", path, status.Command)
	}

	missing := CheckScript("Missing", modelDir, "nope.py")
	if missing.Available || missing.Detail == "" {
		t.Fatalf("expected missing script to be reported, got %#v", missing)
	}

	if !strings.Contains(missing.Detail, "rootlets.model_dir") {
		t.Fatalf("expected model_dir hint, got %q", missing.Detail)
	}

	unset := CheckScript("Unset", "", rel)
	if unset.Available || unset.Detail != "model directory not configured" {
		t.Fatalf("expected unconfigured model dir, got %#v", unset)
	}
}

func TestCheckBinariesWithoutCommand(t *testing.T) {
	results := CheckBinaries([]Requirement{{Name: "sct_maths", Command: "  ", Hint: SCTInstallHint}})
	want := "command not configured; " + SCTInstallHint
	if results[0].Available || results[0].Detail != want {
		t.Fatalf("got %#v, want detail %q", results[0], want)
	}
}
