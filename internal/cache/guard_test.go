package cache_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spinepipe/internal/cache"
	"spinepipe/internal/fileutil"
	"spinepipe/internal/logging"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newGuard(t *testing.T, opts cache.Options) (*cache.Guard, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	opts.Logger = logger
	return cache.NewGuard(opts), &buf
}

func TestShouldRunWhenOutputMissing(t *testing.T) {
	dir := t.TempDir()
	guard, logs := newGuard(t, cache.Options{DetectPartial: true})

	run, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "sc_seg", Outputs: []string{filepath.Join(dir, "seg.nii.gz")}})
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !run {
		t.Fatal("expected step to run when output is missing")
	}
	if !strings.Contains(logs.String(), "not found, proceeding") {
		t.Fatalf("expected miss log line, got %q", logs.String())
	}
}

func TestShouldSkipWhenAllOutputsExist(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.nii.gz")
	b := filepath.Join(dir, "b.nii.gz")
	write(t, a, "a")
	guard, logs := newGuard(t, cache.Options{DetectPartial: true})

	run, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "register_template", Outputs: []string{a, b}})
	if err != nil || !run {
		t.Fatalf("expected run with one output missing, got %v, %v", run, err)
	}

	write(t, b, "b")
	run, err = guard.ShouldRun(context.Background(), cache.Spec{Name: "register_template", Outputs: []string{a, b}})
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if run {
		t.Fatal("expected skip when every output exists")
	}
	if !strings.Contains(logs.String(), "cache: found") {
		t.Fatalf("expected found log line, got %q", logs.String())
	}
}

func TestPendingMarkerInvalidatesOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	spec := cache.Spec{Name: "sc_seg", Outputs: []string{output}}
	guard, _ := newGuard(t, cache.Options{DetectPartial: true})

	if err := guard.Begin(spec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	write(t, output, "truncated")

	run, err := guard.ShouldRun(context.Background(), spec)
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if !run {
		t.Fatal("expected partial output to be recomputed")
	}
	if ok, _ := fileutil.Exists(output); ok {
		t.Fatal("expected partial output to be moved aside")
	}
	if got := readString(t, output+cache.PartialSuffix); got != "truncated" {
		t.Fatalf("partial copy = %q, want %q", got, "truncated")
	}
	if ok, _ := fileutil.Exists(cache.PendingPath(output)); ok {
		t.Fatal("expected pending marker to be removed")
	}
}

func TestAbortedPartialOutputIsSetAside(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	spec := cache.Spec{Name: "sc_seg", Outputs: []string{output}}
	guard, _ := newGuard(t, cache.Options{DetectPartial: true})

	if err := guard.Begin(spec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	write(t, output, "half written")
	if err := guard.Abort(spec); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	run, err := guard.ShouldRun(context.Background(), spec)
	if err != nil || !run {
		t.Fatalf("expected aborted output to be recomputed, got %v, %v", run, err)
	}
	if got := readString(t, output+cache.PartialSuffix); got != "half written" {
		t.Fatalf("partial copy = %q", got)
	}
}

func TestCorrectionAfterInterruptedRunIsKept(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	spec := cache.Spec{Name: "sc_seg", Outputs: []string{output}}
	guard, logs := newGuard(t, cache.Options{DetectPartial: true})

	if err := guard.Begin(spec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	write(t, output, "half written")
	if err := guard.Abort(spec); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	write(t, output, "manual correction")

	run, err := guard.ShouldRun(context.Background(), spec)
	if err != nil || run {
		t.Fatalf("expected corrected file to be trusted, got %v, %v", run, err)
	}
	if got := readString(t, output); got != "manual correction" {
		t.Fatalf("output = %q, want the manual correction", got)
	}
	if ok, _ := fileutil.Exists(cache.PendingPath(output)); ok {
		t.Fatal("expected pending marker to be cleared")
	}
	if !strings.Contains(logs.String(), "manual_override") {
		t.Fatalf("expected manual override log line, got %q", logs.String())
	}
}

func TestCorrectionAfterAbortWithoutOutputIsKept(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	spec := cache.Spec{Name: "sc_seg", Outputs: []string{output}}
	guard, _ := newGuard(t, cache.Options{DetectPartial: true})

	if err := guard.Begin(spec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := guard.Abort(spec); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	write(t, output, "manual correction")

	run, err := guard.ShouldRun(context.Background(), spec)
	if err != nil || run {
		t.Fatalf("expected corrected file to be trusted, got %v, %v", run, err)
	}
}

func TestCompleteClearsMarker(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "nested", "seg.nii.gz")
	spec := cache.Spec{Name: "sc_seg", Outputs: []string{output}}
	guard, _ := newGuard(t, cache.Options{DetectPartial: true})

	if err := guard.Begin(spec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	write(t, output, "complete")
	if err := guard.Complete(spec); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	run, err := guard.ShouldRun(context.Background(), spec)
	if err != nil || run {
		t.Fatalf("expected cache hit after completion, got %v, %v", run, err)
	}
}

func TestManualFileWithoutMarkerIsAuthoritative(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	write(t, output, "manual correction")
	guard, _ := newGuard(t, cache.Options{DetectPartial: true})

	run, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "sc_seg", Outputs: []string{output}})
	if err != nil || run {
		t.Fatalf("expected manual file to be trusted, got %v, %v", run, err)
	}
}

func TestDetectPartialDisabledIgnoresMarkers(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "seg.nii.gz")
	write(t, output, "x")
	write(t, cache.PendingPath(output), "sc_seg")
	guard, _ := newGuard(t, cache.Options{DetectPartial: false})

	run, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "sc_seg", Outputs: []string{output}})
	if err != nil || run {
		t.Fatalf("expected existence-only check, got %v, %v", run, err)
	}
}

func TestPropagationCopiesOutputAndSidecar(t *testing.T) {
	deriv := t.TempDir()
	work := t.TempDir()
	output := filepath.Join(deriv, "sub-01_T2w_label-SC_mask.nii.gz")
	write(t, output, "manual seg")
	write(t, filepath.Join(deriv, "sub-01_T2w_label-SC_mask.json"), `{"Author":"rater"}`)
	guard, logs := newGuard(t, cache.Options{DetectPartial: true, MirrorDir: work})

	run, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "sc_seg", Outputs: []string{output}, Propagate: true})
	if err != nil || run {
		t.Fatalf("ShouldRun = %v, %v", run, err)
	}
	for _, name := range []string{"sub-01_T2w_label-SC_mask.nii.gz", "sub-01_T2w_label-SC_mask.json"} {
		if ok, _ := fileutil.Exists(filepath.Join(work, name)); !ok {
			t.Fatalf("expected %s to be propagated", name)
		}
	}
	if !strings.Contains(logs.String(), "propagated cached output") {
		t.Fatalf("expected propagation log, got %q", logs.String())
	}
}

func TestPropagationDisabledPerStep(t *testing.T) {
	deriv := t.TempDir()
	work := t.TempDir()
	output := filepath.Join(deriv, "seg.nii.gz")
	write(t, output, "manual seg")
	guard, _ := newGuard(t, cache.Options{MirrorDir: work})

	if _, err := guard.ShouldRun(context.Background(), cache.Spec{Name: "vert_labels", Outputs: []string{output}}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := fileutil.Exists(filepath.Join(work, "seg.nii.gz")); ok {
		t.Fatal("did not expect propagation for step without the flag")
	}
}
