package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"spinepipe/internal/services"
	"spinepipe/internal/testsupport"
)

func TestRunSkipsSubjectWithoutAcquisition(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteAcquisition(t, env.cfg.Paths.Data, "sub-02", "anat", "acq-top_run-1_T1w")

	out, _, err := runCLI(t, []string{"run", "sub-02", "--pipeline", "t2w"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code := exitCode(err); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	requireContains(t, out, "no T2w acquisition found, skipped")

	if _, err := os.Stat(filepath.Join(env.cfg.Paths.Derivatives, "labels", "sub-02")); !os.IsNotExist(err) {
		t.Fatalf("expected no derivatives for skipped subject, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.Output, "data_processed", "sub-02")); !os.IsNotExist(err) {
		t.Fatalf("expected no work directory for skipped subject, stat err=%v", err)
	}
}

func TestRunWithoutSubjectFails(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunRejectsUnknownPipeline(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", "sub-01", "--pipeline", "flair"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunRootletsRequiresModelDir(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteAcquisition(t, env.cfg.Paths.Data, "sub-01", "anat", "acq-top_run-1_T2w")

	_, _, err := runCLI(t, []string{"run", "sub-01", "--pipeline", "rootlets"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunPropagatesToolExitCode(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteAcquisition(t, env.cfg.Paths.Data, "sub-01", "anat", "acq-top_run-1_T2w")
	stubBinary(t, filepath.Join(env.baseDir, "bin"), "sct_deepseg", 7)

	out, _, err := runCLI(t, []string{"run", "sub-01", "--json"}, env.configPath)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if code := exitCode(err); code != 7 {
		t.Fatalf("exit code = %d, want 7 (err=%v)", code, err)
	}

	var report reportJSON
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Stem != "sub-01_acq-top_run-1_T2w" {
		t.Fatalf("stem = %q", report.Stem)
	}
	if report.Status != "failed" || len(report.Steps) != 1 || report.Steps[0].Name != "sc_seg" {
		t.Fatalf("unexpected report: %+v", report)
	}

	histOut, _, err := runCLI(t, []string{"history", "--json", "--subject", "sub-01"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var entries []struct {
		RunID   string `json:"run_id"`
		Step    string `json:"step"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(histOut), &entries); err != nil {
		t.Fatalf("decode history: %v\n%s", err, histOut)
	}
	if len(entries) != 1 || entries[0].Step != "sc_seg" || entries[0].Outcome != "failed" {
		t.Fatalf("unexpected history: %+v", entries)
	}
	if entries[0].RunID != report.RunID {
		t.Fatalf("history run id %q does not match report %q", entries[0].RunID, report.RunID)
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No recorded runs")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	requireContains(t, out, "[]")
}

func TestBatchReportsFailedSubjects(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteAcquisition(t, env.cfg.Paths.Data, "sub-01", "anat", "acq-top_run-1_T2w")
	testsupport.WriteAcquisition(t, env.cfg.Paths.Data, "sub-02", "anat", "acq-top_run-1_T1w")
	stubBinary(t, filepath.Join(env.baseDir, "bin"), "sct_deepseg", 2)

	out, _, err := runCLI(t, []string{"batch", "--jobs", "2"}, env.configPath)
	if err == nil {
		t.Fatal("expected batch to report a failure")
	}
	requireContains(t, err.Error(), "1 of 2 subjects failed")
	requireContains(t, out, "sub-01")
	requireContains(t, out, "sub-02")
}
