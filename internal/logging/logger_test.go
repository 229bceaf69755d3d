package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spinepipe/internal/config"
	"spinepipe/internal/logging"
	"spinepipe/internal/services"
)

func TestNewFromConfigWritesSubjectLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Logging.File = true

	logger, closer, err := logging.NewFromConfig(&cfg, "sub-01")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	defer closer.Close()
	logger.Info("hello from subject")

	content, err := os.ReadFile(filepath.Join(cfg.LogDir(), "spinepipe-sub-01.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from subject") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestNewFromConfigCloserReleasesLogFile(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("descriptor listing unavailable")
	}
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Logging.File = true

	openFDs := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		if err != nil {
			t.Fatalf("list descriptors: %v", err)
		}
		return len(entries)
	}

	before := openFDs()
	for i := 0; i < 50; i++ {
		logger, closer, err := logging.NewFromConfig(&cfg, "sub-01")
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		logger.Info("subject run")
		if err := closer.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if after := openFDs(); after > before+5 {
		t.Fatalf("descriptors grew from %d to %d", before, after)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleLoggerRendersSubjectAndStep(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStep(services.WithSubject(context.Background(), "sub-01"), "sc_seg")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "cache")).Info("output found", logging.String("path", "/tmp/a b.nii.gz"))

	line := buf.String()
	for _, want := range []string{"[sub-01 · sc_seg]", "cache: output found", `path="/tmp/a b.nii.gz"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestNewJSONLoggerAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithSubject(ctx, "sub-02")
	ctx = services.WithPipeline(ctx, "dwi")
	ctx = services.WithStep(ctx, "moco")
	ctx = services.WithRunID(ctx, "run-xyz")
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		logging.FieldSubject:  "sub-02",
		logging.FieldPipeline: "dwi",
		logging.FieldStep:     "moco",
		logging.FieldRunID:    "run-xyz",
		"msg":                 "contextual log",
		"level":               "info",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %v", key, record[key], value)
		}
	}
}

func TestJSONLoggerWritesDurationsInSeconds(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("step completed", logging.Duration("duration", 1234567*time.Microsecond))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if record["duration_s"] != 1.235 {
		t.Fatalf("duration_s = %v, want 1.235", record["duration_s"])
	}
	if _, ok := record["duration"]; ok {
		t.Fatalf("unexpected raw duration field in %v", record)
	}
	ts, _ := record["ts"].(string)
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", ts); err != nil {
		t.Fatalf("ts = %q: %v", ts, err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "participants file unreadable", "participants_unavailable")
	for _, want := range []string{"event_type=participants_unavailable", "error_hint=", "impact="} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in %q", want, buf.String())
		}
	}
}

func TestFormatSubject(t *testing.T) {
	tests := []struct {
		subject, pipeline, step string
		want                    string
	}{
		{"sub-01", "t2w", "sc_seg", "sub-01 · t2w/sc_seg"},
		{"sub-01", "", "sc_seg", "sub-01 · sc_seg"},
		{"sub-01", "dwi", "", "sub-01 · dwi"},
		{"sub-01", "", "", "sub-01"},
		{"", "", "moco", "moco"},
		{"", "", "", ""},
	}
	for _, tc := range tests {
		if got := logging.FormatSubject(tc.subject, tc.pipeline, tc.step); got != tc.want {
			t.Fatalf("FormatSubject(%q, %q, %q) = %q, want %q", tc.subject, tc.pipeline, tc.step, got, tc.want)
		}
	}
}

func TestConsoleLoggerOmitsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(services.WithPipeline(services.WithSubject(context.Background(), "sub-03"), "t1w"), "run-abc")
	logging.WithContext(ctx, logger).Info("pipeline finished", logging.Duration("elapsed", 1500*time.Millisecond))

	line := buf.String()
	if strings.Contains(line, "run-abc") {
		t.Fatalf("expected run id to be omitted from console output, got %q", line)
	}
	for _, want := range []string{"[sub-03 · t1w]", "elapsed=1.5s"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
