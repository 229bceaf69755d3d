package results_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"spinepipe/internal/config"
	"spinepipe/internal/exclusion"
	"spinepipe/internal/results"
)

const processSegmentationCSV = `Timestamp,SCT Version,Filename,Slice (I->S),VertLevel,DistancePMJ,MEAN(area),STD(area),MEAN(diameter_AP),MEAN(diameter_RL),MEAN(eccentricity),MEAN(solidity)
2025-01-01,7.0,/tmp/sub-01_T2w_label-SC_mask.nii.gz,,2,,60.0,1.0,7.0,11.0,0.8,0.95
2025-01-01,7.0,/tmp/sub-01_T2w_label-SC_mask.nii.gz,,3,,62.0,1.0,7.2,11.5,0.8,0.96
2025-01-01,7.0,/tmp/sub-01_T2w_label-SC_mask.nii.gz,,4,,64.0,1.0,7.4,12.0,0.8,0.94
2025-01-01,7.0,/tmp/sub-01_T2w_label-SC_mask.nii.gz,,5,,58.0,1.0,7.1,12.5,0.8,
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func TestParseToolCSVRenamesProcessSegmentationColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csa.csv")
	writeFile(t, path, processSegmentationCSV)

	got, err := results.ParseToolCSV(path, results.ProcessSegmentationMetrics)
	if err != nil {
		t.Fatalf("ParseToolCSV: %v", err)
	}
	// 4 levels x 5 metrics, minus the empty solidity cell at level 5.
	if len(got) != 19 {
		t.Fatalf("got %d measurements, want 19", len(got))
	}
	want := []results.Measurement{
		{Level: "2", Metric: "CSA", Value: 60},
		{Level: "2", Metric: "AP_diameter", Value: 7},
		{Level: "2", Metric: "RL_diameter", Value: 11},
		{Level: "2", Metric: "eccentricity", Value: 0.8},
		{Level: "2", Metric: "solidity", Value: 0.95},
	}
	if diff := cmp.Diff(want, got[:5]); diff != "" {
		t.Fatalf("measurements mismatch (-want +got):\n%s", diff)
	}
}

func TestParseToolCSVEmptyMappingUsesNumericColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmj.csv")
	writeFile(t, path, "fname,spinal_level,distance_from_pmj_start,distance_from_pmj_end\nx.nii.gz,2,40.5,52\nx.nii.gz,3,52,63.25\n")

	got, err := results.ParseToolCSV(path, nil)
	if err != nil {
		t.Fatalf("ParseToolCSV: %v", err)
	}
	want := []results.Measurement{
		{Level: "2", Metric: "distance_from_pmj_start", Value: 40.5},
		{Level: "2", Metric: "distance_from_pmj_end", Value: 52},
		{Level: "3", Metric: "distance_from_pmj_start", Value: 52},
		{Level: "3", Metric: "distance_from_pmj_end", Value: 63.25},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("measurements mismatch (-want +got):\n%s", diff)
	}
}

func TestParseToolCSVWithoutLevelColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	writeFile(t, path, "a,b\n1,2\n")
	if _, err := results.ParseToolCSV(path, nil); !errors.Is(err, results.ErrNoLevelColumn) {
		t.Fatalf("expected ErrNoLevelColumn, got %v", err)
	}
}

func TestAppendWritesLevelAndMeanRowsWithDemographics(t *testing.T) {
	dir := t.TempDir()
	participants := filepath.Join(dir, "participants.tsv")
	writeFile(t, participants, "participant_id\tage\tsex\nsub-01\t9\tF\nsub-02\tn/a\tM\n")

	agg := results.New(results.Options{Dir: filepath.Join(dir, "tables"), ParticipantsPath: participants})
	rows := results.Rows("sub-01", "T2w", "sub-01_T2w_csa.csv", []results.Measurement{
		{Level: "2", Metric: "CSA", Value: 60},
		{Level: "3", Metric: "CSA", Value: 62},
		{Level: "4", Metric: "CSA", Value: 64},
		{Level: "5", Metric: "CSA", Value: 58},
	})

	n, err := agg.Append(context.Background(), results.Key{Subject: "sub-01", Category: "t2w"}, "csa_t2w", rows)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 5 {
		t.Fatalf("appended %d rows, want 5", n)
	}

	got := readCSV(t, agg.TablePath("csa_t2w"))
	want := [][]string{
		results.Header,
		{"sub-01", "T2w", "sub-01_T2w_csa.csv", "2", "level", "CSA", "60", "9", "F"},
		{"sub-01", "T2w", "sub-01_T2w_csa.csv", "3", "level", "CSA", "62", "9", "F"},
		{"sub-01", "T2w", "sub-01_T2w_csa.csv", "4", "level", "CSA", "64", "9", "F"},
		{"sub-01", "T2w", "sub-01_T2w_csa.csv", "5", "level", "CSA", "58", "9", "F"},
		{"sub-01", "T2w", "sub-01_T2w_csa.csv", "2:5", "mean", "CSA", "61", "9", "F"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendModeDuplicatesOnRerun(t *testing.T) {
	dir := t.TempDir()
	agg := results.New(results.Options{Dir: dir, Mode: config.ResultsModeAppend})
	rows := results.Rows("sub-01", "T2w", "csa.csv", []results.Measurement{{Level: "2", Metric: "CSA", Value: 60}})
	key := results.Key{Subject: "sub-01", Category: "t2w"}

	for i := 0; i < 2; i++ {
		if _, err := agg.Append(context.Background(), key, "csa_t2w", rows); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}
	got := readCSV(t, agg.TablePath("csa_t2w"))
	if len(got) != 5 {
		t.Fatalf("expected header + 2x(level+mean) rows, got %d", len(got))
	}
}

func TestReplaceSubjectModeRewritesOnlyThatSubject(t *testing.T) {
	dir := t.TempDir()
	agg := results.New(results.Options{Dir: dir, Mode: config.ResultsModeReplaceSubject})
	ctx := context.Background()

	first := results.Rows("sub-01", "T2w", "csa.csv", []results.Measurement{{Level: "2", Metric: "CSA", Value: 60}})
	other := results.Rows("sub-02", "T2w", "csa.csv", []results.Measurement{{Level: "2", Metric: "CSA", Value: 70}})
	second := results.Rows("sub-01", "T2w", "csa.csv", []results.Measurement{{Level: "2", Metric: "CSA", Value: 61}})

	for _, batch := range []struct {
		subject string
		rows    []results.Row
	}{{"sub-01", first}, {"sub-02", other}, {"sub-01", second}} {
		if _, err := agg.Append(ctx, results.Key{Subject: batch.subject, Category: "t2w"}, "csa_t2w", batch.rows); err != nil {
			t.Fatalf("Append %s: %v", batch.subject, err)
		}
	}

	got := readCSV(t, agg.TablePath("csa_t2w"))
	want := [][]string{
		results.Header,
		{"sub-02", "T2w", "csa.csv", "2", "level", "CSA", "70", "", ""},
		{"sub-02", "T2w", "csa.csv", "2", "mean", "CSA", "70", "", ""},
		{"sub-01", "T2w", "csa.csv", "2", "level", "CSA", "61", "", ""},
		{"sub-01", "T2w", "csa.csv", "2", "mean", "CSA", "61", "", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendSkipsExcludedSubjectOrStem(t *testing.T) {
	dir := t.TempDir()
	list, err := exclusion.Parse([]byte("dwi: [sub-03, sub-07_dwi]\n"))
	if err != nil {
		t.Fatal(err)
	}
	agg := results.New(results.Options{Dir: dir, Exclusions: list})
	rows := results.Rows("sub-03", "dwi", "fa.csv", []results.Measurement{{Level: "2", Metric: "FA", Value: 0.7}})

	for _, key := range []results.Key{
		{Subject: "sub-03", Stem: "sub-03_dwi", Category: "dwi"},
		{Subject: "sub-07", Stem: "sub-07_dwi", Category: "DWI"},
	} {
		n, err := agg.Append(context.Background(), key, "dti_metrics", rows)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected no rows for excluded %s, got %d", key.Subject, n)
		}
	}
	if _, err := os.Stat(agg.TablePath("dti_metrics")); !os.IsNotExist(err) {
		t.Fatalf("expected no table to be created, stat err = %v", err)
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	dir := t.TempDir()
	const subjects = 12
	var wg sync.WaitGroup
	errs := make(chan error, subjects)
	for i := 0; i < subjects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg := results.New(results.Options{Dir: dir})
			subject := "sub-" + string(rune('a'+i))
			rows := results.Rows(subject, "T2w", "csa.csv", []results.Measurement{
				{Level: "2", Metric: "CSA", Value: 1},
				{Level: "3", Metric: "CSA", Value: 2},
			})
			_, err := agg.Append(context.Background(), results.Key{Subject: subject, Category: "t2w"}, "csa_t2w", rows)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := readCSV(t, filepath.Join(dir, "csa_t2w.csv"))
	if len(got) != 1+subjects*3 {
		t.Fatalf("expected %d records, got %d", 1+subjects*3, len(got))
	}
	headers := 0
	for _, record := range got {
		if record[0] == "subject" {
			headers++
		}
		if len(record) != len(results.Header) {
			t.Fatalf("torn record: %v", record)
		}
	}
	if headers != 1 {
		t.Fatalf("expected exactly one header, got %d", headers)
	}
}

func TestLoadParticipants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "participants.tsv")
	writeFile(t, path, "participant_id\tsex\tage\nsub-01\tF\t9.5\n")
	got, err := results.LoadParticipants(path)
	if err != nil {
		t.Fatalf("LoadParticipants: %v", err)
	}
	if diff := cmp.Diff(map[string]results.Demographics{"sub-01": {Age: "9.5", Sex: "F"}}, got); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}
}
