package ledger_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"spinepipe/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "log", "spinepipe.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	runID := ledger.NewRunID()
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	steps := []struct {
		step    string
		outcome string
	}{{"sc_seg", "cached"}, {"disc_labels", "executed"}, {"vert_labels", "failed"}}
	for i, s := range steps {
		err := store.Record(ctx, ledger.Entry{
			RunID:    runID,
			Subject:  "sub-01",
			Pipeline: "t2w",
			Stem:     "sub-01_acq-top_run-1_T2w",
			Step:     s.step,
			Outcome:  s.outcome,
			Started:  started.Add(time.Duration(i) * time.Minute),
			Duration: 1500 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, ledger.Entry{RunID: ledger.NewRunID(), Subject: "sub-02", Pipeline: "t2w", Step: "resolve", Outcome: "skipped"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.List(ctx, ledger.Filter{Subject: "sub-01"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	latest := entries[0]
	if latest.Step != "vert_labels" || latest.Outcome != "failed" || latest.RunID != runID {
		t.Fatalf("unexpected newest entry: %+v", latest)
	}
	if !latest.Started.Equal(started.Add(2*time.Minute)) || latest.Duration != 1500*time.Millisecond {
		t.Fatalf("timestamps not preserved: %+v", latest)
	}

	limited, err := store.List(ctx, ledger.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 2 || limited[0].Subject != "sub-02" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}

	byRun, err := store.List(ctx, ledger.Filter{RunID: runID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byRun) != 3 {
		t.Fatalf("expected 3 entries for run, got %d", len(byRun))
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinepipe.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), ledger.Entry{RunID: "r", Subject: "sub-01", Pipeline: "dwi", Step: "moco", Outcome: "executed"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), ledger.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected history to survive reopen, got %d entries", len(entries))
	}
}

func TestConcurrentWritersFromSeparateConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinepipe.db")
	initial, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = initial.Close()

	const writers = 6
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := ledger.Open(path)
			if err != nil {
				errs <- err
				return
			}
			defer store.Close()
			for j := 0; j < 5; j++ {
				if err := store.Record(context.Background(), ledger.Entry{
					RunID: fmt.Sprintf("run-%d", i), Subject: fmt.Sprintf("sub-%02d", i), Pipeline: "t2w", Step: "sc_seg", Outcome: "executed",
				}); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("writer failed: %v", err)
	}

	store, err := ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	entries, err := store.List(context.Background(), ledger.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != writers*5 {
		t.Fatalf("expected %d entries, got %d", writers*5, len(entries))
	}
}
