package testsupport

import (
	"testing"

	"spinepipe/internal/config"
	"spinepipe/internal/ledger"
)

// MustOpenLedger opens the run ledger configured for cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
