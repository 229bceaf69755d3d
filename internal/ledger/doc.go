// Package ledger keeps the run history: one SQLite row per step outcome of
// every driver invocation. Concurrent subjects of a batch write to the same
// database, so writes retry with backoff while SQLite reports busy.
package ledger
