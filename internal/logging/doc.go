// Package logging assembles structured slog loggers and formatting helpers used
// across spinepipe.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so step code automatically tags log lines with
// the subject, pipeline, step, and run identifier. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
