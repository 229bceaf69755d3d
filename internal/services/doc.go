// Package services defines shared utilities consumed by the pipeline steps and
// the external toolbox wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp subject IDs, pipeline names, step names, and
//     run identifiers for logging and the run ledger.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (external tool, configuration, interrupt) without string matching.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// handling, observability) stays uniform across pipelines.
package services
