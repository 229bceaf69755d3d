// Package main hosts the spinepipe CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration once, opens the run
// ledger, and hands subjects to the pipeline driver either one at a time
// (run) or through a bounded worker pool (batch). History, doctor, and config
// scaffolding commands read the same configuration without touching the
// dataset.
//
// Keep this package lean: new behaviour belongs in the internal packages and
// is surfaced here through dedicated commands or flags.
package main
