// Package preflight provides readiness checks for the directories and
// external tools spinepipe depends on.
//
// These checks run in two contexts:
//   - The run and batch commands call RunAll before driving any subject. If a
//     directory check fails, nothing is processed.
//   - The CLI "spinepipe doctor" command combines RunAll with CheckSystemDeps
//     and the per-feature status checks to display installation health.
//
// Feature checks are gated by their config values; unconfigured features
// are reported as such rather than failed.
package preflight
