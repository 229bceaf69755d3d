// Package results turns tool CSV output into rows of the shared metric
// tables.
//
// Each table holds per-level rows and one mean row per metric, merged with
// the subject's age and sex from participants.tsv. Tables are shared by every
// subject of a batch, so writers serialize on an exclusive file lock.
package results
