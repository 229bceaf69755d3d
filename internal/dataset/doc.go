// Package dataset resolves raw BIDS acquisitions for a subject.
//
// A subject may carry one of several naming conventions for the same
// modality (a composed full-spine acquisition, a top-of-spine acquisition
// split across runs, or an unqualified file). Resolve walks a fixed priority
// list of candidate suffixes and selects the first one present on disk; a
// miss is a skip, never an error.
package dataset
