// Package pipeline sequences the processing steps of one subject.
//
// Build assembles the fixed, ordered step list of a pipeline kind (t1w, t2w,
// t2starw, dwi, rootlets) for a resolved acquisition. The Sequencer runs the
// list strictly in order, consulting the cache guard before each step and
// stopping at the first failure; rerunning the driver is the recovery path,
// with completed steps picked up as cache hits. Driver ties resolution,
// locking, sequencing, and run history together for a single subject.
package pipeline
