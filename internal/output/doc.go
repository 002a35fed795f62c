// Package output renders test results: status files on disk, the stdout
// table, the single-character progress markers and the percentage summary.
//
// Everything here is driven by the producer stage, which runs on a single
// goroutine. Types still guard their state so that the orchestrator can
// read counters and close files from another goroutine once the stage is
// done.
package output
