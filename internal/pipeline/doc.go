// Package pipeline runs a test session from input to summary.
//
// A Runner wires two worker stages around the datasets:
//
//	feed -> tester -> producer
//
// For an input file, the preloader first seeds the continue dataset. The
// runner then feeds the inactive subjects due for a retest, the pending
// subjects of the session, and finally the subjects given on the command
// line. The tester deduplicates and checks; the producer persists, writes
// the status files and prints.
//
// With mining on, a third stage follows the producer:
//
//	feed -> tester -> producer -> miner
//
// Subjects it discovers are tested in one more round once the first ends.
//
// A run is complete when every subject was handled without error, time
// limit or interruption. Only a complete run forgets its continue rows and
// its preload description, so an interrupted run resumes where it stopped.
package pipeline
