// Package tester implements the first stage of a test run.
//
// For every request the stage drops ignored subjects, skips subjects the
// session already tested or that are known inactive, then hands the check
// to a bounded pool of goroutines. Results leave the stage in completion
// order, not in submission order.
//
// Usage:
//
//	stage := tester.New(registry, ds.Continue, ds.Inactive,
//		tester.WithMaxWorkers(cfg.MaxWorkers),
//		tester.WithProgress(progress),
//	)
//	w := worker.New("tester", nil, stage, worker.WithOutputs(results))
package tester
