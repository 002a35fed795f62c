// Package worker provides the queue-based background stage used by every
// step of the test pipeline.
//
// A Worker owns one goroutine. It reads messages from an unbounded input
// Queue, hands each one to its Processor, and forwards whatever the
// processor emits to its output queues. The literal string "stop" is the
// only reserved message: on reading it a worker drains its processor,
// relays "stop" downstream exactly once and exits.
//
// Failures are not retried. The first error (or panic) raised inside the
// goroutine ends it and is returned by Wait, so the caller fails loudly.
//
// Usage:
//
//	results := worker.NewQueue()
//	w := worker.New("tester", nil, processor, worker.WithOutputs(results))
//	if err := w.Start(ctx); err != nil { ... }
//	w.AddToQueue(request)
//	w.SendStopSignal()
//	if err := w.Wait(); err != nil { ... }
package worker
