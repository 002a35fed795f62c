package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how long a stage waits on its input queue before
// looking at its context again.
const DefaultPollInterval = 100 * time.Millisecond

// Emitter forwards a message to every output queue of the stage.
type Emitter func(msg any)

// Processor is the per-stage behavior run by a Worker for each message.
// Returning an error terminates the stage; the error is reported by Wait.
type Processor interface {
	Process(ctx context.Context, msg any, emit Emitter) error
}

// Drainer is implemented by processors holding in-flight work.
// Drain is called once the stop signal is read, before it is relayed.
type Drainer interface {
	Drain(ctx context.Context) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, msg any, emit Emitter) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, msg any, emit Emitter) error {
	return f(ctx, msg, emit)
}

// Worker runs a Processor on exactly one background goroutine, fed by an
// input queue and forwarding to zero or more output queues.
type Worker struct {
	name      string
	input     *Queue
	outputs   []*Queue
	processor Processor

	pollInterval time.Duration
	logger       *slog.Logger

	started atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Option configures a Worker.
type Option func(*Worker)

// WithOutputs sets the queues every emitted message and the stop signal go to.
func WithOutputs(outputs ...*Queue) Option {
	return func(w *Worker) {
		w.outputs = append(w.outputs, outputs...)
	}
}

// WithPollInterval sets the input queue poll timeout.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Worker reading from input. When input is nil a fresh queue
// is created.
func New(name string, input *Queue, processor Processor, opts ...Option) *Worker {
	if input == nil {
		input = NewQueue()
	}
	w := &Worker{
		name:         name,
		input:        input,
		processor:    processor,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// Input returns the queue the worker reads from.
func (w *Worker) Input() *Queue {
	return w.input
}

// Start launches the background goroutine. It may be called only once.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, w.name)
	}

	go w.run(ctx)
	return nil
}

// AddToQueue enqueues a message for the worker. It never blocks.
func (w *Worker) AddToQueue(msg any) {
	w.input.Put(msg)
}

// SendStopSignal enqueues the stop sentinel.
func (w *Worker) SendStopSignal() {
	w.input.Put(StopSignal)
}

// Done is closed when the goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the goroutine has exited and returns the error captured
// there. It returns ErrNotStarted if Start was never called.
func (w *Worker) Wait() error {
	if !w.started.Load() {
		return fmt.Errorf("%w: %s", ErrNotStarted, w.name)
	}
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// emit forwards msg to every output queue.
func (w *Worker) emit(msg any) {
	for _, out := range w.outputs {
		out.Put(msg)
	}
}

// run is the stage loop. The stop signal is relayed exactly once, whether
// the loop ends on the sentinel, on an error or on cancellation, so that the
// stages behind never wait forever.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.emit(StopSignal)
	defer func() {
		if r := recover(); r != nil {
			w.setErr(fmt.Errorf("%w: %s: %v", ErrPanic, w.name, r))
		}
	}()

	w.logger.Debug("worker started", "worker", w.name)

	if err := w.loop(ctx); err != nil {
		w.logger.Error("worker failed", "worker", w.name, "error", err)
		w.setErr(err)
		return
	}

	w.logger.Debug("worker stopped", "worker", w.name)
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		msg, ok, err := w.input.Get(ctx, w.pollInterval)
		if err != nil {
			w.drain(context.WithoutCancel(ctx))
			return fmt.Errorf("%s: %w", w.name, err)
		}
		if !ok {
			continue
		}
		// Queued work is not started once the stage is canceled.
		if err := ctx.Err(); err != nil {
			w.drain(context.WithoutCancel(ctx))
			return fmt.Errorf("%s: %w", w.name, err)
		}

		if IsStop(msg) {
			return w.drain(ctx)
		}

		if err := w.processor.Process(ctx, msg, w.emit); err != nil {
			w.drain(context.WithoutCancel(ctx))
			return fmt.Errorf("%s: %w", w.name, err)
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	d, ok := w.processor.(Drainer)
	if !ok {
		return nil
	}
	if err := d.Drain(ctx); err != nil {
		return fmt.Errorf("%s: drain: %w", w.name, err)
	}
	return nil
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
