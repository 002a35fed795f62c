package producer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
)

// Producer is the worker.Processor of the result stage.
type Producer struct {
	persist *Pipeline
	display *Pipeline

	files    *output.FileWriter
	progress *output.Progress
	logger   *slog.Logger

	counter *output.Counter
	printer *output.Printer
}

// Option configures a Producer.
type Option func(*Producer)

// WithFileWriter enables the status files.
func WithFileWriter(files *output.FileWriter) Option {
	return func(p *Producer) {
		p.files = files
	}
}

// WithCounter enables the per-status counters.
func WithCounter(counter *output.Counter) Option {
	return func(p *Producer) {
		p.counter = counter
	}
}

// WithPrinter enables the stdout lines.
func WithPrinter(printer *output.Printer) Option {
	return func(p *Producer) {
		p.printer = printer
	}
}

// WithProgress sets where markers are printed.
func WithProgress(progress *output.Progress) Option {
	return func(p *Producer) {
		p.progress = progress
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = logger
	}
}

// New creates a Producer persisting to ds.
func New(ds *dataset.Datasets, opts ...Option) *Producer {
	p := &Producer{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	p.persist = NewPipeline(WithPipelineLogger(p.logger))
	p.persist.AddSteps(
		NewWhoisStep(ds.Whois),
		NewInactiveStep(ds.Inactive),
		NewContinueStep(ds.Continue),
		NewResultsStep(ds.Results),
	)

	// A failed status file still leaves the result counted and printed.
	p.display = NewPipeline(WithPipelineLogger(p.logger), WithContinueOnError(true))
	if p.files != nil {
		p.display.AddStep(NewFilesStep(p.files))
	}
	if p.counter != nil {
		p.display.AddStep(NewCounterStep(p.counter))
	}
	if p.printer != nil {
		p.display.AddStep(NewPrinterStep(p.printer))
	}

	return p
}

// StepNames returns the steps run for a tested subject, in order.
func (p *Producer) StepNames() []string {
	return append(p.persist.StepNames(), p.display.StepNames()...)
}

// Process handles one outcome of the tester stage.
func (p *Producer) Process(ctx context.Context, msg any, emit worker.Emitter) error {
	o, ok := msg.(*model.Outcome)
	if !ok || o == nil || o.Request == nil {
		p.logger.Warn("dropping unexpected message", "stage", "producer", "type", fmt.Sprintf("%T", msg))
		p.progress.Mark(output.MarkDropped)
		return nil
	}

	if o.IgnoredInactive {
		if p.files == nil {
			return nil
		}
		return p.files.WriteNotRetested(o.Request)
	}

	if o.Result == nil {
		p.logger.Warn("dropping outcome without result", "subject", o.Request.Subject.Raw)
		p.progress.Mark(output.MarkDropped)
		return nil
	}

	if err := p.persist.Execute(ctx, o); err != nil {
		return err
	}

	if !blockPrinter(o) {
		if err := p.display.Execute(ctx, o); err != nil {
			return err
		}
	}

	emit(o)
	return nil
}

// blockPrinter reports whether a retested subject is still inactive. Such
// subjects were already reported by an earlier run.
func blockPrinter(o *model.Outcome) bool {
	return o.Request.FromInactive && o.Result.Status.IsInactive()
}
