package producer

import (
	"context"
	"log/slog"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Step is one side effect of the result stage.
type Step interface {
	// Do applies the step to one outcome. Returning an error stops the
	// pipeline unless it continues on error.
	Do(ctx context.Context, o *model.Outcome) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs steps in order for each outcome.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps running the next steps after a failure. The
	// first error is still returned.
	continueOnError bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets a custom logger for the pipeline.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError runs every step even when one fails.
func WithContinueOnError(continueOnError bool) PipelineOption {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// NewPipeline creates an empty Pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step on o, checking for cancellation between steps.
func (p *Pipeline) Execute(ctx context.Context, o *model.Outcome) error {
	if o.Result == nil {
		return ErrMissingResult
	}

	var firstErr error

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		if err := step.Do(ctx, o); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"subject", o.Request.Subject.Raw,
				"error", err,
			)
			if !p.continueOnError {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
