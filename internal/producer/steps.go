package producer

import (
	"context"
	"fmt"

	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
)

// Step names, in execution order.
const (
	StepWhois    = "whois"
	StepInactive = "inactive"
	StepContinue = "continue"
	StepResults  = "results"
	StepFiles    = "files"
	StepCounter  = "counter"
	StepPrinter  = "printer"
)

// WhoisStep caches the expiration date carried by a result.
type WhoisStep struct {
	whois *dataset.WhoisDataset
}

// NewWhoisStep creates a WhoisStep.
func NewWhoisStep(whois *dataset.WhoisDataset) *WhoisStep {
	return &WhoisStep{whois: whois}
}

// Name implements Step.
func (s *WhoisStep) Name() string { return StepWhois }

// Do implements Step.
func (s *WhoisStep) Do(ctx context.Context, o *model.Outcome) error {
	if !o.Result.HasExpirationDate() {
		return nil
	}
	if err := s.whois.Save(ctx, o.Result); err != nil {
		return fmt.Errorf("failed to save whois record: %w", err)
	}
	return nil
}

// InactiveStep keeps the inactive dataset in line with the last status:
// a subject stays recorded while it is down or invalid and is forgotten
// as soon as it is seen active.
type InactiveStep struct {
	inactive *dataset.InactiveDataset
}

// NewInactiveStep creates an InactiveStep.
func NewInactiveStep(inactive *dataset.InactiveDataset) *InactiveStep {
	return &InactiveStep{inactive: inactive}
}

// Name implements Step.
func (s *InactiveStep) Name() string { return StepInactive }

// Do implements Step.
func (s *InactiveStep) Do(ctx context.Context, o *model.Outcome) error {
	if !s.inactive.Authorized() {
		return nil
	}

	req := o.Request
	status := o.Result.Status

	switch {
	case status.IsInactive() && req.FromInactive:
		if err := s.inactive.Refresh(ctx, req, status); err != nil {
			return fmt.Errorf("failed to refresh inactive record: %w", err)
		}
	case status.IsInactive():
		if req.Destination == "" {
			return nil
		}
		if err := s.inactive.Record(ctx, req, status); err != nil {
			return fmt.Errorf("failed to record inactive subject: %w", err)
		}
	default:
		known := req.FromInactive
		if !known {
			var err error
			known, err = s.inactive.Contains(ctx, req.Subject.IDNA, req.CheckerType, req.Source)
			if err != nil {
				return fmt.Errorf("failed to read inactive dataset: %w", err)
			}
		}
		if !known {
			return nil
		}
		if err := s.inactive.Delete(ctx, req); err != nil {
			return fmt.Errorf("failed to delete inactive record: %w", err)
		}
	}
	return nil
}

// ContinueStep marks the subject tested for the session.
type ContinueStep struct {
	cont *dataset.ContinueDataset
}

// NewContinueStep creates a ContinueStep.
func NewContinueStep(cont *dataset.ContinueDataset) *ContinueStep {
	return &ContinueStep{cont: cont}
}

// Name implements Step.
func (s *ContinueStep) Name() string { return StepContinue }

// Do implements Step.
func (s *ContinueStep) Do(ctx context.Context, o *model.Outcome) error {
	if err := s.cont.MarkTested(ctx, o.Request); err != nil {
		return fmt.Errorf("failed to mark subject tested: %w", err)
	}
	return nil
}

// ResultsStep appends the outcome to the results table.
type ResultsStep struct {
	results *dataset.ResultLog
}

// NewResultsStep creates a ResultsStep.
func NewResultsStep(results *dataset.ResultLog) *ResultsStep {
	return &ResultsStep{results: results}
}

// Name implements Step.
func (s *ResultsStep) Name() string { return StepResults }

// Do implements Step.
func (s *ResultsStep) Do(ctx context.Context, o *model.Outcome) error {
	if err := s.results.Record(ctx, o); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// FilesStep writes the status files of the request destination.
type FilesStep struct {
	files *output.FileWriter
}

// NewFilesStep creates a FilesStep.
func NewFilesStep(files *output.FileWriter) *FilesStep {
	return &FilesStep{files: files}
}

// Name implements Step.
func (s *FilesStep) Name() string { return StepFiles }

// Do implements Step.
func (s *FilesStep) Do(_ context.Context, o *model.Outcome) error {
	return s.files.Write(o.Request, o.Result)
}

// CounterStep counts the status of the result.
type CounterStep struct {
	counter *output.Counter
}

// NewCounterStep creates a CounterStep.
func NewCounterStep(counter *output.Counter) *CounterStep {
	return &CounterStep{counter: counter}
}

// Name implements Step.
func (s *CounterStep) Name() string { return StepCounter }

// Do implements Step.
func (s *CounterStep) Do(_ context.Context, o *model.Outcome) error {
	s.counter.Add(o.Result.Status)
	return nil
}

// PrinterStep prints the result line.
type PrinterStep struct {
	printer *output.Printer
}

// NewPrinterStep creates a PrinterStep.
func NewPrinterStep(printer *output.Printer) *PrinterStep {
	return &PrinterStep{printer: printer}
}

// Name implements Step.
func (s *PrinterStep) Name() string { return StepPrinter }

// Do implements Step.
func (s *PrinterStep) Do(_ context.Context, o *model.Outcome) error {
	s.printer.Print(o.Result)
	return nil
}
