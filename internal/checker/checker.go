package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Status sources recorded in TestResult.StatusSource.
const (
	SourceSyntax     = "SYNTAX"
	SourceDNS        = "DNSLOOKUP"
	SourceReverseDNS = "REVERSE_DNS"
	SourceHTTP       = "HTTP CODE"
	SourceReputation = "REPUTATION"
)

// Checker tests one subject.
type Checker interface {
	Check(ctx context.Context, subject model.Subject, checkerType model.CheckerType, subjectType model.SubjectType) (*model.TestResult, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, subject model.Subject, checkerType model.CheckerType, subjectType model.SubjectType) (*model.TestResult, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, subject model.Subject, checkerType model.CheckerType, subjectType model.SubjectType) (*model.TestResult, error) {
	return f(ctx, subject, checkerType, subjectType)
}

// Kind identifies one entry of the checker table.
type Kind struct {
	SubjectType model.SubjectType
	CheckerType model.CheckerType
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return fmt.Sprintf("%s/%s", k.SubjectType, k.CheckerType)
}

// Registry maps kinds to checkers. It is filled once at startup and read
// concurrently afterwards.
type Registry struct {
	checkers map[Kind]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[Kind]Checker)}
}

// Register binds a checker to a kind, replacing any previous binding.
func (r *Registry) Register(subjectType model.SubjectType, checkerType model.CheckerType, c Checker) {
	r.checkers[Kind{SubjectType: subjectType, CheckerType: checkerType}] = c
}

// Lookup returns the checker bound to the pair.
func (r *Registry) Lookup(subjectType model.SubjectType, checkerType model.CheckerType) (Checker, error) {
	c, ok := r.checkers[Kind{SubjectType: subjectType, CheckerType: checkerType}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownCheckerKind, subjectType, checkerType)
	}
	return c, nil
}

// Kinds returns the number of registered kinds.
func (r *Registry) Kinds() int {
	return len(r.checkers)
}

// Default builds the standard table: one syntax, availability and
// reputation checker shared by domains and URLs.
func Default(syntax *SyntaxChecker, availability *AvailabilityChecker, reputation *ReputationChecker) *Registry {
	r := NewRegistry()
	for _, st := range []model.SubjectType{model.SubjectTypeDomain, model.SubjectTypeURL} {
		r.Register(st, model.CheckerSyntax, syntax)
		r.Register(st, model.CheckerAvailability, availability)
		if reputation != nil {
			r.Register(st, model.CheckerReputation, reputation)
		}
	}
	return r
}

// newResult fills the fields every checker sets.
func newResult(subject model.Subject, status model.Status, source string, now func() time.Time) *model.TestResult {
	return &model.TestResult{
		Status:       status,
		StatusSource: source,
		Subject:      subject.Raw,
		IDNASubject:  subject.IDNA,
		TestedAt:     now().UTC(),
	}
}
