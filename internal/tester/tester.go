package tester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/checker"
	"github.com/funilrys/PyFunceble-sub002/internal/filter"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxWorkers is the pool size when none is configured.
const DefaultMaxWorkers = 4

// TestedLookup answers "did this session already test the subject".
type TestedLookup interface {
	IsTested(ctx context.Context, sessionID, idnaSubject string) (bool, error)
}

// InactiveLookup answers "is the subject known inactive for this source".
type InactiveLookup interface {
	Contains(ctx context.Context, idnaSubject string, checkerType model.CheckerType, source string) (bool, error)
}

// Tester is the worker.Processor of the tester stage.
type Tester struct {
	registry *checker.Registry
	tested   TestedLookup
	inactive InactiveLookup

	filter       *filter.Filter
	progress     *output.Progress
	cooldown     time.Duration
	maxWorkers   int
	timeExceeded func() bool
	logger       *slog.Logger

	// group and gctx are created on the first submission and only touched
	// by the worker goroutine.
	group *errgroup.Group
	gctx  context.Context

	exceededOnce sync.Once

	mu  sync.Mutex
	err error
}

// Option configures a Tester.
type Option func(*Tester)

// WithFilter sets the ignore rules.
func WithFilter(f *filter.Filter) Option {
	return func(t *Tester) {
		t.filter = f
	}
}

// WithProgress sets where markers are printed.
func WithProgress(p *output.Progress) Option {
	return func(t *Tester) {
		t.progress = p
	}
}

// WithCooldown makes every check wait d before it starts.
func WithCooldown(d time.Duration) Option {
	return func(t *Tester) {
		t.cooldown = d
	}
}

// WithMaxWorkers sets the maximum number of concurrent checks.
func WithMaxWorkers(n int) Option {
	return func(t *Tester) {
		if n > 0 {
			t.maxWorkers = n
		}
	}
}

// WithTimeExceeded sets the time budget predicate polled before each submission.
func WithTimeExceeded(fn func() bool) Option {
	return func(t *Tester) {
		t.timeExceeded = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tester) {
		t.logger = logger
	}
}

// New creates a Tester. tested and inactive may be disabled datasets; they
// are only consulted for list requests.
func New(registry *checker.Registry, tested TestedLookup, inactive InactiveLookup, opts ...Option) *Tester {
	t := &Tester{
		registry:     registry,
		tested:       tested,
		inactive:     inactive,
		filter:       filter.New(),
		maxWorkers:   DefaultMaxWorkers,
		timeExceeded: func() bool { return false },
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process handles one request. It blocks while the pool is full.
func (t *Tester) Process(ctx context.Context, msg any, emit worker.Emitter) error {
	if err := t.failure(); err != nil {
		return err
	}

	req, ok := msg.(*model.TestRequest)
	if !ok || req == nil {
		t.logger.Warn("dropping unexpected message", "stage", "tester", "type", fmt.Sprintf("%T", msg))
		t.progress.Mark(output.MarkDropped)
		return nil
	}

	if t.timeExceeded() {
		t.exceededOnce.Do(func() {
			t.logger.Warn("time limit exceeded, dropping remaining subjects")
		})
		return nil
	}

	if reason := t.filter.Reason(req.Subject); reason != filter.ReasonNone {
		t.logger.Debug("subject ignored", "subject", req.Subject.Raw, "reason", reason)
		t.progress.Mark(output.MarkIgnored)
		return nil
	}

	if !req.IsSingle() {
		skip, err := t.dedup(ctx, req, emit)
		if err != nil || skip {
			return err
		}
	}

	c, err := t.registry.Lookup(req.SubjectType, req.CheckerType)
	if err != nil {
		return err
	}

	t.submit(ctx, req, c, emit)
	return nil
}

// dedup reports whether the request must not be tested.
func (t *Tester) dedup(ctx context.Context, req *model.TestRequest, emit worker.Emitter) (bool, error) {
	if !req.FromPreload && t.tested != nil {
		done, err := t.tested.IsTested(ctx, req.SessionID, req.Subject.IDNA)
		if err != nil {
			return false, fmt.Errorf("failed to read continue dataset: %w", err)
		}
		if done {
			t.progress.Mark(output.MarkAlreadyTested)
			return true, nil
		}
	}

	if !req.FromInactive && t.inactive != nil {
		known, err := t.inactive.Contains(ctx, req.Subject.IDNA, req.CheckerType, req.Source)
		if err != nil {
			return false, fmt.Errorf("failed to read inactive dataset: %w", err)
		}
		if known {
			t.progress.Mark(output.MarkInactive)
			emit(&model.Outcome{Request: req, IgnoredInactive: true})
			return true, nil
		}
	}

	return false, nil
}

func (t *Tester) submit(ctx context.Context, req *model.TestRequest, c checker.Checker, emit worker.Emitter) {
	if t.group == nil {
		t.group, t.gctx = errgroup.WithContext(ctx)
		t.group.SetLimit(t.maxWorkers)
	}

	gctx := t.gctx
	t.group.Go(func() error {
		if err := t.check(gctx, req, c, emit); err != nil {
			t.setFailure(err)
			return err
		}
		return nil
	})
}

func (t *Tester) check(ctx context.Context, req *model.TestRequest, c checker.Checker, emit worker.Emitter) error {
	if t.cooldown > 0 {
		timer := time.NewTimer(t.cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	result, err := c.Check(ctx, req.Subject, req.CheckerType, req.SubjectType)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", req.Subject.Raw, err)
	}
	if result == nil {
		return fmt.Errorf("%w: %s", ErrNoResult, req.Subject.Raw)
	}

	emit(&model.Outcome{Request: req, Result: result})
	return nil
}

// Drain waits for every in-flight check and returns the first failure.
func (t *Tester) Drain(_ context.Context) error {
	if t.group == nil {
		return t.failure()
	}
	err := t.group.Wait()
	t.group = nil
	t.gctx = nil
	return err
}

func (t *Tester) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tester) setFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}
