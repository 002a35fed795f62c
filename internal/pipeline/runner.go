package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/checker"
	"github.com/funilrys/PyFunceble-sub002/internal/config"
	"github.com/funilrys/PyFunceble-sub002/internal/convert"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/filter"
	"github.com/funilrys/PyFunceble-sub002/internal/miner"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/preload"
	"github.com/funilrys/PyFunceble-sub002/internal/producer"
	"github.com/funilrys/PyFunceble-sub002/internal/tester"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
	"github.com/google/uuid"
)

// SummaryFile is the name of the Markdown summary written under the logs
// directory of a destination.
const SummaryFile = "percentage.md"

// Summary describes a finished run.
type Summary struct {
	SessionID   string
	Destination string

	// Preload is set when the input file went through the preloader.
	Preload *preload.Stats

	// Fed is the number of requests handed to the tester.
	Fed int

	// Mined is the number of related subjects found by the mining stage.
	Mined int

	// Counts are the displayed results per status.
	Counts []output.StatusCount
	Total  int

	TimeExceeded bool

	// Complete is set when every subject was handled without error, time
	// limit or interruption.
	Complete bool
}

// Runner wires the stages of a run and feeds them.
type Runner struct {
	cfg       *config.Config
	ds        *dataset.Datasets
	registry  *checker.Registry
	filter    *filter.Filter
	converter convert.Converter

	stdout       io.Writer
	logger       *slog.Logger
	now          func() time.Time
	pollInterval time.Duration
	minerOpts    []miner.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner and its stages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStdout sets where results, markers and the summary are printed.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

// WithConverter sets the line-to-subjects converter of input files.
func WithConverter(c convert.Converter) Option {
	return func(r *Runner) {
		r.converter = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithPollInterval sets the queue poll timeout of the stages.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.pollInterval = d
	}
}

// WithMinerOptions configures the mining stage.
func WithMinerOptions(opts ...miner.Option) Option {
	return func(r *Runner) {
		r.minerOpts = append(r.minerOpts, opts...)
	}
}

// New creates a Runner. cfg must be valid.
func New(cfg *config.Config, ds *dataset.Datasets, registry *checker.Registry, opts ...Option) (*Runner, error) {
	f, err := filter.Compile(cfg.FilterPattern, cfg.LocalNetwork)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:          cfg,
		ds:           ds,
		registry:     registry,
		filter:       f,
		converter:    convert.Plain{},
		stdout:       os.Stdout,
		logger:       slog.Default(),
		now:          time.Now,
		pollInterval: worker.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// run holds the state of one Run call.
type run struct {
	*Runner

	start     time.Time
	sessionID string
	dest      string
	progress  *output.Progress
	printer   *output.Printer
	counter   *output.Counter
	files     *output.FileWriter
	miner     *miner.Miner

	testerW   *worker.Worker
	producerW *worker.Worker
	minerW    *worker.Worker

	// testerCtx is canceled with the error of a failed stage behind the
	// tester.
	testerCtx  context.Context
	stopTester context.CancelCauseFunc

	exceededLogged bool
	fed            int
}

// Run tests every subject of the configuration and returns the summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	st := &run{
		Runner:  r,
		start:   r.now(),
		counter: output.NewCounter(),
	}
	if r.cfg.InputFile != "" {
		st.dest = filepath.Base(r.cfg.InputFile)
	}
	var markers io.Writer
	if !r.cfg.Quiet {
		markers = r.stdout
	}
	st.progress = output.NewProgress(markers)

	mode := output.ModeDefault
	switch {
	case r.cfg.Quiet:
		mode = output.ModeQuiet
	case r.cfg.Simple:
		mode = output.ModeSimple
	}
	st.printer = output.NewPrinter(r.stdout, output.WithMode(mode), output.WithColors(r.cfg.Colors))
	if r.cfg.GenerateFiles {
		st.files = output.NewFileWriter(
			output.WithHostsIP(r.cfg.HostsIP),
			output.WithUnified(r.cfg.Unified),
		)
		defer st.files.Close()
	}

	removed, err := r.ds.Whois.Cleanup(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to clean whois dataset: %w", err)
	}
	if removed > 0 {
		r.logger.Info("expired whois records removed", "count", removed)
	}

	summary := &Summary{Destination: st.dest}

	usePreload := r.cfg.InputFile != "" && r.cfg.Preload && r.ds.Continue.Authorized()
	if usePreload {
		desc, stats, err := st.preload(ctx)
		if err != nil {
			return nil, err
		}
		st.sessionID = desc.SessionID
		summary.Preload = &stats
	} else {
		st.sessionID = uuid.NewString()
	}
	summary.SessionID = st.sessionID

	if r.cfg.Mining {
		if usePreload {
			opts := append([]miner.Option{
				miner.WithTimeout(r.cfg.Timeout),
				miner.WithProgress(st.progress),
				miner.WithLogger(r.logger),
			}, r.minerOpts...)
			st.miner = miner.New(r.ds.Continue, opts...)
		} else {
			r.logger.Warn("mining needs an input file, preload and the continue dataset; disabled")
		}
	}

	if err := st.startStages(ctx, st.miner != nil); err != nil {
		return nil, err
	}
	runErr := st.stopStages(st.feed(ctx, usePreload))

	if runErr == nil && st.miner != nil && st.miner.Mined() > 0 && ctx.Err() == nil && !st.timeExceeded() {
		runErr = st.mineRound(ctx)
	}

	summary.Fed = st.fed
	if st.miner != nil {
		summary.Mined = st.miner.Mined()
	}
	summary.Counts = st.counter.Snapshot()
	summary.Total = st.counter.Total()
	summary.TimeExceeded = st.timeExceeded()
	summary.Complete = runErr == nil && ctx.Err() == nil && !summary.TimeExceeded

	if runErr != nil {
		return summary, runErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if summary.Complete && r.cfg.InputFile != "" {
		if err := st.finish(ctx); err != nil {
			return summary, err
		}
	}

	if err := st.writeSummary(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (st *run) timeExceeded() bool {
	return st.cfg.TimeLimit > 0 && st.now().Sub(st.start) >= st.cfg.TimeLimit
}

func (st *run) preload(ctx context.Context) (*model.PreloadDescription, preload.Stats, error) {
	p := preload.New(st.ds.Continue, st.ds.Inactive,
		preload.WithConverter(st.converter),
		preload.WithFilter(st.filter),
		preload.WithProgress(st.progress),
		preload.WithTimeExceeded(st.timeExceeded),
		preload.WithLogger(st.logger),
	)
	desc, stats, err := p.Run(ctx, preload.Input{
		Path:        st.cfg.InputFile,
		Destination: st.dest,
		OutputDir:   st.cfg.OutputDir,
		CheckerType: st.cfg.CheckerType,
		SubjectType: st.cfg.SubjectType,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to preload %s: %w", st.cfg.InputFile, err)
	}
	return desc, stats, nil
}

// startStages starts the tester and the producer, and the miner after the
// producer when withMiner is set.
func (st *run) startStages(ctx context.Context, withMiner bool) error {
	prodOpts := []producer.Option{
		producer.WithCounter(st.counter),
		producer.WithPrinter(st.printer),
		producer.WithProgress(st.progress),
		producer.WithLogger(st.logger),
	}
	if st.files != nil {
		prodOpts = append(prodOpts, producer.WithFileWriter(st.files))
	}
	prod := producer.New(st.ds, prodOpts...)

	stage := tester.New(st.registry, st.ds.Continue, st.ds.Inactive,
		tester.WithFilter(st.filter),
		tester.WithProgress(st.progress),
		tester.WithCooldown(st.cfg.Cooldown),
		tester.WithMaxWorkers(st.cfg.MaxWorkers),
		tester.WithTimeExceeded(st.timeExceeded),
		tester.WithLogger(st.logger),
	)

	results := worker.NewQueue()
	st.testerW = worker.New("tester", nil, stage,
		worker.WithOutputs(results),
		worker.WithPollInterval(st.pollInterval),
		worker.WithLogger(st.logger),
	)
	prodWorkerOpts := []worker.Option{
		worker.WithPollInterval(st.pollInterval),
		worker.WithLogger(st.logger),
	}

	st.minerW = nil
	if withMiner {
		outcomes := worker.NewQueue()
		prodWorkerOpts = append(prodWorkerOpts, worker.WithOutputs(outcomes))
		st.minerW = worker.New("miner", outcomes, st.miner,
			worker.WithPollInterval(st.pollInterval),
			worker.WithLogger(st.logger),
		)
		if err := st.minerW.Start(ctx); err != nil {
			return err
		}
	}

	st.producerW = worker.New("producer", results, prod, prodWorkerOpts...)
	if err := st.producerW.Start(ctx); err != nil {
		return err
	}

	st.testerCtx, st.stopTester = context.WithCancelCause(ctx)
	if err := st.testerW.Start(st.testerCtx); err != nil {
		return err
	}
	stopOnFailure(st.producerW, st.stopTester)
	if st.minerW != nil {
		stopOnFailure(st.minerW, st.stopTester)
	}
	return nil
}

// stopOnFailure cancels the tester with the error of w, so no subject is
// checked once its result can no longer be handled.
func stopOnFailure(w *worker.Worker, cancel context.CancelCauseFunc) {
	go func() {
		<-w.Done()
		if err := w.Wait(); err != nil {
			cancel(err)
		}
	}()
}

// stages returns the started workers, in pipeline order.
func (st *run) stages() []*worker.Worker {
	stages := []*worker.Worker{st.testerW, st.producerW}
	if st.minerW != nil {
		stages = append(stages, st.minerW)
	}
	return stages
}

// stopStages sends the stop signal through the stages and waits for all of
// them. The stop signal travels downstream, so every queued item is handled
// first.
func (st *run) stopStages(feedErr error) error {
	st.testerW.SendStopSignal()

	errs := []error{feedErr}
	for _, w := range st.stages() {
		errs = append(errs, w.Wait())
	}

	// A tester canceled by a failed stage only repeats that failure.
	if cause := context.Cause(st.testerCtx); cause != nil && cause != st.testerCtx.Err() {
		errs[1] = nil
	}
	st.stopTester(nil)

	return errors.Join(errs...)
}

// mineRound tests the subjects seeded by the miner. Mined subjects are not
// mined again.
func (st *run) mineRound(ctx context.Context) error {
	st.logger.Info("testing mined subjects", "count", st.miner.Mined())
	if err := st.startStages(ctx, false); err != nil {
		return err
	}
	return st.stopStages(st.feedPending(ctx, true))
}

// send hands a request to the tester. It returns false once feeding must
// stop: interruption, time limit, or a stage that exited early.
func (st *run) send(ctx context.Context, req *model.TestRequest) bool {
	if ctx.Err() != nil {
		return false
	}
	for _, w := range st.stages() {
		select {
		case <-w.Done():
			return false
		default:
		}
	}
	if st.timeExceeded() {
		if !st.exceededLogged {
			st.logger.Warn("time limit exceeded, stop feeding", "limit", st.cfg.TimeLimit)
			st.exceededLogged = true
		}
		return false
	}

	st.testerW.AddToQueue(req)
	st.fed++
	return true
}

func (st *run) request(subject model.Subject, typ model.RequestType) *model.TestRequest {
	return &model.TestRequest{
		Subject:     subject,
		SessionID:   st.sessionID,
		Destination: st.dest,
		OutputDir:   st.cfg.OutputDir,
		Source:      st.cfg.InputFile,
		SubjectType: st.cfg.SubjectType,
		CheckerType: st.cfg.CheckerType,
		Type:        typ,
	}
}

// feed queues, in order: the inactive subjects due for a retest, the
// subjects of the input file, then the subjects given directly.
func (st *run) feed(ctx context.Context, usePreload bool) error {
	if st.cfg.InputFile != "" {
		if err := st.feedRetests(ctx); err != nil {
			return err
		}

		var err error
		if usePreload {
			err = st.feedPending(ctx, false)
		} else {
			err = st.feedFile(ctx)
		}
		if err != nil {
			return err
		}
	}

	for _, raw := range st.cfg.Subjects {
		subject, ok := st.subject(raw)
		if !ok {
			continue
		}
		req := st.request(subject, model.RequestSingle)
		req.Destination = ""
		req.Source = ""
		if !st.send(ctx, req) {
			break
		}
	}
	return nil
}

func (st *run) feedRetests(ctx context.Context) error {
	if !st.ds.Inactive.Authorized() {
		return nil
	}
	before := st.now().Add(-st.cfg.RetestAfter)
	for rec, err := range st.ds.Inactive.ToRetest(ctx, st.cfg.InputFile, st.cfg.CheckerType, before) {
		if err != nil {
			return fmt.Errorf("failed to read inactive dataset: %w", err)
		}
		subject, err := model.NewSubject(rec.Subject)
		if err != nil {
			continue
		}
		req := st.request(subject, model.RequestList)
		req.FromInactive = true
		if !st.send(ctx, req) {
			return nil
		}
	}
	return nil
}

func (st *run) feedPending(ctx context.Context, mined bool) error {
	for rec, err := range st.ds.Continue.Pending(ctx, st.sessionID) {
		if err != nil {
			return fmt.Errorf("failed to read continue dataset: %w", err)
		}
		raw := rec.Subject
		if raw == "" {
			raw = rec.IDNASubject
		}
		subject, err := model.NewSubject(raw)
		if err != nil {
			continue
		}
		req := st.request(subject, model.RequestList)
		req.FromPreload = true
		req.Mined = mined
		if !st.send(ctx, req) {
			return nil
		}
	}
	return nil
}

func (st *run) feedFile(ctx context.Context) error {
	f, err := os.Open(st.cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		for _, raw := range st.converter.Convert(scanner.Text()) {
			subject, ok := st.subject(raw)
			if !ok {
				continue
			}
			if !st.send(ctx, st.request(subject, model.RequestList)) {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	return nil
}

// subject parses raw. Blank subjects are dropped quietly, overlong ones
// with a warning since they cannot be stored.
func (st *run) subject(raw string) (model.Subject, bool) {
	subject, err := model.NewSubject(raw)
	if errors.Is(err, model.ErrSubjectTooLong) {
		st.logger.Warn("subject skipped", "error", err)
	}
	return subject, err == nil
}

// finish forgets the progress of a completed file run.
func (st *run) finish(ctx context.Context) error {
	if _, err := st.ds.Continue.CleanupSession(ctx, st.sessionID); err != nil {
		return fmt.Errorf("failed to clean continue dataset: %w", err)
	}
	return preload.RemoveDescription(st.cfg.OutputDir, st.dest)
}

func (st *run) writeSummary() error {
	if st.counter.Total() == 0 {
		return nil
	}

	if !st.cfg.Quiet {
		fmt.Fprintln(st.stdout)
		if err := st.counter.WriteMarkdown(st.stdout, "Summary"); err != nil {
			return fmt.Errorf("failed to print summary: %w", err)
		}
	}

	if st.files == nil || st.dest == "" {
		return nil
	}

	path := filepath.Join(st.cfg.OutputDir, st.dest, "logs", SummaryFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	if err := st.counter.WriteMarkdown(f, st.dest); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return f.Close()
}
