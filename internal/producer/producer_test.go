package producer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	ds       *dataset.Datasets
	files    *output.FileWriter
	counter  *output.Counter
	stdout   *bytes.Buffer
	progress *output.Progress
	outDir   string
	producer *Producer
	emitted  []any
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	ds, err := dataset.Open(context.Background(), dataset.Options{
		Backend:  dataset.BackendSQLite,
		DataDir:  filepath.Join(dir, "data"),
		Continue: true,
		Inactive: true,
		Whois:    true,
		Results:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	f := &fixture{
		ds:       ds,
		files:    output.NewFileWriter(),
		counter:  output.NewCounter(),
		stdout:   &bytes.Buffer{},
		progress: output.NewProgress(nil),
		outDir:   filepath.Join(dir, "output"),
	}
	t.Cleanup(func() { _ = f.files.Close() })

	f.producer = New(ds,
		WithFileWriter(f.files),
		WithCounter(f.counter),
		WithPrinter(output.NewPrinter(f.stdout, output.WithMode(output.ModeSimple))),
		WithProgress(f.progress),
		WithLogger(discard),
	)
	return f
}

func (f *fixture) request(subject string) *model.TestRequest {
	return &model.TestRequest{
		Subject:     model.MustNewSubject(subject),
		SessionID:   "session-1",
		Destination: "list.txt",
		OutputDir:   f.outDir,
		Source:      "list.txt",
		SubjectType: model.SubjectTypeDomain,
		CheckerType: model.CheckerAvailability,
		Type:        model.RequestList,
	}
}

func (f *fixture) process(t *testing.T, req *model.TestRequest, status model.Status) {
	t.Helper()
	o := &model.Outcome{Request: req, Result: &model.TestResult{
		Status:       status,
		StatusSource: "DNSLOOKUP",
		Subject:      req.Subject.Raw,
		IDNASubject:  req.Subject.IDNA,
		TestedAt:     time.Now().UTC(),
	}}
	require.NoError(t, f.producer.Process(context.Background(), o, f.emit))
}

func (f *fixture) emit(msg any) {
	f.emitted = append(f.emitted, msg)
}

func (f *fixture) inactive(t *testing.T, subject string) *model.InactiveRecord {
	t.Helper()
	rec, err := f.ds.Inactive.Get(context.Background(), subject, model.CheckerAvailability, "list.txt")
	require.NoError(t, err)
	return rec
}

func TestProducer_StepOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	want := []string{StepWhois, StepInactive, StepContinue, StepResults, StepFiles, StepCounter, StepPrinter}
	if diff := cmp.Diff(want, f.producer.StepNames()); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}

	bare := New(dataset.Disabled(), WithLogger(discard))
	assert.Equal(t, []string{StepWhois, StepInactive, StepContinue, StepResults}, bare.StepNames())
}

func TestProducer_TestedSubject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	req := f.request("example.org")

	f.process(t, req, model.StatusUp)

	tested, err := f.ds.Continue.IsTested(ctx, "session-1", "example.org")
	require.NoError(t, err)
	assert.True(t, tested)

	n, err := f.ds.Results.Count(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, f.counter.Count(model.StatusUp))
	assert.Equal(t, "example.org UP\n", f.stdout.String())

	_, err = os.Stat(filepath.Join(f.outDir, "list.txt", "domains", "UP", "list"))
	assert.NoError(t, err)

	require.Len(t, f.emitted, 1)
	assert.Same(t, req, f.emitted[0].(*model.Outcome).Request)
}

func TestProducer_InactiveLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.process(t, f.request("example.net"), model.StatusDown)
	first := f.inactive(t, "example.net")
	require.NotNil(t, first)
	assert.Equal(t, model.StatusDown, first.Status)

	retest := f.request("example.net")
	retest.FromInactive = true
	time.Sleep(2 * time.Millisecond)
	f.process(t, retest, model.StatusDown)
	refreshed := f.inactive(t, "example.net")
	require.NotNil(t, refreshed)
	assert.True(t, refreshed.TestedAt.After(first.TestedAt))

	f.process(t, retest, model.StatusUp)
	assert.Nil(t, f.inactive(t, "example.net"))
}

func TestProducer_ActiveSubjectForgetsInactiveRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.process(t, f.request("example.net"), model.StatusDown)
	require.NotNil(t, f.inactive(t, "example.net"))

	f.process(t, f.request("example.net"), model.StatusUp)
	assert.Nil(t, f.inactive(t, "example.net"))
}

func TestProducer_NoDestinationIsNotRecordedInactive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.request("example.net")
	req.Destination = ""
	req.Type = model.RequestSingle

	f.process(t, req, model.StatusDown)
	assert.Nil(t, f.inactive(t, "example.net"))
	assert.Equal(t, 1, f.counter.Count(model.StatusDown))
}

func TestProducer_BlockPrinter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.request("example.net")
	req.FromInactive = true

	f.process(t, req, model.StatusDown)

	assert.Zero(t, f.counter.Total())
	assert.Empty(t, f.stdout.String())
	_, err := os.Stat(filepath.Join(f.outDir, "list.txt"))
	assert.True(t, os.IsNotExist(err), "no status file may be written")

	// Persistence and forwarding still happen.
	assert.NotNil(t, f.inactive(t, "example.net"))
	assert.Len(t, f.emitted, 1)
}

func TestProducer_IgnoredInactive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.request("example.net")

	err := f.producer.Process(context.Background(), &model.Outcome{Request: req, IgnoredInactive: true}, f.emit)
	require.NoError(t, err)
	require.NoError(t, f.files.Close())

	raw, err := os.ReadFile(filepath.Join(f.outDir, "list.txt", "logs", output.NotRetestedFile))
	require.NoError(t, err)
	assert.Equal(t, "example.net\n", string(raw))

	assert.Zero(t, f.counter.Total())
	assert.Empty(t, f.emitted)

	tested, err := f.ds.Continue.IsTested(context.Background(), "session-1", "example.net")
	require.NoError(t, err)
	assert.False(t, tested)
}

func TestProducer_WhoisSaved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	req := f.request("example.org")
	expiration := time.Now().AddDate(1, 0, 0).UTC()

	o := &model.Outcome{Request: req, Result: &model.TestResult{
		Status:         model.StatusUp,
		Subject:        "example.org",
		IDNASubject:    "example.org",
		ExpirationDate: &expiration,
		Registrar:      "Example Registrar",
		TestedAt:       time.Now().UTC(),
	}}
	require.NoError(t, f.producer.Process(ctx, o, f.emit))

	rec, err := f.ds.Whois.GetValid(ctx, "example.org", time.Now())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Example Registrar", rec.Registrar)
	assert.Equal(t, strings.ToLower(expiration.Format(model.WhoisDateLayout)), rec.ExpirationDate)
}

func TestProducer_MalformedMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	msgs := []any{
		"not an outcome",
		(*model.Outcome)(nil),
		&model.Outcome{},
		&model.Outcome{Request: f.request("example.org")},
	}
	for _, msg := range msgs {
		require.NoError(t, f.producer.Process(context.Background(), msg, f.emit))
	}

	assert.Equal(t, len(msgs), f.progress.Count(output.MarkDropped))
	assert.Empty(t, f.emitted)
	assert.Zero(t, f.counter.Total())
}

func TestProducer_InWorkerForwards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mining := worker.NewQueue()
	w := worker.New("producer", nil, f.producer,
		worker.WithOutputs(mining), worker.WithPollInterval(5*time.Millisecond))

	require.NoError(t, w.Start(context.Background()))
	req := f.request("example.org")
	w.AddToQueue(&model.Outcome{Request: req, Result: &model.TestResult{Status: model.StatusUp, Subject: "example.org", IDNASubject: "example.org"}})
	w.SendStopSignal()
	require.NoError(t, w.Wait())

	require.Equal(t, 2, mining.Len())
	first, _, err := mining.Get(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, req, first.(*model.Outcome).Request)
	second, _, err := mining.Get(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.True(t, worker.IsStop(second))
}

func TestProducer_FileFailureStillCountsAndPrints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	req := f.request("example.org")
	req.OutputDir = blocker
	o := &model.Outcome{Request: req, Result: &model.TestResult{
		Status:      model.StatusUp,
		Subject:     req.Subject.Raw,
		IDNASubject: req.Subject.IDNA,
		TestedAt:    time.Now().UTC(),
	}}

	err := f.producer.Process(context.Background(), o, f.emit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output directory")

	assert.Equal(t, 1, f.counter.Count(model.StatusUp))
	assert.Contains(t, f.stdout.String(), "example.org")
	assert.Empty(t, f.emitted)
}
