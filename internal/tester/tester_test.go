package tester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/checker"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// upChecker answers up for every subject.
var upChecker = checker.CheckerFunc(func(_ context.Context, s model.Subject, _ model.CheckerType, _ model.SubjectType) (*model.TestResult, error) {
	return &model.TestResult{Status: model.StatusUp, StatusSource: "TEST", Subject: s.Raw, IDNASubject: s.IDNA}, nil
})

func registryWith(c checker.Checker) *checker.Registry {
	r := checker.NewRegistry()
	r.Register(model.SubjectTypeDomain, model.CheckerAvailability, c)
	return r
}

func openDatasets(t *testing.T) *dataset.Datasets {
	t.Helper()
	ds, err := dataset.Open(context.Background(), dataset.Options{
		Backend:  dataset.BackendCSV,
		DataDir:  t.TempDir(),
		Continue: true,
		Inactive: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func listRequest(subject string) *model.TestRequest {
	return &model.TestRequest{
		Subject:     model.MustNewSubject(subject),
		SessionID:   "session-1",
		Source:      "list.txt",
		SubjectType: model.SubjectTypeDomain,
		CheckerType: model.CheckerAvailability,
		Type:        model.RequestList,
	}
}

// collector is a goroutine-safe Emitter.
type collector struct {
	mu       sync.Mutex
	outcomes []*model.Outcome
}

func (c *collector) emit(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, msg.(*model.Outcome))
}

func (c *collector) subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.outcomes))
	for _, o := range c.outcomes {
		out = append(out, o.Request.Subject.IDNA)
	}
	slices.Sort(out)
	return out
}

func TestTester_DedupAlreadyTested(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ds := openDatasets(t)
	progress := output.NewProgress(nil)

	all := []string{"a.example", "b.example", "c.example", "d.example", "e.example"}
	tested := []string{"b.example", "d.example"}
	for _, s := range tested {
		require.NoError(t, ds.Continue.MarkTested(ctx, listRequest(s)))
	}

	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive,
		WithProgress(progress), WithMaxWorkers(2), WithLogger(discard))

	var got collector
	for _, s := range all {
		require.NoError(t, stage.Process(ctx, listRequest(s), got.emit))
	}
	require.NoError(t, stage.Drain(ctx))

	if diff := cmp.Diff([]string{"a.example", "c.example", "e.example"}, got.subjects()); diff != "" {
		t.Errorf("tested subjects mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(tested), progress.Count(output.MarkAlreadyTested))
}

func TestTester_RepeatedSubjectIsAlreadyTested(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ds := openDatasets(t)
	progress := output.NewProgress(nil)
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithProgress(progress), WithLogger(discard))

	var got collector
	req := listRequest("example.org")
	require.NoError(t, stage.Process(ctx, req, got.emit))
	require.NoError(t, stage.Drain(ctx))
	require.NoError(t, ds.Continue.MarkTested(ctx, req))

	require.NoError(t, stage.Process(ctx, listRequest("example.org"), got.emit))
	require.NoError(t, stage.Drain(ctx))

	assert.Len(t, got.outcomes, 1)
	assert.Equal(t, 1, progress.Count(output.MarkAlreadyTested))
}

func TestTester_PreloadedRowsAreTested(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ds := openDatasets(t)
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithLogger(discard))

	require.NoError(t, ds.Continue.Seed(ctx, "session-1", model.MustNewSubject("example.org"), model.CheckerAvailability, "list.txt"))

	req := listRequest("example.org")
	req.FromPreload = true

	var got collector
	require.NoError(t, stage.Process(ctx, req, got.emit))
	require.NoError(t, stage.Drain(ctx))
	assert.Len(t, got.outcomes, 1)
}

func TestTester_ReservedNamesAreIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	progress := output.NewProgress(nil)
	ds := dataset.Disabled()
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithProgress(progress), WithLogger(discard))

	var got collector
	for _, typ := range []model.RequestType{model.RequestSingle, model.RequestList} {
		req := listRequest("localhost")
		req.Type = typ
		require.NoError(t, stage.Process(ctx, req, got.emit))
	}
	require.NoError(t, stage.Drain(ctx))

	assert.Empty(t, got.outcomes)
	assert.Equal(t, 2, progress.Count(output.MarkIgnored))
}

func TestTester_KnownInactive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ds := openDatasets(t)
	require.NoError(t, ds.Inactive.Record(ctx, listRequest("example.net"), model.StatusDown))

	tests := []struct {
		name         string
		fromInactive bool
		wantIgnored  bool
	}{
		{name: "skipped when not scheduled for retest", fromInactive: false, wantIgnored: true},
		{name: "tested when retested", fromInactive: true, wantIgnored: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress := output.NewProgress(nil)
			stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithProgress(progress), WithLogger(discard))

			req := listRequest("example.net")
			req.FromInactive = tt.fromInactive

			var got collector
			require.NoError(t, stage.Process(ctx, req, got.emit))
			require.NoError(t, stage.Drain(ctx))

			require.Len(t, got.outcomes, 1)
			o := got.outcomes[0]
			assert.Equal(t, tt.wantIgnored, o.IgnoredInactive)
			assert.Equal(t, tt.wantIgnored, o.Result == nil)
			if tt.wantIgnored {
				assert.Equal(t, 1, progress.Count(output.MarkInactive))
			}
		})
	}
}

func TestTester_UnknownCheckerKind(t *testing.T) {
	t.Parallel()

	ds := dataset.Disabled()
	stage := New(checker.NewRegistry(), ds.Continue, ds.Inactive, WithLogger(discard))

	var got collector
	err := stage.Process(context.Background(), listRequest("example.org"), got.emit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, checker.ErrUnknownCheckerKind))
}

func TestTester_FailFast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	errBroken := errors.New("broken checker")
	failing := checker.CheckerFunc(func(_ context.Context, s model.Subject, _ model.CheckerType, _ model.SubjectType) (*model.TestResult, error) {
		if s.Raw == "bad.example" {
			return nil, errBroken
		}
		return upChecker(ctx, s, model.CheckerAvailability, model.SubjectTypeDomain)
	})

	ds := dataset.Disabled()
	stage := New(registryWith(failing), ds.Continue, ds.Inactive, WithMaxWorkers(1), WithLogger(discard))

	var got collector
	require.NoError(t, stage.Process(ctx, listRequest("bad.example"), got.emit))

	err := stage.Drain(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBroken))

	err = stage.Process(ctx, listRequest("good.example"), got.emit)
	assert.True(t, errors.Is(err, errBroken))
	assert.Empty(t, got.outcomes)
}

func TestTester_NilResult(t *testing.T) {
	t.Parallel()

	empty := checker.CheckerFunc(func(context.Context, model.Subject, model.CheckerType, model.SubjectType) (*model.TestResult, error) {
		return nil, nil
	})
	ds := dataset.Disabled()
	stage := New(registryWith(empty), ds.Continue, ds.Inactive, WithLogger(discard))

	var got collector
	require.NoError(t, stage.Process(context.Background(), listRequest("example.org"), got.emit))
	assert.True(t, errors.Is(stage.Drain(context.Background()), ErrNoResult))
}

func TestTester_TimeExceededDropsRequests(t *testing.T) {
	t.Parallel()

	ds := dataset.Disabled()
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive,
		WithTimeExceeded(func() bool { return true }), WithLogger(discard))

	var got collector
	for i := range 3 {
		require.NoError(t, stage.Process(context.Background(), listRequest(fmt.Sprintf("s%d.example", i)), got.emit))
	}
	require.NoError(t, stage.Drain(context.Background()))
	assert.Empty(t, got.outcomes)
}

func TestTester_MalformedMessageIsDropped(t *testing.T) {
	t.Parallel()

	progress := output.NewProgress(nil)
	ds := dataset.Disabled()
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithProgress(progress), WithLogger(discard))

	var got collector
	require.NoError(t, stage.Process(context.Background(), map[string]string{"subject": "x"}, got.emit))
	require.NoError(t, stage.Process(context.Background(), (*model.TestRequest)(nil), got.emit))

	assert.Empty(t, got.outcomes)
	assert.Equal(t, 2, progress.Count(output.MarkDropped))
}

func TestTester_RespectsMaxWorkers(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	slow := checker.CheckerFunc(func(ctx context.Context, s model.Subject, ct model.CheckerType, st model.SubjectType) (*model.TestResult, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return upChecker(ctx, s, ct, st)
	})

	ds := dataset.Disabled()
	stage := New(registryWith(slow), ds.Continue, ds.Inactive, WithMaxWorkers(2), WithLogger(discard))

	var got collector
	for i := range 10 {
		require.NoError(t, stage.Process(context.Background(), listRequest(fmt.Sprintf("s%d.example", i)), got.emit))
	}
	require.NoError(t, stage.Drain(context.Background()))

	assert.Len(t, got.outcomes, 10)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestTester_CooldownStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ds := dataset.Disabled()
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithCooldown(time.Hour), WithLogger(discard))

	var got collector
	require.NoError(t, stage.Process(ctx, listRequest("example.org"), got.emit))
	cancel()

	err := stage.Drain(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, got.outcomes)
}

func TestTester_InWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ds := dataset.Disabled()
	results := worker.NewQueue()
	stage := New(registryWith(upChecker), ds.Continue, ds.Inactive, WithLogger(discard))
	w := worker.New("tester", nil, stage, worker.WithOutputs(results), worker.WithPollInterval(5*time.Millisecond))

	require.NoError(t, w.Start(ctx))
	w.AddToQueue(listRequest("a.example"))
	w.AddToQueue(listRequest("b.example"))
	w.SendStopSignal()
	require.NoError(t, w.Wait())

	var subjects []string
	var stops int
	for results.Len() > 0 {
		msg, ok, err := results.Get(ctx, time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		if worker.IsStop(msg) {
			stops++
			continue
		}
		subjects = append(subjects, msg.(*model.Outcome).Request.Subject.IDNA)
	}
	slices.Sort(subjects)

	assert.Equal(t, []string{"a.example", "b.example"}, subjects)
	assert.Equal(t, 1, stops)
}
