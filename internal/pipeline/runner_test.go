package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/checker"
	"github.com/funilrys/PyFunceble-sub002/internal/config"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/miner"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/preload"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const deadSubject = "dead.example.org"

// fakeChecker answers down for deadSubject and up for everything else. It
// records the subjects it was asked about.
type fakeChecker struct {
	mu      sync.Mutex
	checked []string
	alive   atomic.Bool
	err     error
	delay   time.Duration
}

func (f *fakeChecker) Check(_ context.Context, s model.Subject, _ model.CheckerType, _ model.SubjectType) (*model.TestResult, error) {
	f.mu.Lock()
	f.checked = append(f.checked, s.IDNA)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	status := model.StatusUp
	if s.IDNA == deadSubject && !f.alive.Load() {
		status = model.StatusDown
	}
	return &model.TestResult{
		Status:       status,
		StatusSource: "TEST",
		Subject:      s.Raw,
		IDNASubject:  s.IDNA,
		TestedAt:     time.Now(),
	}, nil
}

func (f *fakeChecker) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.checked...)
	return out
}

// lockedBuffer is written by the printer and the progress markers at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	cfg     *config.Config
	ds      *dataset.Datasets
	checker *fakeChecker
	stdout  *lockedBuffer
}

func newFixture(t *testing.T, lines ...string) *fixture {
	t.Helper()

	dir := t.TempDir()
	input := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(input, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	cfg := config.NewConfig()
	cfg.InputFile = input
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.MaxWorkers = 2
	cfg.Simple = true

	ds, err := dataset.Open(context.Background(), dataset.Options{
		Backend:  dataset.BackendCSV,
		DataDir:  cfg.DataDir,
		Continue: true,
		Inactive: true,
		Whois:    true,
		Logger:   discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	return &fixture{cfg: cfg, ds: ds, checker: &fakeChecker{}, stdout: &lockedBuffer{}}
}

func (f *fixture) run(t *testing.T, ctx context.Context, opts ...Option) (*Summary, error) {
	t.Helper()

	registry := checker.NewRegistry()
	registry.Register(model.SubjectTypeDomain, model.CheckerAvailability, f.checker)
	registry.Register(model.SubjectTypeURL, model.CheckerAvailability, f.checker)

	opts = append([]Option{
		WithLogger(discard),
		WithStdout(f.stdout),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)

	r, err := New(f.cfg, f.ds, registry, opts...)
	require.NoError(t, err)
	return r.Run(ctx)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestRunnerFileRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org", "example.net", deadSubject, "localhost", "example.org")

	summary, err := f.run(t, context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Complete)
	assert.False(t, summary.TimeExceeded)
	assert.Equal(t, 3, summary.Total)
	require.NotNil(t, summary.Preload)
	assert.Equal(t, 1, summary.Preload.Ignored)

	assert.ElementsMatch(t, []string{"example.org", "example.net", deadSubject}, f.checker.subjects())

	root := filepath.Join(f.cfg.OutputDir, "list.txt")
	assert.ElementsMatch(t, []string{"example.org", "example.net"}, readLines(t, filepath.Join(root, "domains", "UP", "list")))
	assert.Equal(t, []string{deadSubject}, readLines(t, filepath.Join(root, "domains", "DOWN", "list")))
	assert.FileExists(t, filepath.Join(root, "logs", SummaryFile))

	inactive, err := f.ds.Inactive.Contains(context.Background(), deadSubject, model.CheckerAvailability, f.cfg.InputFile)
	require.NoError(t, err)
	assert.True(t, inactive)

	t.Run("progress is forgotten", func(t *testing.T) {
		_, err := os.Stat(preload.DescriptionPath(f.cfg.OutputDir, "list.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)

		rows, err := dataset.Collect(f.ds.Continue.Store().Content(context.Background()))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("stdout carries results and summary", func(t *testing.T) {
		out := f.stdout.String()
		assert.Contains(t, out, "example.org UP\n")
		assert.Contains(t, out, deadSubject+" DOWN\n")
		assert.Contains(t, out, "# Summary")
	})
}

func TestRunnerInactiveRetest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org", deadSubject)
	f.cfg.RetestAfter = 30 * time.Minute

	_, err := f.run(t, context.Background())
	require.NoError(t, err)

	t.Run("not due yet", func(t *testing.T) {
		f.checker.checked = nil

		summary, err := f.run(t, context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"example.org"}, f.checker.subjects())
		assert.Equal(t, 1, summary.Preload.Inactive)
	})

	t.Run("due subjects are retested and forgotten once up", func(t *testing.T) {
		f.checker.checked = nil
		f.checker.alive.Store(true)

		later := func() time.Time { return time.Now().Add(time.Hour) }
		summary, err := f.run(t, context.Background(), WithClock(later))
		require.NoError(t, err)
		assert.True(t, summary.Complete)

		assert.ElementsMatch(t, []string{deadSubject, "example.org"}, f.checker.subjects())

		inactive, err := f.ds.Inactive.Contains(context.Background(), deadSubject, model.CheckerAvailability, f.cfg.InputFile)
		require.NoError(t, err)
		assert.False(t, inactive)
	})
}

func TestRunnerDirectSubjects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.InputFile = ""
	f.cfg.Subjects = []string{"example.org", "example.org", "  "}
	f.ds = dataset.Disabled()

	summary, err := f.run(t, context.Background())
	require.NoError(t, err)

	assert.Nil(t, summary.Preload)
	assert.Empty(t, summary.Destination)
	assert.Equal(t, 2, summary.Fed)
	if diff := cmp.Diff([]string{"example.org", "example.org"}, f.checker.subjects()); diff != "" {
		t.Errorf("checked subjects mismatch (-want +got):\n%s", diff)
	}
	assert.NoDirExists(t, f.cfg.OutputDir)
}

func TestRunnerWithoutPreload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org", "example.net", "example.org")
	f.cfg.Preload = false

	summary, err := f.run(t, context.Background())
	require.NoError(t, err)

	assert.Nil(t, summary.Preload)
	assert.Equal(t, 3, summary.Fed)

	// The repeated line may reach the tester before its first occurrence
	// is marked as tested.
	checked := f.checker.subjects()
	slices.Sort(checked)
	assert.Equal(t, []string{"example.net", "example.org"}, slices.Compact(checked))
}

func TestRunnerPreloadKeepsRawSubjects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "bücher.example")

	summary, err := f.run(t, context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary.Preload)
	assert.Equal(t, 1, summary.Preload.Seeded)

	assert.Equal(t, []string{"xn--bcher-kva.example"}, f.checker.subjects())
	assert.Contains(t, f.stdout.String(), "bücher.example UP\n")
	assert.NotContains(t, f.stdout.String(), "xn--bcher-kva.example UP")
}

func TestRunnerSkipsOverlongSubjects(t *testing.T) {
	t.Parallel()

	long := "https://example.org/" + strings.Repeat("a", model.MaxSubjectLength)

	for _, preloaded := range []bool{true, false} {
		t.Run(fmt.Sprintf("preload=%v", preloaded), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, long, "example.org")
			f.cfg.Preload = preloaded
			f.cfg.Subjects = []string{long}

			summary, err := f.run(t, context.Background())
			require.NoError(t, err)
			assert.True(t, summary.Complete)
			assert.Equal(t, []string{"example.org"}, f.checker.subjects())
		})
	}
}

func TestRunnerCheckerFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org", "example.net")
	f.checker.err = errors.New("resolver exploded")

	summary, err := f.run(t, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver exploded")
	assert.False(t, summary.Complete)

	assert.FileExists(t, preload.DescriptionPath(f.cfg.OutputDir, "list.txt"), "an incomplete run keeps its progress")
}

func TestRunnerTimeLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org", "example.net")
	f.cfg.TimeLimit = time.Minute

	start := time.Now()
	var calls atomic.Int64
	clock := func() time.Time {
		// The first call is the start of the run; every later call is past the limit.
		if calls.Add(1) == 1 {
			return start
		}
		return start.Add(time.Hour)
	}

	summary, err := f.run(t, context.Background(), WithClock(clock))
	require.NoError(t, err)

	assert.True(t, summary.TimeExceeded)
	assert.False(t, summary.Complete)
	assert.Empty(t, f.checker.subjects())
	assert.FileExists(t, preload.DescriptionPath(f.cfg.OutputDir, "list.txt"))
}

func TestRunnerCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.run(t, ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.checker.subjects())
}

func TestNewRejectsBadFilter(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.FilterPattern = "(["
	_, err := New(cfg, dataset.Disabled(), checker.NewRegistry())
	require.Error(t, err)
}

func TestRunnerMining(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/a">a</a><a href="/b">b</a><a href="https://example.net/">out</a>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	start := srv.URL + "/"
	f := newFixture(t, start)
	f.cfg.SubjectType = model.SubjectTypeURL
	f.cfg.LocalNetwork = true
	f.cfg.Mining = true

	summary, err := f.run(t, context.Background(), WithMinerOptions(miner.WithHTTPClient(srv.Client())))
	require.NoError(t, err)

	assert.True(t, summary.Complete)
	assert.Equal(t, 2, summary.Mined)
	assert.Equal(t, 3, summary.Total)

	var want []string
	for _, raw := range []string{start, srv.URL + "/a", srv.URL + "/b"} {
		want = append(want, model.MustNewSubject(raw).IDNA)
	}
	assert.ElementsMatch(t, want, f.checker.subjects())

	rows, err := dataset.Collect(f.ds.Continue.Store().Content(context.Background()))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunnerMiningNeedsPreload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "example.org")
	f.cfg.Preload = false
	f.cfg.Mining = true

	summary, err := f.run(t, context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Mined)
	assert.Equal(t, []string{"example.org"}, f.checker.subjects())
}

func TestRunnerStopsCheckingWhenProducerFails(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, 200)
	for i := range 200 {
		lines = append(lines, fmt.Sprintf("host%d.example.org", i))
	}
	f := newFixture(t, lines...)
	f.checker.delay = 2 * time.Millisecond
	f.cfg.Preload = false

	// The status files cannot be created under a regular file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	f.cfg.OutputDir = blocker

	summary, err := f.run(t, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer")
	assert.NotErrorIs(t, err, context.Canceled)
	assert.False(t, summary.Complete)

	assert.Less(t, len(f.checker.subjects()), 100)
}
