package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// drainQueue pops everything currently queued without waiting.
func drainQueue(q *Queue) []any {
	var got []any
	for {
		msg, ok := q.pop()
		if !ok {
			return got
		}
		got = append(got, msg)
	}
}

// collectUntilStop reads q until the stop sentinel or the deadline.
func collectUntilStop(t *testing.T, q *Queue) []any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []any
	for {
		msg, ok, err := q.Get(ctx, 0)
		if err != nil {
			t.Fatalf("queue read failed: %v (collected %v)", err, got)
		}
		if !ok {
			continue
		}
		got = append(got, msg)
		if IsStop(msg) {
			return got
		}
	}
}

func TestQueue(t *testing.T) {
	t.Parallel()

	t.Run("preserves FIFO order", func(t *testing.T) {
		t.Parallel()

		q := NewQueue()
		for i := range 5 {
			q.Put(i)
		}

		if q.Len() != 5 {
			t.Fatalf("expected 5 items, got %d", q.Len())
		}

		want := []any{0, 1, 2, 3, 4}
		if diff := cmp.Diff(want, drainQueue(q)); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Get times out on an empty queue", func(t *testing.T) {
		t.Parallel()

		q := NewQueue()
		msg, ok, err := q.Get(context.Background(), 10*time.Millisecond)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok || msg != nil {
			t.Errorf("expected timeout, got %v", msg)
		}
	})

	t.Run("Get returns the context error", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := NewQueue().Get(ctx, time.Second)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Get wakes up on Put", func(t *testing.T) {
		t.Parallel()

		q := NewQueue()
		done := make(chan any)
		go func() {
			msg, _, _ := q.Get(context.Background(), 0)
			done <- msg
		}()

		q.Put("example.org")

		select {
		case msg := <-done:
			if msg != "example.org" {
				t.Errorf("expected example.org, got %v", msg)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Get did not wake up")
		}
	})
}

func TestIsStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  any
		want bool
	}{
		{name: "sentinel", msg: "stop", want: true},
		{name: "other string", msg: "STOP", want: false},
		{name: "non string", msg: 42, want: false},
		{name: "nil", msg: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsStop(tt.msg); got != tt.want {
				t.Errorf("IsStop(%v) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestWorkerStart(t *testing.T) {
	t.Parallel()

	w := New("echo", nil, ProcessorFunc(func(context.Context, any, Emitter) error { return nil }),
		WithPollInterval(5*time.Millisecond))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	w.SendStopSignal()
	if err := w.Wait(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWorkerWaitNotStarted(t *testing.T) {
	t.Parallel()

	w := New("idle", nil, ProcessorFunc(func(context.Context, any, Emitter) error { return nil }))
	if err := w.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestWorkerForwardsAndRelaysStopOnce(t *testing.T) {
	t.Parallel()

	out1 := NewQueue()
	out2 := NewQueue()

	double := ProcessorFunc(func(_ context.Context, msg any, emit Emitter) error {
		emit(msg.(int) * 2)
		return nil
	})

	w := New("double", nil, double, WithOutputs(out1, out2), WithPollInterval(5*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		w.AddToQueue(i)
	}
	w.SendStopSignal()

	if err := w.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []any{2, 4, 6, StopSignal}
	for name, q := range map[string]*Queue{"out1": out1, "out2": out2} {
		if diff := cmp.Diff(want, drainQueue(q)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

// countingDrainer records the order of drain relative to processing.
type countingDrainer struct {
	processed atomic.Int32
	drainedAt atomic.Int32
}

func (c *countingDrainer) Process(context.Context, any, Emitter) error {
	c.processed.Add(1)
	return nil
}

func (c *countingDrainer) Drain(context.Context) error {
	c.drainedAt.Store(c.processed.Load())
	return nil
}

func TestWorkerDrainsBeforeRelay(t *testing.T) {
	t.Parallel()

	out := NewQueue()
	proc := &countingDrainer{}
	w := New("drainer", nil, proc, WithOutputs(out), WithPollInterval(5*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	w.AddToQueue("a")
	w.AddToQueue("b")
	w.SendStopSignal()

	got := collectUntilStop(t, out)
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]any{StopSignal}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if proc.drainedAt.Load() != 2 {
		t.Errorf("expected drain after 2 items, got %d", proc.drainedAt.Load())
	}
}

func TestWorkerSurfacesErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	t.Run("processor error", func(t *testing.T) {
		t.Parallel()

		out := NewQueue()
		calls := atomic.Int32{}
		proc := ProcessorFunc(func(context.Context, any, Emitter) error {
			calls.Add(1)
			return errBoom
		})

		w := New("failing", nil, proc, WithOutputs(out), WithPollInterval(5*time.Millisecond))
		if err := w.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		w.AddToQueue("x")
		w.AddToQueue("y")

		if err := w.Wait(); !errors.Is(err, errBoom) {
			t.Errorf("expected errBoom, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected the loop to stop after the first error, got %d calls", calls.Load())
		}
		if diff := cmp.Diff([]any{StopSignal}, drainQueue(out)); diff != "" {
			t.Errorf("stop must still be relayed (-want +got):\n%s", diff)
		}
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()

		out := NewQueue()
		proc := ProcessorFunc(func(context.Context, any, Emitter) error {
			panic("unexpected payload")
		})

		w := New("panicking", nil, proc, WithOutputs(out), WithPollInterval(5*time.Millisecond))
		if err := w.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		w.AddToQueue("x")

		if err := w.Wait(); !errors.Is(err, ErrPanic) {
			t.Errorf("expected ErrPanic, got %v", err)
		}
		if diff := cmp.Diff([]any{StopSignal}, drainQueue(out)); diff != "" {
			t.Errorf("stop must still be relayed (-want +got):\n%s", diff)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()

		out := NewQueue()
		ctx, cancel := context.WithCancel(context.Background())
		w := New("cancelled", nil, ProcessorFunc(func(context.Context, any, Emitter) error { return nil }),
			WithOutputs(out), WithPollInterval(5*time.Millisecond))
		if err := w.Start(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()

		if err := w.Wait(); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if diff := cmp.Diff([]any{StopSignal}, drainQueue(out)); diff != "" {
			t.Errorf("stop must still be relayed (-want +got):\n%s", diff)
		}
	})

	t.Run("cancellation skips queued work", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		w := New("skipping", nil, ProcessorFunc(func(context.Context, any, Emitter) error {
			calls.Add(1)
			return nil
		}), WithPollInterval(5*time.Millisecond))

		for i := range 10 {
			w.AddToQueue(i)
		}
		cancel()
		if err := w.Start(ctx); err != nil {
			t.Fatal(err)
		}

		if err := w.Wait(); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if n := calls.Load(); n != 0 {
			t.Errorf("processed %d messages after cancellation, want 0", n)
		}
	})
}

func TestWorkerChain(t *testing.T) {
	t.Parallel()

	sink := NewQueue()
	second := New("second", nil, ProcessorFunc(func(_ context.Context, msg any, emit Emitter) error {
		emit(msg.(string) + "!")
		return nil
	}), WithOutputs(sink), WithPollInterval(5*time.Millisecond))

	first := New("first", nil, ProcessorFunc(func(_ context.Context, msg any, emit Emitter) error {
		emit(msg)
		return nil
	}), WithOutputs(second.Input()), WithPollInterval(5*time.Millisecond))

	ctx := context.Background()
	for _, w := range []*Worker{first, second} {
		if err := w.Start(ctx); err != nil {
			t.Fatal(err)
		}
	}

	first.AddToQueue("a")
	first.AddToQueue("b")
	first.SendStopSignal()

	got := collectUntilStop(t, sink)
	if err := errors.Join(first.Wait(), second.Wait()); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]any{"a!", "b!", StopSignal}, got); diff != "" {
		t.Errorf("chain output mismatch (-want +got):\n%s", diff)
	}
}
