package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/karupanerura/handle-cache/logging"
	"github.com/karupanerura/handle-cache/scheduler"
)

const waitTimeout = 2 * time.Second

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}

func await(t *testing.T, f *scheduler.Future) any {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), waitTimeout)
	defer cancel()
	v, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("future did not resolve: %v", err)
	}
	return v
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, waiters int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), waitTimeout)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, waiters); err != nil {
		t.Fatalf("expected %d waiters on the clock: %v", waiters, err)
	}
}

func TestScheduler_DispatchesInOrderWithSpacing(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := scheduler.New(
		scheduler.WithClock(clock),
		scheduler.WithMinRequestSpacing(time.Second),
		scheduler.WithDispatchJitter(0),
	)

	type start struct {
		id int
		at time.Time
	}
	starts := make(chan start, 3)
	futures := make([]*scheduler.Future, 3)
	for i := range futures {
		futures[i] = s.Submit(i, func(context.Context, *scheduler.Scheduler) (any, error) {
			starts <- start{id: i, at: clock.Now()}
			return i * 10, nil
		})
	}

	got := []start{receive(t, starts)}
	for len(got) < 3 {
		blockUntil(t, clock, 1)
		clock.Advance(time.Second)
		got = append(got, receive(t, starts))
	}

	for i := range got {
		if got[i].id != i {
			t.Errorf("dispatch #%d ran task %d", i, got[i].id)
		}
		if i > 0 {
			if gap := got[i].at.Sub(got[i-1].at); gap != time.Second {
				t.Errorf("expected 1s between dispatch #%d and #%d, got %v", i-1, i, gap)
			}
		}
	}
	for i, f := range futures {
		if v := await(t, f); v != i*10 {
			t.Errorf("future %d resolved to %v", i, v)
		}
	}
}

func TestScheduler_SpacingJitterBound(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := scheduler.New(
		scheduler.WithClock(clock),
		scheduler.WithMinRequestSpacing(time.Second),
		scheduler.WithDispatchJitter(500*time.Millisecond),
	)

	started := make(chan int, 2)
	for i := range 2 {
		s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
			started <- i
			return nil, nil
		})
	}
	receive(t, started)
	blockUntil(t, clock, 1)

	clock.Advance(time.Second - time.Nanosecond)
	time.Sleep(20 * time.Millisecond)
	if s.QueueLen() != 1 {
		t.Fatal("expected the second task to wait for the spacing")
	}

	clock.Advance(500 * time.Millisecond)
	if id := receive(t, started); id != 1 {
		t.Errorf("expected task 1, got %d", id)
	}
}

func TestScheduler_MaxConcurrent(t *testing.T) {
	t.Parallel()

	s := scheduler.New(
		scheduler.WithMinRequestSpacing(0),
		scheduler.WithMaxConcurrent(2),
	)

	started := make(chan int, 3)
	release := make(chan struct{})
	for i := range 3 {
		s.Submit(i, func(context.Context, *scheduler.Scheduler) (any, error) {
			started <- i
			<-release
			return nil, nil
		})
	}

	first := map[int]bool{receive(t, started): true, receive(t, started): true}
	if diff := cmp.Diff(map[int]bool{0: true, 1: true}, first); diff != "" {
		t.Errorf("unexpected first tasks (-want +got):\n%s", diff)
	}
	select {
	case id := <-started:
		t.Fatalf("task %d started before a slot was free", id)
	case <-time.After(20 * time.Millisecond):
	}
	if s.Active() != 2 || s.QueueLen() != 1 {
		t.Errorf("expected 2 active and 1 queued, got %d and %d", s.Active(), s.QueueLen())
	}

	release <- struct{}{}
	if id := receive(t, started); id != 2 {
		t.Errorf("expected task 2 to start, got %d", id)
	}
	close(release)
}

func TestScheduler_FailingTaskResolvesNil(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, w: &buf}, nil))
	s := scheduler.New(
		scheduler.WithMinRequestSpacing(0),
		scheduler.WithLogger(logger),
	)

	failing := s.Submit("failing", func(context.Context, *scheduler.Scheduler) (any, error) {
		return "partial", errors.New("upstream error")
	})
	panicking := s.Submit("panicking", func(context.Context, *scheduler.Scheduler) (any, error) {
		panic("boom")
	})
	ok := s.Submit("ok", func(context.Context, *scheduler.Scheduler) (any, error) {
		return "done", nil
	})

	if v := await(t, failing); v != nil {
		t.Errorf("expected nil from the failing task, got %v", v)
	}
	if v := await(t, panicking); v != nil {
		t.Errorf("expected nil from the panicking task, got %v", v)
	}
	if v := await(t, ok); v != "done" {
		t.Errorf("expected done, got %v", v)
	}

	stats := s.Stats()
	if stats.Failed != 2 || stats.Completed != 1 || stats.Throttled != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if s.ConsecutiveThrottles() != 0 {
		t.Error("a failing task must not count as a throttle")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Count(buf.String(), `level=WARN msg="scheduled task failed"`); got != 2 {
		t.Errorf("expected 2 warnings, got %d in %q", got, buf.String())
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func TestScheduler_Cooldown(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := scheduler.New(
		scheduler.WithClock(clock),
		scheduler.WithMinRequestSpacing(0),
		scheduler.WithMaxConsecutiveRateLimits(3),
		scheduler.WithCooldownPeriod(time.Minute),
		scheduler.WithBaseDelay(0),
		scheduler.WithBackoffJitter(0),
	)
	ctx := t.Context()

	for attempt := range 2 {
		next, err := s.ReportThrottled(ctx, "messages", 0, attempt)
		if err != nil {
			t.Fatal(err)
		}
		if next != attempt+1 {
			t.Errorf("expected next attempt %d, got %d", attempt+1, next)
		}
	}
	next, err := s.ReportThrottled(ctx, "messages", 0, 2)
	if !errors.Is(err, scheduler.ErrCooldown) || next != scheduler.DefaultMaxRetries {
		t.Fatalf("expected (%d, ErrCooldown), got (%d, %v)", scheduler.DefaultMaxRetries, next, err)
	}
	if s.State() != scheduler.StateCooldown {
		t.Fatalf("expected cooldown, got %s", s.State())
	}

	if _, err := s.ReportThrottled(ctx, "messages", 0, 0); !errors.Is(err, scheduler.ErrCooldown) {
		t.Errorf("expected signals during cooldown to be answered with ErrCooldown, got %v", err)
	}
	if s.ConsecutiveThrottles() != 3 {
		t.Errorf("expected signals during cooldown to be ignored, got %d", s.ConsecutiveThrottles())
	}

	f := s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
		return "resumed", nil
	})
	blockUntil(t, clock, 1)
	clock.Advance(time.Minute - time.Second)
	time.Sleep(20 * time.Millisecond)
	if _, done := f.Value(); done || s.QueueLen() != 1 || s.Active() != 0 {
		t.Fatal("expected nothing to be dispatched during cooldown")
	}

	clock.Advance(time.Second)
	if v := await(t, f); v != "resumed" {
		t.Errorf("expected resumed, got %v", v)
	}
	if s.State() != scheduler.StateNormal {
		t.Errorf("expected normal state, got %s", s.State())
	}
	if s.ConsecutiveThrottles() != 0 {
		t.Errorf("expected the counter to be reset, got %d", s.ConsecutiveThrottles())
	}

	stats := s.Stats()
	want := scheduler.Stats{
		Submitted:  1,
		Dispatched: 1,
		Completed:  1,
		Throttled:  3,
		Ignored:    1,
		Cooldowns:  1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}
}

func TestScheduler_RecordSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	s := scheduler.New(
		scheduler.WithMaxConsecutiveRateLimits(3),
		scheduler.WithBaseDelay(0),
		scheduler.WithBackoffJitter(0),
	)

	s.RecordSuccess()
	for range 2 {
		for attempt := range 2 {
			if _, err := s.ReportThrottled(t.Context(), "messages", 0, attempt); err != nil {
				t.Fatal(err)
			}
		}
		s.RecordSuccess()
		if s.ConsecutiveThrottles() != 0 {
			t.Fatalf("expected the counter to be reset, got %d", s.ConsecutiveThrottles())
		}
	}
	if s.State() != scheduler.StateNormal {
		t.Errorf("expected normal state, got %s", s.State())
	}
}

func TestScheduler_ReportThrottledWaits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryAfter time.Duration
		attempt    int
		wantDelay  time.Duration
	}{
		{name: "exponential backoff", attempt: 2, wantDelay: 4 * time.Second},
		{name: "first attempt", attempt: 0, wantDelay: time.Second},
		{name: "retry after", retryAfter: 7 * time.Second, attempt: 3, wantDelay: 7 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := clockwork.NewFakeClock()
			s := scheduler.New(
				scheduler.WithClock(clock),
				scheduler.WithBaseDelay(time.Second),
				scheduler.WithBackoffJitter(0),
				scheduler.WithMaxConsecutiveRateLimits(10),
			)

			type result struct {
				next int
				err  error
			}
			done := make(chan result, 1)
			go func() {
				next, err := s.ReportThrottled(t.Context(), "messages", tt.retryAfter, tt.attempt)
				done <- result{next, err}
			}()

			blockUntil(t, clock, 1)
			clock.Advance(tt.wantDelay - time.Nanosecond)
			select {
			case r := <-done:
				t.Fatalf("returned before the delay elapsed: %+v", r)
			case <-time.After(20 * time.Millisecond):
			}

			clock.Advance(time.Nanosecond)
			r := receive(t, done)
			if r.err != nil || r.next != tt.attempt+1 {
				t.Errorf("expected (%d, nil), got (%d, %v)", tt.attempt+1, r.next, r.err)
			}
		})
	}
}

func TestScheduler_ReportThrottledCanceled(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := scheduler.New(scheduler.WithClock(clock), scheduler.WithBackoffJitter(0))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := s.ReportThrottled(ctx, "messages", 0, 0)
		done <- err
	}()
	blockUntil(t, clock, 1)
	cancel()

	if err := receive(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScheduler_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := scheduler.New(
		scheduler.WithMaxRetries(2),
		scheduler.WithMaxConsecutiveRateLimits(10),
		scheduler.WithLogger(logging.New(&buf, slog.LevelInfo)),
		scheduler.WithLogPrefix("discord"),
	)

	next, err := s.ReportThrottled(t.Context(), "webhook:create", 0, 2)
	if !errors.Is(err, scheduler.ErrRetriesExhausted) || next != 2 {
		t.Fatalf("expected (2, ErrRetriesExhausted), got (%d, %v)", next, err)
	}
	if s.Stats().RetriesExhausted != 1 {
		t.Errorf("expected the give-up to be counted, got %+v", s.Stats())
	}
	for _, want := range []string{`"level":"ERROR"`, `"resource":"webhook:create"`, `"scheduler":"discord"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %s in %q", want, buf.String())
		}
	}
}

func TestScheduler_RequestContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(logging.NewHandler(
		slog.NewJSONHandler(&lockedWriter{mu: &mu, w: &buf}, nil),
		scheduler.RequestContextExtractor,
	))
	s := scheduler.New(scheduler.WithMinRequestSpacing(0))

	if _, ok := s.CurrentRequestContext(); ok {
		t.Error("expected no current request while idle")
	}

	type seen struct {
		current, carried any
	}
	v, err := scheduler.Do(t.Context(), s, "personality:42", func(ctx context.Context, s *scheduler.Scheduler) (seen, error) {
		current, _ := s.CurrentRequestContext()
		carried, _ := scheduler.RequestContext(ctx)
		logger.InfoContext(ctx, "calling api")
		return seen{current: current, carried: carried}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(seen{current: "personality:42", carried: "personality:42"}, v, cmp.AllowUnexported(seen{})); diff != "" {
		t.Errorf("unexpected request contexts (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), `"request":"personality:42"`) {
		t.Errorf("expected the request context in the log, got %q", buf.String())
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.WithMinRequestSpacing(0))

	t.Run("value", func(t *testing.T) {
		t.Parallel()

		v, err := scheduler.Do(t.Context(), s, nil, func(context.Context, *scheduler.Scheduler) (int, error) {
			return 42, nil
		})
		if err != nil || v != 42 {
			t.Errorf("expected (42, nil), got (%d, %v)", v, err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		if _, err := scheduler.Do(t.Context(), s, nil, func(context.Context, *scheduler.Scheduler) (int, error) {
			return 0, errBoom
		}); !errors.Is(err, errBoom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()

		_, err := scheduler.Do(t.Context(), s, nil, func(context.Context, *scheduler.Scheduler) (int, error) {
			panic("boom")
		})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("expected the panic as an error, got %v", err)
		}
	})
}

func TestScheduler_SubmitTimeout(t *testing.T) {
	t.Parallel()

	t.Run("queued", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		s := scheduler.New(scheduler.WithClock(clock), scheduler.WithMinRequestSpacing(0))

		release := make(chan struct{})
		defer close(release)
		s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
			<-release
			return nil, nil
		})

		ran := make(chan struct{}, 1)
		f := s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
			ran <- struct{}{}
			return "late", nil
		}, scheduler.WithTimeout(5*time.Second))

		blockUntil(t, clock, 1)
		clock.Advance(5 * time.Second)
		if v := await(t, f); v != nil {
			t.Errorf("expected a timed out request to resolve to nil, got %v", v)
		}
		if s.QueueLen() != 0 || s.Stats().TimedOut != 1 {
			t.Errorf("expected the request to leave the queue, got %d queued and %+v", s.QueueLen(), s.Stats())
		}
		select {
		case <-ran:
			t.Error("timed out work must not run")
		default:
		}
	})

	t.Run("running", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		s := scheduler.New(scheduler.WithClock(clock), scheduler.WithMinRequestSpacing(0))

		errs := make(chan error, 1)
		f := s.Submit(nil, func(ctx context.Context, _ *scheduler.Scheduler) (any, error) {
			<-ctx.Done()
			errs <- ctx.Err()
			return nil, ctx.Err()
		}, scheduler.WithTimeout(5*time.Second))

		blockUntil(t, clock, 1)
		clock.Advance(5 * time.Second)
		if err := receive(t, errs); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if v := await(t, f); v != nil {
			t.Errorf("expected nil, got %v", v)
		}
	})
}

func TestScheduler_Close(t *testing.T) {
	t.Parallel()

	s := scheduler.New(scheduler.WithMinRequestSpacing(0))

	started := make(chan struct{})
	release := make(chan struct{})
	running := s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
		close(started)
		<-release
		return "finished", nil
	})
	<-started
	queued := s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
		return "never", nil
	})

	closed := make(chan error, 1)
	go func() {
		closed <- s.Close(t.Context())
	}()

	if v := await(t, queued); v != nil {
		t.Errorf("expected the queued request to resolve to nil, got %v", v)
	}
	select {
	case err := <-closed:
		t.Fatalf("Close returned before running work finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := receive(t, closed); err != nil {
		t.Fatal(err)
	}
	if v := await(t, running); v != "finished" {
		t.Errorf("expected running work to finish, got %v", v)
	}

	late := s.Submit(nil, func(context.Context, *scheduler.Scheduler) (any, error) {
		return "late", nil
	})
	if v, done := late.Value(); !done || v != nil {
		t.Errorf("expected a request submitted after Close to resolve to nil, got (%v, %v)", v, done)
	}
	if got := s.Stats().Dropped; got != 2 {
		t.Errorf("expected 2 dropped requests, got %d", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for state, want := range map[scheduler.State]string{
		scheduler.StateNormal:   "normal",
		scheduler.StateCooldown: "cooldown",
		scheduler.State(9):      "unknown",
	} {
		if got := fmt.Sprint(state); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	tests := map[string]scheduler.Option{
		"max concurrent":   scheduler.WithMaxConcurrent(0),
		"max consecutive":  scheduler.WithMaxConsecutiveRateLimits(0),
		"max retries":      scheduler.WithMaxRetries(-1),
		"negative spacing": scheduler.WithMinRequestSpacing(-time.Second),
	}
	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic, but did not panic")
				}
			}()
			scheduler.New(opt)
		})
	}
}
