package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/internal/panicutil"
	"github.com/karupanerura/handle-cache/logging"
)

// Work is a unit of work run by the scheduler. The context carries the request context
// of the submission; see RequestContext.
type Work func(ctx context.Context, s *Scheduler) (any, error)

// State is the dispatch state of a scheduler.
type State int

const (
	// StateNormal dispatches queued work.
	StateNormal State = iota
	// StateCooldown dispatches nothing until the cooldown period elapses.
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

type request struct {
	reqCtx   any
	work     Work
	future   *Future
	timeout  time.Duration
	deadline time.Time
	timer    clockwork.Timer
}

// Scheduler is a FIFO work queue paced for a single rate-limited API.
// It is safe for concurrent use.
type Scheduler struct {
	options        options
	logger         *slog.Logger
	dispatchJitter *handlecache.Jitter
	backoffJitter  *handlecache.Jitter
	ignoredLog     rate.Sometimes
	stats          counters

	mu            sync.Mutex
	queue         []*request
	running       []*request
	active        int
	lastDispatch  time.Time
	nextGap       time.Duration
	throttles     int
	cooldown      bool
	wake          clockwork.Timer
	cooldownTimer clockwork.Timer
	closed        bool
	wg            conc.WaitGroup
}

// New creates a new scheduler in the normal state.
// It panics if maxConcurrent or maxConsecutiveRateLimits is less than 1,
// or if maxRetries or a duration is negative.
func New(opts ...Option) *Scheduler {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}
	options.validate()

	logger := options.logger
	if options.logPrefix != "" {
		logger = logger.With(slog.String("scheduler", options.logPrefix))
	}
	dispatchJitter, backoffJitter := options.jitters()
	return &Scheduler{
		options:        options,
		logger:         logger,
		dispatchJitter: dispatchJitter,
		backoffJitter:  backoffJitter,
		ignoredLog:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Submit enqueues the work and returns its future. It never fails: if the work returns
// an error or panics, the failure is logged and the future resolves to nil.
func (s *Scheduler) Submit(reqCtx any, work Work, opts ...SubmitOption) *Future {
	r := &request{reqCtx: reqCtx, work: work, future: newFuture()}
	for _, o := range opts {
		o.applyRequest(r)
	}
	s.stats.submitted.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.stats.dropped.Add(1)
		s.logger.WarnContext(s.requestContext(r), "scheduler is closed, dropping request")
		r.future.resolve(nil)
		return r.future
	}
	if r.timeout > 0 {
		r.deadline = s.options.clock.Now().Add(r.timeout)
		r.timer = s.options.clock.AfterFunc(r.timeout, func() {
			s.expire(r)
		})
	}
	s.queue = append(s.queue, r)
	s.dispatchLocked()
	return r.future
}

// Do submits fn and waits for its result. Unlike Submit, the error of fn (or a panic
// converted to an error) is returned to the caller; the scheduler logs it as well.
// If ctx is done first, Do returns the error of ctx and the work keeps its place in the queue.
func Do[T any](ctx context.Context, s *Scheduler, reqCtx any, fn func(ctx context.Context, s *Scheduler) (T, error), opts ...SubmitOption) (T, error) {
	var (
		value T
		err   error
	)
	f := s.Submit(reqCtx, func(ctx context.Context, s *Scheduler) (any, error) {
		err = panicutil.Run(func() (err error) {
			value, err = fn(ctx, s)
			return
		})
		return value, err
	}, opts...)

	if _, awaitErr := f.Await(ctx); awaitErr != nil {
		var zero T
		return zero, awaitErr
	}
	return value, err
}

func (s *Scheduler) requestContext(r *request) context.Context {
	return withRequestContext(s.options.baseContext(), r.reqCtx)
}

// dispatchLocked starts queued work while it is eligible, and otherwise
// arms the wake timer for the remaining spacing. The caller must hold s.mu.
func (s *Scheduler) dispatchLocked() {
	for len(s.queue) > 0 && !s.cooldown && !s.closed && s.active < s.options.maxConcurrent {
		now := s.options.clock.Now()
		if !s.lastDispatch.IsZero() {
			if wait := s.lastDispatch.Add(s.nextGap).Sub(now); wait > 0 {
				s.armWakeLocked(wait)
				return
			}
		}

		r := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if r.timer != nil {
			r.timer.Stop()
		}

		s.active++
		s.running = append(s.running, r)
		s.lastDispatch = now
		s.nextGap = s.options.minSpacing
		if s.nextGap > 0 {
			s.nextGap += s.dispatchJitter.Duration()
		}
		s.stats.dispatched.Add(1)
		s.wg.Go(func() {
			s.run(r)
		})
	}
}

func (s *Scheduler) armWakeLocked(wait time.Duration) {
	if s.wake != nil {
		s.wake.Stop()
	}
	s.wake = s.options.clock.AfterFunc(wait, s.wakeUp)
}

func (s *Scheduler) wakeUp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispatchLocked()
}

func (s *Scheduler) run(r *request) {
	ctx := s.requestContext(r)
	if !r.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = clockwork.WithDeadline(ctx, s.options.clock, r.deadline)
		defer cancel()
	}

	guard := panicutil.Guard{
		OnGoexit: func() {
			s.stats.failed.Add(1)
			s.logger.WarnContext(ctx, "scheduled task exited without returning")
			s.finish(r)
			r.future.resolve(nil)
		},
	}

	var value any
	err := guard.Run(func() (err error) {
		value, err = r.work(ctx, s)
		return
	})
	if err != nil {
		s.stats.failed.Add(1)
		s.logger.WarnContext(ctx, "scheduled task failed", logging.Error(err))
		value = nil
	} else {
		s.stats.completed.Add(1)
	}

	s.finish(r)
	r.future.resolve(value)
}

func (s *Scheduler) finish(r *request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	if i := slices.Index(s.running, r); i >= 0 {
		s.running = slices.Delete(s.running, i, i+1)
	}
	s.dispatchLocked()
}

// expire drops the request if it is still queued.
func (s *Scheduler) expire(r *request) {
	s.mu.Lock()
	i := slices.Index(s.queue, r)
	if i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
	}
	s.mu.Unlock()
	if i < 0 {
		return
	}

	s.stats.timedOut.Add(1)
	s.logger.WarnContext(s.requestContext(r), "request timed out before dispatch", slog.Duration("timeout", r.timeout))
	r.future.resolve(nil)
}

// CurrentRequestContext returns the request context of the most recently dispatched
// work that is still running, or false if nothing is running.
func (s *Scheduler) CurrentRequestContext() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.running) == 0 {
		return nil, false
	}
	return s.running[len(s.running)-1].reqCtx, true
}

// State returns the current dispatch state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldown {
		return StateCooldown
	}
	return StateNormal
}

// QueueLen returns the number of requests waiting for dispatch.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Active returns the number of running tasks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Close stops dispatching, resolves every queued request to nil and waits for running
// work to finish or for ctx to be done. Submit resolves new requests to nil afterwards.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	queued := s.queue
	s.queue = nil
	for _, t := range []clockwork.Timer{s.wake, s.cooldownTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.mu.Unlock()

	for _, r := range queued {
		if r.timer != nil {
			r.timer.Stop()
		}
		s.stats.dropped.Add(1)
		r.future.resolve(nil)
	}
	if len(queued) > 0 {
		s.logger.WarnContext(ctx, "dropped queued requests on close", slog.Int("dropped", len(queued)))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
