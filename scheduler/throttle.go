package scheduler

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// maxBackoffShift caps the exponent of the backoff.
const maxBackoffShift = 30

// RecordSuccess resets the consecutive throttle counter.
func (s *Scheduler) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.throttles = 0
}

// ConsecutiveThrottles returns the number of throttle signals since the last success.
func (s *Scheduler) ConsecutiveThrottles() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.throttles
}

// ReportThrottled records a throttled response for the resource and decides whether the
// caller should retry. attempt is the zero-based number of the attempt that was throttled.
//
// When the signal makes the consecutive throttle count reach the configured maximum, the
// scheduler enters the cooldown state and ReportThrottled returns maxRetries and
// ErrCooldown without waiting. Signals arriving during cooldown are not counted and get
// the same answer. When attempt+1 exceeds maxRetries, it returns maxRetries and
// ErrRetriesExhausted. Otherwise it waits retryAfter, or baseDelay*2^attempt plus jitter
// if retryAfter is not positive, and returns attempt+1.
// If ctx is done while waiting, it returns maxRetries and the error of ctx.
func (s *Scheduler) ReportThrottled(ctx context.Context, resource string, retryAfter time.Duration, attempt int) (int, error) {
	maxRetries := s.options.maxRetries

	s.mu.Lock()
	if s.cooldown {
		s.mu.Unlock()
		s.stats.ignored.Add(1)
		s.ignoredLog.Do(func() {
			s.logger.InfoContext(ctx, "ignoring throttle signal during cooldown", slog.String("resource", resource))
		})
		return maxRetries, ErrCooldown
	}

	s.stats.throttled.Add(1)
	s.throttles++
	consecutive := s.throttles
	if consecutive >= s.options.maxConsecutive {
		s.enterCooldownLocked()
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "too many consecutive rate limits, pausing dispatch",
			slog.String("resource", resource),
			slog.Int("consecutive", consecutive),
			slog.Duration("cooldown", s.options.cooldownPeriod),
		)
		return maxRetries, ErrCooldown
	}
	s.mu.Unlock()

	if attempt+1 > maxRetries {
		s.stats.retriesExhausted.Add(1)
		s.logger.ErrorContext(ctx, "giving up after exhausting retries",
			slog.String("resource", resource),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
		)
		return maxRetries, ErrRetriesExhausted
	}

	delay := retryAfter
	if delay <= 0 {
		delay = s.backoff(attempt)
	}
	s.logger.WarnContext(ctx, "rate limited, retrying after delay",
		slog.String("resource", resource),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
	)
	if err := s.sleep(ctx, delay); err != nil {
		return maxRetries, err
	}
	return attempt + 1, nil
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	shift := min(max(attempt, 0), maxBackoffShift)
	d := s.options.baseDelay << shift
	if d>>shift != s.options.baseDelay {
		return math.MaxInt64
	}
	return d + s.backoffJitter.Duration()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := s.options.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enterCooldownLocked pauses dispatch for the cooldown period. The caller must hold s.mu.
// Work that is already running is not interrupted.
func (s *Scheduler) enterCooldownLocked() {
	s.cooldown = true
	s.stats.cooldowns.Add(1)
	if s.wake != nil {
		s.wake.Stop()
		s.wake = nil
	}
	s.cooldownTimer = s.options.clock.AfterFunc(s.options.cooldownPeriod, s.leaveCooldown)
}

func (s *Scheduler) leaveCooldown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cooldown = false
	s.cooldownTimer = nil
	s.throttles = 0
	s.logger.Info("cooldown finished, resuming dispatch", slog.Int("queued", len(s.queue)))
	s.dispatchLocked()
}
