package sweeper

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	handlecache "github.com/karupanerura/handle-cache"
)

// IntervalSweeper calls SweepExpired on the target at a fixed interval.
type IntervalSweeper struct {
	target   handlecache.Sweeper
	interval time.Duration
	clock    clockwork.Clock
	onSweep  func(removed int)
}

// Option configures an IntervalSweeper.
type Option func(*IntervalSweeper)

// WithClock sets the clock driving the interval.
func WithClock(clock clockwork.Clock) Option {
	return func(s *IntervalSweeper) {
		s.clock = clock
	}
}

// WithOnSweep sets a callback invoked after every sweep with the number of removed entries.
func WithOnSweep(f func(removed int)) Option {
	return func(s *IntervalSweeper) {
		s.onSweep = f
	}
}

// NewIntervalSweeper creates a new IntervalSweeper. The interval must be positive.
func NewIntervalSweeper(target handlecache.Sweeper, interval time.Duration, opts ...Option) *IntervalSweeper {
	if interval <= 0 {
		panic("sweeper: interval must be positive")
	}
	s := &IntervalSweeper{
		target:   target,
		interval: interval,
		clock:    clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Launch starts the background sweeper.
// The sweeper stops when the context is canceled.
func (s *IntervalSweeper) Launch(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	go s.poll(ctx, ticker)
}

func (s *IntervalSweeper) poll(ctx context.Context, ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.Chan():
			removed := s.target.SweepExpired()
			if s.onSweep != nil {
				s.onSweep(removed)
			}
		}
	}
}
