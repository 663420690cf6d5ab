package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/logging"
)

const (
	DefaultMinRequestSpacing        = 6 * time.Second
	DefaultMaxConcurrent            = 1
	DefaultMaxConsecutiveRateLimits = 3
	DefaultCooldownPeriod           = 60 * time.Second
	DefaultMaxRetries               = 5
	DefaultBaseDelay                = 3 * time.Second
	DefaultDispatchJitter           = 500 * time.Millisecond
	DefaultBackoffJitter            = time.Second
)

// Option is the interface for the options of the scheduler.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

// WithMinRequestSpacing sets the minimum time between two dispatches. Zero disables spacing.
func WithMinRequestSpacing(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.minSpacing = d
	})
}

// WithMaxConcurrent sets how many tasks may run at once. It must be at least 1.
func WithMaxConcurrent(n int) Option {
	return optionFunc(func(o *options) {
		o.maxConcurrent = n
	})
}

// WithMaxConsecutiveRateLimits sets how many consecutive throttle signals trip the cooldown.
// It must be at least 1.
func WithMaxConsecutiveRateLimits(n int) Option {
	return optionFunc(func(o *options) {
		o.maxConsecutive = n
	})
}

// WithCooldownPeriod sets how long dispatch is paused after the cooldown trips.
func WithCooldownPeriod(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.cooldownPeriod = d
	})
}

// WithMaxRetries sets the retry budget of ReportThrottled.
func WithMaxRetries(n int) Option {
	return optionFunc(func(o *options) {
		o.maxRetries = n
	})
}

// WithBaseDelay sets the base of the exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.baseDelay = d
	})
}

// WithDispatchJitter sets the exclusive upper bound of the random delay added to the spacing.
func WithDispatchJitter(bound time.Duration) Option {
	return optionFunc(func(o *options) {
		o.dispatchJitter = bound
	})
}

// WithBackoffJitter sets the exclusive upper bound of the random delay added to the backoff.
func WithBackoffJitter(bound time.Duration) Option {
	return optionFunc(func(o *options) {
		o.backoffJitter = bound
	})
}

// WithClock sets the clock.
func WithClock(clock clockwork.Clock) Option {
	return optionFunc(func(o *options) {
		o.clock = clock
	})
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = logger
	})
}

// WithLogPrefix tags every record logged by the scheduler with a "scheduler" attribute.
func WithLogPrefix(prefix string) Option {
	return optionFunc(func(o *options) {
		o.logPrefix = prefix
	})
}

// WithBaseContext sets the provider of the context that work runs with.
// The default is context.Background.
func WithBaseContext(provider func() context.Context) Option {
	return optionFunc(func(o *options) {
		o.baseContext = provider
	})
}

type options struct {
	minSpacing     time.Duration
	maxConcurrent  int
	maxConsecutive int
	cooldownPeriod time.Duration
	maxRetries     int
	baseDelay      time.Duration
	dispatchJitter time.Duration
	backoffJitter  time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	logPrefix      string
	baseContext    func() context.Context
}

func defaultOptions() options {
	return options{
		minSpacing:     DefaultMinRequestSpacing,
		maxConcurrent:  DefaultMaxConcurrent,
		maxConsecutive: DefaultMaxConsecutiveRateLimits,
		cooldownPeriod: DefaultCooldownPeriod,
		maxRetries:     DefaultMaxRetries,
		baseDelay:      DefaultBaseDelay,
		dispatchJitter: DefaultDispatchJitter,
		backoffJitter:  DefaultBackoffJitter,
		clock:          clockwork.NewRealClock(),
		logger:         logging.NewNope(),
		baseContext:    context.Background,
	}
}

func (o *options) validate() {
	switch {
	case o.maxConcurrent < 1:
		panic("scheduler: max concurrent must be at least 1")
	case o.maxConsecutive < 1:
		panic("scheduler: max consecutive rate limits must be at least 1")
	case o.maxRetries < 0:
		panic("scheduler: max retries must not be negative")
	case o.minSpacing < 0 || o.cooldownPeriod < 0 || o.baseDelay < 0:
		panic("scheduler: durations must not be negative")
	}
}

func (o *options) jitters() (dispatch, backoff *handlecache.Jitter) {
	return &handlecache.Jitter{Max: o.dispatchJitter}, &handlecache.Jitter{Max: o.backoffJitter}
}

// SubmitOption is the interface for the options of a single submission.
type SubmitOption interface {
	applyRequest(*request)
}

type submitOptionFunc func(*request)

func (f submitOptionFunc) applyRequest(r *request) {
	f(r)
}

// WithTimeout bounds the lifetime of the request, measured from submission.
// A request still queued at the deadline is dropped and resolves to nil;
// a running request sees its context canceled.
func WithTimeout(d time.Duration) SubmitOption {
	return submitOptionFunc(func(r *request) {
		r.timeout = d
	})
}
