package pool

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/expiration"
	"github.com/karupanerura/handle-cache/logging"
)

// Factory builds a new handle. It may perform network calls.
type Factory[H handlecache.Handle] func(ctx context.Context) (H, error)

// Deriver builds the handle for childKey from the parent handle without a creation round-trip.
// The returned handle must be closable without closing the parent.
type Deriver[K handlecache.KeyConstraint, H handlecache.Handle] func(ctx context.Context, parentKey K, parent H, childKey K) (H, error)

// Option is the interface for the options of the pool.
type Option[K handlecache.KeyConstraint, H handlecache.Handle] interface {
	apply(*options[K, H])
}

type optionFunc[K handlecache.KeyConstraint, H handlecache.Handle] func(*options[K, H])

func (f optionFunc[K, H]) apply(o *options[K, H]) {
	f(o)
}

// WithTTL sets the maximum age of cached handles. Zero or negative disables expiry.
func WithTTL[K handlecache.KeyConstraint, H handlecache.Handle](ttl time.Duration) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.ttl = ttl
	})
}

// WithExpirationPolicy sets the policy deciding whether a handle is expired.
func WithExpirationPolicy[K handlecache.KeyConstraint, H handlecache.Handle](policy expiration.Policy) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.policy = policy
	})
}

// WithClock sets the clock used to timestamp and age handles.
func WithClock[K handlecache.KeyConstraint, H handlecache.Handle](clock handlecache.Clock) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.clock = clock
	})
}

// WithLogger sets the logger. The default discards everything.
func WithLogger[K handlecache.KeyConstraint, H handlecache.Handle](logger *slog.Logger) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.logger = logger
	})
}

// WithDeriver sets the function building derived handles.
func WithDeriver[K handlecache.KeyConstraint, H handlecache.Handle](deriver Deriver[K, H]) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.deriver = deriver
	})
}

// WithSingleFlight makes concurrent Acquire calls for the same missing key share one build.
func WithSingleFlight[K handlecache.KeyConstraint, H handlecache.Handle]() Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.singleFlight = true
	})
}

// WithParallelism sets how many handles AcquireAll builds at once.
// The default is runtime.GOMAXPROCS(0). Zero or negative means no limit.
func WithParallelism[K handlecache.KeyConstraint, H handlecache.Handle](n int) Option[K, H] {
	return optionFunc[K, H](func(o *options[K, H]) {
		o.parallelism = n
	})
}

type options[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	ttl          time.Duration
	policy       expiration.Policy
	clock        handlecache.Clock
	logger       *slog.Logger
	deriver      Deriver[K, H]
	singleFlight bool
	parallelism  int
}

func defaultOptions[K handlecache.KeyConstraint, H handlecache.Handle]() options[K, H] {
	return options[K, H]{
		policy:      expiration.GeneralPolicy{},
		clock:       handlecache.SystemClock,
		logger:      logging.NewNope(),
		parallelism: runtime.GOMAXPROCS(0),
	}
}
