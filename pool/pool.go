package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/internal/panicutil"
	"github.com/karupanerura/handle-cache/logging"
	"github.com/karupanerura/handle-cache/lrucache"
)

type resource[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	id        uuid.UUID
	key       K
	origin    Origin[K]
	handle    H
	createdAt time.Time
	closeOnce sync.Once
}

// Info describes a cached handle.
type Info[K handlecache.KeyConstraint] struct {
	// ID identifies this build of the handle. A rebuilt handle gets a new ID.
	ID uuid.UUID

	// Key is the key the handle is cached under.
	Key K

	// Origin tells whether the handle was built by the factory or derived from a parent.
	Origin Origin[K]

	// CreatedAt is the time the handle was cached.
	CreatedAt time.Time
}

// Request is an item of AcquireAll.
type Request[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	Key     K
	Factory Factory[H]
	Origin  Origin[K]
}

// Pool is a keyed cache of handles. It is safe for concurrent use.
type Pool[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	cache   *lrucache.Cache[K, *resource[K, H]]
	flights *flightGroup[K, H]
	options options[K, H]
	closed  atomic.Bool
}

var (
	_ handlecache.Sweeper = (*Pool[uint8, handlecache.Handle])(nil)
	_ handlecache.Handle  = (*Pool[uint8, handlecache.Handle])(nil)
)

// New creates a new pool holding at most maxSize handles.
// It returns an error wrapping lrucache.ErrInvalidMaxSize if maxSize is not positive.
func New[K handlecache.KeyConstraint, H handlecache.Handle](maxSize int, opts ...Option[K, H]) (*Pool[K, H], error) {
	options := defaultOptions[K, H]()
	for _, opt := range opts {
		opt.apply(&options)
	}

	p := &Pool[K, H]{options: options}
	if options.singleFlight {
		p.flights = newFlightGroup[K, H]()
	}

	cache, err := lrucache.New(maxSize,
		lrucache.WithTTL[K, *resource[K, H]](options.ttl),
		lrucache.WithExpirationPolicy[K, *resource[K, H]](options.policy),
		lrucache.WithClock[K, *resource[K, H]](options.clock),
		lrucache.WithOnEvict[K, *resource[K, H]](p.teardown),
	)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	p.cache = cache
	return p, nil
}

// Acquire returns the handle cached under the key, building it on a miss.
//
// A Standalone handle is built by calling factory. A handle derived from a parent key is
// built by the Deriver from the parent handle, which is itself acquired with factory when
// it is missing. If the parent cannot be obtained, factory is called to build the handle
// on its own and the handle is recorded as Standalone.
//
// Build errors are returned unchanged and nothing is cached, so the next call retries.
// A panic in factory or the Deriver is returned as *panics.ErrRecovered.
// With WithSingleFlight, concurrent callers of a missing key share the build of the
// first caller, including its factory and origin.
func (p *Pool[K, H]) Acquire(ctx context.Context, key K, factory Factory[H], origin Origin[K]) (H, error) {
	var zero H
	if p.closed.Load() {
		return zero, ErrClosed
	}
	if r, ok := p.cache.Get(key); ok {
		return r.handle, nil
	}
	if parent, ok := origin.Parent(); ok {
		if parent == key {
			return zero, ErrSelfDerived
		}
		if p.options.deriver == nil {
			return zero, ErrNoDeriver
		}
	}

	var (
		r   *resource[K, H]
		err error
	)
	if p.flights != nil {
		r, err = p.flights.do(ctx, key, func(ctx context.Context) (*resource[K, H], error) {
			return p.load(ctx, key, factory, origin)
		})
	} else {
		r, err = p.load(ctx, key, factory, origin)
	}
	if err != nil {
		return zero, err
	}
	return r.handle, nil
}

func (p *Pool[K, H]) load(ctx context.Context, key K, factory Factory[H], origin Origin[K]) (*resource[K, H], error) {
	if r, ok := p.cache.Get(key); ok {
		return r, nil
	}

	handle, origin, err := p.build(ctx, key, factory, origin)
	if err != nil {
		p.logBuildError(ctx, key, origin, err)
		return nil, err
	}

	r := &resource[K, H]{
		id:        uuid.New(),
		key:       key,
		origin:    origin,
		handle:    handle,
		createdAt: p.options.clock.Now(),
	}
	actual, loaded := p.cache.LoadOrStore(key, r)
	if loaded {
		p.options.logger.DebugContext(ctx, "discarding duplicate handle",
			slog.Any("key", key),
			slog.String("id", r.id.String()),
		)
		p.teardown(key, r)
		return actual, nil
	}
	if p.closed.Load() {
		p.cache.Delete(key)
		return nil, ErrClosed
	}

	p.options.logger.DebugContext(ctx, "handle created",
		slog.Any("key", key),
		slog.String("id", r.id.String()),
		slog.String("origin", origin.String()),
	)
	return r, nil
}

// build returns the new handle and the origin it was actually built with.
func (p *Pool[K, H]) build(ctx context.Context, key K, factory Factory[H], origin Origin[K]) (handle H, _ Origin[K], err error) {
	parentKey, derived := origin.Parent()
	if !derived {
		err = panicutil.Run(func() (err error) {
			handle, err = factory(ctx)
			return
		})
		return handle, origin, err
	}

	parent, err := p.Acquire(ctx, parentKey, factory, Standalone[K]())
	if err != nil {
		p.options.logger.WarnContext(ctx, "parent handle is unavailable, building the handle on its own",
			slog.Any("key", key),
			slog.Any("parent", parentKey),
			logging.Error(err),
		)
		return p.build(ctx, key, factory, Standalone[K]())
	}

	err = panicutil.Run(func() (err error) {
		handle, err = p.options.deriver(ctx, parentKey, parent, key)
		return
	})
	return handle, origin, err
}

func (p *Pool[K, H]) logBuildError(ctx context.Context, key K, origin Origin[K], err error) {
	attrs := []any{
		slog.Any("key", key),
		slog.String("origin", origin.String()),
		logging.Error(err),
	}
	if IsPermissionDenied(err) {
		p.options.logger.ErrorContext(ctx, "permission denied while building handle", attrs...)
		return
	}
	p.options.logger.WarnContext(ctx, "failed to build handle", attrs...)
}

// teardown is the eviction callback of the cache. It closes the handle at most once.
func (p *Pool[K, H]) teardown(key K, r *resource[K, H]) {
	r.closeOnce.Do(func() {
		if err := panicutil.Run(r.handle.Close); err != nil {
			p.options.logger.Warn("failed to close handle",
				slog.Any("key", key),
				slog.String("id", r.id.String()),
				logging.Error(err),
			)
			return
		}
		p.options.logger.Debug("handle closed",
			slog.Any("key", key),
			slog.String("id", r.id.String()),
		)
	})
}

// AcquireAll acquires the handles of all requests concurrently, at most WithParallelism at once.
// It returns the handles in request order, or the first error. Handles built before the
// error stay cached.
func (p *Pool[K, H]) AcquireAll(ctx context.Context, reqs []Request[K, H]) ([]H, error) {
	handles := make([]H, len(reqs))

	eg, ctx := errgroup.WithContext(ctx)
	if p.options.parallelism > 0 {
		eg.SetLimit(p.options.parallelism)
	}
	for i, req := range reqs {
		eg.Go(func() error {
			h, err := p.Acquire(ctx, req.Key, req.Factory, req.Origin)
			if err != nil {
				return fmt.Errorf("pool: acquire %v: %w", req.Key, err)
			}
			handles[i] = h
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return handles, nil
}

// Info returns the description of the live handle cached under the key.
// It does not mark the handle as recently used.
func (p *Pool[K, H]) Info(key K) (Info[K], bool) {
	r, ok := p.cache.Peek(key)
	if !ok {
		return Info[K]{}, false
	}
	return Info[K]{ID: r.id, Key: r.key, Origin: r.origin, CreatedAt: r.createdAt}, true
}

// Invalidate removes and closes the handle cached under the key, and reports whether
// there was one. Handles derived from it are left alone.
func (p *Pool[K, H]) Invalidate(key K) bool {
	return p.cache.Delete(key)
}

// InvalidateAll removes and closes every cached handle.
func (p *Pool[K, H]) InvalidateAll() {
	p.cache.Clear()
}

// SweepExpired closes every expired handle and returns how many were closed.
func (p *Pool[K, H]) SweepExpired() int {
	return p.cache.SweepExpired()
}

// Len returns the number of cached handles.
func (p *Pool[K, H]) Len() int {
	return p.cache.Len()
}

// Close closes every cached handle. Acquire returns ErrClosed afterwards.
// Calling Close more than once is a no-op.
func (p *Pool[K, H]) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.cache.Clear()
	return nil
}
