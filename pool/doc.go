// Package pool caches expensive external handles under comparable keys.
//
// A Pool builds a handle with a caller supplied Factory on a miss, keeps it in a bounded
// lrucache.Cache and closes it exactly once when the cache evicts it, when it expires or
// when the caller invalidates it. Handles can be derived from a parent handle through the
// Origin passed to Acquire:
//
//	p, _ := pool.New[string, *Webhook](100, pool.WithDeriver(deriveThreadWebhook))
//	channel, err := p.Acquire(ctx, "channel:1", createWebhook, pool.Standalone[string]())
//	thread, err := p.Acquire(ctx, "thread:7", createWebhook, pool.DerivedFrom("channel:1"))
//
// Invalidation never cascades: invalidating a parent leaves its derived handles cached,
// and each of them rebuilds independently on its own next miss.
//
// The Pool can be configured with options:
//   - WithTTL / WithExpirationPolicy: expire handles by age
//   - WithDeriver: build derived handles from their parent without calling the factory
//   - WithSingleFlight: collapse concurrent builds of the same key into one
//   - WithParallelism: bound the concurrent builds of AcquireAll
//   - WithClock / WithLogger
package pool
