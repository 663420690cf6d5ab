package lrucache

import (
	"time"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/expiration"
)

// Option is the interface for the options of the cache.
type Option[K handlecache.KeyConstraint, V handlecache.ValueConstraint] interface {
	apply(*options[K, V])
}

type optionFunc[K handlecache.KeyConstraint, V handlecache.ValueConstraint] func(*options[K, V])

func (f optionFunc[K, V]) apply(o *options[K, V]) {
	f(o)
}

// WithTTL sets the time-to-live of entries. The age of an entry is measured from its last Set.
// Zero or negative disables expiry.
func WithTTL[K handlecache.KeyConstraint, V handlecache.ValueConstraint](ttl time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.ttl = ttl
	})
}

// WithOnEvict sets the callback invoked with every removed entry.
func WithOnEvict[K handlecache.KeyConstraint, V handlecache.ValueConstraint](f handlecache.EvictionFunc[K, V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.onEvict = f
	})
}

// WithClock sets the clock used to timestamp and age entries.
func WithClock[K handlecache.KeyConstraint, V handlecache.ValueConstraint](clock handlecache.Clock) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.clock = clock
	})
}

// WithCloner sets the value cloner applied to values returned by Get, Peek and LoadOrStore.
// The default is handlecache.NopValueCloner.
func WithCloner[K handlecache.KeyConstraint, V handlecache.ValueConstraint](cloner handlecache.ValueCloner[V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.cloner = cloner
	})
}

// WithExpirationPolicy sets the policy deciding whether an entry is expired.
// It is only consulted when a TTL is set. The default is expiration.GeneralPolicy.
func WithExpirationPolicy[K handlecache.KeyConstraint, V handlecache.ValueConstraint](policy expiration.Policy) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.policy = policy
	})
}

type options[K handlecache.KeyConstraint, V handlecache.ValueConstraint] struct {
	ttl     time.Duration
	onEvict handlecache.EvictionFunc[K, V]
	clock   handlecache.Clock
	cloner  handlecache.ValueCloner[V]
	policy  expiration.Policy
}

func defaultOptions[K handlecache.KeyConstraint, V handlecache.ValueConstraint]() options[K, V] {
	return options[K, V]{
		clock:  handlecache.SystemClock,
		cloner: handlecache.NopValueCloner[V]{},
		policy: expiration.GeneralPolicy{},
	}
}
