package handlecache

// KeyConstraint is an interface for key constraints.
type KeyConstraint interface {
	comparable
}

// ValueConstraint is an interface for value constraints.
type ValueConstraint interface {
	any
}

// Entry is a key-value pair.
type Entry[K KeyConstraint, V ValueConstraint] struct {
	// Key is the key of the entry.
	Key K

	// Value is the value associated with the key.
	Value V
}

// EvictionFunc is called with the key and value of an entry removed from a cache.
// It is called for every removal: capacity eviction, explicit deletion, expiry and clearing.
type EvictionFunc[K KeyConstraint, V ValueConstraint] func(K, V)

// Handle is an expensive external resource managed by a pool.
// Close tears the resource down. It must be safe to call on a handle whose
// underlying connection was never fully opened.
type Handle interface {
	Close() error
}

// Sweeper is an interface for stores that hold expiring entries.
// Implementations must be thread-safe.
type Sweeper interface {
	// SweepExpired removes all expired entries and returns how many were removed.
	// It must be idempotent.
	SweepExpired() int
}
