// Package handlecache provides the shared building blocks for caching expensive
// external handles and pacing calls to a rate-limited API.
//
// The subsystem is split into packages:
//   - lrucache: a bounded cache with recency eviction, optional expiry and eviction callbacks
//   - pool: a keyed resource pool on top of lrucache that builds handles with a factory,
//     derives child handles from parent handles and tears handles down on eviction
//   - scheduler: a FIFO task scheduler with request spacing, a concurrency cap,
//     exponential backoff on throttling and a cooldown state
//   - sweeper: a background loop that removes expired entries from any Sweeper
//
// This package holds the constraints, the Clock and Jitter abstractions and the
// value cloners that those packages share.
package handlecache
