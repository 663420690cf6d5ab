// Package lrucache provides a bounded, thread-safe in-memory cache with
// least-recently-used eviction and optional time-to-live.
//
// Every removal (capacity eviction, Delete, expiry on read, SweepExpired and Clear)
// is reported to the eviction callback configured with WithOnEvict. Callbacks run
// after the cache lock is released and before the mutating call returns, so a
// callback may call back into the cache.
//
// Get, Has, Set and LoadOrStore count as touches for recency. Peek, Keys and Len do not.
package lrucache
