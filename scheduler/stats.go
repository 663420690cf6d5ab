package scheduler

import "sync/atomic"

// Stats holds the counters of a scheduler.
type Stats struct {
	Submitted        uint64
	Dispatched       uint64
	Completed        uint64
	Failed           uint64
	Dropped          uint64
	TimedOut         uint64
	Throttled        uint64
	Ignored          uint64
	Cooldowns        uint64
	RetriesExhausted uint64
}

type counters struct {
	submitted        atomic.Uint64
	dispatched       atomic.Uint64
	completed        atomic.Uint64
	failed           atomic.Uint64
	dropped          atomic.Uint64
	timedOut         atomic.Uint64
	throttled        atomic.Uint64
	ignored          atomic.Uint64
	cooldowns        atomic.Uint64
	retriesExhausted atomic.Uint64
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:        s.stats.submitted.Load(),
		Dispatched:       s.stats.dispatched.Load(),
		Completed:        s.stats.completed.Load(),
		Failed:           s.stats.failed.Load(),
		Dropped:          s.stats.dropped.Load(),
		TimedOut:         s.stats.timedOut.Load(),
		Throttled:        s.stats.throttled.Load(),
		Ignored:          s.stats.ignored.Load(),
		Cooldowns:        s.stats.cooldowns.Load(),
		RetriesExhausted: s.stats.retriesExhausted.Load(),
	}
}
