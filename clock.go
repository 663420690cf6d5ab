package handlecache

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock is an interface for getting the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc is a function type that implements the Clock interface.
type ClockFunc func() time.Time

// Now calls the function.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the default clock that uses time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// Jitter produces small random durations that are added to computed delays,
// so callers that would otherwise wake up together drift apart.
// The zero value produces no jitter. A Jitter is safe for concurrent use.
type Jitter struct {
	// Max is the exclusive upper bound of the produced durations.
	// Zero or negative disables jitter.
	Max time.Duration

	// Random is the random number generator.
	// If nil, it uses system default random generator.
	Random *rand.Rand

	mu sync.Mutex
}

// Duration returns a random duration in [0, Max).
func (j *Jitter) Duration() time.Duration {
	if j == nil || j.Max <= 0 {
		return 0
	}
	return time.Duration(j.randInt64N(int64(j.Max)))
}

func (j *Jitter) randInt64N(n int64) int64 {
	if j.Random == nil {
		return rand.Int64N(n)
	}

	// *rand.Rand is not safe for concurrent use
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Random.Int64N(n)
}
