package expiration

import (
	"math/rand/v2"
	"time"
)

// Policy is the interface for the entry age checker.
// Implementations must never keep an entry whose age exceeds ttl.
type Policy interface {
	// IsExpired returns true if an entry of the given age must no longer be returned.
	IsExpired(age, ttl time.Duration) bool
}

// GeneralPolicy expires an entry once its age exceeds the ttl.
type GeneralPolicy struct{}

var _ Policy = GeneralPolicy{}

// IsExpired returns true if age > ttl.
func (GeneralPolicy) IsExpired(age, ttl time.Duration) bool {
	return age > ttl
}

// EarlyPolicy expires an entry once its age exceeds the ttl, and with a
// configurable chance up to Window before that.
// Handles built at the same time then get rebuilt at different times, which
// spreads factory calls against a rate-limited API.
type EarlyPolicy struct {
	// Window is how much earlier the entry can expire.
	Window time.Duration

	// Percentage is the chance (between 0 and 1) that a check uses the early window.
	Percentage float64

	// Random is the random number generator to decide early expiration.
	// If not set, the default system random generator is used.
	Random *rand.Rand
}

var _ Policy = (*EarlyPolicy)(nil)

// IsExpired returns true if age > ttl, or, with probability Percentage, if age+Window > ttl.
func (p *EarlyPolicy) IsExpired(age, ttl time.Duration) bool {
	if age > ttl {
		return true
	}
	if p.randFloat64() >= p.Percentage {
		return false
	}
	return age+p.Window > ttl
}

func (p *EarlyPolicy) randFloat64() float64 {
	if p.Random == nil {
		return rand.Float64()
	}
	return p.Random.Float64()
}
