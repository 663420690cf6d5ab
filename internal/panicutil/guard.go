// Package panicutil contains user callbacks (factories, scheduled work) so that a
// panic or runtime.Goexit inside them cannot leave waiters blocked forever.
package panicutil

import (
	"github.com/sourcegraph/conc/panics"
)

// Run calls f and converts a panic into an error of type *panics.ErrRecovered.
// If f calls runtime.Goexit, the calling goroutine still exits.
func Run(f func() error) error {
	var g Guard
	return g.Run(f)
}

// Guard runs callbacks with panic recovery.
// Recovery happens in an inner deferred call and the Goexit check in an outer one,
// which is the only way to tell a panic from runtime.Goexit.
type Guard struct {
	// OnGoexit is called when the callback calls runtime.Goexit,
	// right before the goroutine terminates.
	OnGoexit func()
}

// Run calls f. A normal return yields the error of f; a panic yields *panics.ErrRecovered.
func (g *Guard) Run(f func() error) (err error) {
	var (
		returned  bool
		panicked  bool
		recovered panics.Recovered
	)
	defer func() {
		if returned {
			return
		}
		if panicked {
			err = recovered.AsError()
			return
		}
		if g.OnGoexit != nil {
			g.OnGoexit()
		}
	}()
	func() {
		defer func() {
			recovered = panics.NewRecovered(2, recover())
		}()
		err = f()
		returned = true
	}()
	panicked = !returned
	return
}
