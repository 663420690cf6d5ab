package scheduler

import (
	"context"
	"sync"
)

// Future is the result of a submitted request. It resolves exactly once.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Done returns a channel that is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await waits for the future to resolve and returns its value.
// The value is nil when the work failed, was dropped or timed out in the queue.
// The error is only ever the error of ctx.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Value returns the value and true if the future has resolved.
func (f *Future) Value() (any, bool) {
	select {
	case <-f.done:
		return f.value, true
	default:
		return nil, false
	}
}
