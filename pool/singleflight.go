package pool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	handlecache "github.com/karupanerura/handle-cache"
	"github.com/karupanerura/handle-cache/internal/panicutil"
)

var errGoexit = errors.New("runtime.Goexit is called")

type flightResult[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	r   *resource[K, H]
	err error
}

// flightGroup shares one load per key between all concurrent callers.
type flightGroup[K handlecache.KeyConstraint, H handlecache.Handle] struct {
	mu        sync.Mutex
	waitlists map[K][]chan flightResult[K, H]
}

func newFlightGroup[K handlecache.KeyConstraint, H handlecache.Handle]() *flightGroup[K, H] {
	return &flightGroup[K, H]{waitlists: map[K][]chan flightResult[K, H]{}}
}

// do joins the in-flight load of the key, or starts one.
// The load keeps running when ctx is canceled so that other waiters still get the result.
func (g *flightGroup[K, H]) do(ctx context.Context, key K, load func(context.Context) (*resource[K, H], error)) (*resource[K, H], error) {
	ch := g.register(ctx, key, load)
	select {
	case res := <-ch:
		if res.err == errGoexit {
			runtime.Goexit()
		}
		return res.r, res.err
	case <-ctx.Done():
		// ch is buffered, so the sender never blocks on us
		return nil, ctx.Err()
	}
}

func (g *flightGroup[K, H]) register(ctx context.Context, key K, load func(context.Context) (*resource[K, H], error)) chan flightResult[K, H] {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan flightResult[K, H], 1)
	g.waitlists[key] = append(g.waitlists[key], ch)
	if len(g.waitlists[key]) == 1 {
		go g.run(context.WithoutCancel(ctx), key, load)
	}
	return ch
}

func (g *flightGroup[K, H]) run(ctx context.Context, key K, load func(context.Context) (*resource[K, H], error)) {
	guard := panicutil.Guard{
		OnGoexit: func() {
			g.send(key, flightResult[K, H]{err: errGoexit})
		},
	}

	var r *resource[K, H]
	err := guard.Run(func() (err error) {
		r, err = load(ctx)
		return
	})
	g.send(key, flightResult[K, H]{r: r, err: err})
}

func (g *flightGroup[K, H]) send(key K, res flightResult[K, H]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, ch := range g.waitlists[key] {
		ch <- res
		close(ch)
	}
	delete(g.waitlists, key)
}
