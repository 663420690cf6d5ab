package pool_test

import (
	"context"
	"fmt"

	"github.com/karupanerura/handle-cache/pool"
)

type Webhook struct {
	Channel string
	Thread  string
}

func (w *Webhook) Close() error {
	if w.Thread != "" {
		fmt.Printf("closing webhook of thread %s\n", w.Thread)
		return nil
	}
	fmt.Printf("closing webhook of channel %s\n", w.Channel)
	return nil
}

func ExamplePool() {
	p, err := pool.New(10, pool.WithDeriver(func(_ context.Context, _ string, parent *Webhook, thread string) (*Webhook, error) {
		// a thread posts through the webhook of its parent channel
		return &Webhook{Channel: parent.Channel, Thread: thread}, nil
	}))
	if err != nil {
		panic(err)
	}
	defer p.Close()

	ctx := context.Background()
	createChannelWebhook := func(context.Context) (*Webhook, error) {
		fmt.Println("creating webhook of channel general")
		return &Webhook{Channel: "general"}, nil
	}

	thread, err := p.Acquire(ctx, "thread-1", createChannelWebhook, pool.DerivedFrom("general"))
	if err != nil {
		panic(err)
	}
	fmt.Printf("thread %s posts through channel %s\n", thread.Thread, thread.Channel)

	channel, err := p.Acquire(ctx, "general", createChannelWebhook, pool.Standalone[string]())
	if err != nil {
		panic(err)
	}
	fmt.Printf("channel %s is cached\n", channel.Channel)

	p.Invalidate("general")
	fmt.Println(p.Len(), "handle left")

	// Output:
	// creating webhook of channel general
	// thread thread-1 posts through channel general
	// channel general is cached
	// closing webhook of channel general
	// 1 handle left
	// closing webhook of thread thread-1
}
