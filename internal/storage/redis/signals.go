package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// signalChannel is the pub/sub channel every gust process shares.
const signalChannel = "gust:signals"

// signalBus implements storage.SignalBus over Redis pub/sub. Delivery is
// best-effort by construction: a process that is not subscribed at publish
// time simply never sees the message, which is exactly the contract.
type signalBus struct {
	client *redis.Client
}

// Emit publishes a signal name. The number of receivers is ignored; zero
// receivers is not an error.
func (b *signalBus) Emit(ctx context.Context, name string) error {
	return b.client.Publish(ctx, signalChannel, name).Err()
}

// Subscribe delivers signal names to fn on a background goroutine until
// the returned cancel function is called.
func (b *signalBus) Subscribe(ctx context.Context, fn func(name string)) (func(), error) {
	pubsub := b.client.Subscribe(ctx, signalChannel)

	// Force the subscription onto the wire before returning so callers
	// cannot miss signals emitted right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	var once sync.Once
	done := make(chan struct{})

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	return cancel, nil
}
