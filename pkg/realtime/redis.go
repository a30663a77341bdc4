package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

type redisPubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
	RealtimeChannel(topic string) string
}

// RedisBroker relays events through Redis pub/sub so every API replica sees
// inserts made by any other replica or worker.
type RedisBroker struct {
	client redisPubSub
	logg   *logger.Logger

	mu     sync.Mutex
	live   map[*Subscription]struct{}
	closed bool
}

// NewRedisBroker wires the broker to the shared Redis client.
func NewRedisBroker(client redisPubSub, logg *logger.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisBroker{client: client, logg: logg, live: make(map[*Subscription]struct{})}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload any) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.client.RealtimeChannel(topic), data)
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ps, err := b.client.Subscribe(ctx, b.client.RealtimeChannel(topic))
	if err != nil {
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(topic, func() error {
		b.mu.Lock()
		delete(b.live, sub)
		b.mu.Unlock()
		return ps.Close()
	})

	b.mu.Lock()
	b.live[sub] = struct{}{}
	b.mu.Unlock()

	go b.pump(ctx, sub, ps.Channel())
	return sub, nil
}

// pump is the only writer to sub.ch and closes it on exit.
func (b *RedisBroker) pump(ctx context.Context, sub *Subscription, msgs <-chan *goredis.Message) {
	defer close(sub.ch)
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-sub.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = sub.Close()
				return
			}
			ev := Event{Topic: sub.topic, Payload: json.RawMessage(msg.Payload)}
			if !sub.deliver(ev) && b.logg != nil {
				b.logg.Warn(b.logg.WithField(ctx, "topic", sub.topic), "realtime subscriber lagging, event dropped")
			}
		}
	}
}

// Close stops every live subscription opened through this broker.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.live))
	for sub := range b.live {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}
