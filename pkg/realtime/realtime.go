// Package realtime fans row-inserted events out to live subscribers. Topics
// mirror a table filtered by one foreign-key column, for example
// messages:mission_id:<uuid> or notifications:user_id:<uuid>.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const subscriberBuffer = 64

// ErrClosed is returned when publishing or subscribing on a closed broker.
var ErrClosed = errors.New("realtime broker closed")

// Event is a single inserted row delivered to subscribers.
type Event struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Broker publishes events and hands out topic subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// RowInserted builds the topic for inserts into table where column = value.
func RowInserted(table, column, value string) string {
	return strings.Join([]string{table, column, value}, ":")
}

// Subscription delivers events for one topic until Close is called or the
// context passed to Subscribe is canceled. C is closed when delivery stops.
type Subscription struct {
	topic   string
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	release func() error
	err     error
}

func newSubscription(topic string, release func() error) *Subscription {
	return &Subscription{
		topic:   topic,
		ch:      make(chan Event, subscriberBuffer),
		done:    make(chan struct{}),
		release: release,
	}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// C returns the receive side of the event stream.
func (s *Subscription) C() <-chan Event { return s.ch }

// Done is closed once the subscription stops.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops delivery and releases the underlying resources. Safe to call
// more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// deliver hands ev to the subscriber without blocking. A slow subscriber
// loses events instead of stalling the publisher.
func (s *Subscription) deliver(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode realtime payload: %w", err)
		}
		return data, nil
	}
}

func validateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("realtime topic is required")
	}
	return nil
}
