package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisher sends one message and waits for the server ack.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type publisherSet interface {
	For(topic string) publisher
}

type topicSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// topicPublishers keeps one ordered Pub/Sub publisher per topic for the
// life of the process.
type topicPublishers struct {
	source topicSource
	mu     sync.Mutex
	byName map[string]*orderedPublisher
}

func newTopicPublishers(source topicSource) *topicPublishers {
	return &topicPublishers{source: source, byName: map[string]*orderedPublisher{}}
}

func (t *topicPublishers) For(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byName[topic]; ok {
		return p
	}
	raw := t.source.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	p := &orderedPublisher{raw: raw}
	t.byName[topic] = p
	return p
}

// Stop flushes and stops every publisher handed out so far.
func (t *topicPublishers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byName {
		p.raw.Stop()
	}
}

type orderedPublisher struct {
	raw *gcppubsub.Publisher
}

// Publish resumes the ordering key after a failure; Pub/Sub pauses a key
// once one of its messages fails.
func (p *orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := p.raw.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.raw.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
