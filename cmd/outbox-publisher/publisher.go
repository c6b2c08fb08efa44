package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publisherCache keeps one ordered publisher per topic for the life of the
// relay.
type publisherCache struct {
	client pubSubClient
	mu     sync.Mutex
	byName map[string]*gcppubsub.Publisher
}

func newPublisherCache(client pubSubClient) *publisherCache {
	return &publisherCache{client: client, byName: map[string]*gcppubsub.Publisher{}}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byName[topic]; ok {
		return &gcpPublisher{p: p}
	}
	p := c.client.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	c.byName[topic] = p
	return &gcpPublisher{p: p}
}

// stopAll flushes pending messages.
func (c *publisherCache) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range c.byName {
		p.Stop()
		delete(c.byName, name)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{res: g.p.Publish(ctx, msg), p: g.p, key: msg.OrderingKey}
}

type gcpPublishResult struct {
	res *gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

// Get waits for the server ack. A failed ordered publish pauses its key, so
// the key is resumed for the next attempt.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.p.ResumePublish(r.key)
	}
	return id, err
}
