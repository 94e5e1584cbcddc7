package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// gcpPublishers adapts the shared Pub/Sub publishers to the relay.
func gcpPublishers(lookup func(topic string) *gcppubsub.Publisher) topicPublishers {
	return func(topic string) publisher {
		p := lookup(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p: p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{
		res: g.p.Publish(ctx, msg),
		p:   g.p,
		key: msg.OrderingKey,
	}
}

// gcpResult resumes the ordering key after a failure; Pub/Sub pauses a key
// once one of its publishes fails.
type gcpResult struct {
	res *gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.p.ResumePublish(r.key)
	}
	return id, err
}
