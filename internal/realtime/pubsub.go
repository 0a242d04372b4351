package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubRelay mirrors a Broker's events through a Cloud Pub/Sub topic so that
// calendars on other instances see changes made here.
type PubSubRelay struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	subName string
	broker  *Broker
}

// NewPubSubRelay connects to Pub/Sub. Each instance gets its own subscription
// named after the topic and the broker origin.
func NewPubSubRelay(ctx context.Context, projectID, topicName, credentialsFile string, broker *Broker) (*PubSubRelay, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return NewPubSubRelayWithClient(client, topicName, broker), nil
}

// NewPubSubRelayWithClient wraps an existing client.
func NewPubSubRelayWithClient(client *pubsub.Client, topicName string, broker *Broker) *PubSubRelay {
	return &PubSubRelay{
		client:  client,
		topic:   client.Topic(topicName),
		subName: fmt.Sprintf("%s-%s", topicName, broker.Origin()[:8]),
		broker:  broker,
	}
}

// Publish sends the event and waits for the server ack.
func (r *PubSubRelay) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	res := r.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"origin": ev.Origin,
			"table":  ev.Table,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Start ensures the topic and this instance's subscription exist, then
// blocks receiving until ctx is cancelled.
func (r *PubSubRelay) Start(ctx context.Context) error {
	sub, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	return r.receive(ctx, sub)
}

func (r *PubSubRelay) ensure(ctx context.Context) (*pubsub.Subscription, error) {
	exists, err := r.topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic: %w", err)
	}
	if !exists {
		if r.topic, err = r.client.CreateTopic(ctx, r.topic.ID()); err != nil {
			return nil, fmt.Errorf("failed to create topic: %w", err)
		}
		log.Printf("[pubsub] Created topic: %s", r.topic.ID())
	}

	sub := r.client.Subscription(r.subName)
	exists, err = sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription: %w", err)
	}
	if !exists {
		sub, err = r.client.CreateSubscription(ctx, r.subName, pubsub.SubscriptionConfig{
			Topic:       r.topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
		log.Printf("[pubsub] Created subscription: %s", r.subName)
	}
	return sub, nil
}

// receive delivers foreign events to the local broker. Events that
// originated here are acked and skipped.
func (r *PubSubRelay) receive(ctx context.Context, sub *pubsub.Subscription) error {
	log.Printf("[pubsub] Listening for change events on %s", r.subName)
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		defer msg.Ack()
		if msg.Attributes["origin"] == r.broker.Origin() {
			return
		}
		var ev ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[pubsub] Dropping malformed change event: %v", err)
			return
		}
		r.broker.Deliver(ctx, ev)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to receive change events: %w", err)
	}
	return nil
}

// Close removes this instance's subscription and releases the client.
func (r *PubSubRelay) Close(ctx context.Context) error {
	r.topic.Stop()
	if err := r.client.Subscription(r.subName).Delete(ctx); err != nil {
		log.Printf("[pubsub] Failed to delete subscription %s: %v", r.subName, err)
	}
	return r.client.Close()
}
