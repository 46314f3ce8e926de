package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "venue-events:"

// ChannelFor returns the bus channel for a venue. The venue id is embedded in
// the channel name so subscribers can route without opening the envelope.
func ChannelFor(venueID string) string {
	return channelPrefix + venueID
}

// RedisBus implements Bus on redis pub/sub. Every gateway process subscribes
// to the whole venue-events namespace and routes envelopes to its local rooms,
// so a mutation applied in any process reaches every connected client.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, envelope Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := b.client.Publish(ctx, ChannelFor(envelope.VenueID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe blocks until ctx is cancelled, invoking handler for every
// well-formed envelope in the namespace. Malformed or unknown envelopes are
// logged and dropped; they never stop the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bus subscription closed")
			}

			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				log.Printf("Dropping malformed bus event on %s: %v", msg.Channel, err)
				continue
			}
			if envelope.VenueID == "" {
				log.Printf("Dropping bus event without venue id on %s", msg.Channel)
				continue
			}
			if !Known(envelope.EventType) {
				log.Printf("Ignoring unknown event type %q for venue %s", envelope.EventType, envelope.VenueID)
				continue
			}

			handler(envelope)
		}
	}
}
