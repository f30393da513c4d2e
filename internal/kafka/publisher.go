package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

// EventPublisher routes order envelopes to their topic on a shared Producer.
type EventPublisher struct {
	Producer *Producer
}

func (e *EventPublisher) Publish(_ context.Context, env orders.Envelope) error {
	topic := orders.TopicFor(env.EventType)
	if topic == "" {
		return fmt.Errorf("no topic for event type %q", env.EventType)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.Producer.Publish(kafka.Message{
		Topic: topic,
		Key:   orders.PartitionKey(env.CorrelationID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	})
}
