// Package kafka provides a Consumer that forwards rented outbox messages
// to a Kafka topic.
package kafka

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dundich/outbox"
)

// Writer is the subset of kafka-go's Writer the forwarder needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Forwarder delivers each rented message to Kafka, keyed by payload id so
// repeated deliveries of the same message land in the same partition.
// Successful writes report Ok; failed writes report Warn so the engine
// retries them up to the attempt limit.
type Forwarder[T any] struct {
	writer Writer
	topic  string
	encode func(msg outbox.Message[T]) ([]byte, error)
}

var _ outbox.Consumer[any] = (*Forwarder[any])(nil)

// NewForwarder creates a forwarder for one topic. A nil encode function
// forwards the stored payload re-encoded as JSON.
func NewForwarder[T any](writer Writer, topic string, encode func(msg outbox.Message[T]) ([]byte, error)) *Forwarder[T] {
	if encode == nil {
		serializer := outbox.JSONSerializer{}
		encode = func(msg outbox.Message[T]) ([]byte, error) {
			return serializer.Encode(msg.Payload)
		}
	}

	return &Forwarder[T]{
		writer: writer,
		topic:  topic,
		encode: encode,
	}
}

// Consume implements outbox.Consumer. Messages are written one by one so
// a single broker rejection only retries the affected message.
func (f *Forwarder[T]) Consume(ctx context.Context, msgs []*outbox.MsgContext[T]) error {
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		value, err := f.encode(msg.Message())
		if err != nil {
			// Encoding is deterministic; retrying cannot help.
			msg.Error(fmt.Errorf("kafka forwarder encode failed: %w", err))

			continue
		}

		record := kafkago.Message{
			Topic: f.topic,
			Key:   []byte(msg.PayloadID()),
			Value: value,
		}
		if err := f.writer.WriteMessages(ctx, record); err != nil {
			msg.Warn(fmt.Errorf("kafka forwarder write failed: %w", err))

			continue
		}
		msg.Ok()
	}

	return nil
}
