package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dundich/outbox"
)

type event struct {
	ID int `json:"id"`
}

type captureKafkaWriter struct {
	written []kafkago.Message
	err     error
}

func (w *captureKafkaWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func msgContexts(payloadIDs ...string) []*outbox.MsgContext[event] {
	msgs := make([]*outbox.MsgContext[event], 0, len(payloadIDs))
	for i, payloadID := range payloadIDs {
		delivery := outbox.Delivery{
			MsgID:     "11111111-1111-1111-1111-111111111111",
			PayloadID: payloadID,
			TenantID:  1,
			Part:      "orders",
			Payload:   []byte(`{"id":1}`),
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Attempt:   i + 1,
		}
		msgs = append(msgs, outbox.NewMsgContext(delivery, event{ID: i + 1}, nil))
	}
	return msgs
}

func TestForwarderWritesAndAcks(t *testing.T) {
	writer := &captureKafkaWriter{}
	forwarder := NewForwarder[event](writer, "orders.events", nil)

	msgs := msgContexts("p-1", "p-2")
	if err := forwarder.Consume(context.Background(), msgs); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if len(writer.written) != 2 {
		t.Fatalf("expected 2 records, got %d", len(writer.written))
	}
	if writer.written[0].Topic != "orders.events" {
		t.Fatalf("unexpected topic: %s", writer.written[0].Topic)
	}
	if string(writer.written[0].Key) != "p-1" {
		t.Fatalf("unexpected key: %s", writer.written[0].Key)
	}
	for _, msg := range msgs {
		if msg.Status() != outbox.StatusOk {
			t.Fatalf("expected StatusOk, got %d", msg.Status())
		}
	}
}

func TestForwarderWriteFailureIsRetryable(t *testing.T) {
	writer := &captureKafkaWriter{err: errors.New("broker unavailable")}
	forwarder := NewForwarder[event](writer, "orders.events", nil)

	msgs := msgContexts("p-1")
	if err := forwarder.Consume(context.Background(), msgs); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if msgs[0].Status() != outbox.StatusWarning {
		t.Fatalf("expected StatusWarning, got %d", msgs[0].Status())
	}
}

func TestForwarderEncodeFailureIsPermanent(t *testing.T) {
	writer := &captureKafkaWriter{}
	encode := func(outbox.Message[event]) ([]byte, error) {
		return nil, errors.New("schema mismatch")
	}
	forwarder := NewForwarder[event](writer, "orders.events", encode)

	msgs := msgContexts("p-1")
	if err := forwarder.Consume(context.Background(), msgs); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if msgs[0].Status() != outbox.StatusError {
		t.Fatalf("expected StatusError, got %d", msgs[0].Status())
	}
	if len(writer.written) != 0 {
		t.Fatalf("expected no writes, got %d", len(writer.written))
	}
}

func TestForwarderStopsOnCanceledContext(t *testing.T) {
	writer := &captureKafkaWriter{}
	forwarder := NewForwarder[event](writer, "orders.events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs := msgContexts("p-1")
	if err := forwarder.Consume(ctx, msgs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if msgs[0].Decided() {
		t.Fatalf("expected undecided message on cancellation")
	}
}
