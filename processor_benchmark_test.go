package outbox

import (
	"context"
	"testing"
	"time"
)

type benchManager struct {
	batch []Delivery
}

func (m *benchManager) Rent(_ context.Context, buf []Delivery, _ time.Duration, _ Filter) (int, error) {
	return copy(buf, m.batch), nil
}

func (m *benchManager) Return(_ context.Context, outcomes []Outcome, _ Filter) (int, error) {
	return len(outcomes), nil
}

func (m *benchManager) Extend(context.Context, time.Time, Filter) (int, error) {
	return 0, nil
}

func BenchmarkProcessorBatch(b *testing.B) {
	batch := make([]Delivery, 100)
	for i := range batch {
		batch[i] = delivery("11111111-1111-1111-1111-111111111111", 0, 1)
	}
	manager := &benchManager{batch: batch}

	consumer := ConsumerFunc[testEvent](func(_ context.Context, msgs []*MsgContext[testEvent]) error {
		for _, msg := range msgs {
			msg.Ok()
		}
		return nil
	})

	processor, err := NewProcessor(manager, consumer, "orders")
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}

	settings := MustConsumeSettings(
		WithMaxBatchSize(len(batch)),
		WithBatchingWindow(0),
		WithMaxIterations(1),
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.ProcessMessages(context.Background(), settings); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func BenchmarkTypeCode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = TypeCode("billing.OrderCreated")
	}
}
