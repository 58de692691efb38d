package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureWriter struct {
	mu      sync.Mutex
	batches [][]Envelope
	err     error
}

func (w *captureWriter) WriteBatch(_ context.Context, batch []Envelope) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	// The publisher reuses its chunk buffer, so keep a copy.
	w.batches = append(w.batches, append([]Envelope(nil), batch...))
	return len(batch), nil
}

type memoryTypeStore struct {
	mu       sync.Mutex
	types    map[int64]string
	inserts  int
	inserted chan struct{}
}

func newMemoryTypeStore() *memoryTypeStore {
	return &memoryTypeStore{
		types:    make(map[int64]string),
		inserted: make(chan struct{}, 8),
	}
}

func (s *memoryTypeStore) InsertType(_ context.Context, code int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if _, exists := s.types[code]; !exists {
		s.types[code] = name
	}
	select {
	case s.inserted <- struct{}{}:
	default:
	}
	return nil
}

func (s *memoryTypeStore) LoadTypes(context.Context) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make(map[int64]string, len(s.types))
	for code, name := range s.types {
		types[code] = name
	}
	return types, nil
}

type identifiedEvent struct {
	Key string `json:"key"`
}

func (e identifiedEvent) PayloadID() string {
	return e.Key
}

func newTestPublisher[T any](t *testing.T, writer BulkWriter, opts ...PublisherOption[T]) *Publisher[T] {
	t.Helper()
	resolver := NewTypeResolver(newMemoryTypeStore(), nil)
	publisher, err := NewPublisher[T](writer, resolver, "orders", "billing.OrderCreated", opts...)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return publisher
}

func TestPublisherChunksBatches(t *testing.T) {
	writer := &captureWriter{}
	publisher := newTestPublisher[testEvent](t, writer, WithPublishBatchSize[testEvent](2))

	msgs := []testEvent{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	count, err := publisher.Publish(context.Background(), 7, msgs)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 accepted, got %d", count)
	}
	if len(writer.batches) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(writer.batches))
	}
	sizes := []int{len(writer.batches[0]), len(writer.batches[1]), len(writer.batches[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
	for _, batch := range writer.batches {
		for _, envelope := range batch {
			if envelope.TenantID != 7 {
				t.Fatalf("unexpected tenant: %d", envelope.TenantID)
			}
			if envelope.Part != "orders" {
				t.Fatalf("unexpected part: %s", envelope.Part)
			}
			if envelope.TypeCode != TypeCode("billing.OrderCreated") {
				t.Fatalf("unexpected type code: %d", envelope.TypeCode)
			}
			if envelope.PayloadID == "" {
				t.Fatalf("expected generated payload id")
			}
		}
	}
}

func TestPublisherEmptyInputIsNoop(t *testing.T) {
	writer := &captureWriter{}
	publisher := newTestPublisher[testEvent](t, writer)

	count, err := publisher.Publish(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 accepted, got %d", count)
	}
	if len(writer.batches) != 0 {
		t.Fatalf("expected no writes, got %d", len(writer.batches))
	}
}

func TestPublisherStampsClockTime(t *testing.T) {
	writer := &captureWriter{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	publisher := newTestPublisher[testEvent](t, writer, WithPublisherClock[testEvent](fixedClock{now: now}))

	if _, err := publisher.Publish(context.Background(), 1, []testEvent{{ID: 1}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := writer.batches[0][0].CreatedAt; !got.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}
}

func TestPublisherKeepsProvidedPayloadID(t *testing.T) {
	writer := &captureWriter{}
	publisher := newTestPublisher[identifiedEvent](t, writer)

	msgs := []identifiedEvent{{Key: "invoice-42"}}
	if _, err := publisher.Publish(context.Background(), 1, msgs); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := writer.batches[0][0].PayloadID; got != "invoice-42" {
		t.Fatalf("expected invoice-42, got %s", got)
	}
}

func TestPublisherGroupedByTenant(t *testing.T) {
	writer := &captureWriter{}
	publisher := newTestPublisher[testEvent](t, writer, WithTenantFunc[testEvent](func(msg testEvent) int64 {
		return int64(msg.ID % 2)
	}))

	msgs := []testEvent{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	count, err := publisher.PublishGrouped(context.Background(), msgs)
	if err != nil {
		t.Fatalf("publish grouped: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 accepted, got %d", count)
	}
	if len(writer.batches) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writer.batches))
	}
	// First-seen tenant order is preserved: odd ids first.
	if writer.batches[0][0].TenantID != 1 || writer.batches[1][0].TenantID != 0 {
		t.Fatalf("unexpected tenant order: %d, %d", writer.batches[0][0].TenantID, writer.batches[1][0].TenantID)
	}
	for _, batch := range writer.batches {
		for _, envelope := range batch {
			if envelope.TenantID != batch[0].TenantID {
				t.Fatalf("mixed tenants in one write")
			}
		}
	}
}

func TestPublisherGroupedRequiresTenantFunc(t *testing.T) {
	writer := &captureWriter{}
	publisher := newTestPublisher[testEvent](t, writer)

	_, err := publisher.PublishGrouped(context.Background(), []testEvent{{ID: 1}})
	if !errors.Is(err, ErrTenantFuncRequired) {
		t.Fatalf("expected ErrTenantFuncRequired, got %v", err)
	}
}

func TestPublisherWriteFailure(t *testing.T) {
	boom := errors.New("insert failed")
	writer := &captureWriter{err: boom}
	publisher := newTestPublisher[testEvent](t, writer)

	count, err := publisher.Publish(context.Background(), 1, []testEvent{{ID: 1}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 accepted, got %d", count)
	}
}

func TestNewPublisherValidation(t *testing.T) {
	writer := &captureWriter{}
	resolver := NewTypeResolver(newMemoryTypeStore(), nil)

	if _, err := NewPublisher[testEvent](writer, resolver, "", "billing.OrderCreated"); !errors.Is(err, ErrPartRequired) {
		t.Fatalf("expected ErrPartRequired, got %v", err)
	}
	if _, err := NewPublisher[testEvent](writer, resolver, "orders", ""); !errors.Is(err, ErrTypeNameRequired) {
		t.Fatalf("expected ErrTypeNameRequired, got %v", err)
	}
}
