package outbox

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryRejectsDuplicateParts(t *testing.T) {
	registry := NewRegistry()
	job := JobFunc(func(context.Context) error { return nil })

	if err := registry.Register("orders", job); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("orders", job); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
	if err := registry.Register("", job); !errors.Is(err, ErrPartRequired) {
		t.Fatalf("expected ErrPartRequired, got %v", err)
	}
}

func TestRegistryPartsSorted(t *testing.T) {
	registry := NewRegistry()
	job := JobFunc(func(context.Context) error { return nil })

	for _, part := range []string{"orders", "billing", "shipping"} {
		if err := registry.Register(part, job); err != nil {
			t.Fatalf("register %s: %v", part, err)
		}
	}

	parts := registry.Parts()
	want := []string{"billing", "orders", "shipping"}
	for i, part := range want {
		if parts[i] != part {
			t.Fatalf("expected %v, got %v", want, parts)
		}
	}

	if _, ok := registry.Job("orders"); !ok {
		t.Fatalf("expected registered job")
	}
	if _, ok := registry.Job("unknown"); ok {
		t.Fatalf("expected missing job")
	}
}

func TestProcessorJobExecute(t *testing.T) {
	manager := newFakeManager()
	manager.queue(DefaultTenantID, delivery("11111111-1111-1111-1111-111111111111", 0, 1))

	consumer := ConsumerFunc[testEvent](func(_ context.Context, msgs []*MsgContext[testEvent]) error {
		for _, msg := range msgs {
			msg.Ok()
		}
		return nil
	})

	processor, err := NewProcessor(manager, consumer, "orders")
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	job := NewProcessorJob(processor, fastSettings(), nil)
	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(manager.outcomes()) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(manager.outcomes()))
	}
}
