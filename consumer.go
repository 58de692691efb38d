package outbox

import "context"

// Consumer processes one rented batch for a consumer group.
//
// Each message context must receive exactly one terminal operation per
// attempt. Messages left without a verdict, and all messages when Consume
// returns an error, are recorded as warnings so they stay retryable.
type Consumer[T any] interface {
	// Consume handles the rented batch in store order.
	Consume(ctx context.Context, msgs []*MsgContext[T]) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc[T any] func(ctx context.Context, msgs []*MsgContext[T]) error

// Consume implements Consumer.
func (fn ConsumerFunc[T]) Consume(ctx context.Context, msgs []*MsgContext[T]) error {
	return fn(ctx, msgs)
}
