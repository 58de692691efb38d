package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher appends typed messages to the outbox in bounded batches.
//
// Messages are stamped with a payload id, the part bound to the message
// type, and the publish timestamp, then handed to the BulkWriter one chunk
// at a time. Chunk buffers are pooled to avoid per-call allocation.
type Publisher[T any] struct {
	writer   BulkWriter
	resolver *TypeResolver
	cfg      PublisherConfig[T]

	part     string
	typeName string

	pool sync.Pool
}

// PublisherConfig defines publisher behavior.
type PublisherConfig[T any] struct {
	// MaxBatchSize caps one BulkWriter call. Defaults to 16.
	MaxBatchSize int
	// Clock overrides the time source.
	Clock Clock
	// Serializer overrides payload encoding. Defaults to JSON.
	Serializer Serializer
	// TenantFunc extracts the tenant id from a message for
	// PublishGrouped. Optional.
	TenantFunc func(msg T) int64
}

func (c PublisherConfig[T]) withDefaults() PublisherConfig[T] {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}

	return c
}

// PublisherOption configures a Publisher.
type PublisherOption[T any] func(*PublisherConfig[T])

// WithPublishBatchSize caps one writer call.
func WithPublishBatchSize[T any](size int) PublisherOption[T] {
	return func(c *PublisherConfig[T]) {
		c.MaxBatchSize = size
	}
}

// WithPublisherClock sets the publisher time source.
func WithPublisherClock[T any](clock Clock) PublisherOption[T] {
	return func(c *PublisherConfig[T]) {
		c.Clock = clock
	}
}

// WithPublisherSerializer sets the payload serializer.
func WithPublisherSerializer[T any](serializer Serializer) PublisherOption[T] {
	return func(c *PublisherConfig[T]) {
		c.Serializer = serializer
	}
}

// WithTenantFunc sets the tenant extraction function used by
// PublishGrouped.
func WithTenantFunc[T any](fn func(msg T) int64) PublisherOption[T] {
	return func(c *PublisherConfig[T]) {
		c.TenantFunc = fn
	}
}

// NewPublisher creates a publisher for one message type. The part names
// both the physical partition key and the consumer group bound to the
// type; typeName is the fully-qualified logical type name persisted via
// the type resolver.
func NewPublisher[T any](writer BulkWriter, resolver *TypeResolver, part, typeName string, opts ...PublisherOption[T]) (*Publisher[T], error) {
	if part == "" {
		return nil, ErrPartRequired
	}
	if typeName == "" {
		return nil, ErrTypeNameRequired
	}

	var cfg PublisherConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	p := &Publisher[T]{
		writer:   writer,
		resolver: resolver,
		cfg:      cfg,
		part:     part,
		typeName: typeName,
	}
	p.pool.New = func() any {
		buf := make([]Envelope, 0, cfg.MaxBatchSize)

		return &buf
	}

	return p, nil
}

// Publish appends messages for a single tenant and returns the accepted
// count. Empty input is a no-op.
func (p *Publisher[T]) Publish(ctx context.Context, tenantID int64, msgs []T) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	code, err := p.resolver.GetCode(ctx, p.typeName)
	if err != nil {
		return 0, err
	}

	return p.publishChunks(ctx, tenantID, code, msgs)
}

// PublishGrouped appends messages whose tenant is extracted per message by
// the configured TenantFunc. Messages are grouped by tenant before
// chunking, so one physical write never mixes tenants.
func (p *Publisher[T]) PublishGrouped(ctx context.Context, msgs []T) (int, error) {
	if p.cfg.TenantFunc == nil {
		return 0, ErrTenantFuncRequired
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	code, err := p.resolver.GetCode(ctx, p.typeName)
	if err != nil {
		return 0, err
	}

	groups := make(map[int64][]T)
	order := make([]int64, 0)
	for _, msg := range msgs {
		tenantID := p.cfg.TenantFunc(msg)
		if _, seen := groups[tenantID]; !seen {
			order = append(order, tenantID)
		}
		groups[tenantID] = append(groups[tenantID], msg)
	}

	total := 0
	for _, tenantID := range order {
		count, err := p.publishChunks(ctx, tenantID, code, groups[tenantID])
		total += count
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (p *Publisher[T]) publishChunks(ctx context.Context, tenantID, typeCode int64, msgs []T) (int, error) {
	bufPtr := p.pool.Get().(*[]Envelope)
	defer func() {
		*bufPtr = (*bufPtr)[:0]
		p.pool.Put(bufPtr)
	}()

	total := 0
	for start := 0; start < len(msgs); start += p.cfg.MaxBatchSize {
		end := min(start+p.cfg.MaxBatchSize, len(msgs))

		chunk := (*bufPtr)[:0]
		now := p.cfg.Clock.Now()
		for _, msg := range msgs[start:end] {
			envelope, err := p.envelope(msg, tenantID, typeCode, now)
			if err != nil {
				return total, err
			}
			chunk = append(chunk, envelope)
		}

		count, err := p.writer.WriteBatch(ctx, chunk)
		total += count
		if err != nil {
			return total, fmt.Errorf("outbox publish write failed: %w", err)
		}
	}

	return total, nil
}

func (p *Publisher[T]) envelope(msg T, tenantID, typeCode int64, now time.Time) (Envelope, error) {
	payload, err := p.cfg.Serializer.Encode(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("outbox payload encode failed: %w", err)
	}

	payloadID := ""
	if withID, ok := any(msg).(HasPayloadID); ok {
		payloadID = withID.PayloadID()
	}
	if payloadID == "" {
		payloadID = uuid.NewString()
	}

	return Envelope{
		PayloadID: payloadID,
		TenantID:  tenantID,
		Part:      p.part,
		TypeCode:  typeCode,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}
