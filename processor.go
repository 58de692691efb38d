package outbox

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Processor orchestrates polling cycles for one consumer group: it rents
// batches through the DeliveryManager, keeps leases alive while the
// Consumer runs, and returns each batch with per-message outcomes.
type Processor[T any] struct {
	manager  DeliveryManager
	consumer Consumer[T]
	part     string
	cfg      ProcessorConfig
}

// ProcessorConfig defines processor collaborators.
type ProcessorConfig struct {
	// Tenants supplies the tenant set per cycle. Defaults to the single
	// DefaultTenantID.
	Tenants TenantProvider
	// Serializer decodes rented payloads. Defaults to JSON.
	Serializer Serializer
	// Clock overrides the time source.
	Clock Clock
	// Logger receives cycle diagnostics.
	Logger Logger
	// Metrics receives cycle telemetry.
	Metrics Metrics
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.Tenants == nil {
		c.Tenants = StaticTenants{DefaultTenantID}
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*ProcessorConfig)

// WithTenants sets the tenant provider.
func WithTenants(provider TenantProvider) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Tenants = provider
	}
}

// WithSerializer sets the payload serializer.
func WithSerializer(serializer Serializer) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Serializer = serializer
	}
}

// WithClock sets the processor time source.
func WithClock(clock Clock) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger Logger) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the processor metrics recorder.
func WithMetrics(metrics Metrics) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Metrics = metrics
	}
}

// NewProcessor constructs a processor for one consumer group.
func NewProcessor[T any](manager DeliveryManager, consumer Consumer[T], part string, opts ...ProcessorOption) (*Processor[T], error) {
	if manager == nil {
		panic("outbox: nil DeliveryManager")
	}
	if consumer == nil {
		panic("outbox: nil Consumer")
	}
	if part == "" {
		return nil, ErrPartRequired
	}

	var cfg ProcessorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Processor[T]{
		manager:  manager,
		consumer: consumer,
		part:     part,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Part returns the consumer group this processor serves.
func (p *Processor[T]) Part() string {
	return p.part
}

// ProcessMessages runs one polling cycle and returns the number of
// messages that reached a terminal success status across all tenants.
//
// Failures inside one tenant's loop are contained at the tenant boundary
// and do not abort sibling tenants; only a failing tenant resolution makes
// the call itself return an error.
func (p *Processor[T]) ProcessMessages(ctx context.Context, settings ConsumeSettings) (int, error) {
	if err := settings.validate(); err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		p.cfg.Metrics.ObserveCycleDuration(time.Since(start))
	}()

	if settings.BatchingWindow > 0 {
		if err := sleep(ctx, settings.BatchingWindow); err != nil {
			return 0, nil
		}
	}

	tenants, err := p.cfg.Tenants.Tenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox tenant resolution failed: %w", err)
	}
	if len(tenants) == 0 {
		tenants = []int64{DefaultTenantID}
	}

	degree := parallelism(settings.PerTenantParallelism, len(tenants))
	if degree <= 1 {
		total := 0
		for _, tenantID := range tenants {
			total += p.processTenant(ctx, tenantID, settings)
			if ctx.Err() != nil {
				break
			}
		}

		return total, nil
	}

	var total atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(degree)
	for _, tenantID := range tenants {
		group.Go(func() error {
			total.Add(int64(p.processTenant(groupCtx, tenantID, settings)))

			return nil
		})
	}
	// Tenant workers never return errors; Wait only joins them.
	_ = group.Wait()

	return int(total.Load()), nil
}

func parallelism(configured, tenantCount int) int {
	degree := configured
	if degree == ParallelismAuto {
		degree = runtime.GOMAXPROCS(0)
	}
	if degree > tenantCount {
		degree = tenantCount
	}

	return degree
}

// processTenant runs the greedy rent/consume/return loop for one tenant.
// All errors are contained here so one slow or failing tenant cannot
// starve its siblings.
func (p *Processor[T]) processTenant(ctx context.Context, tenantID int64, settings ConsumeSettings) int {
	filter := Filter{
		TenantID:    tenantID,
		Part:        p.part,
		MaxAttempts: settings.MaxDeliveryAttempts,
	}
	if settings.LookBack > 0 {
		filter.MinCreatedAt = p.cfg.Clock.Now().Add(-settings.LookBack)
	}

	total := 0
	buf := make([]Delivery, settings.MaxBatchSize)
	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			return total
		}

		rented, err := p.manager.Rent(ctx, buf, settings.LockDuration, filter)
		if err != nil {
			p.cfg.Logger.Error("outbox rent failed", "part", p.part, "tenant", tenantID, "err", err)

			return total
		}
		if rented == 0 {
			return total
		}
		p.cfg.Metrics.AddRented(rented)

		total += p.processBatch(ctx, buf[:rented], filter, settings)

		if rented < settings.MaxBatchSize {
			// Short rent signals queue drain for this tenant.
			return total
		}
		if settings.MaxIterations != UnboundedIterations && iteration+1 >= settings.MaxIterations {
			return total
		}
		if settings.IterationDelay > 0 {
			if err := sleep(ctx, settings.IterationDelay); err != nil {
				return total
			}
		}
	}
}

// processBatch delivers one rented batch and returns it, reporting the
// number of terminally successful messages.
func (p *Processor[T]) processBatch(ctx context.Context, batch []Delivery, filter Filter, settings ConsumeSettings) int {
	msgs := p.decodeBatch(batch)

	stopRenewal := p.startLeaseRenewal(ctx, filter, settings)
	p.consume(ctx, msgs, settings)
	stopRenewal()

	outcomes := make([]Outcome, 0, len(msgs))
	delivered, postponed, retried, failed := 0, 0, 0, 0
	for _, msg := range msgs {
		if !msg.Decided() {
			msg.Warn(ErrNoVerdict)
		}
		outcome := msg.outcome()
		outcomes = append(outcomes, outcome)

		switch {
		case outcome.Status.IsSuccess():
			delivered++
		case outcome.Status == StatusPostponed:
			postponed++
		case outcome.Status.IsWarning():
			retried++
		case outcome.Status.IsError():
			failed++
		}
	}

	// The batch is returned even when the cycle was cancelled mid-flight,
	// so a half-processed batch is never abandoned under an active lease.
	returnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.LockDuration)
	defer cancel()
	if _, err := p.manager.Return(returnCtx, outcomes, filter); err != nil {
		p.cfg.Logger.Error("outbox return failed", "part", p.part, "tenant", filter.TenantID, "err", err)

		return 0
	}

	p.cfg.Metrics.AddDelivered(delivered)
	p.cfg.Metrics.AddPostponed(postponed)
	p.cfg.Metrics.AddRetried(retried)
	p.cfg.Metrics.AddFailed(failed)

	return delivered
}

func (p *Processor[T]) decodeBatch(batch []Delivery) []*MsgContext[T] {
	msgs := make([]*MsgContext[T], 0, len(batch))
	for _, delivery := range batch {
		var payload T
		msg := newMsgContext(delivery, payload, p.cfg.Clock)
		if err := p.cfg.Serializer.Decode(delivery.Payload, &msg.payload); err != nil {
			// Undecodable payloads are poison: retrying cannot help.
			msg.Error(fmt.Errorf("%w: %w", ErrDecodePayload, err))
		}
		msgs = append(msgs, msg)
	}

	return msgs
}

// consume invokes the Consumer, bounded by the per-tenant timeout when one
// is configured. A timeout or consumer error marks every undecided message
// as a warning so the attempt is recorded and the batch stays retryable.
func (p *Processor[T]) consume(ctx context.Context, msgs []*MsgContext[T], settings ConsumeSettings) {
	consumeCtx := ctx
	cancel := context.CancelFunc(func() {})
	if settings.PerTenantTimeout > 0 {
		consumeCtx, cancel = context.WithTimeout(ctx, settings.PerTenantTimeout)
	}
	defer cancel()

	err := p.consumer.Consume(consumeCtx, msgs)
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", ErrConsumerTimeout, err)
	}

	p.cfg.Logger.Warn("outbox consume failed", "part", p.part, "err", err)
	for _, msg := range msgs {
		if !msg.Decided() {
			msg.Warn(err)
		}
	}
}

// startLeaseRenewal launches the keepalive that extends the batch lease
// every LockRenewal interval while the consumer runs. The returned stop
// function cancels the keepalive and joins it before the caller proceeds
// to Return.
func (p *Processor[T]) startLeaseRenewal(ctx context.Context, filter Filter, settings ConsumeSettings) func() {
	renewCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(settings.LockRenewal)
		defer ticker.Stop()

		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				expiresAt := p.cfg.Clock.Now().Add(settings.LockDuration)
				extended, err := p.manager.Extend(renewCtx, expiresAt, filter)
				if err != nil {
					if renewCtx.Err() == nil {
						p.cfg.Logger.Warn("outbox lease extend failed", "part", p.part, "tenant", filter.TenantID, "err", err)
					}

					continue
				}
				p.cfg.Metrics.AddExtended(extended)
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
