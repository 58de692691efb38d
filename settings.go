package outbox

import "time"

const (
	defaultMaxBatchSize   = 16
	defaultLockDuration   = 10 * time.Second
	defaultLockRenewal    = 3 * time.Second
	defaultLookBack       = 7 * 24 * time.Hour
	defaultMaxAttempts    = 3
	defaultBatchingWindow = 3 * time.Second
	defaultMaxIterations  = 10

	// UnboundedIterations disables the greedy-iteration limit.
	UnboundedIterations = -1
	// ParallelismAuto bounds per-tenant parallelism by the processor count.
	ParallelismAuto = -1
)

// ConsumeSettings tunes one polling cycle of a consumer group. Build it
// with NewConsumeSettings; the zero value is not valid.
type ConsumeSettings struct {
	// MaxBatchSize caps how many messages one rent call claims.
	MaxBatchSize int
	// LockDuration is the lease length stamped at rent time.
	LockDuration time.Duration
	// LockRenewal is the keepalive interval for lease extension. It must
	// be shorter than LockDuration.
	LockRenewal time.Duration
	// LookBack bounds how far back eligible messages are selected.
	LookBack time.Duration
	// MaxDeliveryAttempts is the retry budget for warning outcomes.
	MaxDeliveryAttempts int
	// BatchingWindow delays the first rent of a cycle to accumulate a
	// fuller batch. Zero disables the wait.
	BatchingWindow time.Duration
	// PerTenantTimeout bounds one consumer invocation. Zero disables it.
	PerTenantTimeout time.Duration
	// PerTenantParallelism bounds concurrent tenant loops. Values below
	// two process tenants sequentially; ParallelismAuto uses the
	// processor count.
	PerTenantParallelism int
	// MaxIterations bounds the greedy rent/consume/return loop per
	// tenant, or UnboundedIterations.
	MaxIterations int
	// IterationDelay is the pause between greedy iterations.
	IterationDelay time.Duration
}

// ConsumeOption adjusts ConsumeSettings.
type ConsumeOption func(*ConsumeSettings)

// NewConsumeSettings builds validated settings with documented defaults:
// batch 16, lock 10s, renewal 3s, lookback 7 days, 3 delivery attempts,
// batching window 3s, 10 greedy iterations.
func NewConsumeSettings(opts ...ConsumeOption) (ConsumeSettings, error) {
	s := ConsumeSettings{
		MaxBatchSize:         defaultMaxBatchSize,
		LockDuration:         defaultLockDuration,
		LockRenewal:          defaultLockRenewal,
		LookBack:             defaultLookBack,
		MaxDeliveryAttempts:  defaultMaxAttempts,
		BatchingWindow:       defaultBatchingWindow,
		PerTenantParallelism: 1,
		MaxIterations:        defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if err := s.validate(); err != nil {
		return ConsumeSettings{}, err
	}

	return s, nil
}

// MustConsumeSettings builds settings or panics on invalid options.
func MustConsumeSettings(opts ...ConsumeOption) ConsumeSettings {
	s, err := NewConsumeSettings(opts...)
	if err != nil {
		panic(err)
	}

	return s
}

func (s ConsumeSettings) validate() error {
	if s.MaxBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if s.LockDuration <= 0 {
		return ErrInvalidLockDuration
	}
	if s.LockRenewal <= 0 || s.LockRenewal >= s.LockDuration {
		return ErrInvalidLockRenewal
	}
	if s.MaxDeliveryAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	return nil
}

// WithMaxBatchSize sets the rent batch size.
func WithMaxBatchSize(size int) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.MaxBatchSize = size
	}
}

// WithLockDuration sets the lease length.
func WithLockDuration(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.LockDuration = d
	}
}

// WithLockRenewal sets the lease keepalive interval.
func WithLockRenewal(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.LockRenewal = d
	}
}

// WithLookBack sets the eligibility lookback window.
func WithLookBack(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.LookBack = d
	}
}

// WithMaxDeliveryAttempts sets the retry budget for warnings.
func WithMaxDeliveryAttempts(attempts int) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.MaxDeliveryAttempts = attempts
	}
}

// WithBatchingWindow sets the pre-rent accumulation delay.
func WithBatchingWindow(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.BatchingWindow = d
	}
}

// WithPerTenantTimeout bounds one consumer invocation.
func WithPerTenantTimeout(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.PerTenantTimeout = d
	}
}

// WithPerTenantParallelism bounds concurrent tenant loops.
func WithPerTenantParallelism(degree int) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.PerTenantParallelism = degree
	}
}

// WithMaxIterations bounds the greedy loop per tenant.
func WithMaxIterations(iterations int) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.MaxIterations = iterations
	}
}

// WithIterationDelay sets the pause between greedy iterations.
func WithIterationDelay(d time.Duration) ConsumeOption {
	return func(s *ConsumeSettings) {
		s.IterationDelay = d
	}
}
