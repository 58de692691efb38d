package outbox

import (
	"context"
	"sync"
	"time"
)

// DefaultTenantID is used when no tenants are configured.
const DefaultTenantID int64 = 0

// TenantProvider supplies the active tenant id set for one polling cycle.
type TenantProvider interface {
	// Tenants returns the tenant ids to process.
	Tenants(ctx context.Context) ([]int64, error)
}

// StaticTenants is a fixed tenant id list.
type StaticTenants []int64

// Tenants implements TenantProvider.
func (s StaticTenants) Tenants(context.Context) ([]int64, error) {
	return s, nil
}

// TenantProviderFunc adapts a function to TenantProvider.
type TenantProviderFunc func(ctx context.Context) ([]int64, error)

// Tenants implements TenantProvider.
func (fn TenantProviderFunc) Tenants(ctx context.Context) ([]int64, error) {
	return fn(ctx)
}

// DetectedTenants auto-detects tenants with pending work through a
// TenantDetector, caching results with a short TTL to bound store load
// from a hot polling loop.
type DetectedTenants struct {
	detector TenantDetector
	part     string
	ttl      time.Duration
	clock    Clock

	mu        sync.Mutex
	cached    []int64
	fetchedAt time.Time
}

// NewDetectedTenants wraps a detector for one consumer group. A zero ttl
// disables caching.
func NewDetectedTenants(detector TenantDetector, part string, ttl time.Duration, clock Clock) *DetectedTenants {
	if clock == nil {
		clock = SystemClock{}
	}

	return &DetectedTenants{
		detector: detector,
		part:     part,
		ttl:      ttl,
		clock:    clock,
	}
}

// Tenants implements TenantProvider.
func (d *DetectedTenants) Tenants(ctx context.Context) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if d.ttl > 0 && !d.fetchedAt.IsZero() && now.Before(d.fetchedAt.Add(d.ttl)) {
		return d.cached, nil
	}

	tenants, err := d.detector.DetectTenants(ctx, d.part)
	if err != nil {
		return nil, err
	}

	d.cached = tenants
	d.fetchedAt = now

	return tenants, nil
}
