package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingDetector struct {
	mu      sync.Mutex
	tenants []int64
	err     error
	calls   int
}

func (d *countingDetector) DetectTenants(_ context.Context, _ string) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.tenants, d.err
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStaticTenants(t *testing.T) {
	tenants, err := StaticTenants{1, 2, 3}.Tenants(context.Background())
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if len(tenants) != 3 {
		t.Fatalf("expected 3 tenants, got %d", len(tenants))
	}
}

func TestDetectedTenantsCachesWithinTTL(t *testing.T) {
	detector := &countingDetector{tenants: []int64{1, 2}}
	clock := &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	provider := NewDetectedTenants(detector, "orders", time.Minute, clock)

	for i := 0; i < 3; i++ {
		tenants, err := provider.Tenants(context.Background())
		if err != nil {
			t.Fatalf("tenants: %v", err)
		}
		if len(tenants) != 2 {
			t.Fatalf("expected 2 tenants, got %d", len(tenants))
		}
	}
	if detector.calls != 1 {
		t.Fatalf("expected 1 detect call, got %d", detector.calls)
	}

	clock.advance(2 * time.Minute)
	if _, err := provider.Tenants(context.Background()); err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if detector.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", detector.calls)
	}
}

func TestDetectedTenantsZeroTTLDisablesCache(t *testing.T) {
	detector := &countingDetector{tenants: []int64{1}}
	provider := NewDetectedTenants(detector, "orders", 0, nil)

	for i := 0; i < 3; i++ {
		if _, err := provider.Tenants(context.Background()); err != nil {
			t.Fatalf("tenants: %v", err)
		}
	}
	if detector.calls != 3 {
		t.Fatalf("expected 3 detect calls, got %d", detector.calls)
	}
}

func TestDetectedTenantsError(t *testing.T) {
	boom := errors.New("detect failed")
	detector := &countingDetector{err: boom}
	provider := NewDetectedTenants(detector, "orders", time.Minute, nil)

	if _, err := provider.Tenants(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected detect error, got %v", err)
	}
}
