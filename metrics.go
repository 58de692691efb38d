package outbox

import "time"

// Metrics captures delivery-cycle telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time one ProcessMessages call took.
	ObserveCycleDuration(duration time.Duration)
	// AddRented increments the count of rented messages.
	AddRented(count int)
	// AddDelivered increments the count of terminally successful messages.
	AddDelivered(count int)
	// AddPostponed increments the count of postponed messages.
	AddPostponed(count int)
	// AddRetried increments the count of warning retries.
	AddRetried(count int)
	// AddFailed increments the count of permanently failed messages.
	AddFailed(count int)
	// AddExtended increments the count of lease extensions performed.
	AddExtended(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddRented implements Metrics.
func (NopMetrics) AddRented(int) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddPostponed implements Metrics.
func (NopMetrics) AddPostponed(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddExtended implements Metrics.
func (NopMetrics) AddExtended(int) {}
