package outbox

import (
	"context"
	"time"
)

// Filter scopes rent, return, and extend calls to one consumer group and
// tenant.
type Filter struct {
	// TenantID selects messages of a single tenant.
	TenantID int64
	// Part selects messages of a single consumer group.
	Part string
	// MinCreatedAt bounds the lookback window; zero disables the bound.
	MinCreatedAt time.Time
	// MaxAttempts is the delivery-attempt limit applied when returning
	// warning outcomes.
	MaxAttempts int
}

// Delivery is the store-side row image of a rented message.
type Delivery struct {
	// MsgID is the store-assigned message identifier.
	MsgID string
	// PayloadID is the publish-time payload identifier.
	PayloadID string
	// TenantID is the tenant the message belongs to.
	TenantID int64
	// Part is the consumer group the message is keyed by.
	Part string
	// TypeCode is the compact numeric code of the message type.
	TypeCode int64
	// Payload is the serialized message body.
	Payload []byte
	// CreatedAt is the publish-time timestamp.
	CreatedAt time.Time
	// Attempt is the delivery attempt count including the current rent.
	Attempt int
}

// Outcome is the per-message verdict applied by Return.
type Outcome struct {
	// MsgID identifies the rented message.
	MsgID string
	// Status is the verdict reported by the consumer.
	Status StatusCode
	// Err is the triggering error for warning and error verdicts.
	Err error
	// Note is an optional free-text diagnostic message.
	Note string
	// Until is the next visibility instant for postponed messages.
	Until time.Time
	// Attempt is the delivery attempt the verdict belongs to. Return
	// uses it against Filter.MaxAttempts when deciding whether a
	// warning stays retryable.
	Attempt int
}

// DeliveryManager owns the lease protocol backed by the store.
//
// Renting is the lock acquisition: an optimistic, row-level, expiry-based
// claim with no long-held database transaction. A message whose lease
// expired may be rented again elsewhere, so a late Return is a lost update
// the design accepts, bounded by the lock duration.
type DeliveryManager interface {
	// Rent atomically claims up to len(buf) eligible messages matching
	// filter, marks them processing with a lease of lockDuration, and
	// fills buf. It returns the number of messages rented; zero eligible
	// rows is not an error.
	Rent(ctx context.Context, buf []Delivery, lockDuration time.Duration, filter Filter) (int, error)

	// Return persists the final or next state for each outcome: success
	// family and MovedPermanently are terminal, postponed messages become
	// pending with a future visibility time, warnings become pending
	// while attempts remain and the max-attempts error afterwards, and
	// the error family is terminal and recorded in the error log.
	Return(ctx context.Context, outcomes []Outcome, filter Filter) (int, error)

	// Extend bulk-extends the lease expiry for all messages currently
	// rented by this manager under filter.
	Extend(ctx context.Context, lockExpiresAt time.Time, filter Filter) (int, error)
}

// BulkWriter appends a batch of envelopes to the durable outbox.
type BulkWriter interface {
	// WriteBatch persists the batch and returns the accepted count.
	WriteBatch(ctx context.Context, batch []Envelope) (int, error)
}

// Parts is the external partition-lifecycle contract the engine consumes.
// EnsureParts calls are idempotent and safe to invoke concurrently.
type Parts interface {
	// EnsureParts makes sure partitions exist for the given date and
	// tenants before messages are written or rented.
	EnsureParts(ctx context.Context, date time.Time, tenantIDs []int64) error
	// Migrate performs schema-level partition migration out of band and
	// returns the number of applied changes.
	Migrate(ctx context.Context) (int, error)
}

// TypeStore persists the mapping between type codes and type names.
type TypeStore interface {
	// InsertType stores a (code, name) pair. Inserts are idempotent:
	// the first writer wins and later writers reuse its row.
	InsertType(ctx context.Context, code int64, name string) error
	// LoadTypes returns the full code-to-name table.
	LoadTypes(ctx context.Context) (map[int64]string, error)
}

// TenantDetector discovers tenants with pending work for a consumer group.
type TenantDetector interface {
	// DetectTenants returns distinct tenant ids with pending messages.
	DetectTenants(ctx context.Context, part string) ([]int64, error)
}
