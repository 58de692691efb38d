package outbox

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrInvalidLockDuration indicates a non-positive lease duration.
	ErrInvalidLockDuration = errors.New("outbox lock duration must be positive")
	// ErrInvalidLockRenewal indicates a renewal interval that is not shorter than the lease.
	ErrInvalidLockRenewal = errors.New("outbox lock renewal must be positive and shorter than the lock duration")
	// ErrInvalidMaxAttempts indicates a non-positive delivery-attempt limit.
	ErrInvalidMaxAttempts = errors.New("outbox max delivery attempts must be positive")
	// ErrPartRequired is returned when a part (consumer group) name is empty.
	ErrPartRequired = errors.New("outbox part is required")
	// ErrTypeNameRequired is returned when a message type name is empty.
	ErrTypeNameRequired = errors.New("outbox type name is required")
	// ErrTenantFuncRequired is returned by PublishGrouped when no tenant
	// extraction function is configured.
	ErrTenantFuncRequired = errors.New("outbox tenant extraction function is required")
	// ErrNoVerdict marks a message whose consumer returned without calling
	// any terminal context operation. Treated as a retryable warning.
	ErrNoVerdict = errors.New("outbox consumer reported no verdict")
	// ErrConsumerTimeout marks messages of a tenant whose consumer call
	// exceeded the per-tenant timeout.
	ErrConsumerTimeout = errors.New("outbox consumer timed out")
	// ErrDecodePayload marks a message whose payload could not be decoded.
	ErrDecodePayload = errors.New("outbox payload decode failed")
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("outbox job is already registered")
)
