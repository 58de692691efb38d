package outbox

// StatusCode represents the delivery state of an outbox message.
//
// Codes are compared by range rather than by exact value, so stores may
// persist application-specific codes inside a family without the engine
// having to know them.
type StatusCode int32

const (
	// StatusPending indicates the message is ready for delivery.
	StatusPending StatusCode = 0
	// StatusProcessing indicates the message is rented under an active lease.
	StatusProcessing StatusCode = 100
	// StatusPostponed indicates the message was postponed to a later instant.
	// It is transient: Return persists postponed messages back as pending
	// with a future visibility time.
	StatusPostponed StatusCode = 103

	// StatusOk indicates successful delivery.
	StatusOk StatusCode = 200
	// StatusCreated indicates successful delivery that created a resource.
	StatusCreated StatusCode = 201
	// StatusAccepted indicates the message was accepted for asynchronous handling.
	StatusAccepted StatusCode = 202
	// StatusNonAuthoritative indicates success reported by a secondary source.
	StatusNonAuthoritative StatusCode = 203
	// StatusNoContent indicates successful delivery with nothing to do.
	StatusNoContent StatusCode = 204
	// StatusAborted indicates an explicit skip. Terminal, not a failure.
	StatusAborted StatusCode = 299

	// StatusMovedPermanently indicates the message logically belongs
	// elsewhere. Terminal; no physical move is performed.
	StatusMovedPermanently StatusCode = 301

	// StatusWarning indicates a recoverable failure retried up to the
	// delivery-attempt limit.
	StatusWarning StatusCode = 400

	// StatusError indicates a permanent failure.
	StatusError StatusCode = 500
	// StatusMaxAttemptsError indicates the delivery-attempt limit was exceeded.
	StatusMaxAttemptsError StatusCode = 501
)

// IsSuccess reports whether the code belongs to the success family,
// including Aborted.
func (s StatusCode) IsSuccess() bool {
	return s >= StatusOk && s < 300
}

// IsWarning reports whether the code belongs to the retryable warning family.
func (s StatusCode) IsWarning() bool {
	return s >= StatusWarning && s < 500
}

// IsError reports whether the code belongs to the permanent error family.
func (s StatusCode) IsError() bool {
	return s >= StatusError
}

// IsTerminal reports whether a message with this code is never rented again.
func (s StatusCode) IsTerminal() bool {
	return s.IsSuccess() || s == StatusMovedPermanently || s.IsError()
}

// IsRetryable reports whether the code leads back to StatusPending.
func (s StatusCode) IsRetryable() bool {
	return s == StatusPostponed || s.IsWarning()
}
