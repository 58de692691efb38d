package outbox

import "time"

// MsgContext is the mutable per-message handle passed to a Consumer.
//
// Exactly one terminal operation is expected per delivery attempt. When a
// consumer reports nothing, the Processor records a warning verdict so the
// message stays retryable. When an operation is called more than once, the
// last call wins.
type MsgContext[T any] struct {
	delivery Delivery
	payload  T
	clock    Clock

	status  StatusCode
	err     error
	note    string
	until   time.Time
	decided bool
}

// NewMsgContext builds a message context outside a Processor. It exists
// so Consumer implementations can be unit-tested without a store.
func NewMsgContext[T any](delivery Delivery, payload T, clock Clock) *MsgContext[T] {
	if clock == nil {
		clock = SystemClock{}
	}

	return newMsgContext(delivery, payload, clock)
}

func newMsgContext[T any](delivery Delivery, payload T, clock Clock) *MsgContext[T] {
	return &MsgContext[T]{
		delivery: delivery,
		payload:  payload,
		clock:    clock,
	}
}

// Payload returns the decoded message body.
func (m *MsgContext[T]) Payload() T {
	return m.payload
}

// PayloadID returns the publish-time payload identifier.
func (m *MsgContext[T]) PayloadID() string {
	return m.delivery.PayloadID
}

// TenantID returns the tenant the message belongs to.
func (m *MsgContext[T]) TenantID() int64 {
	return m.delivery.TenantID
}

// Attempt returns the delivery attempt count including the current rent.
func (m *MsgContext[T]) Attempt() int {
	return m.delivery.Attempt
}

// Message rebuilds the typed message as it was published.
func (m *MsgContext[T]) Message() Message[T] {
	return Message[T]{
		PayloadID: m.delivery.PayloadID,
		Payload:   m.payload,
		PartInfo: PartInfo{
			TenantID:  m.delivery.TenantID,
			Part:      m.delivery.Part,
			CreatedAt: m.delivery.CreatedAt,
		},
	}
}

// Now returns the current time from the processor clock.
func (m *MsgContext[T]) Now() time.Time {
	return m.clock.Now()
}

// Ok marks the message as delivered.
func (m *MsgContext[T]) Ok() {
	m.decide(StatusOk, nil, "")
}

// Created marks the message as delivered with a created resource.
func (m *MsgContext[T]) Created() {
	m.decide(StatusCreated, nil, "")
}

// Accepted marks the message as accepted for asynchronous handling.
func (m *MsgContext[T]) Accepted() {
	m.decide(StatusAccepted, nil, "")
}

// NonAuthoritative marks the message as delivered by a secondary source.
func (m *MsgContext[T]) NonAuthoritative(note string) {
	m.decide(StatusNonAuthoritative, nil, note)
}

// NoContent marks the message as delivered with nothing to do.
func (m *MsgContext[T]) NoContent() {
	m.decide(StatusNoContent, nil, "")
}

// Aborted marks the message as explicitly skipped. Terminal, not a failure.
func (m *MsgContext[T]) Aborted(note string) {
	m.decide(StatusAborted, nil, note)
}

// MovedPermanently marks the message as belonging elsewhere. Terminal.
func (m *MsgContext[T]) MovedPermanently(note string) {
	m.decide(StatusMovedPermanently, nil, note)
}

// Postpone re-queues the message to become visible again after d.
// The attempt count is not charged for a postponed delivery.
func (m *MsgContext[T]) Postpone(d time.Duration) {
	m.decide(StatusPostponed, nil, "")
	m.until = m.clock.Now().Add(d)
}

// Warn marks the attempt as recoverably failed. The message is retried
// while attempts remain and promoted to the max-attempts error afterwards.
func (m *MsgContext[T]) Warn(err error) {
	m.decide(StatusWarning, err, "")
}

// Error marks the message as permanently failed.
func (m *MsgContext[T]) Error(err error) {
	m.decide(StatusError, err, "")
}

// ErrorCode marks the message as permanently failed with a specific code
// from the error family. Codes below the family floor are raised to it.
func (m *MsgContext[T]) ErrorCode(code StatusCode, err error) {
	if code < StatusError {
		code = StatusError
	}
	m.decide(code, err, "")
}

// ErrorMaxAttempts promotes the message to the terminal max-attempts error
// regardless of the remaining attempt budget.
func (m *MsgContext[T]) ErrorMaxAttempts(err error) {
	m.decide(StatusMaxAttemptsError, err, "")
}

// Decided reports whether a terminal operation was called this attempt.
func (m *MsgContext[T]) Decided() bool {
	return m.decided
}

// Status returns the currently recorded verdict.
func (m *MsgContext[T]) Status() StatusCode {
	return m.status
}

func (m *MsgContext[T]) decide(status StatusCode, err error, note string) {
	m.status = status
	m.err = err
	m.note = note
	m.until = time.Time{}
	m.decided = true
}

func (m *MsgContext[T]) outcome() Outcome {
	return Outcome{
		MsgID:   m.delivery.MsgID,
		Status:  m.status,
		Err:     m.err,
		Note:    m.note,
		Until:   m.until,
		Attempt: m.delivery.Attempt,
	}
}
