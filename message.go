package outbox

import "time"

// PartInfo describes the partition placement of an outbox message.
type PartInfo struct {
	// TenantID is the logical multi-tenant partitioning key.
	TenantID int64
	// Part is the partition/table key derived from the message type,
	// which also names the consumer group bound to the type.
	Part string
	// CreatedAt drives range-partition placement.
	CreatedAt time.Time
}

// Message is a typed outbox message created by the Publisher.
type Message[T any] struct {
	// PayloadID identifies the payload, either taken from the message
	// itself (see HasPayloadID) or generated at publish time.
	PayloadID string
	// Payload is the typed message body.
	Payload T
	// PartInfo is the partition placement stamped at publish time.
	PartInfo PartInfo
}

// HasPayloadID lets message types carry their own payload identifier.
// Messages that do not implement it get a generated UUID.
type HasPayloadID interface {
	PayloadID() string
}

// Envelope is the serialized form of a message handed to a BulkWriter.
type Envelope struct {
	PayloadID string
	TenantID  int64
	Part      string
	TypeCode  int64
	Payload   []byte
	CreatedAt time.Time
}
