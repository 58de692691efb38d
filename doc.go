// Package outbox implements a transactional outbox with lease-based,
// at-least-once delivery on top of a relational store.
//
// Typical flow:
//  1. Within a business transaction, a Publisher appends message envelopes
//     through a storage-specific BulkWriter.
//  2. A scheduler periodically runs a Processor for each consumer group.
//     The Processor rents a batch of messages through a DeliveryManager,
//     hands them to a Consumer, and returns the batch with per-message
//     outcomes.
//  3. Outcomes drive the status state machine: success codes are terminal,
//     postponed messages become visible again later, warnings are retried
//     up to a delivery-attempt limit, and errors are terminal and logged
//     to a durable error store.
//
// Delivery is at-least-once: a rented message whose lease expires may be
// rented again by another worker, so consumers are expected to be
// idempotent. For the MySQL implementation (polling with SKIP LOCKED and
// range-partitioned tables), see the mysql package.
package outbox
