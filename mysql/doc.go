// Package mysql implements the outbox store contracts on MySQL.
//
// It provides the bulk writer, the rent/return/extend lease protocol
// (polling with FOR UPDATE SKIP LOCKED under READ COMMITTED), the type
// table backing the type resolver, the per-tenant error log, tenant
// detection, and maintenance of RANGE partitions on created_ts.
package mysql
