package mysql

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dundich/outbox"
)

const (
	defaultTable       = "outbox"
	defaultTypesTable  = "outbox_types"
	defaultErrorsTable = "outbox_errors"
)

// Config defines MySQL store behavior.
type Config struct {
	// Table is the outbox messages table name.
	Table string
	// TypesTable is the type code table name.
	TypesTable string
	// ErrorsTable is the error log table name.
	ErrorsTable string
	// LockOwner identifies this worker on leased rows. Defaults to
	// hostname plus a random suffix.
	LockOwner string
	// Clock overrides the time source.
	Clock outbox.Clock
	// Parts, when set, is consulted before rents and writes to make sure
	// the target partitions exist.
	Parts outbox.Parts
	// Logger receives store diagnostics.
	Logger outbox.Logger
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.TypesTable == "" {
		c.TypesTable = defaultTypesTable
	}
	if c.ErrorsTable == "" {
		c.ErrorsTable = defaultErrorsTable
	}
	if c.LockOwner == "" {
		c.LockOwner = defaultLockOwner()
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}

	return c
}

func defaultLockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "outbox"
	}

	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the outbox messages table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithTypesTable sets the type code table name.
func WithTypesTable(name string) Option {
	return func(c *Config) {
		c.TypesTable = name
	}
}

// WithErrorsTable sets the error log table name.
func WithErrorsTable(name string) Option {
	return func(c *Config) {
		c.ErrorsTable = name
	}
}

// WithLockOwner sets the lease owner identity for this worker.
func WithLockOwner(owner string) Option {
	return func(c *Config) {
		c.LockOwner = owner
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithParts wires the partition ensurer consulted before rents and writes.
func WithParts(parts outbox.Parts) Option {
	return func(c *Config) {
		c.Parts = parts
	}
}

// WithLogger sets the store logger.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
